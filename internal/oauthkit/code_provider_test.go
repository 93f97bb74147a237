package oauthkit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestPromptCodeProviderReadsTrimmedLine(t *testing.T) {
	t.Parallel()
	var output bytes.Buffer
	provider := &PromptCodeProvider{
		Input:  strings.NewReader("  pasted-code  \n"),
		Output: &output,
	}

	code, codeErr := provider.Code(context.Background())
	if codeErr != nil {
		t.Fatalf("prompt code: %v", codeErr)
	}
	if code != "pasted-code" {
		t.Fatalf("unexpected code %q", code)
	}
	if output.Len() == 0 {
		t.Fatalf("expected prompt text written to output")
	}
}

func TestPromptCodeProviderRejectsEmptyInput(t *testing.T) {
	t.Parallel()
	provider := &PromptCodeProvider{Input: strings.NewReader("\n")}
	if _, codeErr := provider.Code(context.Background()); codeErr == nil {
		t.Fatalf("expected error for empty code")
	}
}

func TestPromptCodeProviderHonorsCancellation(t *testing.T) {
	t.Parallel()
	blocked, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	provider := &PromptCodeProvider{Input: blockingReader{}}
	if _, codeErr := provider.Code(blocked); codeErr == nil {
		t.Fatalf("expected context error")
	}
}

type blockingReader struct{}

func (blockingReader) Read(buffer []byte) (int, error) {
	time.Sleep(time.Hour)
	return 0, nil
}

func TestStaticCodeProvider(t *testing.T) {
	t.Parallel()
	provider := &StaticCodeProvider{Value: "canned"}
	code, codeErr := provider.Code(context.Background())
	if codeErr != nil || code != "canned" {
		t.Fatalf("unexpected result %q %v", code, codeErr)
	}
	if _, emptyErr := (&StaticCodeProvider{}).Code(context.Background()); emptyErr == nil {
		t.Fatalf("expected error for unset code")
	}
}
