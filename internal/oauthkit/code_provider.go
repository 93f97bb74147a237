package oauthkit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// AuthorizationCodeProvider obtains a one-time authorization code after the
// user grants consent in a browser. Implementations decide how the code
// travels back: a local callback server, a pasted terminal prompt, or a
// canned value in tests.
type AuthorizationCodeProvider interface {
	Code(ctx context.Context) (string, error)
}

// PromptCodeProvider reads a pasted authorization code from an input stream,
// typically stdin. Used when the registered redirect URI cannot reach this
// machine.
type PromptCodeProvider struct {
	Input  io.Reader
	Output io.Writer
}

// Code prompts for and reads a single line containing the code.
func (provider *PromptCodeProvider) Code(ctx context.Context) (string, error) {
	if provider.Output != nil {
		_, _ = fmt.Fprint(provider.Output, "Paste the authorization code from the redirect URL: ")
	}

	type lineResult struct {
		line string
		err  error
	}
	lines := make(chan lineResult, 1)
	go func() {
		reader := bufio.NewReader(provider.Input)
		line, readErr := reader.ReadString('\n')
		lines <- lineResult{line: line, err: readErr}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-lines:
		code := strings.TrimSpace(result.line)
		if code == "" {
			if result.err != nil {
				return "", result.err
			}
			return "", errors.New("empty authorization code")
		}
		return code, nil
	}
}

// StaticCodeProvider returns a fixed code. Test helper.
type StaticCodeProvider struct {
	Value string
}

// Code returns the canned code.
func (provider *StaticCodeProvider) Code(ctx context.Context) (string, error) {
	if provider.Value == "" {
		return "", errors.New("no code configured")
	}
	return provider.Value, nil
}
