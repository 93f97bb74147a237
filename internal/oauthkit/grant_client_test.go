package oauthkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newGrantTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Config) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	configuration := newTestConfig()
	configuration.TokenURL = server.URL + "/token"
	configuration.HTTPTimeout = 5 * time.Second
	return server, configuration
}

func TestClientCredentialsGrantRequestShape(t *testing.T) {
	t.Parallel()
	var capturedGrantType, capturedScope, capturedUser, capturedPassword string
	var capturedBasicAuth bool

	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		if parseErr := request.ParseForm(); parseErr != nil {
			t.Errorf("parse form: %v", parseErr)
		}
		capturedGrantType = request.PostFormValue("grant_type")
		capturedScope = request.PostFormValue("scope")
		capturedUser, capturedPassword, capturedBasicAuth = request.BasicAuth()
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"access_token":"app-token","expires_in":1800}`))
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	result, grantErr := client.ClientCredentials(context.Background())
	if grantErr != nil {
		t.Fatalf("client credentials grant: %v", grantErr)
	}
	if result.AccessToken != "app-token" {
		t.Fatalf("unexpected access token %q", result.AccessToken)
	}
	if result.ExpiresIn != 1800*time.Second {
		t.Fatalf("unexpected expires_in %v", result.ExpiresIn)
	}
	if capturedGrantType != "client_credentials" {
		t.Fatalf("unexpected grant_type %q", capturedGrantType)
	}
	if capturedScope != DefaultClientScopes {
		t.Fatalf("unexpected scope %q", capturedScope)
	}
	if !capturedBasicAuth || capturedUser != "client-id" || capturedPassword != "client-secret" {
		t.Fatalf("expected basic auth with client credentials, got %q/%q", capturedUser, capturedPassword)
	}
}

func TestAuthorizationCodeGrantCarriesRedirectURI(t *testing.T) {
	t.Parallel()
	var capturedCode, capturedRedirect string
	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		_ = request.ParseForm()
		capturedCode = request.PostFormValue("code")
		capturedRedirect = request.PostFormValue("redirect_uri")
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"access_token":"user-token","refresh_token":"refresh-token","expires_in":1800}`))
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	result, grantErr := client.AuthorizationCode(context.Background(), "one-time-code")
	if grantErr != nil {
		t.Fatalf("authorization code grant: %v", grantErr)
	}
	if result.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected refresh token %q", result.RefreshToken)
	}
	if capturedCode != "one-time-code" {
		t.Fatalf("unexpected code %q", capturedCode)
	}
	if capturedRedirect != configuration.RedirectURI {
		t.Fatalf("unexpected redirect_uri %q", capturedRedirect)
	}
}

func TestGrantRejectionCarriesOAuthCode(t *testing.T) {
	t.Parallel()
	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"error":"invalid_grant"}`))
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	_, grantErr := client.RefreshToken(context.Background(), "revoked-refresh")
	if !errors.Is(grantErr, ErrGrantRejected) {
		t.Fatalf("expected ErrGrantRejected, got %v", grantErr)
	}
	var rejection *GrantError
	if !errors.As(grantErr, &rejection) {
		t.Fatalf("expected GrantError, got %T", grantErr)
	}
	if rejection.OAuthCode != "invalid_grant" || rejection.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected rejection %+v", rejection)
	}
}

func TestServerErrorSurfacesAsNetworkFailure(t *testing.T) {
	t.Parallel()
	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	_, grantErr := client.ClientCredentials(context.Background())
	if !errors.Is(grantErr, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for 5xx, got %v", grantErr)
	}
}

func TestMalformedTokenResponseSurfacesAsNetworkFailure(t *testing.T) {
	t.Parallel()
	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`not json`))
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	_, grantErr := client.ClientCredentials(context.Background())
	if !errors.Is(grantErr, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for malformed body, got %v", grantErr)
	}
}

func TestMissingAccessTokenSurfacesAsNetworkFailure(t *testing.T) {
	t.Parallel()
	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"expires_in":1800}`))
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	_, grantErr := client.ClientCredentials(context.Background())
	if !errors.Is(grantErr, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for missing access_token, got %v", grantErr)
	}
}

func TestDefaultExpiryAssumedWhenOmitted(t *testing.T) {
	t.Parallel()
	_, configuration := newGrantTestServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"access_token":"app-token"}`))
	})

	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	result, grantErr := client.ClientCredentials(context.Background())
	if grantErr != nil {
		t.Fatalf("client credentials grant: %v", grantErr)
	}
	if result.ExpiresIn != DefaultExpiresIn {
		t.Fatalf("expected default expires_in, got %v", result.ExpiresIn)
	}
}

func TestEmptyCredentialsFailWithoutNetworkCall(t *testing.T) {
	t.Parallel()
	configuration := newTestConfig()
	configuration.ClientID = ""
	client := NewGrantClient(configuration, zaptest.NewLogger(t))
	_, grantErr := client.ClientCredentials(context.Background())
	if !errors.Is(grantErr, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", grantErr)
	}
}
