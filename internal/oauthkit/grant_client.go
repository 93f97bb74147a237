package oauthkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GrantResult is the decoded success body of a token-endpoint exchange.
type GrantResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// GrantClient performs the three OAuth2 token-endpoint exchanges the Kroger
// authorization server supports. Every call authenticates with HTTP Basic
// client credentials and is bounded by the configured timeout.
type GrantClient struct {
	configuration Config
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewGrantClient builds a GrantClient with a timeout-bounded http.Client.
func NewGrantClient(configuration Config, logger *zap.Logger) *GrantClient {
	timeout := configuration.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &GrantClient{
		configuration: configuration,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// ClientCredentials exchanges the client id and secret for an application
// access token scoped to catalog data.
func (client *GrantClient) ClientCredentials(ctx context.Context) (GrantResult, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", client.configuration.ClientScopes)
	return client.post(ctx, form)
}

// RefreshToken exchanges a long-lived refresh token for a fresh user access
// token without interactive consent.
func (client *GrantClient) RefreshToken(ctx context.Context, refreshToken string) (GrantResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return client.post(ctx, form)
}

// AuthorizationCode exchanges a one-time code from the browser redirect for a
// user access token and a refresh token.
func (client *GrantClient) AuthorizationCode(ctx context.Context, code string) (GrantResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", client.configuration.RedirectURI)
	return client.post(ctx, form)
}

type tokenEndpointBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ErrorCode    string `json:"error"`
}

func (client *GrantClient) post(ctx context.Context, form url.Values) (GrantResult, error) {
	if client.configuration.ClientID == "" || client.configuration.ClientSecret == "" {
		return GrantResult{}, ErrMissingCredentials
	}

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.configuration.TokenURL, strings.NewReader(form.Encode()))
	if requestErr != nil {
		return GrantResult{}, fmt.Errorf("%w: %v", ErrNetwork, requestErr)
	}
	request.SetBasicAuth(client.configuration.ClientID, client.configuration.ClientSecret)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, transportErr := client.httpClient.Do(request)
	if transportErr != nil {
		return GrantResult{}, fmt.Errorf("%w: %v", ErrNetwork, transportErr)
	}
	defer func() { _ = response.Body.Close() }()

	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return GrantResult{}, fmt.Errorf("%w: reading token response: %v", ErrNetwork, readErr)
	}

	var body tokenEndpointBody
	decodeErr := json.Unmarshal(rawBody, &body)

	if response.StatusCode >= 400 && response.StatusCode < 500 {
		grantError := &GrantError{StatusCode: response.StatusCode, OAuthCode: body.ErrorCode}
		client.logger.Warn("token endpoint rejected grant",
			zap.String("grant_type", form.Get("grant_type")),
			zap.Int("status", response.StatusCode),
			zap.String("oauth_error", body.ErrorCode),
		)
		return GrantResult{}, grantError
	}
	if response.StatusCode != http.StatusOK {
		return GrantResult{}, fmt.Errorf("%w: token endpoint status %d", ErrNetwork, response.StatusCode)
	}
	if decodeErr != nil {
		return GrantResult{}, fmt.Errorf("%w: decoding token response: %v", ErrNetwork, decodeErr)
	}
	if body.AccessToken == "" {
		return GrantResult{}, fmt.Errorf("%w: token response missing access_token", ErrNetwork)
	}

	expiresIn := DefaultExpiresIn
	if body.ExpiresIn > 0 {
		expiresIn = time.Duration(body.ExpiresIn) * time.Second
	}

	client.logger.Info("token grant succeeded",
		zap.String("grant_type", form.Get("grant_type")),
		zap.Duration("expires_in", expiresIn),
	)

	return GrantResult{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}
