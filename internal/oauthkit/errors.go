package oauthkit

import (
	"errors"
	"fmt"
)

var (
	// ErrGrantRejected indicates the authorization server refused the grant
	// (bad credentials, revoked refresh token, spent authorization code).
	ErrGrantRejected = errors.New("oauth.grant_rejected")
	// ErrNetwork indicates the authorization server was unreachable or
	// returned a response that could not be decoded.
	ErrNetwork = errors.New("oauth.network")
	// ErrAuthorizationRequired indicates no user token can be produced
	// without the interactive authorization-code flow being re-run.
	ErrAuthorizationRequired = errors.New("oauth.authorization_required")
	// ErrMissingCredentials indicates the client id or secret was empty.
	ErrMissingCredentials = errors.New("oauth.missing_credentials")
)

// AuthorizationRequiredError tells the caller that cart access needs a fresh
// user consent. Instruction is safe to relay verbatim to the end user;
// AuthorizeURL is the consent page to visit when one could be derived.
type AuthorizationRequiredError struct {
	Instruction  string
	AuthorizeURL string
}

func (authError *AuthorizationRequiredError) Error() string {
	if authError.AuthorizeURL == "" {
		return authError.Instruction
	}
	return fmt.Sprintf("%s Visit %s to authorize.", authError.Instruction, authError.AuthorizeURL)
}

// Unwrap lets errors.Is(err, ErrAuthorizationRequired) match.
func (authError *AuthorizationRequiredError) Unwrap() error {
	return ErrAuthorizationRequired
}

// GrantError wraps a token-endpoint rejection with the OAuth error code the
// server reported (invalid_grant, invalid_client, ...).
type GrantError struct {
	StatusCode int
	OAuthCode  string
}

func (grantError *GrantError) Error() string {
	if grantError.OAuthCode == "" {
		return fmt.Sprintf("oauth.grant_rejected: status %d", grantError.StatusCode)
	}
	return fmt.Sprintf("oauth.grant_rejected: %s (status %d)", grantError.OAuthCode, grantError.StatusCode)
}

func (grantError *GrantError) Unwrap() error {
	return ErrGrantRejected
}
