package oauthkit

import "time"

// Config carries the OAuth2 client credentials and endpoint layout for the
// Kroger authorization server. It is built once at startup and never mutated.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	TokenURL     string
	AuthorizeURL string

	// ClientScopes is the space-joined scope string for the
	// client-credentials grant (catalog and store data).
	ClientScopes string
	// UserScopes are requested during the interactive authorization-code
	// flow (cart mutation, profile).
	UserScopes []string

	// ExpiryMargin is subtracted from the advertised expires_in so a token
	// is renewed before it can expire under an in-flight request.
	ExpiryMargin time.Duration

	// HTTPTimeout bounds every call to the authorization server.
	HTTPTimeout time.Duration

	// RefreshToken optionally seeds the user scope from a prior
	// authorization-code exchange persisted by the operator.
	RefreshToken string
}

const (
	// DefaultExpiryMargin mirrors the sixty-second buffer the Kroger token
	// endpoint documentation recommends.
	DefaultExpiryMargin = 60 * time.Second
	// DefaultHTTPTimeout bounds grant calls so a stalled authorization
	// server cannot wedge the tool pipeline.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultExpiresIn is assumed when the token response omits expires_in.
	DefaultExpiresIn = 1800 * time.Second
)

// DefaultClientScopes covers anonymous catalog access.
const DefaultClientScopes = "product.compact"

// DefaultUserScopes cover cart mutation on behalf of the authorized user.
func DefaultUserScopes() []string {
	return []string{"cart.basic:write", "profile.compact"}
}
