package oauthkit

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScopeKind selects which of the two token slots an operation targets.
type ScopeKind int

const (
	// ScopeClient covers anonymous catalog and store lookups.
	ScopeClient ScopeKind = iota
	// ScopeUser covers cart mutation on behalf of the authorized user.
	ScopeUser
)

func (scope ScopeKind) String() string {
	if scope == ScopeUser {
		return "user"
	}
	return "client"
}

// GrantPerformer is the token-endpoint surface TokenManager depends on.
// GrantClient implements it; tests substitute a canned performer.
type GrantPerformer interface {
	ClientCredentials(ctx context.Context) (GrantResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (GrantResult, error)
	AuthorizationCode(ctx context.Context, code string) (GrantResult, error)
}

type tokenRecord struct {
	value     string
	expiresAt time.Time
}

type scopeSlot struct {
	mutex  sync.Mutex
	record tokenRecord
}

// TokenManager is the single source of truth for "a usable bearer token for
// scope S". It caches one token per scope, renews on demand through the
// appropriate grant, and serializes renewals so concurrent callers share a
// single in-flight exchange per scope.
type TokenManager struct {
	configuration Config
	grants        GrantPerformer
	clock         Clock
	logger        *zap.Logger
	metrics       MetricsRecorder

	clientSlot scopeSlot
	userSlot   scopeSlot

	// refreshToken is guarded by userSlot.mutex alongside the user record.
	refreshToken string
}

// NewTokenManager wires the manager with explicit collaborators so tests can
// construct isolated instances with fake clocks and fake grant performers.
func NewTokenManager(configuration Config, grants GrantPerformer, clock Clock, logger *zap.Logger, metrics MetricsRecorder) *TokenManager {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	if configuration.ExpiryMargin <= 0 {
		configuration.ExpiryMargin = DefaultExpiryMargin
	}
	return &TokenManager{
		configuration: configuration,
		grants:        grants,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		refreshToken:  configuration.RefreshToken,
	}
}

// Token returns a valid bearer token for the scope, renewing through the
// matching grant when the cached record is absent or stale. It performs at
// most one grant call per invocation and never returns an expired token.
func (manager *TokenManager) Token(ctx context.Context, scope ScopeKind) (string, error) {
	slot := manager.slot(scope)
	slot.mutex.Lock()
	defer slot.mutex.Unlock()

	if manager.validLocked(slot) {
		manager.metrics.Increment(EventTokenCacheHit)
		return slot.record.value, nil
	}

	if scope == ScopeClient {
		return manager.renewClientLocked(ctx, slot)
	}
	return manager.renewUserLocked(ctx, slot)
}

// ReportUnauthorized invalidates the cached record for a scope after the
// resource API rejected a token the manager believed valid. The refresh
// token is kept; only a rejected refresh grant clears it.
func (manager *TokenManager) ReportUnauthorized(scope ScopeKind) {
	slot := manager.slot(scope)
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	slot.record = tokenRecord{}
	manager.metrics.Increment(EventUnauthorizedReport)
	manager.logger.Warn("cached token invalidated after resource rejection", zap.String("scope", scope.String()))
}

// ExchangeAuthorizationCode runs the one-shot authorization-code grant. It
// caches the resulting user token, stores the refresh token for subsequent
// Token(ScopeUser) calls, and returns both for operator persistence. This is
// the only path out of the unauthorized state.
func (manager *TokenManager) ExchangeAuthorizationCode(ctx context.Context, code string) (refreshToken string, accessToken string, err error) {
	if strings.TrimSpace(code) == "" {
		return "", "", errors.New("oauth.empty_authorization_code")
	}

	result, grantErr := manager.grants.AuthorizationCode(ctx, code)
	if grantErr != nil {
		if errors.Is(grantErr, ErrGrantRejected) {
			manager.metrics.Increment(EventGrantRejected)
		}
		return "", "", grantErr
	}
	manager.metrics.Increment(EventGrantAuthorizationCode)

	manager.userSlot.mutex.Lock()
	defer manager.userSlot.mutex.Unlock()
	manager.storeLocked(&manager.userSlot, result)
	if result.RefreshToken != "" {
		manager.refreshToken = result.RefreshToken
	}
	manager.logger.Info("authorization code exchanged", zap.Bool("refresh_token_issued", result.RefreshToken != ""))
	return result.RefreshToken, result.AccessToken, nil
}

// AuthorizeURL builds the interactive consent URL the user must visit to
// produce an authorization code. state, when non-empty, binds the redirect
// back to this process.
func (manager *TokenManager) AuthorizeURL(state string) string {
	query := url.Values{}
	query.Set("client_id", manager.configuration.ClientID)
	query.Set("redirect_uri", manager.configuration.RedirectURI)
	query.Set("response_type", "code")
	scopes := manager.configuration.UserScopes
	if len(scopes) == 0 {
		scopes = DefaultUserScopes()
	}
	query.Set("scope", strings.Join(scopes, " "))
	if state != "" {
		query.Set("state", state)
	}
	return manager.configuration.AuthorizeURL + "?" + query.Encode()
}

// Authorized reports whether a refresh token is on file, i.e. whether
// Token(ScopeUser) can succeed without interactive consent.
func (manager *TokenManager) Authorized() bool {
	manager.userSlot.mutex.Lock()
	defer manager.userSlot.mutex.Unlock()
	return manager.refreshToken != ""
}

func (manager *TokenManager) slot(scope ScopeKind) *scopeSlot {
	if scope == ScopeUser {
		return &manager.userSlot
	}
	return &manager.clientSlot
}

func (manager *TokenManager) validLocked(slot *scopeSlot) bool {
	return slot.record.value != "" && manager.clock.Now().Before(slot.record.expiresAt)
}

// storeLocked caches the grant result with the safety margin already folded
// into the expiry, so validity checks stay a single clock comparison.
func (manager *TokenManager) storeLocked(slot *scopeSlot, result GrantResult) {
	slot.record = tokenRecord{
		value:     result.AccessToken,
		expiresAt: manager.clock.Now().Add(result.ExpiresIn - manager.configuration.ExpiryMargin),
	}
}

func (manager *TokenManager) renewClientLocked(ctx context.Context, slot *scopeSlot) (string, error) {
	// A renewal already dispatched should complete and fill the cache even
	// if this caller goes away; the client timeout still bounds it.
	result, grantErr := manager.grants.ClientCredentials(context.WithoutCancel(ctx))
	if grantErr != nil {
		if errors.Is(grantErr, ErrGrantRejected) {
			manager.metrics.Increment(EventGrantRejected)
		}
		return "", grantErr
	}
	manager.metrics.Increment(EventGrantClientCredentials)
	manager.storeLocked(slot, result)
	return slot.record.value, nil
}

func (manager *TokenManager) renewUserLocked(ctx context.Context, slot *scopeSlot) (string, error) {
	if manager.refreshToken == "" {
		return "", manager.authorizationRequired("No user authorization on file.")
	}

	result, grantErr := manager.grants.RefreshToken(context.WithoutCancel(ctx), manager.refreshToken)
	if grantErr != nil {
		if errors.Is(grantErr, ErrGrantRejected) {
			manager.metrics.Increment(EventGrantRejected)
			slot.record = tokenRecord{}
			manager.refreshToken = ""
			manager.logger.Warn("refresh token rejected, user re-authorization required")
			return "", manager.authorizationRequired("The stored user authorization has expired or was revoked.")
		}
		return "", grantErr
	}
	manager.metrics.Increment(EventGrantRefresh)
	manager.storeLocked(slot, result)
	// The server may rotate the refresh token; absence keeps the old one.
	if result.RefreshToken != "" {
		manager.refreshToken = result.RefreshToken
	}
	return slot.record.value, nil
}

func (manager *TokenManager) authorizationRequired(reason string) error {
	return &AuthorizationRequiredError{
		Instruction:  reason + " Run the authorize flow to grant cart access.",
		AuthorizeURL: manager.AuthorizeURL(""),
	}
}
