package oauthkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackCodeProvider captures the authorization code by serving the
// registered redirect URI on localhost for the duration of one consent flow.
// The state parameter issued for the authorize URL must round-trip through
// the StateStore before the code is accepted.
type CallbackCodeProvider struct {
	listenAddr   string
	callbackPath string
	states       StateStore
	logger       *zap.Logger
}

// NewCallbackCodeProvider derives the callback path from the redirect URI and
// prepares a provider listening on listenAddr.
func NewCallbackCodeProvider(listenAddr string, redirectURI string, states StateStore, logger *zap.Logger) (*CallbackCodeProvider, error) {
	parsed, parseErr := url.Parse(redirectURI)
	if parseErr != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", parseErr)
	}
	callbackPath := parsed.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackCodeProvider{
		listenAddr:   listenAddr,
		callbackPath: callbackPath,
		states:       states,
		logger:       logger,
	}, nil
}

type callbackResult struct {
	code string
	err  error
}

// Code serves the redirect endpoint until exactly one valid authorization
// redirect arrives, then shuts the listener down and returns the code.
func (provider *CallbackCodeProvider) Code(ctx context.Context) (string, error) {
	listener, listenErr := net.Listen("tcp", provider.listenAddr)
	if listenErr != nil {
		return "", fmt.Errorf("callback listener: %w", listenErr)
	}

	results := make(chan callbackResult, 1)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(provider.callbackPath, func(contextGin *gin.Context) {
		if oauthError := contextGin.Query("error"); oauthError != "" {
			contextGin.String(http.StatusBadRequest, "Authorization failed: %s. You may close this window.", oauthError)
			provider.deliver(results, callbackResult{err: fmt.Errorf("authorization denied: %s", oauthError)})
			return
		}

		stateToken := contextGin.Query("state")
		if consumeErr := provider.states.Consume(contextGin, stateToken); consumeErr != nil {
			provider.logger.Warn("callback state rejected", zap.Error(consumeErr))
			contextGin.String(http.StatusBadRequest, "Invalid or expired state parameter.")
			return
		}

		code := contextGin.Query("code")
		if code == "" {
			contextGin.String(http.StatusBadRequest, "Missing authorization code.")
			provider.deliver(results, callbackResult{err: errors.New("redirect carried no authorization code")})
			return
		}

		contextGin.String(http.StatusOK, "Authorization received. You may close this window.")
		provider.deliver(results, callbackResult{code: code})
	})

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			provider.deliver(results, callbackResult{err: serveErr})
		}
	}()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-results:
		return result.code, result.err
	}
}

// Addr reports where the provider will listen; useful in logs and tests.
func (provider *CallbackCodeProvider) Addr() string {
	return provider.listenAddr
}

func (provider *CallbackCodeProvider) deliver(results chan<- callbackResult, result callbackResult) {
	select {
	case results <- result:
	default:
	}
}
