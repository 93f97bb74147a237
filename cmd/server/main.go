package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/kroger-mcp/internal/kroger"
	"github.com/tyemirov/kroger-mcp/internal/mcptools"
	"github.com/tyemirov/kroger-mcp/internal/oauthkit"
)

var serveStdio = func(mcpServer *server.MCPServer) error {
	return server.ServeStdio(mcpServer)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kroger-mcp",
		Short: "MCP server exposing Kroger store, product, and cart tools over stdio",
		RunE:  runServer,
	}

	rootCmd.PersistentFlags().String("client_id", "", "Kroger API OAuth2 client id")
	rootCmd.PersistentFlags().String("client_secret", "", "Kroger API OAuth2 client secret")
	rootCmd.PersistentFlags().String("redirect_uri", "http://localhost:8080/callback", "Registered OAuth2 redirect URI")
	rootCmd.PersistentFlags().String("refresh_token", "", "Refresh token from a prior authorize run (enables cart tools)")
	rootCmd.PersistentFlags().String("api_base_url", "https://api.kroger.com", "Kroger API base URL (certification: https://api-ce.kroger.com)")
	rootCmd.PersistentFlags().Duration("token_margin", oauthkit.DefaultExpiryMargin, "Safety margin subtracted from token expiry")
	rootCmd.PersistentFlags().Duration("http_timeout", oauthkit.DefaultHTTPTimeout, "Timeout for authorization server calls")

	_ = viper.BindPFlag("client_id", rootCmd.PersistentFlags().Lookup("client_id"))
	_ = viper.BindPFlag("client_secret", rootCmd.PersistentFlags().Lookup("client_secret"))
	_ = viper.BindPFlag("redirect_uri", rootCmd.PersistentFlags().Lookup("redirect_uri"))
	_ = viper.BindPFlag("refresh_token", rootCmd.PersistentFlags().Lookup("refresh_token"))
	_ = viper.BindPFlag("api_base_url", rootCmd.PersistentFlags().Lookup("api_base_url"))
	_ = viper.BindPFlag("token_margin", rootCmd.PersistentFlags().Lookup("token_margin"))
	_ = viper.BindPFlag("http_timeout", rootCmd.PersistentFlags().Lookup("http_timeout"))

	authorizeCmd := &cobra.Command{
		Use:   "authorize",
		Short: "Run the one-time interactive consent flow and print the refresh token",
		RunE:  runAuthorize,
	}
	authorizeCmd.Flags().String("callback_addr", "127.0.0.1:8080", "Listen address for the OAuth2 redirect callback")
	authorizeCmd.Flags().Bool("manual", false, "Paste the authorization code instead of running a local callback server")
	authorizeCmd.Flags().Duration("state_ttl", 5*time.Minute, "Lifetime of the state parameter binding the consent flow")

	_ = viper.BindPFlag("callback_addr", authorizeCmd.Flags().Lookup("callback_addr"))
	_ = viper.BindPFlag("manual", authorizeCmd.Flags().Lookup("manual"))
	_ = viper.BindPFlag("state_ttl", authorizeCmd.Flags().Lookup("state_ttl"))

	rootCmd.AddCommand(authorizeCmd)

	viper.SetEnvPrefix("KROGER")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingClientID     = "config.missing_client_id"
	configCodeMissingClientSecret = "config.missing_client_secret"
	configCodeMissingRedirectURI  = "config.missing_redirect_uri"
	configCodeInvalidAPIBaseURL   = "config.invalid_api_base_url"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadAuthConfig resolves the OAuth2 configuration from flags and KROGER_*
// environment variables.
func LoadAuthConfig() (oauthkit.Config, error) {
	clientID := viper.GetString("client_id")
	if clientID == "" {
		return oauthkit.Config{}, configError(configCodeMissingClientID, "client_id must be provided")
	}

	clientSecret := viper.GetString("client_secret")
	if clientSecret == "" {
		return oauthkit.Config{}, configError(configCodeMissingClientSecret, "client_secret must be provided")
	}

	redirectURI := viper.GetString("redirect_uri")
	if redirectURI == "" {
		return oauthkit.Config{}, configError(configCodeMissingRedirectURI, "redirect_uri must be provided")
	}

	apiBaseURL := strings.TrimRight(viper.GetString("api_base_url"), "/")
	if !strings.HasPrefix(apiBaseURL, "http://") && !strings.HasPrefix(apiBaseURL, "https://") {
		return oauthkit.Config{}, configError(configCodeInvalidAPIBaseURL, "api_base_url must be an http(s) URL")
	}

	expiryMargin := viper.GetDuration("token_margin")
	if expiryMargin <= 0 {
		expiryMargin = oauthkit.DefaultExpiryMargin
	}

	httpTimeout := viper.GetDuration("http_timeout")
	if httpTimeout <= 0 {
		httpTimeout = oauthkit.DefaultHTTPTimeout
	}

	return oauthkit.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		TokenURL:     apiBaseURL + "/v1/connect/oauth2/token",
		AuthorizeURL: apiBaseURL + "/v1/connect/oauth2/authorize",
		ClientScopes: oauthkit.DefaultClientScopes,
		UserScopes:   oauthkit.DefaultUserScopes(),
		ExpiryMargin: expiryMargin,
		HTTPTimeout:  httpTimeout,
		RefreshToken: viper.GetString("refresh_token"),
	}, nil
}

func apiBaseURL() string {
	return strings.TrimRight(viper.GetString("api_base_url"), "/")
}

func runServer(command *cobra.Command, arguments []string) error {
	// stdout carries the MCP framing; all logging goes to stderr.
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	authConfig, configErr := LoadAuthConfig()
	if configErr != nil {
		return configErr
	}

	metrics := oauthkit.NewCounterMetrics()
	grantClient := oauthkit.NewGrantClient(authConfig, logger)
	tokenManager := oauthkit.NewTokenManager(authConfig, grantClient, oauthkit.NewSystemClock(), logger, metrics)
	groceryClient := kroger.NewClient(apiBaseURL(), tokenManager, authConfig.HTTPTimeout, logger)

	mcpServer := mcptools.NewServer(groceryClient, logger)

	logger.Info("starting MCP server on stdio",
		zap.String("api_base_url", apiBaseURL()),
		zap.Bool("user_authorized", tokenManager.Authorized()),
	)
	if serveErr := serveStdio(mcpServer); serveErr != nil {
		return fmt.Errorf("stdio server: %w", serveErr)
	}
	return nil
}

func runAuthorize(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	authConfig, configErr := LoadAuthConfig()
	if configErr != nil {
		return configErr
	}

	flowCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	stateTTL := viper.GetDuration("state_ttl")
	if stateTTL <= 0 {
		stateTTL = 5 * time.Minute
	}
	states := oauthkit.NewMemoryStateStore(stateTTL)
	stateToken, stateErr := states.Issue(flowCtx)
	if stateErr != nil {
		return fmt.Errorf("issuing state: %w", stateErr)
	}

	metrics := oauthkit.NewCounterMetrics()
	grantClient := oauthkit.NewGrantClient(authConfig, logger)
	tokenManager := oauthkit.NewTokenManager(authConfig, grantClient, oauthkit.NewSystemClock(), logger, metrics)

	var codeProvider oauthkit.AuthorizationCodeProvider
	if viper.GetBool("manual") {
		codeProvider = &oauthkit.PromptCodeProvider{
			Input:  command.InOrStdin(),
			Output: command.OutOrStdout(),
		}
	} else {
		callbackProvider, providerErr := oauthkit.NewCallbackCodeProvider(viper.GetString("callback_addr"), authConfig.RedirectURI, states, logger)
		if providerErr != nil {
			return providerErr
		}
		codeProvider = callbackProvider
	}

	fmt.Fprintln(command.OutOrStdout(), "Open this URL in a browser and grant access:")
	fmt.Fprintln(command.OutOrStdout(), tokenManager.AuthorizeURL(stateToken))
	fmt.Fprintln(command.OutOrStdout(), "")

	code, codeErr := codeProvider.Code(flowCtx)
	if codeErr != nil {
		return fmt.Errorf("obtaining authorization code: %w", codeErr)
	}

	refreshToken, _, exchangeErr := tokenManager.ExchangeAuthorizationCode(flowCtx, code)
	if exchangeErr != nil {
		return fmt.Errorf("exchanging authorization code: %w", exchangeErr)
	}
	if refreshToken == "" {
		return fmt.Errorf("authorization server issued no refresh token; check the requested scopes")
	}

	fmt.Fprintln(command.OutOrStdout(), "Authorization complete. Store the refresh token in the server environment:")
	fmt.Fprintf(command.OutOrStdout(), "  KROGER_REFRESH_TOKEN=%s\n", refreshToken)
	return nil
}
