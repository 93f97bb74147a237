package kroger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/kroger-mcp/internal/oauthkit"
)

const (
	locationsPath = "/v1/locations"
	productsPath  = "/v1/products"
	cartAddPath   = "/v1/cart/addItem"

	defaultHTTPTimeout = 15 * time.Second
)

var (
	// ErrProductNotFound indicates the product id returned no data.
	ErrProductNotFound = errors.New("kroger.product_not_found")
)

// APIError is a non-2xx answer from the resource API after any token retry
// already ran.
type APIError struct {
	StatusCode int
	Body       string
}

func (apiError *APIError) Error() string {
	return fmt.Sprintf("kroger.api_error: status %d: %s", apiError.StatusCode, apiError.Body)
}

// TokenSource is the slice of the token manager the client depends on.
type TokenSource interface {
	Token(ctx context.Context, scope oauthkit.ScopeKind) (string, error)
	ReportUnauthorized(scope oauthkit.ScopeKind)
}

// Client calls the Kroger resource API with bearer tokens from the token
// source. A 401/403 invalidates the cached token and retries exactly once
// with a forced renewal; a second rejection surfaces as APIError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient builds a resource client against baseURL.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// FindStores returns the nearest store locations to a ZIP code.
func (client *Client) FindStores(ctx context.Context, zipCode string, radiusMiles int, limit int) ([]Store, error) {
	query := url.Values{}
	query.Set("filter.zipCode.near", zipCode)
	query.Set("filter.radiusInMiles", strconv.Itoa(radiusMiles))
	query.Set("filter.limit", strconv.Itoa(limit))

	body, requestErr := client.request(ctx, oauthkit.ScopeClient, http.MethodGet, locationsPath, query, nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var envelope struct {
		Data []Store `json:"data"`
	}
	if decodeErr := json.Unmarshal(body, &envelope); decodeErr != nil {
		return nil, fmt.Errorf("decoding locations response: %w", decodeErr)
	}
	return envelope.Data, nil
}

// SearchProducts returns products matching a term at a store.
func (client *Client) SearchProducts(ctx context.Context, term string, locationID string, limit int) ([]Product, error) {
	query := url.Values{}
	query.Set("filter.term", term)
	query.Set("filter.locationId", locationID)
	query.Set("filter.limit", strconv.Itoa(limit))

	body, requestErr := client.request(ctx, oauthkit.ScopeClient, http.MethodGet, productsPath, query, nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var envelope struct {
		Data []Product `json:"data"`
	}
	if decodeErr := json.Unmarshal(body, &envelope); decodeErr != nil {
		return nil, fmt.Errorf("decoding products response: %w", decodeErr)
	}
	return envelope.Data, nil
}

// GetProduct returns one product with store-specific price and availability.
// The API wraps single lookups either in a one-element list or a bare object.
func (client *Client) GetProduct(ctx context.Context, productID string, locationID string) (*Product, error) {
	query := url.Values{}
	query.Set("filter.locationId", locationID)

	body, requestErr := client.request(ctx, oauthkit.ScopeClient, http.MethodGet, productsPath+"/"+url.PathEscape(productID), query, nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if decodeErr := json.Unmarshal(body, &envelope); decodeErr != nil {
		return nil, fmt.Errorf("decoding product response: %w", decodeErr)
	}

	var asList []Product
	if listErr := json.Unmarshal(envelope.Data, &asList); listErr == nil {
		if len(asList) == 0 {
			return nil, ErrProductNotFound
		}
		return &asList[0], nil
	}

	var asObject Product
	if objectErr := json.Unmarshal(envelope.Data, &asObject); objectErr != nil {
		return nil, fmt.Errorf("decoding product response: %w", objectErr)
	}
	if asObject.ProductID == "" {
		return nil, ErrProductNotFound
	}
	return &asObject, nil
}

// AddToCart adds a product to the authorized user's cart at a store.
func (client *Client) AddToCart(ctx context.Context, productID string, quantity int, locationID string) error {
	payload, marshalErr := json.Marshal(cartAddPayload{
		Items:      []cartItem{{ProductID: productID, Quantity: quantity}},
		LocationID: locationID,
	})
	if marshalErr != nil {
		return marshalErr
	}

	_, requestErr := client.request(ctx, oauthkit.ScopeUser, http.MethodPost, cartAddPath, nil, payload)
	return requestErr
}

// request performs one scope-authorized call with the single-retry policy:
// on 401/403 it reports the rejection, forces a renewal through the token
// source, and replays the request once.
func (client *Client) request(ctx context.Context, scope oauthkit.ScopeKind, method string, path string, query url.Values, payload []byte) ([]byte, error) {
	const maxAttempts = 2
	var lastStatus int
	var lastBody []byte

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, tokenErr := client.tokens.Token(ctx, scope)
		if tokenErr != nil {
			return nil, tokenErr
		}

		body, status, callErr := client.call(ctx, method, path, query, payload, token)
		if callErr != nil {
			return nil, callErr
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			client.tokens.ReportUnauthorized(scope)
			client.logger.Warn("resource API rejected bearer token",
				zap.String("path", path),
				zap.Int("status", status),
				zap.Int("attempt", attempt),
			)
			lastStatus, lastBody = status, body
			continue
		}
		if status < 200 || status >= 300 {
			return nil, &APIError{StatusCode: status, Body: truncateBody(body)}
		}
		return body, nil
	}

	return nil, &APIError{StatusCode: lastStatus, Body: truncateBody(lastBody)}
}

func (client *Client) call(ctx context.Context, method string, path string, query url.Values, payload []byte, token string) ([]byte, int, error) {
	requestURL := client.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	request, requestErr := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if requestErr != nil {
		return nil, 0, requestErr
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, transportErr := client.httpClient.Do(request)
	if transportErr != nil {
		return nil, 0, fmt.Errorf("%w: %v", oauthkit.ErrNetwork, transportErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if readErr != nil {
		return nil, 0, fmt.Errorf("%w: reading response: %v", oauthkit.ErrNetwork, readErr)
	}
	return body, response.StatusCode, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
