package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/tyemirov/kroger-mcp/internal/kroger"
	"github.com/tyemirov/kroger-mcp/internal/oauthkit"
)

// ServerName and ServerVersion identify this adapter to MCP clients.
const (
	ServerName    = "kroger-mcp-server"
	ServerVersion = "1.0.0"
)

// GroceryAPI is the resource-client surface the tools call. kroger.Client
// implements it; tests substitute a fake.
type GroceryAPI interface {
	FindStores(ctx context.Context, zipCode string, radiusMiles int, limit int) ([]kroger.Store, error)
	SearchProducts(ctx context.Context, term string, locationID string, limit int) ([]kroger.Product, error)
	GetProduct(ctx context.Context, productID string, locationID string) (*kroger.Product, error)
	AddToCart(ctx context.Context, productID string, quantity int, locationID string) error
}

// NewServer builds the MCP server with the four grocery tools registered.
func NewServer(api GroceryAPI, logger *zap.Logger) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithLogging(),
	)
	RegisterTools(mcpServer, api, logger)
	return mcpServer
}

// RegisterTools attaches find_stores, search_products, get_product, and
// add_to_cart to the server.
func RegisterTools(mcpServer *server.MCPServer, api GroceryAPI, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer.AddTool(mcp.NewTool("find_stores",
		mcp.WithDescription("Find Kroger store locations by ZIP code (returns nearest stores with IDs)."),
		mcp.WithString("zip_code", mcp.Required(), mcp.Description("ZIP code to search near.")),
		mcp.WithNumber("radius_miles", mcp.Description("Search radius in miles (default 10).")),
		mcp.WithNumber("limit", mcp.Description("Maximum stores to return (default 5).")),
	), findStoresHandler(api, logger))

	mcpServer.AddTool(mcp.NewTool("search_products",
		mcp.WithDescription("Search Kroger products by keyword at a given store (locationId)."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search keyword, e.g. \"milk\".")),
		mcp.WithString("location_id", mcp.Required(), mcp.Description("Store location id from find_stores.")),
		mcp.WithNumber("limit", mcp.Description("Maximum products to return (default 10).")),
	), searchProductsHandler(api, logger))

	mcpServer.AddTool(mcp.NewTool("get_product",
		mcp.WithDescription("Get detailed information for a product by ID (price, size, stock, fulfillment options)."),
		mcp.WithString("product_id", mcp.Required(), mcp.Description("Product id from search_products.")),
		mcp.WithString("location_id", mcp.Required(), mcp.Description("Store location id for store-specific pricing.")),
	), getProductHandler(api, logger))

	mcpServer.AddTool(mcp.NewTool("add_to_cart",
		mcp.WithDescription("Add a product to the user's Kroger cart (requires user authentication)."),
		mcp.WithString("product_id", mcp.Required(), mcp.Description("Product id to add.")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("Quantity to add.")),
		mcp.WithString("location_id", mcp.Required(), mcp.Description("Store location id for the cart.")),
	), addToCartHandler(api, logger))
}

func findStoresHandler(api GroceryAPI, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		zipCode := strings.TrimSpace(mcp.ParseString(request, "zip_code", ""))
		if zipCode == "" {
			return mcp.NewToolResultError("zip_code is required"), nil
		}
		radiusMiles := int(mcp.ParseFloat64(request, "radius_miles", 10))
		limit := int(mcp.ParseFloat64(request, "limit", 5))

		stores, findErr := api.FindStores(ctx, zipCode, radiusMiles, limit)
		if findErr != nil {
			return failureResult("find_stores", findErr, logger), nil
		}
		return jsonResult(stores), nil
	}
}

func searchProductsHandler(api GroceryAPI, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(mcp.ParseString(request, "query", ""))
		locationID := strings.TrimSpace(mcp.ParseString(request, "location_id", ""))
		if query == "" || locationID == "" {
			return mcp.NewToolResultError("query and location_id are required"), nil
		}
		limit := int(mcp.ParseFloat64(request, "limit", 10))

		products, searchErr := api.SearchProducts(ctx, query, locationID, limit)
		if searchErr != nil {
			return failureResult("search_products", searchErr, logger), nil
		}
		return jsonResult(products), nil
	}
}

func getProductHandler(api GroceryAPI, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID := strings.TrimSpace(mcp.ParseString(request, "product_id", ""))
		locationID := strings.TrimSpace(mcp.ParseString(request, "location_id", ""))
		if productID == "" || locationID == "" {
			return mcp.NewToolResultError("product_id and location_id are required"), nil
		}

		product, getErr := api.GetProduct(ctx, productID, locationID)
		if getErr != nil {
			return failureResult("get_product", getErr, logger), nil
		}
		return jsonResult(product), nil
	}
}

func addToCartHandler(api GroceryAPI, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID := strings.TrimSpace(mcp.ParseString(request, "product_id", ""))
		locationID := strings.TrimSpace(mcp.ParseString(request, "location_id", ""))
		quantity := int(mcp.ParseFloat64(request, "quantity", 0))
		if productID == "" || locationID == "" {
			return mcp.NewToolResultError("product_id and location_id are required"), nil
		}
		if quantity <= 0 {
			return mcp.NewToolResultError("quantity must be a positive integer"), nil
		}

		if cartErr := api.AddToCart(ctx, productID, quantity, locationID); cartErr != nil {
			return failureResult("add_to_cart", cartErr, logger), nil
		}
		return jsonResult(map[string]any{
			"success": true,
			"message": "Item(s) added to cart successfully.",
		}), nil
	}
}

func jsonResult(value any) *mcp.CallToolResult {
	encoded, marshalErr := json.MarshalIndent(value, "", "  ")
	if marshalErr != nil {
		return mcp.NewToolResultError("encoding result: " + marshalErr.Error())
	}
	return mcp.NewToolResultText(string(encoded))
}

// failureResult maps errors onto structured tool failures the model client
// can relay. Authorization failures carry the consent URL and never crash
// the call.
func failureResult(toolName string, failure error, logger *zap.Logger) *mcp.CallToolResult {
	var authRequired *oauthkit.AuthorizationRequiredError
	if errors.As(failure, &authRequired) {
		logger.Warn("tool requires user authorization", zap.String("tool", toolName))
		payload := map[string]any{
			"error":         "User authentication required.",
			"message":       authRequired.Instruction,
			"action_needed": "Complete the OAuth2 authorization flow, then retry.",
		}
		if authRequired.AuthorizeURL != "" {
			payload["authorize_url"] = authRequired.AuthorizeURL
		}
		encoded, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultError(string(encoded))
	}

	var apiError *kroger.APIError
	if errors.As(failure, &apiError) {
		logger.Warn("tool call failed at the resource API",
			zap.String("tool", toolName),
			zap.Int("status", apiError.StatusCode),
		)
		return mcp.NewToolResultError(apiError.Error())
	}

	logger.Warn("tool call failed", zap.String("tool", toolName), zap.Error(failure))
	return mcp.NewToolResultError(failure.Error())
}
