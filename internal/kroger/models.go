package kroger

// Address is the postal address of a store location.
type Address struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
}

// Store is one location entry from the locations API.
type Store struct {
	LocationID string  `json:"locationId"`
	Chain      string  `json:"chain"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Address    Address `json:"address"`
}

// Price carries store-specific pricing; Promo is zero when no promotion runs.
type Price struct {
	Regular float64 `json:"regular"`
	Promo   float64 `json:"promo"`
}

// Fulfillment flags which channels can deliver the item.
type Fulfillment struct {
	InStore    bool `json:"instore"`
	Delivery   bool `json:"delivery"`
	Curbside   bool `json:"curbside"`
	ShipToHome bool `json:"shiptohome"`
}

// ProductItem is one sellable variant of a product at a location.
type ProductItem struct {
	ItemID      string      `json:"itemId"`
	Size        string      `json:"size"`
	Price       Price       `json:"price"`
	Fulfillment Fulfillment `json:"fulfillment"`
}

// Product is a catalog entry; Items carry store-specific price and stock.
type Product struct {
	ProductID   string        `json:"productId"`
	UPC         string        `json:"upc"`
	Brand       string        `json:"brand"`
	Description string        `json:"description"`
	Items       []ProductItem `json:"items"`
}

type cartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartAddPayload struct {
	Items      []cartItem `json:"items"`
	LocationID string     `json:"locationId"`
}
