package woo

// Product is the wire representation of a catalog product.
// Monetary amounts arrive as strings and are parsed at the cache boundary.
type Product struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	RegularPrice  string `json:"regular_price"`
	SalePrice     string `json:"sale_price"`
	StockQuantity *int   `json:"stock_quantity"`
}

// Variation is the wire representation of a product variation.
type Variation struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Status        string `json:"status"`
	RegularPrice  string `json:"regular_price"`
	SalePrice     string `json:"sale_price"`
	StockQuantity *int   `json:"stock_quantity"`
}

// Address holds the customer contact block attached to an order.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// LineItem is one purchased item within an order.
type LineItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id"`
	Quantity    int    `json:"quantity"`
	SKU         string `json:"sku"`
	Total       string `json:"total"`
}

// Order is the wire representation of an order.
type Order struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	Total       string     `json:"total"`
	DateCreated string     `json:"date_created"`
	Billing     Address    `json:"billing"`
	LineItems   []LineItem `json:"line_items"`
}

// ProductUpdate carries the writable fields of a write-back. Nil fields
// are omitted from the request so the source only touches what changed.
type ProductUpdate struct {
	RegularPrice  *string `json:"regular_price,omitempty"`
	SalePrice     *string `json:"sale_price,omitempty"`
	StockQuantity *int    `json:"stock_quantity,omitempty"`
}
