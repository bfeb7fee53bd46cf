package dto

import "time"

// PaymentMethods accepted at checkout.
var PaymentMethods = []string{"COD", "VietQR", "Payoo", "Fundiin"}

// CheckoutLine is one requested product.
type CheckoutLine struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Variant  string `json:"variant,omitempty"`
	Image    string `json:"image,omitempty"`
}

// CheckoutRequest is the buyer-submitted order. Form submissions carry Products as a
// JSON-encoded string in the "products" field.
type CheckoutRequest struct {
	BuyerName       string         `json:"buyerName" form:"buyerName"`
	BuyerEmail      string         `json:"buyerEmail" form:"buyerEmail"`
	BuyerAddress    string         `json:"buyerAddress" form:"buyerAddress"`
	BuyerPhone      string         `json:"buyerPhone" form:"buyerPhone"`
	BuyerNotes      string         `json:"buyerNotes" form:"buyerNotes"`
	ShippingDetails string         `json:"shippingDetails" form:"shippingDetails"`
	ShippingFee     int64          `json:"shippingFee" form:"shippingFee"`
	PaymentMethod   string         `json:"paymentMethod" form:"paymentMethod"`
	Products        []CheckoutLine `json:"products" form:"-"`
}

// CheckoutResponse is returned once the order is stored.
type CheckoutResponse struct {
	OrderID       string `json:"orderId"`
	OrderCode     string `json:"orderCode"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Price         int64  `json:"price"`
	FinalPrice    int64  `json:"finalPrice"`
}

// OrderItemResponse is a purchased line as shown to the buyer.
type OrderItemResponse struct {
	ProductID   string `json:"productId"`
	Quantity    int    `json:"quantity"`
	SalesPrice  int64  `json:"salesPrice"`
	ItemName    string `json:"itemName"`
	ItemVariant string `json:"itemVariant,omitempty"`
	ItemMedia   string `json:"itemMedia,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            string              `json:"id"`
	OrderCode     string              `json:"orderCode"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"paymentStatus"`
	PaymentMethod string              `json:"paymentMethod"`
	BuyerName     string              `json:"buyerName"`
	Price         int64               `json:"price"`
	ShippingFee   int64               `json:"shippingFee"`
	FinalPrice    int64               `json:"finalPrice"`
	CreatedAt     time.Time           `json:"createdAt"`
	Items         []OrderItemResponse `json:"items"`
}
