package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order statuses and payment states set at creation time.
const (
	OrderStatusNew = "new"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Order is the header record of a checkout.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o" json:"-"`

	ID              string    `bun:"id,pk" json:"id"`
	OrderCode       string    `bun:"order_code,notnull" json:"orderCode"`
	Status          string    `bun:"status,notnull" json:"status"`
	PaymentStatus   string    `bun:"payment_status,notnull" json:"paymentStatus"`
	PaymentMethod   string    `bun:"payment_method,notnull" json:"paymentMethod"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"createdAt"`
	InternalNotes   string    `bun:"internal_notes" json:"internalNotes"`
	BuyerName       string    `bun:"buyer_name,notnull" json:"buyerName"`
	BuyerEmail      string    `bun:"buyer_email" json:"buyerEmail"`
	BuyerAddress    string    `bun:"buyer_address,notnull" json:"buyerAddress"`
	BuyerPhone      string    `bun:"buyer_phone,notnull" json:"buyerPhone"`
	BuyerNotes      string    `bun:"buyer_notes" json:"buyerNotes"`
	ShippingDetails string    `bun:"shipping_details" json:"shippingDetails"`
	Price           int64     `bun:"price,notnull" json:"price"`
	Coupon          string    `bun:"coupon" json:"coupon"`
	Discounted      int64     `bun:"discounted" json:"discounted"`
	Tax             int64     `bun:"tax" json:"tax"`
	ShippingFee     int64     `bun:"shipping_fee" json:"shippingFee"`
	FinalPrice      int64     `bun:"final_price,notnull" json:"finalPrice"`
	ShopID          string    `bun:"shop_id,notnull" json:"shopId"`
}

// OrderStatusHistory is an append-only audit row for an order status change.
type OrderStatusHistory struct {
	bun.BaseModel `bun:"table:order_status_history,alias:osh" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	OrderID   string    `bun:"order_id,notnull" json:"orderId"`
	Status    string    `bun:"status,notnull" json:"status"`
	Note      string    `bun:"note" json:"note"`
	UpdatedBy string    `bun:"updated_by,notnull" json:"updatedBy"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// OrderProduct snapshots a purchased product so later catalog edits leave the order untouched.
type OrderProduct struct {
	bun.BaseModel `bun:"table:order_products,alias:op" json:"-"`

	ID          string `bun:"id,pk" json:"id"`
	OrderID     string `bun:"order_id,notnull" json:"orderId"`
	ProductID   string `bun:"product_id,notnull" json:"productId"`
	Quantity    int    `bun:"quantity,notnull" json:"quantity"`
	ListedPrice int64  `bun:"listed_price,notnull" json:"listedPrice"`
	SalesPrice  int64  `bun:"sales_price,notnull" json:"salesPrice"`
	ItemName    string `bun:"item_name" json:"itemName"`
	ItemVariant string `bun:"item_variant" json:"itemVariant"`
	ItemMedia   string `bun:"item_media" json:"itemMedia"`
}
