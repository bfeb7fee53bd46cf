package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// ProductStatusActive marks products visible in the storefront.
const ProductStatusActive = "active"

// Shop is the tenant's own record inside its database.
type Shop struct {
	bun.BaseModel `bun:"table:shops" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Product is read by the storefront and only denormalized into orders.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p" json:"-"`

	ID             string    `bun:"id,pk" json:"id"`
	Title          string    `bun:"title,notnull" json:"title"`
	URL            string    `bun:"url,nullzero" json:"url"`
	Price          int64     `bun:"price" json:"price"`
	Status         string    `bun:"status" json:"status"`
	Featured       bool      `bun:"featured" json:"featured"`
	PinnedPosition int       `bun:"pinned_position" json:"pinnedPosition"`
	Image          string    `bun:"image,nullzero" json:"image"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Section groups products for navigation.
type Section struct {
	bun.BaseModel `bun:"table:sections,alias:s" json:"-"`

	ID              string `bun:"id,pk" json:"id"`
	Name            string `bun:"name,notnull" json:"name"`
	URL             string `bun:"url,nullzero" json:"url"`
	DisplayOrdering int    `bun:"display_ordering" json:"displayOrdering"`
}

// SectionSummary is a section with its count of active products.
type SectionSummary struct {
	Section
	ProductCount int `bun:"product_count" json:"productCount"`
}

// ProductSection links products and sections.
type ProductSection struct {
	bun.BaseModel `bun:"table:product_sections,alias:ps" json:"-"`

	ProductID string `bun:"product_id,pk" json:"productId"`
	SectionID string `bun:"section_id,pk" json:"sectionId"`
}

// VariantGroup is a product option axis (size, color).
type VariantGroup struct {
	bun.BaseModel `bun:"table:variant_groups,alias:vg" json:"-"`

	ID        string          `bun:"id,pk" json:"id"`
	ProductID string          `bun:"product_id,notnull" json:"productId"`
	Name      string          `bun:"name,notnull" json:"name"`
	Options   []VariantOption `bun:"-" json:"options"`
}

// VariantOption is one value of a VariantGroup.
type VariantOption struct {
	bun.BaseModel `bun:"table:variant_options,alias:vo" json:"-"`

	ID      string `bun:"id,pk" json:"id"`
	GroupID string `bun:"group_id,notnull" json:"groupId"`
	Name    string `bun:"name,notnull" json:"name"`
}

// ProductVariant is a purchasable combination of up to three options.
type ProductVariant struct {
	bun.BaseModel `bun:"table:product_variants,alias:v" json:"-"`

	ID          string `bun:"id,pk" json:"id"`
	ProductID   string `bun:"product_id,notnull" json:"productId"`
	Option1ID   string `bun:"option1_id,nullzero" json:"option1Id,omitempty"`
	Option2ID   string `bun:"option2_id,nullzero" json:"option2Id,omitempty"`
	Option3ID   string `bun:"option3_id,nullzero" json:"option3Id,omitempty"`
	Price       int64  `bun:"price" json:"price"`
	SKU         string `bun:"sku,nullzero" json:"sku,omitempty"`
	Option1Name string `bun:"option1_name,scanonly" json:"option1Name,omitempty"`
	Option2Name string `bun:"option2_name,scanonly" json:"option2Name,omitempty"`
	Option3Name string `bun:"option3_name,scanonly" json:"option3Name,omitempty"`
}

// ProductDetail is a product with its sections, variants and variant groups.
type ProductDetail struct {
	Product
	Sections      []Section        `json:"sections"`
	Variants      []ProductVariant `json:"variants"`
	VariantGroups []VariantGroup   `json:"variantGroups"`
}
