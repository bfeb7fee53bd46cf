package query

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Additional-Code/storefront/internal/entity"
)

// Sort orders accepted by FilterProducts.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortFeatured  = "featured"
)

const (
	maxFilterPrice = 1_000_000_000
	maxFilterTake  = 100
)

// ProductFilter narrows the storefront listing. Zero values mean "no constraint".
type ProductFilter struct {
	Section  string `json:"section,omitempty"`
	Search   string `json:"search,omitempty"`
	MinPrice int64  `json:"minPrice,omitempty"`
	MaxPrice int64  `json:"maxPrice,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Skip     int    `json:"skip,omitempty"`
	Take     int    `json:"take,omitempty"`
}

// ProductPage is one window of a filtered listing.
type ProductPage struct {
	Products   []entity.Product `json:"products"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
}

func (f ProductFilter) normalized() ProductFilter {
	if f.Take <= 0 {
		f.Take = defaultListingLimit
	}
	f.Take = min(f.Take, maxFilterTake)
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.MaxPrice <= 0 {
		f.MaxPrice = maxFilterPrice
	}
	if f.MinPrice < 0 {
		f.MinPrice = 0
	}
	if f.Section == "all" {
		f.Section = ""
	}
	f.Search = strings.ToLower(strings.TrimSpace(f.Search))
	switch f.Sort {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortFeatured:
	default:
		f.Sort = SortNewest
	}
	return f
}

func (f ProductFilter) orderBy() string {
	switch f.Sort {
	case SortPriceAsc:
		return "p.price ASC"
	case SortPriceDesc:
		return "p.price DESC"
	case SortFeatured:
		return "p.featured DESC, p.created_at DESC"
	default:
		return "p.created_at DESC"
	}
}

// FilterProducts lists active, routable products matching f. Products with a pinned
// position are moved to that 1-based slot of the full ordering before paging.
func (e *Executor) FilterProducts(ctx context.Context, tenantID string, f ProductFilter) (*ProductPage, error) {
	f = f.normalized()

	clauses := []string{"p.status = ?", "p.url IS NOT NULL", "p.url <> ''", "p.price BETWEEN ? AND ?"}
	args := []any{entity.ProductStatusActive, f.MinPrice, f.MaxPrice}
	if f.Section != "" {
		clauses = append(clauses, "p.id IN (SELECT ps.product_id FROM product_sections AS ps WHERE ps.section_id = ?)")
		args = append(args, f.Section)
	}
	if f.Search != "" {
		clauses = append(clauses, "LOWER(p.title) LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	encoded, _ := json.Marshal(f)
	products := make([]entity.Product, 0)
	err := e.Execute(ctx, tenantID, &products,
		"SELECT p.* FROM products AS p WHERE "+strings.Join(clauses, " AND ")+" ORDER BY "+f.orderBy(),
		args,
		WithCacheKey(tenantID+":product:filter:"+string(encoded)),
		WithTTL(ListingTTL),
	)
	if err != nil {
		return nil, err
	}

	ordered := placePinned(products)
	total := len(ordered)

	start := min(f.Skip, total)
	end := start + min(f.Take, total-start)

	return &ProductPage{
		Products:   ordered[start:end],
		Total:      total,
		Page:       f.Skip/f.Take + 1,
		PageSize:   f.Take,
		TotalPages: (total + f.Take - 1) / f.Take,
	}, nil
}

// placePinned inserts each pinned product at its 1-based position among the others,
// in the order pinned products appear. Positions past the end append.
func placePinned(products []entity.Product) []entity.Product {
	regular := make([]entity.Product, 0, len(products))
	pinned := make([]entity.Product, 0)
	for _, p := range products {
		if p.PinnedPosition > 0 {
			pinned = append(pinned, p)
		} else {
			regular = append(regular, p)
		}
	}
	if len(pinned) == 0 {
		return regular
	}

	out := regular
	for _, p := range pinned {
		pos := min(p.PinnedPosition-1, len(out))
		out = append(out, entity.Product{})
		copy(out[pos+1:], out[pos:])
		out[pos] = p
	}
	return out
}
