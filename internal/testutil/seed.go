package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/storefront/internal/entity"
)

// Epoch anchors seeded timestamps so ordering assertions are stable.
var Epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// Insert writes each model (a struct pointer or a pointer to a slice) in order.
func Insert(t testing.TB, db bun.IDB, models ...any) {
	t.Helper()

	for _, m := range models {
		_, err := db.NewInsert().Model(m).Exec(context.Background())
		require.NoError(t, err)
	}
}

// Product returns an active product created n minutes after Epoch.
func Product(id, title string, price int64, n int) entity.Product {
	return entity.Product{
		ID:        id,
		Title:     title,
		URL:       "/products/" + id,
		Price:     price,
		Status:    entity.ProductStatusActive,
		CreatedAt: Epoch.Add(time.Duration(n) * time.Minute),
	}
}

// Catalog seeds two sections and four products:
//
//	s1 (ordering 1): p1, p2, p4 (p4 is a draft)
//	s2 (ordering 2): p2, p3
//
// p1 has a size group with options S and M and one variant per option.
func Catalog(t testing.TB, db bun.IDB) {
	t.Helper()

	products := []entity.Product{
		Product("p1", "Linen shirt", 100000, 1),
		Product("p2", "Canvas tote", 50000, 2),
		Product("p3", "Wool scarf", 75000, 3),
		Product("p4", "Draft item", 10000, 4),
	}
	products[3].Status = "draft"

	sections := []entity.Section{
		{ID: "s1", Name: "Tops", URL: "/tops", DisplayOrdering: 1},
		{ID: "s2", Name: "Accessories", URL: "/accessories", DisplayOrdering: 2},
	}
	links := []entity.ProductSection{
		{ProductID: "p1", SectionID: "s1"},
		{ProductID: "p2", SectionID: "s1"},
		{ProductID: "p4", SectionID: "s1"},
		{ProductID: "p2", SectionID: "s2"},
		{ProductID: "p3", SectionID: "s2"},
	}
	groups := []entity.VariantGroup{{ID: "g1", ProductID: "p1", Name: "Size"}}
	options := []entity.VariantOption{
		{ID: "o1", GroupID: "g1", Name: "S"},
		{ID: "o2", GroupID: "g1", Name: "M"},
	}
	variants := []entity.ProductVariant{
		{ID: "v1", ProductID: "p1", Option1ID: "o1", Price: 100000, SKU: "P1-S"},
		{ID: "v2", ProductID: "p1", Option1ID: "o2", Price: 110000, SKU: "P1-M"},
	}

	Insert(t, db, &products, &sections, &links, &groups, &options, &variants)
}
