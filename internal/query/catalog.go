package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/storefront/internal/entity"
)

// Cache lifetimes for the prebuilt catalog reads.
const (
	ListingTTL = 2 * time.Minute
	SectionTTL = 5 * time.Minute
	RelatedTTL = 5 * time.Minute
	DetailTTL  = 10 * time.Minute
)

const defaultListingLimit = 20

// ProductsBySection lists the newest active products of a section.
func (e *Executor) ProductsBySection(ctx context.Context, tenantID, sectionID string, limit int) ([]entity.Product, error) {
	if limit <= 0 {
		limit = defaultListingLimit
	}
	products := make([]entity.Product, 0)
	err := e.Execute(ctx, tenantID, &products,
		`SELECT p.* FROM products AS p
		 INNER JOIN product_sections AS ps ON p.id = ps.product_id
		 WHERE ps.section_id = ? AND p.status = ?
		 ORDER BY p.created_at DESC
		 LIMIT ?`,
		[]any{sectionID, entity.ProductStatusActive, limit},
		WithCacheKey(fmt.Sprintf("%s:product:section:%s:%d", tenantID, sectionID, limit)),
		WithTTL(ListingTTL),
	)
	return products, err
}

// ProductWithDetails loads a product and its sections, variants and variant groups.
// It returns nil when the product does not exist.
func (e *Executor) ProductWithDetails(ctx context.Context, tenantID, productID string) (*entity.ProductDetail, error) {
	key := fmt.Sprintf("%s:product:detail:%s", tenantID, productID)

	// a slice so that "not found" is cached as an empty list
	detail := make([]entity.ProductDetail, 0, 1)
	err := e.cached(ctx, key, DetailTTL, &detail, func() error {
		d, err := e.loadProductDetail(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		detail = detail[:0]
		if d != nil {
			detail = append(detail, *d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(detail) == 0 {
		return nil, nil
	}
	return &detail[0], nil
}

func (e *Executor) loadProductDetail(ctx context.Context, tenantID, productID string) (*entity.ProductDetail, error) {
	var products []entity.Product
	if err := e.Execute(ctx, tenantID, &products, `SELECT * FROM products WHERE id = ?`, []any{productID}); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	detail := &entity.ProductDetail{
		Product:       products[0],
		Sections:      make([]entity.Section, 0),
		Variants:      make([]entity.ProductVariant, 0),
		VariantGroups: make([]entity.VariantGroup, 0),
	}

	if err := e.Execute(ctx, tenantID, &detail.Sections,
		`SELECT s.* FROM sections AS s
		 INNER JOIN product_sections AS ps ON s.id = ps.section_id
		 WHERE ps.product_id = ?
		 ORDER BY s.display_ordering ASC`,
		[]any{productID}); err != nil {
		return nil, err
	}

	if err := e.Execute(ctx, tenantID, &detail.Variants,
		`SELECT v.*, vo1.name AS option1_name, vo2.name AS option2_name, vo3.name AS option3_name
		 FROM product_variants AS v
		 LEFT JOIN variant_options AS vo1 ON v.option1_id = vo1.id
		 LEFT JOIN variant_options AS vo2 ON v.option2_id = vo2.id
		 LEFT JOIN variant_options AS vo3 ON v.option3_id = vo3.id
		 WHERE v.product_id = ?
		 ORDER BY v.id`,
		[]any{productID}); err != nil {
		return nil, err
	}

	if err := e.Execute(ctx, tenantID, &detail.VariantGroups,
		`SELECT * FROM variant_groups WHERE product_id = ? ORDER BY id`,
		[]any{productID}); err != nil {
		return nil, err
	}

	if len(detail.VariantGroups) > 0 {
		groupIDs := make([]string, len(detail.VariantGroups))
		index := make(map[string]int, len(detail.VariantGroups))
		for i, g := range detail.VariantGroups {
			groupIDs[i] = g.ID
			index[g.ID] = i
			detail.VariantGroups[i].Options = make([]entity.VariantOption, 0)
		}

		var options []entity.VariantOption
		if err := e.Execute(ctx, tenantID, &options,
			`SELECT * FROM variant_options WHERE group_id IN (?) ORDER BY id`,
			[]any{bun.In(groupIDs)}); err != nil {
			return nil, err
		}
		for _, opt := range options {
			if i, ok := index[opt.GroupID]; ok {
				detail.VariantGroups[i].Options = append(detail.VariantGroups[i].Options, opt)
			}
		}
	}

	return detail, nil
}

// SectionsWithProducts lists sections in display order with their active product counts.
func (e *Executor) SectionsWithProducts(ctx context.Context, tenantID string) ([]entity.SectionSummary, error) {
	sections := make([]entity.SectionSummary, 0)
	err := e.Execute(ctx, tenantID, &sections,
		`SELECT s.id, s.name, s.url, s.display_ordering, COUNT(DISTINCT p.id) AS product_count
		 FROM sections AS s
		 LEFT JOIN product_sections AS ps ON ps.section_id = s.id
		 LEFT JOIN products AS p ON p.id = ps.product_id AND p.status = ?
		 GROUP BY s.id, s.name, s.url, s.display_ordering
		 ORDER BY s.display_ordering ASC`,
		[]any{entity.ProductStatusActive},
		WithCacheKey(tenantID+":section:counts"),
		WithTTL(SectionTTL),
	)
	return sections, err
}

// RelatedProducts lists active products sharing any of sectionIDs, excluding one product.
func (e *Executor) RelatedProducts(ctx context.Context, tenantID string, sectionIDs []string, excludeID string, limit int) ([]entity.Product, error) {
	products := make([]entity.Product, 0)
	if len(sectionIDs) == 0 {
		return products, nil
	}
	if limit <= 0 {
		limit = 4
	}
	err := e.Execute(ctx, tenantID, &products,
		`SELECT DISTINCT p.* FROM products AS p
		 INNER JOIN product_sections AS ps ON p.id = ps.product_id
		 WHERE ps.section_id IN (?) AND p.id != ? AND p.status = ?
		 ORDER BY p.created_at DESC
		 LIMIT ?`,
		[]any{bun.In(sectionIDs), excludeID, entity.ProductStatusActive, limit},
		WithCacheKey(fmt.Sprintf("%s:product:related:%s:%s:%d", tenantID, strings.Join(sectionIDs, ","), excludeID, limit)),
		WithTTL(RelatedTTL),
	)
	return products, err
}

// ProductByPath resolves an active product by its storefront URL path.
func (e *Executor) ProductByPath(ctx context.Context, tenantID, path string) (*entity.Product, error) {
	var products []entity.Product
	err := e.Execute(ctx, tenantID, &products,
		`SELECT p.* FROM products AS p WHERE p.url = ? AND p.status = ? LIMIT 1`,
		[]any{path, entity.ProductStatusActive},
		WithCacheKey(fmt.Sprintf("%s:product:path:%s", tenantID, path)),
		WithTTL(DetailTTL),
	)
	if err != nil || len(products) == 0 {
		return nil, err
	}
	return &products[0], nil
}
