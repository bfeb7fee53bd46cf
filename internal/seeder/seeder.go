package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/query"
	shoprepo "github.com/Additional-Code/storefront/internal/repository/shop"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder fills tenant databases with a demo catalog for local/dev setups.
type Seeder struct {
	exec   *query.Executor
	shops  *shoprepo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder.
func New(exec *query.Executor, shops *shoprepo.Repository, logger *zap.Logger) *Seeder {
	return &Seeder{exec: exec, shops: shops, logger: logger, now: time.Now}
}

// Catalog seeds the demo shop, sections, products and variants for tenantID. Rows
// that already exist are left untouched, so seeding twice is harmless.
func (s *Seeder) Catalog(ctx context.Context, tenantID string) error {
	if _, err := s.shops.Ensure(ctx, tenantID); err != nil {
		return err
	}

	db, err := s.exec.DB(ctx, tenantID)
	if err != nil {
		return err
	}

	data := demoCatalog(s.now().UTC())
	models := []any{
		&data.products, &data.sections, &data.links,
		&data.groups, &data.options, &data.variants,
	}

	var inserted int64
	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range models {
			res, err := tx.NewInsert().Model(m).Ignore().Exec(ctx)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.exec.InvalidateProducts(ctx, tenantID)
	s.exec.InvalidateSections(ctx, tenantID)

	if s.logger != nil {
		s.logger.Info("seeded catalog",
			zap.String("tenant", tenantID),
			zap.Int("products", len(data.products)),
			zap.Int64("inserted", inserted),
		)
	}
	return nil
}

type catalog struct {
	products []entity.Product
	sections []entity.Section
	links    []entity.ProductSection
	groups   []entity.VariantGroup
	options  []entity.VariantOption
	variants []entity.ProductVariant
}

func demoCatalog(now time.Time) catalog {
	product := func(id, title string, price int64, age time.Duration, featured bool) entity.Product {
		return entity.Product{
			ID:        id,
			Title:     title,
			URL:       "/products/" + id,
			Price:     price,
			Status:    entity.ProductStatusActive,
			Featured:  featured,
			Image:     "/media/" + id + ".jpg",
			CreatedAt: now.Add(-age),
		}
	}

	return catalog{
		products: []entity.Product{
			product("ao-thun-basic", "Áo thun basic", 150000, 72*time.Hour, true),
			product("ao-so-mi-linen", "Áo sơ mi linen", 420000, 48*time.Hour, false),
			product("tui-canvas", "Túi canvas", 180000, 24*time.Hour, true),
			product("khan-lua", "Khăn lụa", 250000, time.Hour, false),
		},
		sections: []entity.Section{
			{ID: "ao", Name: "Áo", URL: "/ao", DisplayOrdering: 1},
			{ID: "phu-kien", Name: "Phụ kiện", URL: "/phu-kien", DisplayOrdering: 2},
		},
		links: []entity.ProductSection{
			{ProductID: "ao-thun-basic", SectionID: "ao"},
			{ProductID: "ao-so-mi-linen", SectionID: "ao"},
			{ProductID: "tui-canvas", SectionID: "phu-kien"},
			{ProductID: "khan-lua", SectionID: "phu-kien"},
		},
		groups: []entity.VariantGroup{
			{ID: "ao-thun-basic-size", ProductID: "ao-thun-basic", Name: "Size"},
		},
		options: []entity.VariantOption{
			{ID: "ao-thun-basic-s", GroupID: "ao-thun-basic-size", Name: "S"},
			{ID: "ao-thun-basic-m", GroupID: "ao-thun-basic-size", Name: "M"},
			{ID: "ao-thun-basic-l", GroupID: "ao-thun-basic-size", Name: "L"},
		},
		variants: []entity.ProductVariant{
			{ID: "ao-thun-basic-v-s", ProductID: "ao-thun-basic", Option1ID: "ao-thun-basic-s", Price: 150000, SKU: "ATB-S"},
			{ID: "ao-thun-basic-v-m", ProductID: "ao-thun-basic", Option1ID: "ao-thun-basic-m", Price: 150000, SKU: "ATB-M"},
			{ID: "ao-thun-basic-v-l", ProductID: "ao-thun-basic", Option1ID: "ao-thun-basic-l", Price: 165000, SKU: "ATB-L"},
		},
	}
}
