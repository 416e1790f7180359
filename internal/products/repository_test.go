package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
	"github.com/kitsuneprints/storefront-backend/pkg/types"
)

func TestRepositoryProductFlowPostgres(t *testing.T) {
	conn := openTestDB(t)
	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})

	repo := NewRepository(tx)
	ctx := context.Background()

	original := decimal.RequireFromString("2000")
	product := &models.Product{
		Name:       "Repo Test Poster " + uuid.NewString(),
		Category:   enums.ProductCategoryPosters,
		Images:     pq.StringArray{"https://cdn.example.com/a.jpg"},
		Sizes:      types.ProductSizes{{Label: enums.SizeA3, Price: decimal.RequireFromString("1500"), OriginalPrice: &original}},
		Tags:       pq.StringArray{"ghibli", "night"},
		InStock:    true,
		SearchText: "repo test poster ghibli night",
	}
	product.NameKey = NormalizeText(product.Name)
	if err := repo.Create(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID == uuid.Nil {
		t.Fatal("expected product id to be generated")
	}

	fetched, err := repo.FindByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if len(fetched.Sizes) != 1 || fetched.Sizes[0].OriginalPrice == nil || !fetched.Sizes[0].OriginalPrice.Equal(original) {
		t.Fatalf("sizes did not round trip: %+v", fetched.Sizes)
	}
	if len(fetched.Tags) != 2 || fetched.Tags[1] != "night" {
		t.Fatalf("tags did not round trip: %v", fetched.Tags)
	}

	rows, total, err := repo.List(ctx, ListFilter{NameKey: product.NameKey}, pagination.Params{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || rows[0].ID != product.ID {
		t.Fatalf("expected exact name match, got %d rows", total)
	}

	if err := repo.Delete(ctx, product.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestRepositoryListEscapesLikeWildcards(t *testing.T) {
	conn := openSQLite(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	for _, name := range []string{"100% Cotton Scroll", "1000 Cranes Poster"} {
		p := &models.Product{
			Name:       name,
			NameKey:    NormalizeText(name),
			Category:   enums.ProductCategoryWallScrolls,
			Sizes:      types.ProductSizes{{Label: enums.SizeA3, Price: decimal.RequireFromString("900")}},
			InStock:    true,
			SearchText: NormalizeText(name),
		}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	rows, total, err := repo.List(ctx, ListFilter{Contains: "100%"}, pagination.Params{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || rows[0].Name != "100% Cotton Scroll" {
		t.Fatalf("expected literal percent match only, got %d", total)
	}
}

func TestRepositoryCounts(t *testing.T) {
	conn := openSQLite(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seed := []struct {
		category enums.ProductCategory
		inStock  bool
	}{
		{enums.ProductCategoryPosters, true},
		{enums.ProductCategoryPosters, false},
		{enums.ProductCategoryStickers, false},
	}
	for i, s := range seed {
		p := &models.Product{
			Name:     "Item " + string(rune('A'+i)),
			NameKey:  "item",
			Category: s.category,
			Sizes:    types.ProductSizes{{Label: enums.SizeA5, Price: decimal.RequireFromString("300")}},
			InStock:  s.inStock,
		}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	out, err := repo.CountOutOfStock(ctx)
	if err != nil || out != 2 {
		t.Fatalf("expected 2 out of stock, got %d (%v)", out, err)
	}
	byCategory, err := repo.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("count by category: %v", err)
	}
	if byCategory[enums.ProductCategoryPosters] != 2 || byCategory[enums.ProductCategoryStickers] != 1 {
		t.Fatalf("unexpected category counts %v", byCategory)
	}

	found, err := repo.FindByIDs(ctx, nil)
	if err != nil || len(found) != 0 {
		t.Fatalf("expected empty result for no ids, got %d (%v)", len(found), err)
	}
}
