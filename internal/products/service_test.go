package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

type catalogFixture struct {
	svc  *Service
	conn *gorm.DB
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	conn := openSQLite(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), TxRunner: db.NewFromConn(conn)})
	require.NoError(t, err)
	return &catalogFixture{svc: svc, conn: conn}
}

func (f *catalogFixture) add(t *testing.T, name, category string, featured bool, tags ...string) *ProductDTO {
	t.Helper()
	dto, err := f.svc.Create(context.Background(), ProductInput{
		Name:        name,
		Description: "Giclee print on heavyweight matte paper.",
		Category:    category,
		Images:      []string{"https://cdn.example.com/" + uuid.NewString() + ".jpg"},
		Sizes:       []SizeInput{{Label: "a4", Price: decimal.RequireFromString("1200")}},
		InStock:     true,
		Featured:    featured,
		Tags:        tags,
	})
	require.NoError(t, err)
	return dto
}

func seedCatalog(t *testing.T, f *catalogFixture) (yourName, weathering, demon *ProductDTO) {
	t.Helper()
	yourName = f.add(t, "Your Name", "posters", false, "Makoto Shinkai", "comet")
	weathering = f.add(t, "Your Name Comet Skyline", "canvas", true, "shinkai")
	demon = f.add(t, "Demon Slayer Hashira", "wall_scrolls", false, "tanjiro")
	return yourName, weathering, demon
}

func search(t *testing.T, f *catalogFixture, in SearchInput) *SearchResult {
	t.Helper()
	res, err := f.svc.Search(context.Background(), in)
	require.NoError(t, err)
	return res
}

func TestSearchExactMatchComesFirst(t *testing.T) {
	f := newCatalogFixture(t)
	yourName, _, _ := seedCatalog(t, f)

	res := search(t, f, SearchInput{Query: "  your   NAME "})
	require.NotNil(t, res.Search)
	assert.Equal(t, StageExact, res.Search.Stage)
	assert.Equal(t, "your name", res.Search.AppliedTerm)
	assert.False(t, res.Search.NoMatch)
	require.Len(t, res.Products, 1)
	assert.Equal(t, yourName.ID, res.Products[0].ID)
}

func TestSearchSubstringStage(t *testing.T) {
	f := newCatalogFixture(t)
	yourName, skyline, _ := seedCatalog(t, f)

	res := search(t, f, SearchInput{Query: "Your Na"})
	assert.Equal(t, StageFull, res.Search.Stage)
	assert.Equal(t, "your na", res.Search.AppliedTerm)
	ids := []uuid.UUID{}
	for _, p := range res.Products {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{yourName.ID, skyline.ID}, ids)
	assert.Equal(t, skyline.ID, res.Products[0].ID, "featured products sort first")

	res = search(t, f, SearchInput{Query: "TANJIRO"})
	assert.Equal(t, StageFull, res.Search.Stage, "tags are searchable")
}

func TestSearchTrimStages(t *testing.T) {
	f := newCatalogFixture(t)
	_, _, demon := seedCatalog(t, f)

	res := search(t, f, SearchInput{Query: "demon slayer mugen train"})
	assert.Equal(t, StageTrim, res.Search.Stage)
	assert.Equal(t, "demon slayer", res.Search.AppliedTerm)
	require.Len(t, res.Products, 1)
	assert.Equal(t, demon.ID, res.Products[0].ID)

	res = search(t, f, SearchInput{Query: "demonic"})
	assert.Equal(t, StageTrim, res.Search.Stage)
	assert.Equal(t, "demon", res.Search.AppliedTerm)
}

func TestSearchDoesNotMatchAcrossFields(t *testing.T) {
	f := newCatalogFixture(t)
	dto, err := f.svc.Create(context.Background(), ProductInput{
		Name:        "Sakura Night",
		Description: "Train station at dusk.",
		Category:    "posters",
		Images:      []string{"https://cdn.example.com/sakura.jpg"},
		Sizes:       []SizeInput{{Label: "a4", Price: decimal.RequireFromString("1200")}},
		InStock:     true,
		Tags:        []string{"Spring"},
	})
	require.NoError(t, err)

	res := search(t, f, SearchInput{Query: "night train"})
	assert.Equal(t, StageTrim, res.Search.Stage)
	assert.Equal(t, "night", res.Search.AppliedTerm)
	require.Len(t, res.Products, 1)
	assert.Equal(t, dto.ID, res.Products[0].ID)

	res = search(t, f, SearchInput{Query: "dusk spring"})
	assert.NotEqual(t, StageFull, res.Search.Stage)
}

func TestSearchText(t *testing.T) {
	assert.Equal(t, "your name\nby shinkai\ncomet", SearchText("  Your  Name ", "By Shinkai", []string{"", "COMET"}))
	assert.Empty(t, SearchText("", " ", nil))
}

func TestSearchNoMatch(t *testing.T) {
	f := newCatalogFixture(t)
	seedCatalog(t, f)

	res := search(t, f, SearchInput{Query: "zzzznomatch"})
	assert.Equal(t, StageNone, res.Search.Stage)
	assert.True(t, res.Search.NoMatch)
	assert.Empty(t, res.Search.AppliedTerm)
	assert.Empty(t, res.Products)
	assert.EqualValues(t, 0, res.Pagination.Total)
}

func TestSearchFiltersAndPagination(t *testing.T) {
	f := newCatalogFixture(t)
	_, skyline, _ := seedCatalog(t, f)

	res := search(t, f, SearchInput{Query: "your name", Category: "CANVAS"})
	assert.Equal(t, StageFull, res.Search.Stage, "the exact product is filtered out by category")
	require.Len(t, res.Products, 1)
	assert.Equal(t, skyline.ID, res.Products[0].ID)

	featured := true
	res = search(t, f, SearchInput{Featured: &featured})
	assert.Nil(t, res.Search, "plain listings carry no search metadata")
	require.Len(t, res.Products, 1)

	res = search(t, f, SearchInput{Params: pagination.Params{Page: 2, Limit: 2}})
	assert.Len(t, res.Products, 1)
	assert.EqualValues(t, 3, res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)
	assert.False(t, res.Pagination.HasNext)

	res = search(t, f, SearchInput{})
	assert.Equal(t, pagination.CatalogLimit, res.Pagination.Limit)

	_, err := f.svc.Search(context.Background(), SearchInput{Category: "mugs"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateNormalizesProduct(t *testing.T) {
	f := newCatalogFixture(t)
	original := decimal.RequireFromString("1800")
	dto, err := f.svc.Create(context.Background(), ProductInput{
		Name:     "  Spirited   Night ",
		Category: "Framed",
		Sizes: []SizeInput{
			{Label: "a3", Price: decimal.RequireFromString("1500.499"), OriginalPrice: &original},
			{Label: "12X18", Price: decimal.RequireFromString("2100")},
		},
		Tags:    []string{" Ghibli ", "ghibli", "", "Night  Sky"},
		InStock: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Spirited   Night", dto.Name)
	assert.Equal(t, enums.ProductCategoryFramed, dto.Category)
	assert.Equal(t, []string{"ghibli", "night sky"}, dto.Tags)
	assert.False(t, dto.InStock)
	require.Len(t, dto.Sizes, 2)
	assert.Equal(t, enums.SizeA3, dto.Sizes[0].Label)
	assert.Equal(t, "1500.5", dto.Sizes[0].Price.String())
	assert.Equal(t, enums.Size12x18, dto.Sizes[1].Label)

	var row models.Product
	require.NoError(t, f.conn.First(&row, "id = ?", dto.ID).Error)
	assert.Equal(t, "spirited night", row.NameKey)
	assert.Equal(t, "spirited night\nghibli\nnight sky", row.SearchText)
	assert.False(t, row.InStock)
}

func TestCreateValidation(t *testing.T) {
	f := newCatalogFixture(t)
	valid := func() ProductInput {
		return ProductInput{
			Name:     "Poster",
			Category: "posters",
			Sizes:    []SizeInput{{Label: "A4", Price: decimal.RequireFromString("1000")}},
		}
	}
	lower := decimal.RequireFromString("500")
	cases := map[string]func(*ProductInput){
		"missing name":       func(in *ProductInput) { in.Name = "   " },
		"bad category":       func(in *ProductInput) { in.Category = "mugs" },
		"no sizes":           func(in *ProductInput) { in.Sizes = nil },
		"bad size label":     func(in *ProductInput) { in.Sizes[0].Label = "B9" },
		"zero price":         func(in *ProductInput) { in.Sizes[0].Price = decimal.Zero },
		"original too low":   func(in *ProductInput) { in.Sizes[0].OriginalPrice = &lower },
		"duplicate size":     func(in *ProductInput) { in.Sizes = append(in.Sizes, SizeInput{Label: "a4", Price: decimal.RequireFromString("900")}) },
		"image is not a url": func(in *ProductInput) { in.Images = []string{"not a url"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid()
			mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestUpdateKeepsAggregates(t *testing.T) {
	f := newCatalogFixture(t)
	yourName, _, _ := seedCatalog(t, f)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", yourName.ID).
		Updates(map[string]any{"rating": decimal.RequireFromString("4.5"), "review_count": 2}).Error)

	updated, err := f.svc.Update(context.Background(), yourName.ID, ProductInput{
		Name:     "Your Name (Kimi no Na wa)",
		Category: "posters",
		Sizes:    []SizeInput{{Label: "A2", Price: decimal.RequireFromString("3200")}},
		InStock:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Your Name (Kimi no Na wa)", updated.Name)
	assert.Equal(t, "4.5", updated.Rating.String())
	assert.Equal(t, 2, updated.ReviewCount)

	res := search(t, f, SearchInput{Query: "your name (kimi no na wa)"})
	assert.Equal(t, StageExact, res.Search.Stage)

	_, err = f.svc.Update(context.Background(), uuid.New(), ProductInput{Name: "x", Category: "posters", Sizes: []SizeInput{{Label: "A4", Price: decimal.NewFromInt(1)}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteRemovesReviews(t *testing.T) {
	f := newCatalogFixture(t)
	yourName, skyline, _ := seedCatalog(t, f)
	for _, pid := range []uuid.UUID{yourName.ID, skyline.ID} {
		require.NoError(t, f.conn.Create(&models.Review{
			ProductID:     pid,
			OrderNumber:   "KP000001-AAA",
			CustomerName:  "Aiko",
			CustomerEmail: "aiko@example.com",
			Rating:        5,
			Status:        enums.ReviewStatusApproved,
		}).Error)
	}

	require.NoError(t, f.svc.Delete(context.Background(), yourName.ID))

	var remaining int64
	require.NoError(t, f.conn.Model(&models.Review{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
	_, err := f.svc.Get(context.Background(), yourName.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = f.svc.Delete(context.Background(), yourName.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestFindByIDs(t *testing.T) {
	f := newCatalogFixture(t)
	yourName, _, demon := seedCatalog(t, f)

	rows, err := f.svc.FindByIDs(context.Background(), []uuid.UUID{yourName.ID, demon.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTrimCandidates(t *testing.T) {
	assert.Equal(t, []string{"your name", "your", "you", "yo"}, trimCandidates("your name qq"))
	assert.Equal(t, []string{"abc", "ab"}, trimCandidates("abcd"))
	assert.Empty(t, trimCandidates("ab"))
	assert.Empty(t, trimCandidates(""))
	assert.Equal(t, []string{"ねこの", "ねこ"}, trimCandidates("ねこのて"))
}
