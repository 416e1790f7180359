package pagination

import (
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// CatalogLimit is the default page size for storefront product grids.
	CatalogLimit = 12
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Params holds page/limit inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the returned page.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
}

// NormalizeLimit enforces the default and maximum limits.
func NormalizeLimit(limit int) int {
	return normalizeLimitWithDefault(limit, DefaultLimit)
}

func normalizeLimitWithDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize clamps page to >= 1 and limit to (0, MaxLimit], using def when
// the limit is missing.
func (p Params) Normalize(def int) Params {
	if def <= 0 {
		def = DefaultLimit
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return Params{Page: page, Limit: normalizeLimitWithDefault(p.Limit, def)}
}

// Offset returns the row offset for the normalized params.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// NewMeta builds page metadata for a total row count.
func NewMeta(p Params, total int64) Meta {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
	}
}

// Parse reads page and limit query values. Invalid numbers fall back to zero
// and are normalized later.
func Parse(page, limit string) Params {
	return Params{Page: atoi(page), Limit: atoi(limit)}
}

func atoi(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

// Window slices an in-memory result set to the requested page.
func Window[T any](rows []T, p Params) []T {
	start := p.Offset()
	if start >= len(rows) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
