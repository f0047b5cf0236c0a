// Package pagination holds the two paging styles the API uses: numbered
// pages for catalogs and admin tables, keyset cursors for feeds.
package pagination

const (
	DefaultLimit   = 25
	MaxOffsetLimit = 50
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

func NormalizePage(page, limit int) Page {
	p := Page{Page: max(page, 1), Limit: limit}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxOffsetLimit:
		p.Limit = MaxOffsetLimit
	}
	return p
}

func (p Page) Offset() int {
	return max(p.Page-1, 0) * p.Limit
}

// OffsetResult is the JSON body of numbered-page listings.
type OffsetResult[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// NewOffsetResult never serializes items as null.
func NewOffsetResult[T any](items []T, page Page, total int64) OffsetResult[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return OffsetResult[T]{Items: items, Page: page.Page, Limit: page.Limit, Total: total}
}
