package table

import "github.com/pitabwire/console/model"

// Pagination is the previous/next control of a paged list. Page is one
// based.
type Pagination struct {
	Page       int
	PageSize   int
	TotalCount int
}

// NewPagination returns the control for a page of results.
func NewPagination(page, pageSize, totalCount int) Pagination {
	return Pagination{Page: page, PageSize: pageSize, TotalCount: totalCount}
}

// TotalPages returns ceil(TotalCount/PageSize), and at least 1.
func (p Pagination) TotalPages() int {
	if p.PageSize <= 0 || p.TotalCount <= 0 {
		return 1
	}
	return (p.TotalCount-1)/p.PageSize + 1
}

// HasPrev reports whether Previous is enabled.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether Next is enabled.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages()
}

// Visible reports whether the control is shown at all: only when the
// results span more than one page.
func (p Pagination) Visible() bool {
	return p.TotalCount > p.PageSize
}

// Prev returns the previous page, clamped to 1.
func (p Pagination) Prev() int {
	return max(1, p.Page-1)
}

// Next returns the next page, clamped to the last page.
func (p Pagination) Next() int {
	last := p.TotalPages()
	if p.Page >= last {
		return last
	}
	return p.Page + 1
}

// Window returns the one based range of items shown on the current page.
// Both are zero for an empty result.
func (p Pagination) Window() (first, last int) {
	start, end := model.Window(p.TotalCount, p.Page, p.PageSize)
	if start == end {
		return 0, 0
	}
	return start + 1, end
}
