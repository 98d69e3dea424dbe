package models

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a 1-based page request
type Page struct {
	Number int
	Size   int
}

// Normalize applies defaults and bounds
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

// PageResult wraps one page of a listing
type PageResult[T any] struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	Size    int `json:"page_size"`
	Results []T `json:"results"`
}

// Paginate slices items according to p. Used by in-memory stores.
func Paginate[T any](items []T, p Page) PageResult[T] {
	p = p.Normalize()
	res := PageResult[T]{Count: len(items), Page: p.Number, Size: p.Size, Results: []T{}}
	start := p.Offset()
	if start >= len(items) {
		return res
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	res.Results = append(res.Results, items[start:end]...)
	return res
}
