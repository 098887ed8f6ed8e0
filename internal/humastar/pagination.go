// pagination.go — HATEOAS pagination via RFC 8288 Link headers.
//
// Response bodies implement the Pager interface to emit next/prev/first/last
// Link headers. The Links transformer reads these and sets the headers.
package humastar

import "fmt"

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a generic paginated response envelope.
// Any handler returning PageBody[T] gets automatic pagination Link headers.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Paginate slices items into a page. A non-positive limit returns every
// item after offset.
func Paginate[T any](items []T, offset, limit int) PageBody[T] {
	offset = max(0, min(offset, len(items)))
	end := len(items)
	if limit > 0 {
		end = min(end, offset+limit)
	} else {
		limit = max(1, len(items)-offset)
	}
	data := make([]T, 0, end-offset)
	data = append(data, items[offset:end]...)
	return PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: data}
}

// Page returns the 1-based page number and page count.
func (p PageBody[T]) Page() (page, pages int) {
	if p.Limit <= 0 {
		return 1, 1
	}
	pages = max(1, (p.Total+p.Limit-1)/p.Limit)
	return p.Offset/p.Limit + 1, pages
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit <= 0 {
		return nil
	}
	var links []string

	links = append(links, fmt.Sprintf(`<%s?offset=0&limit=%d>; rel="first"`, basePath, p.Limit))

	if p.Offset > 0 {
		prev := max(0, p.Offset-p.Limit)
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="prev"`, basePath, prev, p.Limit))
	}

	if p.Offset+p.Limit < p.Total {
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="next"`, basePath, p.Offset+p.Limit, p.Limit))
	}

	lastOffset := max(0, ((p.Total-1)/p.Limit)*p.Limit)
	links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="last"`, basePath, lastOffset, p.Limit))

	return links
}
