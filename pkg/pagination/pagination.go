// Package pagination handles limit/offset windows for search and
// history endpoints, including FHIR Bundle paging links.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds a pagination window extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
// Both the FHIR spellings (_count, _offset) and the plain ones
// (limit, offset) are accepted; out-of-range values are clamped
// rather than rejected.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// HasNext reports whether results exist past the current window.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious reports whether results exist before the current window.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset of the next window.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset of the previous window, clamped
// at zero.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// FHIRLink is a single Bundle link entry.
type FHIRLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// FHIRLinks builds the self/next/previous Bundle links for a search
// result. Filter parameters from the original query are carried into
// every link; only the window parameters change between pages.
func (p Params) FHIRLinks(basePath string, query url.Values, total int) []FHIRLink {
	links := []FHIRLink{
		{Relation: "self", URL: pageURL(basePath, query, p.Offset, p.Limit)},
	}

	if p.HasNext(total) {
		links = append(links, FHIRLink{
			Relation: "next",
			URL:      pageURL(basePath, query, p.NextOffset(), p.Limit),
		})
	}

	if p.HasPrevious() {
		links = append(links, FHIRLink{
			Relation: "previous",
			URL:      pageURL(basePath, query, p.PreviousOffset(), p.Limit),
		})
	}

	return links
}

func pageURL(basePath string, query url.Values, offset, limit int) string {
	q := url.Values{}
	for k, vs := range query {
		switch k {
		case "_count", "_offset", "limit", "offset":
			// replaced below
		default:
			q[k] = vs
		}
	}
	q.Set("_offset", strconv.Itoa(offset))
	q.Set("_count", strconv.Itoa(limit))
	return fmt.Sprintf("%s?%s", basePath, q.Encode())
}
