package fhir

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fhirlite/fhirlite/pkg/pagination"
)

// Bundle types we produce.
const (
	BundleTypeSearchSet = "searchset"
	BundleTypeHistory   = "history"
)

// Bundle is a FHIR Bundle resource.
type Bundle struct {
	ResourceType string                `json:"resourceType"`
	Type         string                `json:"type"`
	Total        *int                  `json:"total,omitempty"`
	Link         []pagination.FHIRLink `json:"link,omitempty"`
	Entry        []BundleEntry         `json:"entry"`
}

// BundleEntry is one entry of a Bundle.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

// BundleSearch annotates a searchset entry.
type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// BundleRequest records, for a history entry, the request that produced
// the version.
type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// BundleResponse records the outcome of the request for a history entry.
type BundleResponse struct {
	Status string `json:"status"`
}

// NewSearchSet builds a searchset Bundle. total is the full match count
// across the whole result set, independent of the returned window.
func NewSearchSet(total int, links []pagination.FHIRLink) *Bundle {
	t := total
	return &Bundle{
		ResourceType: "Bundle",
		Type:         BundleTypeSearchSet,
		Total:        &t,
		Link:         links,
		Entry:        []BundleEntry{},
	}
}

// AddMatch appends a match entry to a searchset Bundle.
func (b *Bundle) AddMatch(fullURL string, resource json.RawMessage) {
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  fullURL,
		Resource: resource,
		Search:   &BundleSearch{Mode: "match"},
	})
}

// NewHistory builds a history Bundle. total is the number of versions
// recorded for the resource.
func NewHistory(total int, links []pagination.FHIRLink) *Bundle {
	t := total
	return &Bundle{
		ResourceType: "Bundle",
		Type:         BundleTypeHistory,
		Total:        &t,
		Link:         links,
		Entry:        []BundleEntry{},
	}
}

// AddVersion appends a history entry. status is the stored record status
// of the version ("created", "updated" or "deleted") and resourceURL is
// the type-level resource URL (e.g. Patient/123).
func (b *Bundle) AddVersion(fullURL string, resource json.RawMessage, status, resourceURL string) {
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  fullURL,
		Resource: resource,
		Request: &BundleRequest{
			Method: RequestMethodForStatus(status),
			URL:    resourceURL,
		},
		Response: &BundleResponse{
			Status: responseStatusForStatus(status),
		},
	})
}

// RequestMethodForStatus maps a stored version status to the HTTP method
// that would have produced it.
func RequestMethodForStatus(status string) string {
	switch status {
	case "created":
		return http.MethodPost
	case "deleted":
		return http.MethodDelete
	default:
		return http.MethodPut
	}
}

func responseStatusForStatus(status string) string {
	switch status {
	case "created":
		return fmt.Sprintf("%d Created", http.StatusCreated)
	case "deleted":
		return fmt.Sprintf("%d No Content", http.StatusNoContent)
	default:
		return fmt.Sprintf("%d OK", http.StatusOK)
	}
}
