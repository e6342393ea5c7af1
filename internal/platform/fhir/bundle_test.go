package fhir

import (
	"encoding/json"
	"testing"

	"github.com/fhirlite/fhirlite/pkg/pagination"
)

func TestNewSearchSet(t *testing.T) {
	links := []pagination.FHIRLink{{Relation: "self", URL: "/fhir/Patient?_count=20&_offset=0"}}
	b := NewSearchSet(42, links)

	if b.ResourceType != "Bundle" {
		t.Errorf("expected Bundle, got %s", b.ResourceType)
	}
	if b.Type != BundleTypeSearchSet {
		t.Errorf("expected searchset, got %s", b.Type)
	}
	if b.Total == nil || *b.Total != 42 {
		t.Errorf("expected total 42, got %v", b.Total)
	}
	if len(b.Entry) != 0 {
		t.Errorf("expected empty entries, got %d", len(b.Entry))
	}
}

func TestSearchSet_EmptyEntriesMarshalAsArray(t *testing.T) {
	b := NewSearchSet(0, nil)
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["entry"].([]interface{}); !ok {
		t.Errorf("expected entry to be a JSON array, got %T", decoded["entry"])
	}
	if decoded["total"].(float64) != 0 {
		t.Errorf("expected total 0 present even when zero, got %v", decoded["total"])
	}
}

func TestBundle_AddMatch(t *testing.T) {
	b := NewSearchSet(1, nil)
	resource := json.RawMessage(`{"resourceType":"Patient","id":"abc"}`)
	b.AddMatch("http://localhost:8000/fhir/Patient/abc", resource)

	if len(b.Entry) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(b.Entry))
	}
	e := b.Entry[0]
	if e.FullURL != "http://localhost:8000/fhir/Patient/abc" {
		t.Errorf("unexpected fullUrl: %s", e.FullURL)
	}
	if e.Search == nil || e.Search.Mode != "match" {
		t.Error("expected search.mode=match")
	}
	if e.Request != nil {
		t.Error("searchset entries must not carry request blocks")
	}
}

func TestBundle_AddVersion(t *testing.T) {
	b := NewHistory(3, nil)
	resource := json.RawMessage(`{"resourceType":"Patient","id":"abc"}`)

	b.AddVersion("http://localhost:8000/fhir/Patient/abc/_history/1", resource, "created", "Patient/abc")
	b.AddVersion("http://localhost:8000/fhir/Patient/abc/_history/2", resource, "updated", "Patient/abc")
	b.AddVersion("http://localhost:8000/fhir/Patient/abc/_history/3", resource, "deleted", "Patient/abc")

	if len(b.Entry) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(b.Entry))
	}
	if b.Entry[0].Request.Method != "POST" {
		t.Errorf("created version: expected POST, got %s", b.Entry[0].Request.Method)
	}
	if b.Entry[1].Request.Method != "PUT" {
		t.Errorf("updated version: expected PUT, got %s", b.Entry[1].Request.Method)
	}
	if b.Entry[2].Request.Method != "DELETE" {
		t.Errorf("deleted version: expected DELETE, got %s", b.Entry[2].Request.Method)
	}
	if b.Entry[0].Response.Status != "201 Created" {
		t.Errorf("unexpected response status: %s", b.Entry[0].Response.Status)
	}
	if b.Entry[1].Request.URL != "Patient/abc" {
		t.Errorf("unexpected request url: %s", b.Entry[1].Request.URL)
	}
}

func TestRequestMethodForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"created", "POST"},
		{"updated", "PUT"},
		{"deleted", "DELETE"},
		{"", "PUT"},
	}
	for _, tt := range tests {
		if got := RequestMethodForStatus(tt.status); got != tt.want {
			t.Errorf("RequestMethodForStatus(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNewOutcome(t *testing.T) {
	o := NotFoundOutcome("Patient abc not found")
	if o.ResourceType != "OperationOutcome" {
		t.Errorf("expected OperationOutcome, got %s", o.ResourceType)
	}
	if len(o.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(o.Issue))
	}
	if o.Issue[0].Code != IssueTypeNotFound {
		t.Errorf("expected not-found, got %s", o.Issue[0].Code)
	}
	if o.Issue[0].Severity != SeverityError {
		t.Errorf("expected error severity, got %s", o.Issue[0].Severity)
	}
}

func TestInternalOutcome_HidesDetail(t *testing.T) {
	o := InternalOutcome()
	if o.Issue[0].Diagnostics != "internal server error" {
		t.Errorf("internal outcome must not leak detail, got %q", o.Issue[0].Diagnostics)
	}
}
