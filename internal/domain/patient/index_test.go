package patient

import (
	"testing"

	"github.com/fhirlite/fhirlite/internal/platform/fhir"
)

func TestNameRows(t *testing.T) {
	p := &Patient{
		Name: []fhir.HumanName{
			{Family: "Gauss", Given: []string{"Carl", "Friedrich"}},
			{Text: "Dr. Smith"},
			{Use: "nickname"}, // nothing extractable
		},
	}

	rows := NameRows(p)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// One row per given name, never a joined string.
	if rows[0].Family != "Gauss" || rows[0].Given != "Carl" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[1].Family != "Gauss" || rows[1].Given != "Friedrich" {
		t.Errorf("unexpected row: %+v", rows[1])
	}
	if rows[2].Text != "Dr. Smith" || rows[2].Given != "" {
		t.Errorf("expected text row, got %+v", rows[2])
	}
}

func TestNameRows_Empty(t *testing.T) {
	if rows := NameRows(&Patient{}); len(rows) != 0 {
		t.Errorf("expected no rows for patient without names, got %d", len(rows))
	}
}

func TestIdentifierRows(t *testing.T) {
	p := &Patient{
		Identifier: []fhir.Identifier{
			{System: "http://hospital.example/mrn", Value: "12345"},
			{System: "http://hospital.example/mrn"}, // no value, skipped
			{Value: "67890"},
		},
	}

	rows := IdentifierRows(p)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].System != "http://hospital.example/mrn" || rows[0].Value != "12345" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[1].System != "" || rows[1].Value != "67890" {
		t.Errorf("unexpected row: %+v", rows[1])
	}
}

func TestTelecomRows(t *testing.T) {
	p := &Patient{
		Telecom: []fhir.ContactPoint{
			{System: "email", Value: "carl@example.org"},
			{System: "phone"}, // no value, skipped
			{System: "phone", Value: "+1-555-0100"},
		},
	}

	rows := TelecomRows(p)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].System != "email" || rows[0].Value != "carl@example.org" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestAddressRows(t *testing.T) {
	p := &Patient{
		Address: []fhir.Address{
			{City: "Göttingen", Country: "DE"},
			{Line: []string{"1 Main St"}}, // no indexed component, skipped
			{PostalCode: "37073"},
		},
	}

	rows := AddressRows(p)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].City != "Göttingen" || rows[0].Country != "DE" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[1].PostalCode != "37073" {
		t.Errorf("unexpected row: %+v", rows[1])
	}
}
