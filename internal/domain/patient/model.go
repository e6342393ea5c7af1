// Package patient implements storage, versioning, search indexing and
// the HTTP surface for the Patient resource.
package patient

import (
	"encoding/json"
	"fmt"

	"github.com/fhirlite/fhirlite/internal/platform/fhir"
	"github.com/fhirlite/fhirlite/pkg/fhirmodels"
)

// ResourceType is the type discriminator carried by every stored document.
const ResourceType = "Patient"

// Record status values for the primary table and history rows.
const (
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusDeleted = "deleted"
)

// Patient is the resource document. Fields the engine indexes or
// validates are typed; everything else a client sends is preserved
// verbatim in Extra and round-tripped on output.
type Patient struct {
	ResourceType string              `json:"resourceType,omitempty"`
	ID           string              `json:"id,omitempty"`
	Meta         *fhir.Meta          `json:"meta,omitempty"`
	Active       *bool               `json:"active,omitempty"`
	Name         []fhir.HumanName    `json:"name,omitempty"`
	Identifier   []fhir.Identifier   `json:"identifier,omitempty"`
	Telecom      []fhir.ContactPoint `json:"telecom,omitempty"`
	Gender       string              `json:"gender,omitempty"`
	BirthDate    string              `json:"birthDate,omitempty"`
	Address      []fhir.Address      `json:"address,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// typedKeys are the document fields with dedicated struct fields; they
// are stripped from Extra on decode so they are not emitted twice.
var typedKeys = []string{
	"resourceType", "id", "meta", "active", "name",
	"identifier", "telecom", "gender", "birthDate", "address",
}

type patientAlias Patient

// UnmarshalJSON decodes the typed fields and keeps every unrecognized
// top-level property in Extra.
func (p *Patient) UnmarshalJSON(data []byte) error {
	var a patientAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range typedKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}

	*p = Patient(a)
	p.Extra = raw
	return nil
}

// MarshalJSON emits the typed fields merged with Extra, always stamping
// the resourceType discriminator.
func (p Patient) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(patientAlias(p))
	if err != nil {
		return nil, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	merged["resourceType"] = json.RawMessage(`"` + ResourceType + `"`)

	return json.Marshal(merged)
}

// Validate checks the structural rules enforced on every write: the
// resourceType discriminator must be present and correct, the gender
// code must come from the administrative-gender value set and birthDate
// must be a full YYYY-MM-DD date. Returns a *ValidationError naming the
// offending element.
func (p *Patient) Validate() error {
	if p.ResourceType != ResourceType {
		return &ValidationError{
			Msg:        fmt.Sprintf("resourceType must be %q", ResourceType),
			Expression: "Patient.resourceType",
		}
	}
	if p.Gender != "" && !fhirmodels.ValidGender(p.Gender) {
		return &ValidationError{
			Msg:        fmt.Sprintf("gender %q is not a valid administrative-gender code", p.Gender),
			Expression: "Patient.gender",
		}
	}
	if p.BirthDate != "" && !fhir.ValidDate(p.BirthDate) {
		return &ValidationError{
			Msg:        fmt.Sprintf("birthDate %q is not a valid YYYY-MM-DD date", p.BirthDate),
			Expression: "Patient.birthDate",
		}
	}
	return nil
}

// Clone returns a deep copy, detached from the receiver's slices and
// maps. Used by the in-memory store so callers cannot mutate stored
// state through returned pointers.
func (p *Patient) Clone() *Patient {
	data, err := json.Marshal(p)
	if err != nil {
		// Patient always marshals; the fields are plain data.
		panic(err)
	}
	var out Patient
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}
