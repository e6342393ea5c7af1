package patient

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPatient_UnmarshalPreservesUnknownFields(t *testing.T) {
	body := `{
		"resourceType": "Patient",
		"id": "abc",
		"gender": "female",
		"birthDate": "1990-01-01",
		"name": [{"family": "Gauss", "given": ["Carl", "Friedrich"]}],
		"maritalStatus": {"text": "married"},
		"communication": [{"language": {"text": "de"}}]
	}`

	var p Patient
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if p.ID != "abc" {
		t.Errorf("expected id abc, got %s", p.ID)
	}
	if p.Gender != "female" {
		t.Errorf("expected gender female, got %s", p.Gender)
	}
	if len(p.Name) != 1 || p.Name[0].Family != "Gauss" {
		t.Errorf("unexpected name: %+v", p.Name)
	}
	if _, ok := p.Extra["maritalStatus"]; !ok {
		t.Error("expected maritalStatus preserved in Extra")
	}
	if _, ok := p.Extra["communication"]; !ok {
		t.Error("expected communication preserved in Extra")
	}
	if _, ok := p.Extra["gender"]; ok {
		t.Error("typed field gender must not appear in Extra")
	}
}

func TestPatient_MarshalRoundTrip(t *testing.T) {
	body := `{"resourceType":"Patient","id":"abc","gender":"male","maritalStatus":{"text":"single"}}`

	var p Patient
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := json.Marshal(&p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if decoded["resourceType"] != "Patient" {
		t.Errorf("expected resourceType Patient, got %v", decoded["resourceType"])
	}
	if decoded["gender"] != "male" {
		t.Errorf("expected gender male, got %v", decoded["gender"])
	}
	ms, ok := decoded["maritalStatus"].(map[string]interface{})
	if !ok || ms["text"] != "single" {
		t.Errorf("expected maritalStatus round-tripped, got %v", decoded["maritalStatus"])
	}
}

func TestPatient_MarshalAlwaysStampsResourceType(t *testing.T) {
	p := Patient{ID: "abc"}
	out, err := json.Marshal(&p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"resourceType":"Patient"`) {
		t.Errorf("expected resourceType stamped, got %s", out)
	}
}

func TestPatient_Validate(t *testing.T) {
	tests := []struct {
		name       string
		patient    Patient
		wantErr    bool
		expression string
	}{
		{
			name:    "valid minimal",
			patient: Patient{ResourceType: "Patient"},
		},
		{
			name:    "valid full",
			patient: Patient{ResourceType: "Patient", Gender: "other", BirthDate: "1990-01-01"},
		},
		{
			name:       "missing resourceType",
			patient:    Patient{},
			wantErr:    true,
			expression: "Patient.resourceType",
		},
		{
			name:       "wrong resourceType",
			patient:    Patient{ResourceType: "Observation"},
			wantErr:    true,
			expression: "Patient.resourceType",
		},
		{
			name:       "bad gender",
			patient:    Patient{ResourceType: "Patient", Gender: "M"},
			wantErr:    true,
			expression: "Patient.gender",
		},
		{
			name:       "bad birthDate",
			patient:    Patient{ResourceType: "Patient", BirthDate: "1990"},
			wantErr:    true,
			expression: "Patient.birthDate",
		},
		{
			name:       "prefixed birthDate rejected",
			patient:    Patient{ResourceType: "Patient", BirthDate: "ge1990-01-01"},
			wantErr:    true,
			expression: "Patient.birthDate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patient.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Expression != tt.expression {
				t.Errorf("expression = %q, want %q", verr.Expression, tt.expression)
			}
		})
	}
}

func TestPatient_Clone(t *testing.T) {
	active := true
	p := Patient{
		ResourceType: "Patient",
		ID:           "abc",
		Active:       &active,
	}

	clone := p.Clone()
	*clone.Active = false
	clone.ID = "changed"

	if !*p.Active {
		t.Error("mutating the clone must not affect the original")
	}
	if p.ID != "abc" {
		t.Errorf("expected original id unchanged, got %s", p.ID)
	}
}
