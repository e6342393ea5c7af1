// Package fhirmodels holds FHIR value sets shared between the domain
// packages and their callers.
package fhirmodels

// Administrative gender codes (FHIR R4 administrative-gender value set).
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// ValidGender reports whether g is a member of the administrative-gender
// value set.
func ValidGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnknown:
		return true
	}
	return false
}

// ContactPoint system codes used by patient telecom entries.
const (
	ContactSystemPhone = "phone"
	ContactSystemEmail = "email"
	ContactSystemFax   = "fax"
	ContactSystemURL   = "url"
	ContactSystemSMS   = "sms"
)
