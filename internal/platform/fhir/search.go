package fhir

import (
	"fmt"
	"regexp"
	"strings"
)

// Date comparison operators accepted on date search parameters.
const (
	DateOpEq = "eq"
	DateOpGe = "ge"
	DateOpLe = "le"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether s is a full YYYY-MM-DD date with no
// comparison prefix, the only form stored document dates may take.
func ValidDate(s string) bool {
	return datePattern.MatchString(s)
}

// DateFilter is a parsed date search parameter. Comparison is performed
// on the YYYY-MM-DD string form, which orders the same as the dates
// themselves.
type DateFilter struct {
	Op    string
	Value string
}

// ParseDateParam parses a date search value such as "ge1990-01-01".
// A bare date means equality. Prefixes outside eq/ge/le are rejected,
// as are values that are not full YYYY-MM-DD dates.
func ParseDateParam(raw string) (DateFilter, error) {
	op := DateOpEq
	value := raw

	if len(raw) > 2 {
		switch prefix := raw[:2]; prefix {
		case DateOpEq, DateOpGe, DateOpLe:
			op = prefix
			value = raw[2:]
		case "gt", "lt", "ne", "sa", "eb", "ap":
			return DateFilter{}, fmt.Errorf("unsupported date prefix %q", prefix)
		}
	}

	if !datePattern.MatchString(value) {
		return DateFilter{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}

	return DateFilter{Op: op, Value: value}, nil
}

// Token is a parsed token search parameter (identifier, telecom).
type Token struct {
	System string
	Value  string
}

// tokenForm distinguishes the three FHIR token spellings so the query
// layer knows whether to constrain the system column.
type tokenForm int

const (
	// TokenAnySystem marks a bare value with no system constraint.
	TokenAnySystem tokenForm = iota
	// TokenNoSystem marks the "|value" form: the entry must have an
	// empty system.
	TokenNoSystem
	// TokenWithSystem marks the full "system|value" form.
	TokenWithSystem
)

// ParsedToken carries the token parts plus which form was used.
type ParsedToken struct {
	Token
	Form tokenForm
}

// ParseTokenParam parses a token search value. "system|value" matches
// both parts, a bare "value" matches regardless of system, and "|value"
// matches entries carrying no system.
func ParseTokenParam(raw string) ParsedToken {
	if !strings.Contains(raw, "|") {
		return ParsedToken{Token: Token{Value: raw}, Form: TokenAnySystem}
	}
	parts := strings.SplitN(raw, "|", 2)
	if parts[0] == "" {
		return ParsedToken{Token: Token{Value: parts[1]}, Form: TokenNoSystem}
	}
	return ParsedToken{Token: Token{System: parts[0], Value: parts[1]}, Form: TokenWithSystem}
}
