package fhir

// Issue severity codes.
const (
	SeverityFatal       = "fatal"
	SeverityError       = "error"
	SeverityWarning     = "warning"
	SeverityInformation = "information"
)

// Issue type codes (subset of the FHIR issue-type value set).
const (
	IssueTypeInvalid   = "invalid"
	IssueTypeStructure = "structure"
	IssueTypeNotFound  = "not-found"
	IssueTypeConflict  = "conflict"
	IssueTypeException = "exception"
	IssueTypeDeleted   = "deleted"
	IssueTypeTimeout   = "timeout"
)

// OperationOutcome is the FHIR error/warning response resource.
type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

// Issue is a single OperationOutcome issue entry. Expression optionally
// points at the offending element (FHIRPath-style, e.g. Patient.gender).
type Issue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

// NewOutcome builds an OperationOutcome with a single issue.
func NewOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []Issue{
			{Severity: severity, Code: code, Diagnostics: diagnostics},
		},
	}
}

// NotFoundOutcome reports a missing resource.
func NotFoundOutcome(diagnostics string) *OperationOutcome {
	return NewOutcome(SeverityError, IssueTypeNotFound, diagnostics)
}

// ValidationOutcome reports rejected input. expression, when non-empty,
// names the offending element.
func ValidationOutcome(diagnostics string, expression ...string) *OperationOutcome {
	o := NewOutcome(SeverityError, IssueTypeInvalid, diagnostics)
	for _, e := range expression {
		if e != "" {
			o.Issue[0].Expression = append(o.Issue[0].Expression, e)
		}
	}
	return o
}

// InternalOutcome reports a server-side failure without leaking detail.
func InternalOutcome() *OperationOutcome {
	return NewOutcome(SeverityError, IssueTypeException, "internal server error")
}
