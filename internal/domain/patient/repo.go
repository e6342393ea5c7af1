package patient

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/fhirlite/fhirlite/internal/platform/fhir"
)

// ErrNotFound is returned when an identifier is absent or soft-deleted.
// The two cases are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("patient not found")

// ValidationError reports input the engine refuses to store or query.
type ValidationError struct {
	Msg        string
	Expression string
}

func (e *ValidationError) Error() string { return e.Msg }

// HistoryRecord is one immutable stored version of a patient. TxID is
// the marker of the transaction that wrote the version.
type HistoryRecord struct {
	ID        string
	VersionID int
	Status    string
	Resource  Patient
	TxID      int64
	TxTime    time.Time
}

// SearchParams is the parsed, recognized subset of a search request.
// Zero values mean "not filtered".
type SearchParams struct {
	Name        string
	Gender      string
	BirthDate   *fhir.DateFilter
	Active      *bool
	Identifier  *fhir.ParsedToken
	Email       string
	Phone       string
	AddressCity string

	Limit  int
	Offset int
}

// Repository is the persistence contract for patients. Implementations
// must make every write — document upsert, history append and index
// rebuild — a single atomic unit.
type Repository interface {
	// Upsert stores doc under doc.ID, creating or replacing it. It
	// returns the stored document with metadata stamped, and whether
	// the write created a new resource.
	Upsert(ctx context.Context, doc *Patient) (*Patient, bool, error)

	// Update replaces an existing live document, or returns ErrNotFound
	// when the id is unknown or soft-deleted. The existence check runs
	// inside the write transaction, so a concurrent delete cannot slip
	// between check and write.
	Update(ctx context.Context, doc *Patient) (*Patient, error)

	// Get returns the current document, or ErrNotFound if the id is
	// unknown or soft-deleted.
	Get(ctx context.Context, id string) (*Patient, error)

	// GetVersion returns one stored version, or ErrNotFound.
	GetVersion(ctx context.Context, id string, version int) (*HistoryRecord, error)

	// Delete soft-deletes the resource and records a deleted version.
	// Unknown ids return ErrNotFound; deleting an already-deleted
	// resource is a no-op.
	Delete(ctx context.Context, id string) error

	// History returns stored versions newest-first plus the total
	// version count. An unknown id yields an empty slice, not an error.
	History(ctx context.Context, id string, limit, offset int) ([]HistoryRecord, int, error)

	// Search returns the page of matching documents ordered by id
	// ascending, plus the window-independent total match count.
	Search(ctx context.Context, params SearchParams) ([]Patient, int, error)
}

// ParseSearchParams extracts the recognized search parameters from a
// query string. Unrecognized parameters are ignored. A malformed value
// on a recognized parameter is a *ValidationError.
func ParseSearchParams(values url.Values, limit, offset int) (SearchParams, error) {
	params := SearchParams{Limit: limit, Offset: offset}

	params.Name = values.Get("name")
	params.Gender = values.Get("gender")
	params.Email = values.Get("email")
	params.Phone = values.Get("phone")
	params.AddressCity = values.Get("address-city")

	raw := values.Get("birthdate")
	if raw == "" {
		raw = values.Get("birthDate")
	}
	if raw != "" {
		f, err := fhir.ParseDateParam(raw)
		if err != nil {
			return SearchParams{}, &ValidationError{Msg: err.Error(), Expression: "birthdate"}
		}
		params.BirthDate = &f
	}

	if raw := values.Get("active"); raw != "" {
		switch raw {
		case "true":
			v := true
			params.Active = &v
		case "false":
			v := false
			params.Active = &v
		default:
			return SearchParams{}, &ValidationError{
				Msg:        "active must be true or false",
				Expression: "active",
			}
		}
	}

	if raw := values.Get("identifier"); raw != "" {
		tok := fhir.ParseTokenParam(raw)
		params.Identifier = &tok
	}

	return params, nil
}
