package patient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service composes the storage, versioning and search layers into the
// operations the HTTP surface exposes.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Create stores a new patient. A caller-supplied id is honored (upsert
// semantics); otherwise one is generated. Returns the stored document
// with metadata and whether it was newly created.
func (s *Service) Create(ctx context.Context, doc *Patient) (*Patient, bool, error) {
	if err := doc.Validate(); err != nil {
		return nil, false, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	} else if _, err := uuid.Parse(doc.ID); err != nil {
		return nil, false, &ValidationError{
			Msg:        fmt.Sprintf("id %q is not a valid UUID", doc.ID),
			Expression: "Patient.id",
		}
	}

	stored, created, err := s.repo.Upsert(ctx, doc)
	if err != nil {
		return nil, false, err
	}

	s.log.Info().
		Str("patient_id", stored.ID).
		Str("version", stored.Meta.VersionID).
		Bool("created", created).
		Msg("patient stored")
	return stored, created, nil
}

// Update replaces the document stored under id. The target must already
// exist (soft-deleted counts as absent), and a body-supplied id must
// match the target.
func (s *Service) Update(ctx context.Context, id string, doc *Patient) (*Patient, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if doc.ID != "" && doc.ID != id {
		return nil, &ValidationError{
			Msg:        "resource id does not match the request target",
			Expression: "Patient.id",
		}
	}
	doc.ID = id

	stored, err := s.repo.Update(ctx, doc)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("patient_id", stored.ID).
		Str("version", stored.Meta.VersionID).
		Msg("patient updated")
	return stored, nil
}

// Get returns the current document for id.
func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

// GetVersion returns one stored version of the document.
func (s *Service) GetVersion(ctx context.Context, id string, version int) (*HistoryRecord, error) {
	return s.repo.GetVersion(ctx, id, version)
}

// Delete soft-deletes the document. Deleting an already-deleted
// resource succeeds without recording a new version.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("patient_id", id).Msg("patient deleted")
	return nil
}

// History lists stored versions newest-first with the total count.
func (s *Service) History(ctx context.Context, id string, limit, offset int) ([]HistoryRecord, int, error) {
	return s.repo.History(ctx, id, limit, offset)
}

// Search runs a parameterized search. Unrecognized parameters are
// ignored; malformed values on recognized parameters are validation
// errors.
func (s *Service) Search(ctx context.Context, values url.Values, limit, offset int) ([]Patient, int, error) {
	params, err := ParseSearchParams(values, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, params)
}
