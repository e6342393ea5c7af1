package patient

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fhirlite/fhirlite/internal/platform/fhir"
)

// MemRepository is an in-memory Repository with the same observable
// semantics as the PostgreSQL one. It backs tests and local tooling
// that should not need a database.
type MemRepository struct {
	mu      sync.Mutex
	current map[string]*memRecord
	history map[string][]HistoryRecord
	txid    int64
}

type memRecord struct {
	doc    *Patient
	status string
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		current: make(map[string]*memRecord),
		history: make(map[string][]HistoryRecord),
	}
}

func (r *MemRepository) Upsert(ctx context.Context, doc *Patient) (*Patient, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.current[doc.ID]
	next := len(r.history[doc.ID]) + 1

	now := time.Now().UTC()
	doc.Meta = &fhir.Meta{VersionID: strconv.Itoa(next), LastUpdated: &now}

	stored := doc.Clone()
	r.current[doc.ID] = &memRecord{doc: stored, status: StatusCreated}

	histStatus := StatusUpdated
	if !exists {
		histStatus = StatusCreated
	}
	r.appendHistoryLocked(doc.ID, next, stored, histStatus, now)

	return doc, !exists, nil
}

func (r *MemRepository) Update(ctx context.Context, doc *Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.current[doc.ID]
	if !ok || rec.status != StatusCreated {
		return nil, ErrNotFound
	}

	next := len(r.history[doc.ID]) + 1
	now := time.Now().UTC()
	doc.Meta = &fhir.Meta{VersionID: strconv.Itoa(next), LastUpdated: &now}

	stored := doc.Clone()
	r.current[doc.ID] = &memRecord{doc: stored, status: StatusCreated}
	r.appendHistoryLocked(doc.ID, next, stored, StatusUpdated, now)

	return doc, nil
}

func (r *MemRepository) Get(ctx context.Context, id string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.current[id]
	if !ok || rec.status != StatusCreated {
		return nil, ErrNotFound
	}
	return rec.doc.Clone(), nil
}

func (r *MemRepository) GetVersion(ctx context.Context, id string, version int) (*HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.history[id] {
		if h.VersionID == version {
			out := h
			out.Resource = *h.Resource.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.current[id]
	if !ok {
		return ErrNotFound
	}
	if rec.status == StatusDeleted {
		return nil
	}

	next := len(r.history[id]) + 1
	now := time.Now().UTC()
	rec.doc.Meta = &fhir.Meta{VersionID: strconv.Itoa(next), LastUpdated: &now}
	rec.status = StatusDeleted

	r.appendHistoryLocked(id, next, rec.doc, StatusDeleted, now)
	return nil
}

func (r *MemRepository) History(ctx context.Context, id string, limit, offset int) ([]HistoryRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.history[id]
	total := len(all)
	if total == 0 {
		return nil, 0, nil
	}

	// Stored oldest-first; serve newest-first.
	desc := make([]HistoryRecord, total)
	for i, h := range all {
		out := h
		out.Resource = *h.Resource.Clone()
		desc[total-1-i] = out
	}

	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return desc[offset:end], total, nil
}

func (r *MemRepository) Search(ctx context.Context, params SearchParams) ([]Patient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, rec := range r.current {
		if rec.status != StatusCreated {
			continue
		}
		if matches(rec.doc, params) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	total := len(ids)
	if params.Offset >= total {
		return nil, total, nil
	}
	end := params.Offset + params.Limit
	if end > total {
		end = total
	}

	var results []Patient
	for _, id := range ids[params.Offset:end] {
		results = append(results, *r.current[id].doc.Clone())
	}
	return results, total, nil
}

func (r *MemRepository) appendHistoryLocked(id string, version int, doc *Patient, status string, at time.Time) {
	r.txid++
	r.history[id] = append(r.history[id], HistoryRecord{
		ID:        id,
		VersionID: version,
		Status:    status,
		Resource:  *doc.Clone(),
		TxID:      r.txid,
		TxTime:    at,
	})
}

func matches(p *Patient, params SearchParams) bool {
	if params.Name != "" && !nameContains(p, params.Name) {
		return false
	}
	if params.Gender != "" && p.Gender != params.Gender {
		return false
	}
	if params.BirthDate != nil {
		f := params.BirthDate
		switch f.Op {
		case fhir.DateOpGe:
			if !(p.BirthDate >= f.Value) {
				return false
			}
		case fhir.DateOpLe:
			if !(p.BirthDate <= f.Value) {
				return false
			}
		default:
			if p.BirthDate != f.Value {
				return false
			}
		}
	}
	if params.Active != nil {
		if p.Active == nil || *p.Active != *params.Active {
			return false
		}
	}
	if params.Identifier != nil && !identifierMatches(p, params.Identifier) {
		return false
	}
	if params.Email != "" && !telecomMatches(p, "email", params.Email) {
		return false
	}
	if params.Phone != "" && !telecomMatches(p, "phone", params.Phone) {
		return false
	}
	if params.AddressCity != "" && !cityMatches(p, params.AddressCity) {
		return false
	}
	return true
}

func nameContains(p *Patient, needle string) bool {
	needle = strings.ToLower(needle)
	for _, row := range NameRows(p) {
		if strings.Contains(strings.ToLower(row.Family), needle) ||
			strings.Contains(strings.ToLower(row.Given), needle) ||
			strings.Contains(strings.ToLower(row.Text), needle) {
			return true
		}
	}
	return false
}

func identifierMatches(p *Patient, tok *fhir.ParsedToken) bool {
	for _, row := range IdentifierRows(p) {
		if row.Value != tok.Value {
			continue
		}
		switch tok.Form {
		case fhir.TokenWithSystem:
			if row.System == tok.System {
				return true
			}
		case fhir.TokenNoSystem:
			if row.System == "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func telecomMatches(p *Patient, system, value string) bool {
	for _, row := range TelecomRows(p) {
		if row.System == system && row.Value == value {
			return true
		}
	}
	return false
}

func cityMatches(p *Patient, city string) bool {
	for _, row := range AddressRows(p) {
		if strings.EqualFold(row.City, city) {
			return true
		}
	}
	return false
}
