package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fhirlite/fhirlite/internal/platform/db"
	"github.com/fhirlite/fhirlite/internal/platform/fhir"
)

// querier is the subset of pgx satisfied by both the pool and an open
// transaction, so read methods run against whichever the context holds.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository is the PostgreSQL-backed Repository. Every write runs
// document upsert, history append and index rebuild inside one
// transaction; readers see pre- or post-write state, never between.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) q(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PgRepository) Upsert(ctx context.Context, doc *Patient) (*Patient, bool, error) {
	return r.write(ctx, doc, false)
}

func (r *PgRepository) Update(ctx context.Context, doc *Patient) (*Patient, error) {
	stored, _, err := r.write(ctx, doc, true)
	return stored, err
}

// write stores doc as the next version. With mustExist the target has to
// be live when the row lock is taken, which keeps the existence check
// and the replacement in the same transaction.
func (r *PgRepository) write(ctx context.Context, doc *Patient, mustExist bool) (*Patient, bool, error) {
	var created bool

	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := db.TxFromContext(ctx)

		// Lock the row so concurrent writers to the same id serialize.
		var prevStatus string
		exists := true
		err := q.QueryRow(ctx,
			`SELECT status FROM patient WHERE id = $1 FOR UPDATE`, doc.ID,
		).Scan(&prevStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("lock patient %s: %w", doc.ID, err)
		}
		if mustExist && (!exists || prevStatus != StatusCreated) {
			return ErrNotFound
		}
		created = !exists

		next, err := nextVersion(ctx, q, doc.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		doc.Meta = &fhir.Meta{VersionID: strconv.Itoa(next), LastUpdated: &now}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode patient %s: %w", doc.ID, err)
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO patient (id, resource_type, resource, status, txid, last_updated)
			VALUES ($1, $2, $3, $4, txid_current(), $5)
			ON CONFLICT (id) DO UPDATE
			SET resource = EXCLUDED.resource,
			    status = EXCLUDED.status,
			    txid = EXCLUDED.txid,
			    last_updated = EXCLUDED.last_updated`,
			doc.ID, ResourceType, body, StatusCreated, now,
		); err != nil {
			return fmt.Errorf("upsert patient %s: %w", doc.ID, err)
		}

		histStatus := StatusUpdated
		if !exists {
			histStatus = StatusCreated
		}
		if err := appendHistory(ctx, q, doc.ID, next, body, histStatus, now); err != nil {
			return err
		}

		return rebuildIndexes(ctx, q, doc)
	})
	if err != nil {
		return nil, false, err
	}
	return doc, created, nil
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Patient, error) {
	var body []byte
	err := r.q(ctx).QueryRow(ctx,
		`SELECT resource FROM patient WHERE id = $1 AND resource_type = $2 AND status = $3`,
		id, ResourceType, StatusCreated,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}

	var p Patient
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode patient %s: %w", id, err)
	}
	return &p, nil
}

func (r *PgRepository) GetVersion(ctx context.Context, id string, version int) (*HistoryRecord, error) {
	rec := HistoryRecord{ID: id, VersionID: version}
	var body []byte
	err := r.q(ctx).QueryRow(ctx,
		`SELECT resource, status, txid, tx_time FROM patient_history
		 WHERE id = $1 AND version_id = $2`,
		id, version,
	).Scan(&body, &rec.Status, &rec.TxID, &rec.TxTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s version %d: %w", id, version, err)
	}

	if err := json.Unmarshal(body, &rec.Resource); err != nil {
		return nil, fmt.Errorf("decode patient %s version %d: %w", id, version, err)
	}
	return &rec, nil
}

func (r *PgRepository) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := db.TxFromContext(ctx)

		var status string
		var body []byte
		err := q.QueryRow(ctx,
			`SELECT status, resource FROM patient WHERE id = $1 FOR UPDATE`, id,
		).Scan(&status, &body)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock patient %s: %w", id, err)
		}
		if status == StatusDeleted {
			// Repeated deletes do not record new versions.
			return nil
		}

		next, err := nextVersion(ctx, q, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var p Patient
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("decode patient %s: %w", id, err)
		}
		p.Meta = &fhir.Meta{VersionID: strconv.Itoa(next), LastUpdated: &now}
		stamped, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("encode patient %s: %w", id, err)
		}

		if _, err := q.Exec(ctx,
			`UPDATE patient
			 SET resource = $2, status = $3, txid = txid_current(), last_updated = $4
			 WHERE id = $1`,
			id, stamped, StatusDeleted, now,
		); err != nil {
			return fmt.Errorf("soft-delete patient %s: %w", id, err)
		}

		// Index rows are left in place; the status filter keeps the
		// deleted resource out of search results until the next write
		// rebuilds them.
		return appendHistory(ctx, q, id, next, stamped, StatusDeleted, now)
	})
}

func (r *PgRepository) History(ctx context.Context, id string, limit, offset int) ([]HistoryRecord, int, error) {
	q := r.q(ctx)

	var total, maxVersion int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MAX(version_id), 0)
		 FROM patient_history WHERE id = $1`, id,
	).Scan(&total, &maxVersion)
	if err != nil {
		return nil, 0, fmt.Errorf("count history for %s: %w", id, err)
	}
	if total != maxVersion {
		// Versions are assigned gaplessly from 1, so count and max
		// must agree. Disagreement means corrupted history.
		return nil, 0, fmt.Errorf("history for patient %s has version gaps: %d rows, max version %d",
			id, total, maxVersion)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := q.Query(ctx,
		`SELECT version_id, resource, status, txid, tx_time
		 FROM patient_history
		 WHERE id = $1
		 ORDER BY version_id DESC
		 LIMIT $2 OFFSET $3`,
		id, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list history for %s: %w", id, err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		rec := HistoryRecord{ID: id}
		var body []byte
		if err := rows.Scan(&rec.VersionID, &body, &rec.Status, &rec.TxID, &rec.TxTime); err != nil {
			return nil, 0, fmt.Errorf("scan history for %s: %w", id, err)
		}
		if err := json.Unmarshal(body, &rec.Resource); err != nil {
			return nil, 0, fmt.Errorf("decode history for %s version %d: %w", id, rec.VersionID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list history for %s: %w", id, err)
	}

	return records, total, nil
}

func (r *PgRepository) Search(ctx context.Context, params SearchParams) ([]Patient, int, error) {
	where, args := buildSearchWhere(params)

	countSQL := `SELECT COUNT(*) FROM patient p WHERE ` + where
	var total int
	if err := r.q(ctx).QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	pageSQL := fmt.Sprintf(
		`SELECT p.resource FROM patient p WHERE %s ORDER BY p.id ASC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	pageArgs := append(args, params.Limit, params.Offset)

	rows, err := r.q(ctx).Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var results []Patient
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		var p Patient
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, 0, fmt.Errorf("decode patient: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}

	return results, total, nil
}

// nextVersion computes the next history version for id. The MAX lookup
// runs inside the caller's transaction, after the row lock, so two
// writers cannot both read the same maximum.
func nextVersion(ctx context.Context, q querier, id string) (int, error) {
	var next int
	err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_id), 0) + 1 FROM patient_history WHERE id = $1`, id,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version for %s: %w", id, err)
	}
	return next, nil
}

func appendHistory(ctx context.Context, q querier, id string, version int, body []byte, status string, at time.Time) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO patient_history (id, version_id, resource, status, txid, tx_time)
		VALUES ($1, $2, $3, $4, txid_current(), $5)`,
		id, version, body, status, at,
	); err != nil {
		return fmt.Errorf("append history for %s version %d: %w", id, version, err)
	}
	return nil
}

// rebuildIndexes replaces every index family for the document:
// delete-then-reinsert, never patched, so the index cannot drift from
// the stored body.
func rebuildIndexes(ctx context.Context, q querier, doc *Patient) error {
	for _, table := range []string{"patient_name", "patient_identifier", "patient_telecom", "patient_address"} {
		if _, err := q.Exec(ctx,
			`DELETE FROM `+table+` WHERE patient_id = $1`, doc.ID,
		); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, doc.ID, err)
		}
	}

	for _, row := range NameRows(doc) {
		if _, err := q.Exec(ctx, `
			INSERT INTO patient_name (patient_id, family, given, name_text)
			VALUES ($1, $2, $3, $4)`,
			doc.ID, row.Family, row.Given, row.Text,
		); err != nil {
			return fmt.Errorf("index name for %s: %w", doc.ID, err)
		}
	}
	for _, row := range IdentifierRows(doc) {
		if _, err := q.Exec(ctx, `
			INSERT INTO patient_identifier (patient_id, system, value)
			VALUES ($1, $2, $3)`,
			doc.ID, row.System, row.Value,
		); err != nil {
			return fmt.Errorf("index identifier for %s: %w", doc.ID, err)
		}
	}
	for _, row := range TelecomRows(doc) {
		if _, err := q.Exec(ctx, `
			INSERT INTO patient_telecom (patient_id, system, value)
			VALUES ($1, $2, $3)`,
			doc.ID, row.System, row.Value,
		); err != nil {
			return fmt.Errorf("index telecom for %s: %w", doc.ID, err)
		}
	}
	for _, row := range AddressRows(doc) {
		if _, err := q.Exec(ctx, `
			INSERT INTO patient_address (patient_id, city, state, postal_code, country)
			VALUES ($1, $2, $3, $4, $5)`,
			doc.ID, row.City, row.State, row.PostalCode, row.Country,
		); err != nil {
			return fmt.Errorf("index address for %s: %w", doc.ID, err)
		}
	}

	return nil
}

// buildSearchWhere translates recognized parameters into a WHERE clause
// over the primary table and index families. Every filter ANDs with the
// rest; only live resources are visible.
func buildSearchWhere(params SearchParams) (string, []any) {
	where := []string{"p.resource_type = 'Patient'", "p.status = 'created'"}
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.Name != "" {
		ph := arg("%" + params.Name + "%")
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_name n
			WHERE n.patient_id = p.id
			  AND (n.family ILIKE %[1]s OR n.given ILIKE %[1]s OR n.name_text ILIKE %[1]s))`, ph))
	}

	if params.Gender != "" {
		where = append(where, fmt.Sprintf(`p.resource->>'gender' = %s`, arg(params.Gender)))
	}

	if params.BirthDate != nil {
		op := map[string]string{
			fhir.DateOpEq: "=",
			fhir.DateOpGe: ">=",
			fhir.DateOpLe: "<=",
		}[params.BirthDate.Op]
		// YYYY-MM-DD strings order the same as the dates they encode.
		where = append(where, fmt.Sprintf(`p.resource->>'birthDate' %s %s`, op, arg(params.BirthDate.Value)))
	}

	if params.Active != nil {
		where = append(where, fmt.Sprintf(`p.resource->>'active' = %s`, arg(strconv.FormatBool(*params.Active))))
	}

	if params.Identifier != nil {
		tok := params.Identifier
		switch tok.Form {
		case fhir.TokenWithSystem:
			where = append(where, fmt.Sprintf(`EXISTS (
				SELECT 1 FROM patient_identifier i
				WHERE i.patient_id = p.id AND i.system = %s AND i.value = %s)`,
				arg(tok.System), arg(tok.Value)))
		case fhir.TokenNoSystem:
			where = append(where, fmt.Sprintf(`EXISTS (
				SELECT 1 FROM patient_identifier i
				WHERE i.patient_id = p.id AND i.system = '' AND i.value = %s)`,
				arg(tok.Value)))
		default:
			where = append(where, fmt.Sprintf(`EXISTS (
				SELECT 1 FROM patient_identifier i
				WHERE i.patient_id = p.id AND i.value = %s)`,
				arg(tok.Value)))
		}
	}

	if params.Email != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_telecom t
			WHERE t.patient_id = p.id AND t.system = 'email' AND t.value = %s)`,
			arg(params.Email)))
	}

	if params.Phone != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_telecom t
			WHERE t.patient_id = p.id AND t.system = 'phone' AND t.value = %s)`,
			arg(params.Phone)))
	}

	if params.AddressCity != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_address a
			WHERE a.patient_id = p.id AND LOWER(a.city) = LOWER(%s))`,
			arg(params.AddressCity)))
	}

	clause := where[0]
	for _, w := range where[1:] {
		clause += " AND " + w
	}
	return clause, args
}
