package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

const entryColumns = `id, patient_id, entry_date, content, therapy_methods, measurements, version, created_at, last_amended_at`

const (
	insertEntrySQL = `
		INSERT INTO entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (patient_id, id) DO NOTHING`

	// The version guard makes a stale write a no-op that the caller reports
	// as a conflict.
	updateEntrySQL = `
		UPDATE entries
		SET content = $3, therapy_methods = $4, measurements = $5, version = $6, last_amended_at = $7
		WHERE patient_id = $1 AND id = $2 AND version < $6`

	selectEntrySQL = `SELECT ` + entryColumns + ` FROM entries WHERE patient_id = $1 AND id = $2`

	listEntriesSQL = `SELECT ` + entryColumns + ` FROM entries WHERE patient_id = $1
		ORDER BY entry_date, created_at, id`
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	db DB
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Put inserts a version 1 entry or advances a stored one.
func (r *EntryRepository) Put(ctx context.Context, tx usecase.Transaction, entry *domain.TreatmentEntry) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	measurements, err := encodeMeasurements(entry.Measurements)
	if err != nil {
		return err
	}
	methods := domain.NormalizeMethods(entry.TherapyMethods)

	if entry.Version == 1 {
		tag, err := q.Exec(ctx, insertEntrySQL,
			entry.ID,
			entry.PatientID,
			dateToPgDate(entry.Date),
			entry.Content,
			methods,
			measurements,
			entry.Version,
			timeToPgTimestamptz(entry.CreatedAt),
			timePtrToPgTimestamptz(entry.LastAmendedAt),
		)
		if err != nil {
			return domain.StorageError("insert entry", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: entry %s", domain.ErrDuplicateEntry, entry.ID)
		}
		return nil
	}

	tag, err := q.Exec(ctx, updateEntrySQL,
		entry.PatientID,
		entry.ID,
		entry.Content,
		methods,
		measurements,
		entry.Version,
		timePtrToPgTimestamptz(entry.LastAmendedAt),
	)
	if err != nil {
		return domain.StorageError("update entry", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s did not advance to version %d",
			domain.ErrVersionConflict, entry.ID, entry.Version)
	}
	return nil
}

// Get retrieves an entry by patient and id.
func (r *EntryRepository) Get(ctx context.Context, patientID, entryID string) (*domain.TreatmentEntry, error) {
	return scanEntryRow(r.db.QueryRow(ctx, selectEntrySQL, patientID, entryID))
}

// GetForUpdate retrieves an entry with a FOR UPDATE lock.
func (r *EntryRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, patientID, entryID string) (*domain.TreatmentEntry, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return scanEntryRow(q.QueryRow(ctx, selectEntrySQL+` FOR UPDATE`, patientID, entryID))
}

// ListByPatient runs one query per range over the sequence.
func (r *EntryRepository) ListByPatient(ctx context.Context, patientID string) iter.Seq2[*domain.TreatmentEntry, error] {
	return func(yield func(*domain.TreatmentEntry, error) bool) {
		rows, err := r.db.Query(ctx, listEntriesSQL, patientID)
		if err != nil {
			yield(nil, domain.StorageError("list entries", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, domain.StorageError("list entries", err))
		}
	}
}

func scanEntryRow(row pgx.Row) (*domain.TreatmentEntry, error) {
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	return entry, err
}

func scanEntry(row pgx.Row) (*domain.TreatmentEntry, error) {
	var (
		entry         domain.TreatmentEntry
		date          pgtype.Date
		measurements  []byte
		createdAt     pgtype.Timestamptz
		lastAmendedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&entry.ID,
		&entry.PatientID,
		&date,
		&entry.Content,
		&entry.TherapyMethods,
		&measurements,
		&entry.Version,
		&createdAt,
		&lastAmendedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, domain.StorageError("scan entry", err)
	}

	entry.Date = domain.NormalizeDate(date.Time)
	entry.TherapyMethods = domain.NormalizeMethods(entry.TherapyMethods)
	entry.CreatedAt = domain.Timestamp(createdAt.Time)
	if lastAmendedAt.Valid {
		t := domain.Timestamp(lastAmendedAt.Time)
		entry.LastAmendedAt = &t
	}
	if entry.Measurements, err = decodeMeasurements(measurements); err != nil {
		return nil, domain.StorageError("decode measurements", err)
	}

	return &entry, nil
}

// Measurements are stored as a JSON object of decimal strings so no
// precision is lost in transit.
func encodeMeasurements(m map[string]decimal.Decimal) ([]byte, error) {
	out := make(map[string]string, len(m))
	for name, v := range m {
		out[name] = v.String()
	}
	return json.Marshal(out)
}

func decodeMeasurements(data []byte) (map[string]decimal.Decimal, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for name, s := range raw {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("measurement %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func dateToPgDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: domain.NormalizeDate(t), Valid: true}
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timePtrToPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return timeToPgTimestamptz(*t)
}
