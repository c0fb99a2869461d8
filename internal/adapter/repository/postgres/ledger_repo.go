package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

const ledgerColumns = `patient_id, first_visit_date, entry_count, created_at, updated_at`

const (
	selectLedgerSQL = `SELECT ` + ledgerColumns + ` FROM ledgers WHERE patient_id = $1`

	// LEAST keeps the first visit date correct when entries are created
	// concurrently or out of date order.
	recordEntrySQL = `
		INSERT INTO ledgers (` + ledgerColumns + `)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (patient_id) DO UPDATE SET
			first_visit_date = LEAST(ledgers.first_visit_date, EXCLUDED.first_visit_date),
			entry_count = ledgers.entry_count + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + ledgerColumns
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Get retrieves the patient's ledger header.
func (r *LedgerRepository) Get(ctx context.Context, patientID string) (*domain.Ledger, error) {
	return scanLedger(r.db.QueryRow(ctx, selectLedgerSQL, patientID))
}

// RecordEntry upserts the ledger for a new entry dated date.
func (r *LedgerRepository) RecordEntry(ctx context.Context, tx usecase.Transaction, patientID string, date, now time.Time) (*domain.Ledger, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return scanLedger(q.QueryRow(ctx, recordEntrySQL, patientID, dateToPgDate(date), timeToPgTimestamptz(now)))
}

func scanLedger(row pgx.Row) (*domain.Ledger, error) {
	var (
		l         domain.Ledger
		firstDate pgtype.Date
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)

	err := row.Scan(&l.PatientID, &firstDate, &l.EntryCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLedgerNotFound
		}
		return nil, domain.StorageError("scan ledger", err)
	}

	l.FirstVisitDate = domain.NormalizeDate(firstDate.Time)
	l.CreatedAt = domain.Timestamp(createdAt.Time)
	l.UpdatedAt = domain.Timestamp(updatedAt.Time)
	return &l, nil
}
