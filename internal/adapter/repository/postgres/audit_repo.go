package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

const auditColumns = `id, entry_id, patient_id, actor_id, action, occurred_at, reason,
	previous_version, new_version, diff, previous_hash, hash`

const (
	insertAuditSQL = `INSERT INTO audit_events (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	historySQL = `SELECT ` + auditColumns + ` FROM audit_events
		WHERE entry_id = $1 ORDER BY new_version`

	lastEventSQL = `SELECT ` + auditColumns + ` FROM audit_events
		WHERE entry_id = $1 ORDER BY new_version DESC LIMIT 1`
)

// AuditRepository implements usecase.AuditRepository. The table is append
// only; nothing here updates or deletes rows.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts the event inside tx.
func (r *AuditRepository) Append(ctx context.Context, tx usecase.Transaction, event *domain.AuditEvent) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	diff, err := json.Marshal(event.Diff)
	if err != nil {
		return fmt.Errorf("encode audit diff: %w", err)
	}

	var previous pgtype.Int8
	if event.PreviousVersion != nil {
		previous = pgtype.Int8{Int64: *event.PreviousVersion, Valid: true}
	}

	_, err = q.Exec(ctx, insertAuditSQL,
		event.ID,
		event.EntryID,
		event.PatientID,
		event.ActorID,
		string(event.Action),
		timeToPgTimestamptz(domain.Timestamp(event.Timestamp)),
		event.Reason,
		previous,
		event.NewVersion,
		diff,
		event.PreviousHash,
		event.Hash,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: audit event %s", domain.ErrDuplicateEntry, event.ID)
	}
	if err != nil {
		return domain.StorageError("append audit event", err)
	}
	return nil
}

// History returns the entry's events oldest first.
func (r *AuditRepository) History(ctx context.Context, entryID string) ([]*domain.AuditEvent, error) {
	rows, err := r.db.Query(ctx, historySQL, entryID)
	if err != nil {
		return nil, domain.StorageError("query audit history", err)
	}
	defer rows.Close()

	events := make([]*domain.AuditEvent, 0)
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("query audit history", err)
	}
	return events, nil
}

// Last returns the newest event of the entry as seen by tx, or nil.
func (r *AuditRepository) Last(ctx context.Context, tx usecase.Transaction, entryID string) (*domain.AuditEvent, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	ev, err := scanAuditEvent(q.QueryRow(ctx, lastEventSQL, entryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func scanAuditEvent(row pgx.Row) (*domain.AuditEvent, error) {
	var (
		ev         domain.AuditEvent
		action     string
		occurredAt pgtype.Timestamptz
		previous   pgtype.Int8
		diff       []byte
	)

	err := row.Scan(
		&ev.ID,
		&ev.EntryID,
		&ev.PatientID,
		&ev.ActorID,
		&action,
		&occurredAt,
		&ev.Reason,
		&previous,
		&ev.NewVersion,
		&diff,
		&ev.PreviousHash,
		&ev.Hash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, domain.StorageError("scan audit event", err)
	}

	ev.Action = domain.AuditAction(action)
	ev.Timestamp = domain.Timestamp(occurredAt.Time)
	if previous.Valid {
		v := previous.Int64
		ev.PreviousVersion = &v
	}
	if len(diff) > 0 {
		if err := json.Unmarshal(diff, &ev.Diff); err != nil {
			return nil, domain.StorageError("decode audit diff", err)
		}
	}
	return &ev, nil
}
