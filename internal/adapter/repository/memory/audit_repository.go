package memory

import (
	"context"
	"fmt"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository. Events are never
// updated or removed.
type AuditRepository struct {
	store *Store
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// Append stages the event.
func (r *AuditRepository) Append(ctx context.Context, tx usecase.Transaction, event *domain.AuditEvent) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := event.Clone()
	return t.stage(op{
		check: func(s *Store) error {
			for _, ev := range s.events[staged.EntryID] {
				if ev.ID == staged.ID {
					return fmt.Errorf("%w: audit event %s", domain.ErrDuplicateEntry, staged.ID)
				}
			}
			return nil
		},
		apply: func(s *Store) {
			s.events[staged.EntryID] = append(s.events[staged.EntryID], staged)
		},
	})
}

// History returns copies of the entry's events, oldest first.
func (r *AuditRepository) History(ctx context.Context, entryID string) ([]*domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := r.store.events[entryID]
	out := make([]*domain.AuditEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Clone())
	}
	return out, nil
}

// Last returns the newest committed event of the entry, or nil.
func (r *AuditRepository) Last(ctx context.Context, tx usecase.Transaction, entryID string) (*domain.AuditEvent, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := r.store.events[entryID]
	if len(events) == 0 {
		return nil, nil
	}
	return events[len(events)-1].Clone(), nil
}
