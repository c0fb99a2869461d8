package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AuditAction is the kind of mutation an audit event records.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionAmend  AuditAction = "amend"
)

// AuditEvent is an immutable record of one create or amend.
type AuditEvent struct {
	ID              string
	EntryID         string
	PatientID       string
	ActorID         string
	Action          AuditAction
	Timestamp       time.Time
	Reason          string
	PreviousVersion *int64
	NewVersion      int64
	Diff            Diff

	// Tamper detection: SHA-256 of the previous event of the same entry and
	// of this event.
	PreviousHash string
	Hash         string
}

// Timestamp normalizes t to the precision the audit trail persists.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Clone returns a deep copy of the event.
func (e *AuditEvent) Clone() *AuditEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.PreviousVersion != nil {
		v := *e.PreviousVersion
		c.PreviousVersion = &v
	}
	c.Diff = e.Diff.Clone()
	return &c
}

type hashPayload struct {
	ID              string      `json:"id"`
	EntryID         string      `json:"entry_id"`
	PatientID       string      `json:"patient_id"`
	ActorID         string      `json:"actor_id"`
	Action          AuditAction `json:"action"`
	Timestamp       string      `json:"timestamp"`
	Reason          string      `json:"reason"`
	PreviousVersion *int64      `json:"previous_version"`
	NewVersion      int64       `json:"new_version"`
	Diff            Diff        `json:"diff"`
	PreviousHash    string      `json:"previous_hash"`
}

// ComputeHash returns the chain hash of the event.
func (e *AuditEvent) ComputeHash() string {
	data, err := json.Marshal(hashPayload{
		ID:              e.ID,
		EntryID:         e.EntryID,
		PatientID:       e.PatientID,
		ActorID:         e.ActorID,
		Action:          e.Action,
		Timestamp:       Timestamp(e.Timestamp).Format(time.RFC3339Nano),
		Reason:          e.Reason,
		PreviousVersion: e.PreviousVersion,
		NewVersion:      e.NewVersion,
		Diff:            e.Diff,
		PreviousHash:    e.PreviousHash,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seal links the event to its predecessor and stamps its hash.
func (e *AuditEvent) Seal(previousHash string) {
	e.PreviousHash = previousHash
	e.Hash = e.ComputeHash()
}

// VerifyChain checks that events form an unbroken chain for one entry: one
// create first, consecutive versions, and matching hashes.
func VerifyChain(events []*AuditEvent) error {
	prevHash := ""
	for i, ev := range events {
		if i == 0 && (ev.Action != AuditActionCreate || ev.NewVersion != 1) {
			return ErrBrokenHashChain
		}
		if i > 0 && (ev.Action != AuditActionAmend || ev.NewVersion != events[i-1].NewVersion+1) {
			return ErrBrokenHashChain
		}
		if ev.PreviousHash != prevHash || ev.ComputeHash() != ev.Hash {
			return ErrBrokenHashChain
		}
		prevHash = ev.Hash
	}
	return nil
}

// FoldEvents reconstructs the entry fields as of atVersion by replaying the
// diffs of events, which must be ordered oldest first.
func FoldEvents(events []*AuditEvent, atVersion int64) (EntryFields, error) {
	if atVersion < 1 {
		return EntryFields{}, ErrVersionNotFound
	}
	var (
		fields  EntryFields
		reached bool
	)
	for _, ev := range events {
		if ev.NewVersion > atVersion {
			break
		}
		fields = ev.Diff.Apply(fields)
		reached = ev.NewVersion == atVersion
	}
	if !reached {
		return EntryFields{}, ErrVersionNotFound
	}
	fields.TherapyMethods = NormalizeMethods(fields.TherapyMethods)
	return fields, nil
}
