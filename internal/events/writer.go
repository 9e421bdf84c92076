package events

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ftops/internal/domain"
	"ftops/internal/repo"
)

// Writer appends ingested events, deduplicating on the idempotency key.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Key hashes source, type, external id and the canonical payload encoding.
// encoding/json sorts map keys, so equal documents hash equally.
func Key(source, typ, externalID string, payload any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	h := sha256.New()
	for _, part := range []string{source, typ, externalID} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Appended is the outcome of Append.
type Appended struct {
	Event     repo.StoredEvent
	Duplicate bool
}

// Append stores ev unless an event with the same key exists, in which case the stored one is returned.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, ev domain.TestEvent) (Appended, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	key, err := Key(ev.Source, ev.Type, ev.ExternalID, ev.Payload)
	if err != nil {
		return Appended{}, err
	}
	r := repo.Repo{DB: w.DB}
	existing, err := r.EventByKey(ctx, tx, key)
	if err == nil {
		return Appended{Event: existing, Duplicate: true}, nil
	}
	if err != repo.ErrNotFound {
		return Appended{}, err
	}
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Appended{}, fmt.Errorf("marshal event payload: %w", err)
	}
	stored := repo.StoredEvent{
		Event: domain.Event{
			ID:         uuid.NewString(),
			Source:     ev.Source,
			Type:       ev.Type,
			ExternalID: ev.ExternalID,
			ReceivedAt: w.Now().UTC().Format(repo.TimeFormat),
		},
		IdempotencyKey: key,
		PayloadJSON:    string(data),
	}
	if err := r.InsertEventTx(ctx, tx, stored); err != nil {
		return Appended{}, fmt.Errorf("insert event: %w", err)
	}
	return Appended{Event: stored}, nil
}

// MarkProcessed records the processing outcome. A nil procErr clears the error column.
func (w Writer) MarkProcessed(ctx context.Context, tx *sql.Tx, id string, procErr error) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	var msg any
	if procErr != nil {
		msg = procErr.Error()
	}
	_, err := tx.ExecContext(ctx, `UPDATE events SET processed_at=?, process_error=? WHERE id=?`,
		w.Now().UTC().Format(repo.TimeFormat), msg, id)
	return err
}
