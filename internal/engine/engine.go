package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ftops/internal/domain"
	"ftops/internal/events"
	"ftops/internal/repo"
)

// TypeRecordUpserted events carry a commercial record and its line items.
const TypeRecordUpserted = "commercial_record_upserted"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(repo.TimeFormat)
}

func (e Engine) writer() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// Kind classifies engine errors for the transport layer.
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindNotFound
	KindConflict
)

// Error is a classified failure carrying the API error code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Counts  map[string]int
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(code, msg string) error { return &Error{Kind: KindInvalid, Code: code, Message: msg} }

func notFound(code string, err error) error {
	return &Error{Kind: KindNotFound, Code: code, Message: strings.ReplaceAll(code, "_", " "), Err: err}
}

func conflict(code, msg string) error { return &Error{Kind: KindConflict, Code: code, Message: msg} }

// ErrInvalidPayload wraps every rejection of a record event payload.
var ErrInvalidPayload = errors.New("invalid_payload")

// orNotFound maps repo.ErrNotFound to a coded not-found error.
func orNotFound(err error, code string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(code, err)
	}
	return err
}

func shortHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func canonicalHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return shortHash(string(data)), nil
}

// IngestResult is the outcome of one submitted event.
type IngestResult struct {
	EventID        string `json:"eventId"`
	IdempotencyKey string `json:"idempotency_key"`
	Duplicate      bool   `json:"duplicate"`
	RecordURI      string `json:"recordUri,omitempty"`
	ProcessError   string `json:"processError,omitempty"`
}

// Ingest stores a submitted event and applies it. A resubmission with the same
// idempotency key returns the first event and changes nothing.
func (e Engine) Ingest(ctx context.Context, ev domain.TestEvent) (IngestResult, error) {
	ev.Source = strings.TrimSpace(ev.Source)
	ev.Type = strings.TrimSpace(ev.Type)
	ev.ExternalID = strings.TrimSpace(ev.ExternalID)
	switch {
	case ev.Source == "":
		return IngestResult{}, invalid("invalid_request", "source is required")
	case ev.Type == "":
		return IngestResult{}, invalid("invalid_request", "type is required")
	case ev.ExternalID == "":
		return IngestResult{}, invalid("invalid_request", "externalId is required")
	}

	var parsed parsedRecord
	if ev.Type == TypeRecordUpserted {
		var err error
		parsed, err = parseRecordPayload(ev.Source, ev.ExternalID, ev.Payload)
		if err != nil {
			return IngestResult{}, &Error{Kind: KindInvalid, Code: "invalid_payload", Message: err.Error(), Err: err}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, err
	}
	defer tx.Rollback()

	w := e.writer()
	appended, err := w.Append(ctx, tx, ev)
	if err != nil {
		return IngestResult{}, err
	}
	res := IngestResult{
		EventID:        appended.Event.ID,
		IdempotencyKey: appended.Event.IdempotencyKey,
		Duplicate:      appended.Duplicate,
		ProcessError:   appended.Event.ProcessError,
	}
	if appended.Duplicate {
		e.Logger.Debug("duplicate event", zap.String("key", res.IdempotencyKey), zap.String("external_id", ev.ExternalID))
		return res, tx.Commit()
	}

	var procErr error
	if ev.Type == TypeRecordUpserted {
		parsed.record.LastSeenAt = appended.Event.ReceivedAt
		procErr = e.Repo.UpsertRecordTx(ctx, tx, parsed.record, parsed.raw, parsed.items)
		if procErr != nil {
			return IngestResult{}, procErr
		}
		res.RecordURI = parsed.record.URI
	} else {
		procErr = fmt.Errorf("unsupported event type %q", ev.Type)
		res.ProcessError = procErr.Error()
	}
	if err := w.MarkProcessed(ctx, tx, appended.Event.ID, procErr); err != nil {
		return IngestResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return IngestResult{}, err
	}
	e.Logger.Info("event ingested",
		zap.String("source", ev.Source), zap.String("type", ev.Type), zap.String("external_id", ev.ExternalID),
		zap.String("record_uri", res.RecordURI))
	return res, nil
}

type parsedRecord struct {
	record domain.CommercialRecord
	raw    string
	items  []repo.LineItem
}

type recordPayload struct {
	Record struct {
		URI      string `json:"uri"`
		Kind     string `json:"kind"`
		Customer struct {
			Display string `json:"display"`
		} `json:"customer"`
		Commitments struct {
			QuotedDeliveryDate string `json:"quotedDeliveryDate"`
			QuotedInstallDate  string `json:"quotedInstallDate"`
		} `json:"commitments"`
	} `json:"record"`
	LineItems    []json.RawMessage `json:"line_items"`
	LineItemsAlt []json.RawMessage `json:"lineItems"`
}

type lineItemPayload struct {
	URI            string          `json:"uri"`
	Title          string          `json:"title"`
	CategoryKey    string          `json:"category_key"`
	DeliverableKey string          `json:"deliverable_key"`
	GroupKey       string          `json:"group_key"`
	Quantity       *float64        `json:"quantity"`
	Position       *int            `json:"position"`
	Config         json.RawMessage `json:"config"`
}

// parseRecordPayload reads {record, line_items}. A missing record uri is derived
// from source, kind and external id; a missing line item uri from its index.
func parseRecordPayload(source, externalID string, payload any) (parsedRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return parsedRecord{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var p recordPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return parsedRecord{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	kind := p.Record.Kind
	if kind == "" {
		kind = "record"
	}
	uri := strings.TrimSpace(p.Record.URI)
	if uri == "" {
		uri = fmt.Sprintf("%s://%s/%s", source, kind, externalID)
	}
	hash, err := canonicalHash(payload)
	if err != nil {
		return parsedRecord{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out := parsedRecord{
		record: domain.CommercialRecord{
			URI:                uri,
			Source:             source,
			Kind:               kind,
			ExternalID:         externalID,
			CustomerDisplay:    p.Record.Customer.Display,
			QuotedDeliveryDate: p.Record.Commitments.QuotedDeliveryDate,
			QuotedInstallDate:  p.Record.Commitments.QuotedInstallDate,
			SnapshotHash:       hash,
		},
		raw: string(raw),
	}
	items := p.LineItems
	if items == nil {
		items = p.LineItemsAlt
	}
	seen := map[string]bool{}
	for i, rawItem := range items {
		var li lineItemPayload
		if err := json.Unmarshal(rawItem, &li); err != nil {
			return parsedRecord{}, fmt.Errorf("%w: line item %d: %v", ErrInvalidPayload, i+1, err)
		}
		if li.URI == "" {
			li.URI = fmt.Sprintf("%s/line/%d", uri, i+1)
		}
		if seen[li.URI] {
			return parsedRecord{}, fmt.Errorf("%w: duplicate line item uri %s", ErrInvalidPayload, li.URI)
		}
		seen[li.URI] = true
		cfg := ""
		if len(li.Config) > 0 && string(li.Config) != "null" {
			cfg = string(li.Config)
		}
		out.items = append(out.items, repo.LineItem{
			URI:            li.URI,
			RecordURI:      uri,
			Title:          li.Title,
			CategoryKey:    li.CategoryKey,
			DeliverableKey: li.DeliverableKey,
			GroupKey:       li.GroupKey,
			Quantity:       li.Quantity,
			Position:       li.Position,
			ConfigJSON:     cfg,
			RawJSON:        string(rawItem),
		})
	}
	return out, nil
}

func newID() string { return uuid.NewString() }
