package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ftops/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// TimeFormat is used for every stored timestamp; it sorts lexically.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// DefaultWorkspaceSlug names the workspace seeded on start; it cannot be deleted.
const DefaultWorkspaceSlug = "default"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Workspaces

const workspaceColumns = `id,slug,name,created_at,updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (domain.Workspace, error) {
	var w domain.Workspace
	err := row.Scan(&w.ID, &w.Slug, &w.Name, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Workspace{}
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	return scanWorkspace(r.DB.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id=?`, id))
}

func (r Repo) WorkspaceBySlug(ctx context.Context, slug string) (domain.Workspace, error) {
	return scanWorkspace(r.DB.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE slug=?`, slug))
}

func (r Repo) InsertWorkspace(ctx context.Context, w domain.Workspace) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO workspaces(id,slug,name,created_at,updated_at) VALUES (?,?,?,?,?)`,
		w.ID, w.Slug, w.Name, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) UpdateWorkspace(ctx context.Context, w domain.Workspace) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `UPDATE workspaces SET slug=?, name=?, updated_at=? WHERE id=?`,
		w.Slug, w.Name, w.UpdatedAt, w.ID))
}

func (r Repo) DeleteWorkspace(ctx context.Context, id string) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `DELETE FROM workspaces WHERE id=?`, id))
}

// WorkspaceCounts returns the non-zero counts of rows that keep a workspace from being deleted.
func (r Repo) WorkspaceCounts(ctx context.Context, id string) (map[string]int, error) {
	counts := map[string]int{}
	for name, table := range map[string]string{"integrations": "integrations", "projects": "projects", "templates": "templates"} {
		var n int
		if err := r.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE workspace_id=?`, table), id).Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			counts[name] = n
		}
	}
	return counts, nil
}

// Commercial records

// LineItem is a stored line item row.
type LineItem struct {
	URI            string
	RecordURI      string
	Title          string
	CategoryKey    string
	DeliverableKey string
	GroupKey       string
	Quantity       *float64
	Position       *int
	ConfigJSON     string
	RawJSON        string
}

// Config decodes ConfigJSON. An empty column yields a nil map.
func (li LineItem) Config() (map[string]any, error) {
	if strings.TrimSpace(li.ConfigJSON) == "" {
		return nil, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(li.ConfigJSON), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpsertRecordTx replaces a record and its full set of line items.
func (r Repo) UpsertRecordTx(ctx context.Context, tx *sql.Tx, rec domain.CommercialRecord, rawJSON string, items []LineItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO commercial_records(uri,source,kind,external_id,customer_display,quoted_delivery_date,quoted_install_date,snapshot_hash,raw_json,last_seen_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(uri) DO UPDATE SET source=excluded.source, kind=excluded.kind, external_id=excluded.external_id,
customer_display=excluded.customer_display, quoted_delivery_date=excluded.quoted_delivery_date,
quoted_install_date=excluded.quoted_install_date, snapshot_hash=excluded.snapshot_hash,
raw_json=excluded.raw_json, last_seen_at=excluded.last_seen_at`,
		rec.URI, rec.Source, rec.Kind, rec.ExternalID, nullable(rec.CustomerDisplay), nullable(rec.QuotedDeliveryDate),
		nullable(rec.QuotedInstallDate), rec.SnapshotHash, rawJSON, rec.LastSeenAt)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM commercial_line_items WHERE record_uri=?`, rec.URI); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}
	for _, li := range items {
		_, err := tx.ExecContext(ctx, `INSERT INTO commercial_line_items(uri,record_uri,title,category_key,deliverable_key,group_key,quantity,position,config_json,raw_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			li.URI, rec.URI, nullable(li.Title), nullable(li.CategoryKey), nullable(li.DeliverableKey), nullable(li.GroupKey),
			nullableFloatPtr(li.Quantity), nullableIntPtr(li.Position), nullable(li.ConfigJSON), li.RawJSON)
		if err != nil {
			return fmt.Errorf("insert line item %s: %w", li.URI, err)
		}
	}
	return nil
}

const recordColumns = `uri,source,kind,external_id,COALESCE(customer_display,''),COALESCE(quoted_delivery_date,''),COALESCE(quoted_install_date,''),last_seen_at,snapshot_hash`

func scanRecord(row interface{ Scan(...any) error }) (domain.CommercialRecord, error) {
	var c domain.CommercialRecord
	err := row.Scan(&c.URI, &c.Source, &c.Kind, &c.ExternalID, &c.CustomerDisplay, &c.QuotedDeliveryDate, &c.QuotedInstallDate, &c.LastSeenAt, &c.SnapshotHash)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetRecord(ctx context.Context, uri string) (domain.CommercialRecord, error) {
	return scanRecord(r.DB.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM commercial_records WHERE uri=?`, uri))
}

// ListRecords pages records by most recently seen. query matches uri, external id or customer.
func (r Repo) ListRecords(ctx context.Context, query string, limit, offset int) ([]domain.CommercialRecord, error) {
	sqlText := `SELECT ` + recordColumns + ` FROM commercial_records`
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		sqlText += ` WHERE lower(uri) LIKE ? OR lower(external_id) LIKE ? OR lower(COALESCE(customer_display,'')) LIKE ?`
		args = append(args, like, like, like)
	}
	sqlText += ` ORDER BY last_seen_at DESC, uri LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := r.DB.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.CommercialRecord{}
	for rows.Next() {
		c, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// LineItems returns a record's line items by position, then uri.
func (r Repo) LineItems(ctx context.Context, recordURI string) ([]LineItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT uri,record_uri,COALESCE(title,''),COALESCE(category_key,''),COALESCE(deliverable_key,''),COALESCE(group_key,''),quantity,position,COALESCE(config_json,''),raw_json
FROM commercial_line_items WHERE record_uri=? ORDER BY position IS NULL, position, uri`, recordURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LineItem
	for rows.Next() {
		var li LineItem
		var qty sql.NullFloat64
		var pos sql.NullInt64
		if err := rows.Scan(&li.URI, &li.RecordURI, &li.Title, &li.CategoryKey, &li.DeliverableKey, &li.GroupKey, &qty, &pos, &li.ConfigJSON, &li.RawJSON); err != nil {
			return nil, err
		}
		if qty.Valid {
			q := qty.Float64
			li.Quantity = &q
		}
		li.Position = intPtr(pos)
		res = append(res, li)
	}
	return res, rows.Err()
}

// Events

// StoredEvent is an ingested event row with its payload.
type StoredEvent struct {
	domain.Event
	IdempotencyKey string
	PayloadJSON    string
}

const eventColumns = `id,source,type,external_id,idempotency_key,payload_json,received_at,COALESCE(processed_at,''),COALESCE(process_error,'')`

func scanEvent(row interface{ Scan(...any) error }) (StoredEvent, error) {
	var ev StoredEvent
	err := row.Scan(&ev.ID, &ev.Source, &ev.Type, &ev.ExternalID, &ev.IdempotencyKey, &ev.PayloadJSON, &ev.ReceivedAt, &ev.ProcessedAt, &ev.ProcessError)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	return ev, err
}

func (r Repo) InsertEventTx(ctx context.Context, tx *sql.Tx, ev StoredEvent) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO events(id,source,type,external_id,idempotency_key,payload_json,received_at,processed_at,process_error) VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Source, ev.Type, ev.ExternalID, ev.IdempotencyKey, ev.PayloadJSON, ev.ReceivedAt, nullable(ev.ProcessedAt), nullable(ev.ProcessError))
	return err
}

// EventByKey returns the first event stored under an idempotency key.
func (r Repo) EventByKey(ctx context.Context, tx *sql.Tx, key string) (StoredEvent, error) {
	return scanEvent(r.q(tx).QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE idempotency_key=? ORDER BY received_at LIMIT 1`, key))
}

// ListEvents returns the newest events first.
func (r Repo) ListEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []StoredEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
