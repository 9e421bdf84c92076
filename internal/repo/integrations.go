package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"ftops/internal/domain"
)

// SecretsKeyID returns a stable identifier for a secrets set. Values never leave the store;
// only this digest is exposed.
func SecretsKeyID(secrets map[string]string) string {
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(secrets[k])))
		h.Write([]byte{0})
	}
	return "sk_" + hex.EncodeToString(h.Sum(nil))[:16]
}

const integrationColumns = `id,workspace_id,provider,environment,external_account_id,COALESCE(display_name,''),secrets_key_id,is_active,created_at,updated_at`

func scanIntegration(row interface{ Scan(...any) error }) (domain.Integration, error) {
	var in domain.Integration
	var active int
	err := row.Scan(&in.ID, &in.WorkspaceID, &in.Provider, &in.Environment, &in.ExternalAccountID, &in.DisplayName, &in.SecretsKeyID, &active, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	in.IsActive = active != 0
	return in, err
}

// ListIntegrations returns integrations, scoped to a workspace when workspaceID is set.
func (r Repo) ListIntegrations(ctx context.Context, workspaceID string) ([]domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Integration{}
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) GetIntegration(ctx context.Context, id string) (domain.Integration, error) {
	return scanIntegration(r.DB.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id=?`, id))
}

// IntegrationByAccount finds the integration receiving webhooks for one provider account.
func (r Repo) IntegrationByAccount(ctx context.Context, provider, externalAccountID string) (domain.Integration, error) {
	return scanIntegration(r.DB.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE provider=? AND external_account_id=? ORDER BY is_active DESC, created_at LIMIT 1`,
		provider, externalAccountID))
}

// InsertIntegration stores an integration with its secrets. SecretsKeyID is derived here.
func (r Repo) InsertIntegration(ctx context.Context, in domain.Integration, secrets map[string]string) (domain.Integration, error) {
	if in.ID == "" {
		return in, errors.New("id required")
	}
	data, err := json.Marshal(secrets)
	if err != nil {
		return in, err
	}
	in.SecretsKeyID = SecretsKeyID(secrets)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO integrations(id,workspace_id,provider,environment,external_account_id,display_name,secrets_key_id,secrets_json,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.WorkspaceID, in.Provider, in.Environment, in.ExternalAccountID, nullable(in.DisplayName), in.SecretsKeyID, string(data),
		boolInt(bool(in.IsActive)), in.CreatedAt, in.UpdatedAt)
	return in, err
}

// UpdateIntegration writes display name and active flag, and replaces the secrets when non-nil.
func (r Repo) UpdateIntegration(ctx context.Context, in domain.Integration, secrets map[string]string) error {
	if secrets == nil {
		return affectedOrNotFound(r.DB.ExecContext(ctx, `UPDATE integrations SET display_name=?, is_active=?, updated_at=? WHERE id=?`,
			nullable(in.DisplayName), boolInt(bool(in.IsActive)), in.UpdatedAt, in.ID))
	}
	data, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	return affectedOrNotFound(r.DB.ExecContext(ctx, `UPDATE integrations SET display_name=?, is_active=?, secrets_json=?, secrets_key_id=?, updated_at=? WHERE id=?`,
		nullable(in.DisplayName), boolInt(bool(in.IsActive)), string(data), SecretsKeyID(secrets), in.UpdatedAt, in.ID))
}

func (r Repo) DeleteIntegration(ctx context.Context, id string) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `DELETE FROM integrations WHERE id=?`, id))
}

// IntegrationSecrets returns the stored secrets for webhook verification.
func (r Repo) IntegrationSecrets(ctx context.Context, id string) (map[string]string, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT secrets_json FROM integrations WHERE id=?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	secrets := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// Ingest requests

// StoredIngest is an ingest request row with its captured headers and body.
type StoredIngest struct {
	domain.IngestRequest
	HeadersJSON string
	BodyText    string
}

func (r Repo) InsertIngestRequest(ctx context.Context, in StoredIngest) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO ingest_requests(id,provider,received_at,signature_verified,verify_error,workspace_id,environment,external_account_id,integration_id,topic,shop_domain,webhook_id,headers_json,body_text) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.Provider, in.ReceivedAt, boolInt(bool(in.SignatureVerified)), nullable(in.VerifyError), nullable(in.WorkspaceID),
		nullable(in.Environment), nullable(in.ExternalAccountID), nullable(in.IntegrationID), nullable(in.Topic),
		nullable(in.ShopDomain), nullable(in.WebhookID), nullable(in.HeadersJSON), nullable(in.BodyText))
	return err
}

const ingestColumns = `i.id,i.provider,i.received_at,i.signature_verified,COALESCE(i.verify_error,''),COALESCE(i.workspace_id,''),COALESCE(i.environment,''),COALESCE(i.external_account_id,''),COALESCE(i.integration_id,''),COALESCE(n.display_name,''),COALESCE(i.topic,''),COALESCE(i.shop_domain,''),COALESCE(i.webhook_id,''),COALESCE(i.headers_json,''),COALESCE(i.body_text,'')`

func scanIngest(row interface{ Scan(...any) error }) (StoredIngest, error) {
	var s StoredIngest
	var verified int
	err := row.Scan(&s.ID, &s.Provider, &s.ReceivedAt, &verified, &s.VerifyError, &s.WorkspaceID, &s.Environment, &s.ExternalAccountID,
		&s.IntegrationID, &s.IntegrationDisplayName, &s.Topic, &s.ShopDomain, &s.WebhookID, &s.HeadersJSON, &s.BodyText)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.SignatureVerified = verified != 0
	return s, err
}

// ListIngestRequests returns the newest requests matching f, without headers or body.
func (r Repo) ListIngestRequests(ctx context.Context, f domain.IngestFilter) ([]domain.IngestRequest, error) {
	query := `SELECT ` + ingestColumns + ` FROM ingest_requests i LEFT JOIN integrations n ON n.id = i.integration_id`
	var (
		where []string
		args  []any
	)
	if f.Provider != "" {
		where = append(where, "i.provider=?")
		args = append(args, f.Provider)
	}
	if f.WorkspaceID != "" {
		where = append(where, "i.workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.Environment != "" {
		where = append(where, "i.environment=?")
		args = append(args, f.Environment)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY i.received_at DESC, i.rowid DESC LIMIT ?`
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.IngestRequest{}
	for rows.Next() {
		s, err := scanIngest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s.IngestRequest)
	}
	return res, rows.Err()
}

func (r Repo) GetIngestRequest(ctx context.Context, id string) (StoredIngest, error) {
	return scanIngest(r.DB.QueryRowContext(ctx, `SELECT `+ingestColumns+` FROM ingest_requests i LEFT JOIN integrations n ON n.id = i.integration_id WHERE i.id=?`, id))
}
