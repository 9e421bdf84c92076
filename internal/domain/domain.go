package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Flag is a boolean that also accepts the 0/1 integers the ops API emits.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "null", "":
		*f = false
		return nil
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	if len(b) > 1 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid flag value %s", string(b))
	}
	*f = n != 0
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

const (
	StatusTodo     = "todo"
	StatusDoing    = "doing"
	StatusBlocked  = "blocked"
	StatusDone     = "done"
	StatusCanceled = "canceled"
)

// TaskStatuses lists the task status enum in display order.
var TaskStatuses = []string{StatusTodo, StatusDoing, StatusBlocked, StatusDone, StatusCanceled}

// ValidTaskStatus reports whether s is one of TaskStatuses.
func ValidTaskStatus(s string) bool {
	for _, st := range TaskStatuses {
		if st == s {
			return true
		}
	}
	return false
}

const (
	ScopeProject     = "project"
	ScopeShared      = "shared"
	ScopeDeliverable = "deliverable"
)

type Project struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Status              string `json:"status"`
	CommercialRecordURI string `json:"commercial_record_uri,omitempty"`
	WorkspaceID         string `json:"workspace_id,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
	UpdatedAt           string `json:"updated_at,omitempty"`
}

type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Scope       string `json:"scope"`
	GroupKey    string `json:"group_key,omitempty"`
	LineItemURI string `json:"line_item_uri,omitempty"`
	TemplateKey string `json:"template_key,omitempty"`
	Title       string `json:"title"`
	Kind        string `json:"kind,omitempty"`
	Status      string `json:"status"`
	Position    *int   `json:"position,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type TaskNote struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	AuthorEmail string `json:"author_email,omitempty"`
	Body        string `json:"body"`
	CreatedAt   string `json:"created_at"`
}

var TemplateKinds = []string{"task", "checklist", "milestone"}

type Template struct {
	Key              string `json:"key"`
	Title            string `json:"title"`
	Kind             string `json:"kind"`
	Scope            string `json:"scope,omitempty"`
	CategoryKey      string `json:"category_key,omitempty"`
	DeliverableKey   string `json:"deliverable_key,omitempty"`
	DefaultPosition  *int   `json:"default_position"`
	DefaultStateJSON string `json:"default_state_json,omitempty"`
	IsActive         Flag   `json:"is_active"`
	WorkspaceID      string `json:"workspace_id,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

type TemplateRule struct {
	ID          string `json:"id"`
	TemplateKey string `json:"template_key"`
	Priority    int    `json:"priority"`
	MatchJSON   string `json:"match_json"`
	IsActive    Flag   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type TemplateStep struct {
	ID          string `json:"id,omitempty"`
	TemplateKey string `json:"template_key,omitempty"`
	Position    int    `json:"position"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type TemplateDetail struct {
	Template Template       `json:"template"`
	Rules    []TemplateRule `json:"rules"`
	Steps    []TemplateStep `json:"steps"`
}

// TemplateInput is the create/update body. Empty optional keys are sent as null.
type TemplateInput struct {
	Key              string          `json:"key,omitempty"`
	Title            string          `json:"title"`
	Kind             string          `json:"kind"`
	Scope            string          `json:"scope"`
	CategoryKey      *string         `json:"category_key"`
	DeliverableKey   *string         `json:"deliverable_key"`
	DefaultStateJSON json.RawMessage `json:"default_state_json"`
	DefaultPosition  *int            `json:"default_position"`
	IsActive         bool            `json:"is_active"`
}

type RuleInput struct {
	Priority  int    `json:"priority"`
	MatchJSON string `json:"match_json"`
	IsActive  bool   `json:"is_active"`
}

var Providers = []string{"shopify", "qbo"}
var Environments = []string{"sandbox", "production"}

type Integration struct {
	ID                string `json:"id"`
	WorkspaceID       string `json:"workspace_id"`
	Provider          string `json:"provider"`
	Environment       string `json:"environment"`
	ExternalAccountID string `json:"external_account_id"`
	DisplayName       string `json:"display_name,omitempty"`
	SecretsKeyID      string `json:"secrets_key_id,omitempty"`
	IsActive          Flag   `json:"is_active"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

type IntegrationInput struct {
	WorkspaceID       string            `json:"workspaceId"`
	Provider          string            `json:"provider"`
	Environment       string            `json:"environment"`
	ExternalAccountID string            `json:"externalAccountId"`
	DisplayName       string            `json:"displayName,omitempty"`
	Secrets           map[string]string `json:"secrets"`
}

// IntegrationUpdate is a partial update; IsActive travels as 0/1.
type IntegrationUpdate struct {
	DisplayName *string           `json:"displayName,omitempty"`
	IsActive    *int              `json:"is_active,omitempty"`
	Secrets     map[string]string `json:"secrets,omitempty"`
}

type IngestRequest struct {
	ID                     string `json:"id"`
	Provider               string `json:"provider"`
	ReceivedAt             string `json:"received_at"`
	SignatureVerified      Flag   `json:"signature_verified"`
	VerifyError            string `json:"verify_error,omitempty"`
	WorkspaceID            string `json:"workspace_id,omitempty"`
	Environment            string `json:"environment,omitempty"`
	ExternalAccountID      string `json:"external_account_id,omitempty"`
	IntegrationID          string `json:"integration_id,omitempty"`
	IntegrationDisplayName string `json:"integration_display_name,omitempty"`
	Topic                  string `json:"topic,omitempty"`
	ShopDomain             string `json:"shop_domain,omitempty"`
	WebhookID              string `json:"webhook_id,omitempty"`
	Headers                any    `json:"headers,omitempty"`
	Body                   any    `json:"body,omitempty"`
}

type IngestFilter struct {
	Provider    string
	WorkspaceID string
	Environment string
	Limit       int
}

type Workspace struct {
	ID        string `json:"id"`
	Slug      string `json:"slug,omitempty"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type WorkspaceInput struct {
	Slug string `json:"slug,omitempty"`
	Name string `json:"name,omitempty"`
}

type IngestPage struct {
	Requests []IngestRequest `json:"requests"`
	Limit    int             `json:"limit"`
}

type CommercialRecord struct {
	URI                string `json:"uri"`
	Source             string `json:"source"`
	Kind               string `json:"kind"`
	ExternalID         string `json:"external_id"`
	CustomerDisplay    string `json:"customer_display,omitempty"`
	QuotedDeliveryDate string `json:"quoted_delivery_date,omitempty"`
	QuotedInstallDate  string `json:"quoted_install_date,omitempty"`
	LastSeenAt         string `json:"last_seen_at,omitempty"`
	SnapshotHash       string `json:"snapshot_hash,omitempty"`
}

type CommercialRecordDetail struct {
	Record    map[string]any   `json:"record"`
	LineItems []map[string]any `json:"line_items"`
}

type RecordPage struct {
	Records []CommercialRecord `json:"records"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// Event is the canonical ingestion event shape.
type Event struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Type         string `json:"type"`
	ExternalID   string `json:"external_id"`
	ReceivedAt   string `json:"received_at,omitempty"`
	ProcessedAt  string `json:"processed_at,omitempty"`
	ProcessError string `json:"process_error,omitempty"`
	Raw          any    `json:"-"`
}

type TestEvent struct {
	Source     string `json:"source"`
	Type       string `json:"type"`
	ExternalID string `json:"externalId"`
	Payload    any    `json:"payload"`
}

type MaterializeResult struct {
	AlreadyMaterialized bool `json:"alreadyMaterialized"`
	TasksCreated        int  `json:"tasksCreated"`
}

type FromRecordResult struct {
	Project Project `json:"project"`
	Created bool    `json:"created"`
}

type MigrationHealth struct {
	OK             bool     `json:"ok"`
	AppliedLatest  string   `json:"appliedLatest"`
	ExpectedLatest string   `json:"expectedLatest"`
	MissingCount   int      `json:"missingCount"`
	Missing        []string `json:"missing"`
}

type Health struct {
	OK         bool            `json:"ok"`
	Migrations MigrationHealth `json:"migrations"`
}

// ValidationError is a client-side check that failed before any request was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid builds a ValidationError.
func Invalid(msg string) error { return &ValidationError{Message: msg} }
