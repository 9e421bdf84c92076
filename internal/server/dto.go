package server

import (
	"encoding/json"
	"strings"

	"ftops/internal/domain"
	"ftops/internal/engine"
	"ftops/internal/repo"
)

// Response payloads

type eventResponse struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Type           string `json:"type"`
	ExternalID     string `json:"external_id"`
	IdempotencyKey string `json:"idempotency_key"`
	ReceivedAt     string `json:"received_at"`
	ProcessedAt    string `json:"processed_at,omitempty"`
	ProcessError   string `json:"process_error,omitempty"`
	Payload        any    `json:"payload,omitempty"`
}

type eventList struct {
	Events []eventResponse `json:"events"`
}

type testEventResponse struct {
	OK bool `json:"ok"`
	engine.IngestResult
}

type webhookResponse struct {
	OK          bool   `json:"ok"`
	ID          string `json:"id"`
	Verified    bool   `json:"verified"`
	VerifyError string `json:"verify_error,omitempty"`
}

type stepList struct {
	Steps []domain.TemplateStep `json:"steps"`
}

func newEventResponse(ev repo.StoredEvent) eventResponse {
	resp := eventResponse{
		ID:             ev.ID,
		Source:         ev.Source,
		Type:           ev.Type,
		ExternalID:     ev.ExternalID,
		IdempotencyKey: ev.IdempotencyKey,
		ReceivedAt:     ev.ReceivedAt,
		ProcessedAt:    ev.ProcessedAt,
		ProcessError:   ev.ProcessError,
	}
	if strings.TrimSpace(ev.PayloadJSON) != "" {
		var payload any
		if err := json.Unmarshal([]byte(ev.PayloadJSON), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}

// recordDetail renders a record and its line items as loose documents, the shape
// the console shows in its JSON tree.
func recordDetail(rec domain.CommercialRecord, items []repo.LineItem) (domain.CommercialRecordDetail, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.CommercialRecordDetail{}, err
	}
	var recMap map[string]any
	if err := json.Unmarshal(data, &recMap); err != nil {
		return domain.CommercialRecordDetail{}, err
	}
	out := domain.CommercialRecordDetail{Record: recMap, LineItems: make([]map[string]any, 0, len(items))}
	for _, li := range items {
		m := map[string]any{"uri": li.URI}
		setNonEmpty(m, "title", li.Title)
		setNonEmpty(m, "category_key", li.CategoryKey)
		setNonEmpty(m, "deliverable_key", li.DeliverableKey)
		setNonEmpty(m, "group_key", li.GroupKey)
		if li.Quantity != nil {
			m["quantity"] = *li.Quantity
		}
		if li.Position != nil {
			m["position"] = *li.Position
		}
		if cfg, err := li.Config(); err != nil {
			m["config_json"] = li.ConfigJSON
		} else if cfg != nil {
			m["config"] = cfg
		}
		out.LineItems = append(out.LineItems, m)
	}
	return out, nil
}

func setNonEmpty(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}
