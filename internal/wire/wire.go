// Package wire converts ops API response bodies into canonical domain shapes.
// Each response type has exactly one normalisation function here; callers never sniff shapes.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"

	"ftops/internal/domain"
)

// pick returns the first present, non-nil value among keys.
func pick(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func str(m map[string]any, keys ...string) string {
	v, ok := pick(m, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Events accepts a bare array or an {events: [...]} envelope with snake_case or camelCase fields.
func Events(data any) ([]domain.Event, error) {
	var items []any
	switch t := data.(type) {
	case nil:
		return nil, nil
	case []any:
		items = t
	case map[string]any:
		raw, ok := t["events"]
		if !ok || raw == nil {
			return nil, nil
		}
		arr, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("events: expected array, got %T", raw)
		}
		items = arr
	default:
		return nil, fmt.Errorf("events: unexpected response shape %T", data)
	}
	out := make([]domain.Event, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, domain.Event{
			ID:           str(m, "id"),
			Source:       str(m, "source"),
			Type:         str(m, "type"),
			ExternalID:   str(m, "external_id", "externalId"),
			ReceivedAt:   str(m, "received_at", "receivedAt"),
			ProcessedAt:  str(m, "processed_at", "processedAt"),
			ProcessError: str(m, "process_error", "processError"),
			Raw:          m,
		})
	}
	return out, nil
}

// IdempotencyKey extracts the key from a test-event response in either casing.
func IdempotencyKey(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	return str(m, "idempotencyKey", "idempotency_key")
}

// PlanPreview decodes a plan preview body. Missing sections normalise to empty values.
func PlanPreview(raw []byte) (domain.PlanPreview, error) {
	var shell struct {
		PlanID    string                              `json:"plan_id"`
		PlanIDAlt string                              `json:"planId"`
		Warnings  any                                 `json:"warnings"`
		Contexts  *domain.PlanContexts                `json:"contexts"`
		Matched   map[string][]domain.MatchedTemplate `json:"matchedTemplatesByContext"`
	}
	if err := json.Unmarshal(raw, &shell); err != nil {
		return domain.PlanPreview{}, fmt.Errorf("decode plan preview: %w", err)
	}
	p := domain.PlanPreview{
		PlanID:                    shell.PlanID,
		Warnings:                  Warnings(map[string]any{"warnings": shell.Warnings}),
		Contexts:                  shell.Contexts,
		MatchedTemplatesByContext: shell.Matched,
	}
	if p.PlanID == "" {
		p.PlanID = shell.PlanIDAlt
	}
	if p.MatchedTemplatesByContext == nil {
		p.MatchedTemplatesByContext = map[string][]domain.MatchedTemplate{}
	}
	return p, nil
}

// Warnings extracts a string list from a warnings field that may hold strings or objects.
func Warnings(data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	arr, ok := m["warnings"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, w := range arr {
		switch t := w.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			if msg := str(t, "message"); msg != "" {
				out = append(out, msg)
				continue
			}
			b, _ := json.Marshal(t)
			out = append(out, string(b))
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// APIError is the canonical error body: {error, message?, details?, counts?}.
type APIError struct {
	Code    string
	Message string
	Details any
	Counts  map[string]int
}

// ErrorBody extracts the error envelope, reporting false when data is not one.
func ErrorBody(data any) (APIError, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return APIError{}, false
	}
	var e APIError
	switch v := m["error"].(type) {
	case string:
		e.Code = v
	case map[string]any:
		e.Code = str(v, "code")
		e.Message = str(v, "message")
		e.Details = v["details"]
	default:
		return APIError{}, false
	}
	if e.Code == "" {
		return APIError{}, false
	}
	if e.Message == "" {
		e.Message = str(m, "message")
	}
	if e.Details == nil {
		e.Details = m["details"]
	}
	if counts, ok := m["counts"].(map[string]any); ok {
		e.Counts = map[string]int{}
		for k, v := range counts {
			if f, ok := v.(float64); ok {
				e.Counts[k] = int(f)
			}
		}
	}
	return e, true
}

// Text renders an error body as "code: details-json" or the code alone.
func (e APIError) Text() string {
	if e.Details == nil {
		return e.Code
	}
	b, err := json.Marshal(e.Details)
	if err != nil {
		return e.Code
	}
	return e.Code + ": " + string(b)
}

// HealthStatus reads /health, tolerating bodies without a migrations block.
func HealthStatus(data any) (domain.MigrationHealth, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return domain.MigrationHealth{}, false
	}
	mig, ok := m["migrations"].(map[string]any)
	if !ok {
		return domain.MigrationHealth{}, false
	}
	h := domain.MigrationHealth{
		AppliedLatest:  str(mig, "appliedLatest", "applied_latest"),
		ExpectedLatest: str(mig, "expectedLatest", "expected_latest"),
	}
	if v, ok := mig["ok"].(bool); ok {
		h.OK = v
	}
	if arr, ok := mig["missing"].([]any); ok {
		for _, it := range arr {
			h.Missing = append(h.Missing, fmt.Sprint(it))
		}
	}
	if n, ok := mig["missingCount"].(float64); ok {
		h.MissingCount = int(n)
	} else {
		h.MissingCount = len(h.Missing)
	}
	return h, true
}
