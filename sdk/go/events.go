package ftopssdk

import (
	"context"
	"errors"
	"net/http"

	"ftops/internal/domain"
	"ftops/internal/fetch"
	"ftops/internal/wire"
)

// Events lists recent ingestion events in canonical form.
func (c *Client) Events(ctx context.Context) ([]domain.Event, fetch.Result, error) {
	res, err := c.do(ctx, http.MethodGet, "/events", nil, nil, nil)
	if err != nil {
		return nil, res, err
	}
	if !res.Parsed && res.Text != "" {
		return nil, res, &DecodeError{StatusCode: res.Status, Body: res.Text, Err: errors.New("invalid json")}
	}
	events, err := wire.Events(res.Data)
	return events, res, err
}

// TestEventResult is the outcome of a synthetic event submission.
type TestEventResult struct {
	OK             bool
	Status         int
	IdempotencyKey string
	Duplicate      bool
	Text           string
	Data           any
}

// SendTestEvent posts a synthetic event. A non-2xx status yields a populated result and an *APIError.
func (c *Client) SendTestEvent(ctx context.Context, ev domain.TestEvent) (TestEventResult, error) {
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	res, err := c.Raw(ctx, http.MethodPost, "/events/test", nil, ev)
	if err != nil {
		return TestEventResult{}, err
	}
	out := TestEventResult{
		OK:             res.OK,
		Status:         res.Status,
		IdempotencyKey: wire.IdempotencyKey(res.Data),
		Text:           res.Text,
		Data:           res.Data,
	}
	if m, ok := res.Data.(map[string]any); ok {
		out.Duplicate, _ = m["duplicate"].(bool)
	}
	if !res.OK {
		return out, newAPIError(res)
	}
	return out, nil
}
