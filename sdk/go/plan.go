package ftopssdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"ftops/internal/domain"
	"ftops/internal/fetch"
	"ftops/internal/wire"
)

// PlanPreview fetches the plan for a record. The raw result is returned alongside for display.
func (c *Client) PlanPreview(ctx context.Context, recordURI string) (domain.PlanPreview, fetch.Result, error) {
	res, err := c.do(ctx, http.MethodGet, "/plan/preview", fetch.Params{"record_uri": recordURI}, nil, nil)
	if err != nil {
		return domain.PlanPreview{}, res, err
	}
	if !res.Parsed {
		if res.Text == "" {
			return domain.PlanPreview{}, res, nil
		}
		return domain.PlanPreview{}, res, &DecodeError{StatusCode: res.Status, Body: res.Text, Err: errors.New("invalid json")}
	}
	p, err := wire.PlanPreview([]byte(res.Text))
	return p, res, err
}

// RecordQuery filters the commercial record list.
type RecordQuery struct {
	Limit  int
	Offset int
	Query  string
}

// Records lists commercial records.
func (c *Client) Records(ctx context.Context, q RecordQuery) (domain.RecordPage, error) {
	params := fetch.Params{}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}
	params["offset"] = q.Offset
	if q.Query != "" {
		params["query"] = q.Query
	}
	var page domain.RecordPage
	_, err := c.do(ctx, http.MethodGet, "/commercial-records", params, nil, &page)
	return page, err
}

// Record fetches one commercial record and its line items.
func (c *Client) Record(ctx context.Context, uri string) (domain.CommercialRecordDetail, error) {
	var out domain.CommercialRecordDetail
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/commercial-records/%s", url.PathEscape(uri)), nil, nil, &out)
	return out, err
}

// Health reads the API health including migration drift.
func (c *Client) Health(ctx context.Context) (domain.MigrationHealth, bool, error) {
	res, err := c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
	if err != nil {
		return domain.MigrationHealth{}, false, err
	}
	h, ok := wire.HealthStatus(res.Data)
	return h, ok, nil
}
