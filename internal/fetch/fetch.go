package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of one HTTP exchange. Non-2xx statuses are results, not errors.
type Result struct {
	URL      string
	OK       bool
	Status   int
	Data     any
	Parsed   bool
	Text     string
	Header   http.Header
	Duration time.Duration
}

// DurationMs returns the wall-clock duration rounded to milliseconds.
func (r Result) DurationMs() int64 {
	return r.Duration.Round(time.Millisecond).Milliseconds()
}

// Decode unmarshals the raw body into out.
func (r Result) Decode(out any) error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("empty response body")
	}
	return json.Unmarshal([]byte(r.Text), out)
}

// Params are query parameters. Nil values are skipped.
type Params map[string]any

// BuildURL joins base and path and appends params.
func BuildURL(base, path string, params Params) (string, error) {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base+path, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: base must be absolute", base+path)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			s, ok := paramString(v)
			if !ok {
				continue
			}
			q.Set(k, s)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func paramString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case *string:
		if t == nil {
			return "", false
		}
		return *t, true
	case *int:
		if t == nil {
			return "", false
		}
		return fmt.Sprint(*t), true
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}

// Tracker performs requests and records their lifecycle.
type Tracker struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
	// Decorate runs on every outgoing request, after the JSON headers are set.
	Decorate func(*http.Request)
}

// Do sends one request. body is JSON-encoded when non-nil; a json.RawMessage is sent verbatim.
// The returned error is non-nil only for transport failures.
func (t *Tracker) Do(ctx context.Context, method, rawURL string, body any) (Result, error) {
	now := t.Now
	if now == nil {
		now = time.Now
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	var reader io.Reader
	if body != nil {
		var payload []byte
		switch b := body.(type) {
		case json.RawMessage:
			payload = b
		case []byte:
			payload = b
		default:
			var err error
			payload, err = json.Marshal(body)
			if err != nil {
				return Result{URL: rawURL}, fmt.Errorf("encode request body: %w", err)
			}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return Result{URL: rawURL}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.Decorate != nil {
		t.Decorate(req)
	}

	start := now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("request failed", zap.String("method", method), zap.String("url", rawURL), zap.Error(err))
		return Result{URL: rawURL}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{URL: rawURL}, fmt.Errorf("read response body: %w", err)
	}
	res := Result{
		URL:    rawURL,
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Text:   string(raw),
		Header: resp.Header,
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		var data any
		if err := json.Unmarshal(raw, &data); err == nil {
			res.Data = data
			res.Parsed = true
		}
	}
	res.Duration = now().Sub(start)
	logger.Debug("request",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("status", res.Status),
		zap.Int64("duration_ms", res.DurationMs()),
	)
	return res, nil
}
