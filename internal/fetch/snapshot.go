package fetch

import (
	"fmt"
	"strings"

	"ftops/internal/wire"
)

// State is the render state of a Snapshot. Exactly one applies.
type State int

const (
	StateEmpty State = iota
	StateError
	StateJSON
	StateText
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateJSON:
		return "json"
	case StateText:
		return "text"
	default:
		return "empty"
	}
}

// NotJSON is the message attached to a 2xx response whose body could not be parsed.
const NotJSON = "Response was not valid JSON."

// Snapshot is the panel-facing view of one request. A new request replaces it wholesale.
type Snapshot struct {
	URL        string `json:"url"`
	Status     int    `json:"status,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Data       any    `json:"data,omitempty"`
	Parsed     bool   `json:"parsed,omitempty"`
	Text       string `json:"text,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Pending returns the snapshot recorded at dispatch time.
func Pending(url string) Snapshot {
	return Snapshot{URL: url}
}

// NewSnapshot maps a request outcome onto a Snapshot.
func NewSnapshot(url string, res Result, err error) Snapshot {
	if err != nil {
		return Snapshot{URL: url, Error: err.Error()}
	}
	snap := Snapshot{
		URL:        url,
		Status:     res.Status,
		DurationMs: res.DurationMs(),
		Text:       res.Text,
	}
	if !res.OK {
		msg := fmt.Sprintf("Request failed with status %d.", res.Status)
		if detail := structuredError(res); detail != "" {
			msg = fmt.Sprintf("Request failed with status %d: %s", res.Status, detail)
		}
		snap.Error = msg
		return snap
	}
	if res.Parsed {
		snap.Data = res.Data
		snap.Parsed = true
		return snap
	}
	if strings.TrimSpace(res.Text) != "" {
		snap.Error = NotJSON
	}
	return snap
}

// State reports which of the mutually exclusive render states applies.
func (s Snapshot) State() State {
	switch {
	case s.Error == NotJSON:
		return StateText
	case s.Error != "":
		return StateError
	case s.Parsed || s.Data != nil:
		return StateJSON
	case s.Text != "":
		return StateText
	default:
		return StateEmpty
	}
}

func structuredError(res Result) string {
	e, ok := wire.ErrorBody(res.Data)
	if !ok {
		return ""
	}
	return e.Text()
}

// FormatAPIError renders a failed result for a user-facing message.
func FormatAPIError(res Result, fallback string) string {
	if msg := structuredError(res); msg != "" {
		return msg
	}
	if res.Text != "" {
		return res.Text
	}
	return fallback
}
