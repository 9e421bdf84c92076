package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ftops/internal/domain"
	"ftops/internal/prefs"
	ftopssdk "ftops/sdk/go"
)

// LogLimit caps the rolling result log.
const LogLimit = 50

var ErrBusy = errors.New("a send is already running")

// Sender posts one synthetic event.
type Sender interface {
	SendTestEvent(ctx context.Context, ev domain.TestEvent) (ftopssdk.TestEventResult, error)
}

// Entry is one row of the result log.
type Entry struct {
	ID             string `json:"id"`
	Time           string `json:"time"`
	ScenarioID     string `json:"scenarioId"`
	ScenarioName   string `json:"scenarioName"`
	ExternalID     string `json:"externalId"`
	Status         int    `json:"status,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Openable reports whether the entry's record can be opened in the preview.
func (e Entry) Openable() bool { return e.Error == "" }

// Run summarises one Send call.
type Run struct {
	Sent    int
	Stopped bool
	Entries []Entry
}

// Generator runs the sequential send loop. Stop may be called from any goroutine.
type Generator struct {
	Sender Sender
	Prefs  *prefs.Prefs
	Logger *zap.Logger
	Now    func() time.Time
	// Sleep waits between sends; it returns early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	stop    atomic.Bool
	running atomic.Bool

	mu  sync.Mutex
	log []Entry
}

func New(sender Sender, p *prefs.Prefs, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{Sender: sender, Prefs: p, Logger: logger}
	p.GetJSON(prefs.KeyDemoLog, &g.log)
	return g
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stop asks the running loop to end before its next iteration. An in-flight request completes.
func (g *Generator) Stop() { g.stop.Store(true) }

// Begin clears an earlier stop request. Call it when a send is dispatched so a
// Stop issued before Send starts still applies to that run.
func (g *Generator) Begin() { g.stop.Store(false) }

func (g *Generator) Running() bool { return g.running.Load() }

// Log returns the result log, newest first.
func (g *Generator) Log() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Entry, len(g.log))
	copy(out, g.log)
	return out
}

// ClearLog empties the result log.
func (g *Generator) ClearLog(ctx context.Context) error {
	g.mu.Lock()
	g.log = nil
	g.mu.Unlock()
	return g.Prefs.Unset(ctx, prefs.KeyDemoLog)
}

func (g *Generator) record(ctx context.Context, e Entry) {
	g.mu.Lock()
	g.log = append([]Entry{e}, g.log...)
	if len(g.log) > LogLimit {
		g.log = g.log[:LogLimit]
	}
	snapshot := make([]Entry, len(g.log))
	copy(snapshot, g.log)
	g.mu.Unlock()
	if err := g.Prefs.SetJSON(ctx, prefs.KeyDemoLog, snapshot); err != nil {
		g.Logger.Warn("persist demo log", zap.Error(err))
	}
}

// Send issues count events one after another using the stored state.
// A transport failure is logged as an entry and ends the run with that error.
func (g *Generator) Send(ctx context.Context, count int) (Run, error) {
	if !g.running.CompareAndSwap(false, true) {
		return Run{}, ErrBusy
	}
	defer g.running.Store(false)
	defer g.stop.Store(false)

	state := LoadState(g.Prefs)
	if err := state.PayloadError(); err != nil {
		return Run{}, ErrFixPayload
	}
	sleep := g.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	sc := state.Scenario()
	counter := state.Counters[sc.ID]
	delay := time.Duration(state.DelayMs) * time.Millisecond

	var run Run
	for i := 0; i < count; i++ {
		if g.stop.Load() {
			run.Stopped = true
			break
		}
		now := g.now()
		externalID := ExternalID(state.IDStrategy, state.BaseExternalID, counter, now)
		payload, err := state.Payload(externalID)
		if err != nil {
			return run, ErrFixPayload
		}

		res, err := g.Sender.SendTestEvent(ctx, domain.TestEvent{
			Source:     sc.Source,
			Type:       sc.Type,
			ExternalID: externalID,
			Payload:    payload,
		})
		entry := Entry{
			ID:           fmt.Sprintf("%s-%d-%d", sc.ID, now.UnixMilli(), i),
			Time:         now.UTC().Format(time.RFC3339Nano),
			ScenarioID:   sc.ID,
			ScenarioName: sc.Name,
			ExternalID:   externalID,
		}
		var apiErr *ftopssdk.APIError
		switch {
		case err == nil:
			entry.Status = res.Status
			entry.IdempotencyKey = res.IdempotencyKey
			entry.Duplicate = res.Duplicate
		case errors.As(err, &apiErr):
			entry.Status = res.Status
			entry.IdempotencyKey = res.IdempotencyKey
			entry.Error = res.Text
			if entry.Error == "" {
				entry.Error = "Request failed."
			}
		default:
			entry.Error = err.Error()
			g.record(ctx, entry)
			run.Entries = append(run.Entries, entry)
			g.Logger.Warn("demo send failed", zap.String("external_id", externalID), zap.Error(err))
			return run, fmt.Errorf("send %s: %w", externalID, err)
		}
		g.record(ctx, entry)
		run.Entries = append(run.Entries, entry)
		run.Sent++
		g.Logger.Debug("demo sent",
			zap.String("scenario", sc.ID),
			zap.String("external_id", externalID),
			zap.Int("status", entry.Status),
		)

		if state.IDStrategy == StrategyIncrement {
			counter++
			fresh := LoadState(g.Prefs)
			fresh.Counters[sc.ID] = counter
			if err := SaveState(ctx, g.Prefs, fresh); err != nil {
				return run, fmt.Errorf("save demo counter: %w", err)
			}
		}

		if i < count-1 && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return run, err
			}
		}
	}
	return run, nil
}

// Open routes a sent record into the plan preview.
func Open(ctx context.Context, p *prefs.Prefs, externalID string) (string, error) {
	uri := proposalURI(externalID)
	if err := p.Set(ctx, prefs.KeyRecordURI, uri); err != nil {
		return "", err
	}
	if err := p.SetActiveTab(ctx, prefs.TabPreview); err != nil {
		return "", err
	}
	return uri, nil
}
