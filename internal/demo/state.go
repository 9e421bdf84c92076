package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ftops/internal/prefs"
)

var (
	// ErrInvalidPayload marks a payload override that is not valid JSON.
	ErrInvalidPayload = errors.New("Payload JSON must be valid.")
	// ErrFixPayload is returned by Send when the override is invalid. No request is made.
	ErrFixPayload = fmt.Errorf("Fix payload JSON before sending: %w", ErrInvalidPayload)
)

// State is the generator configuration persisted between runs.
type State struct {
	SelectedScenarioID string            `json:"selectedScenarioId"`
	Counters           map[string]int    `json:"counters"`
	PayloadOverrides   map[string]string `json:"payloadOverrides"`
	VariantByScenario  map[string]string `json:"variantByScenario"`
	BaseExternalID     string            `json:"baseExternalId"`
	IDStrategy         Strategy          `json:"idStrategy"`
	RepeatCount        int               `json:"repeatCount"`
	DelayMs            int               `json:"delayMs"`
}

func DefaultState() State {
	first := Scenarios[0]
	return State{
		SelectedScenarioID: first.ID,
		Counters:           map[string]int{},
		PayloadOverrides:   map[string]string{},
		VariantByScenario:  map[string]string{},
		BaseExternalID:     first.BaseExternalID,
		IDStrategy:         StrategyIncrement,
		RepeatCount:        3,
		DelayMs:            300,
	}
}

// LoadState reads the stored blob over the defaults. A corrupt blob yields the defaults.
func LoadState(p *prefs.Prefs) State {
	s := DefaultState()
	raw, ok := p.Get(prefs.KeyDemoState)
	if !ok {
		return s
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return DefaultState()
	}
	if s.Counters == nil {
		s.Counters = map[string]int{}
	}
	if s.PayloadOverrides == nil {
		s.PayloadOverrides = map[string]string{}
	}
	if s.VariantByScenario == nil {
		s.VariantByScenario = map[string]string{}
	}
	return s
}

func SaveState(ctx context.Context, p *prefs.Prefs, s State) error {
	return p.SetJSON(ctx, prefs.KeyDemoState, s)
}

// Scenario returns the selected scenario, falling back to the first one.
func (s State) Scenario() Scenario {
	if sc, ok := Find(s.SelectedScenarioID); ok {
		return sc
	}
	return Scenarios[0]
}

// Select switches scenario, resets the base id and keeps the strategy when the new scenario supports it.
func (s *State) Select(id string) error {
	sc, ok := Find(id)
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}
	s.SelectedScenarioID = sc.ID
	s.BaseExternalID = sc.BaseExternalID
	if !sc.Supports(s.IDStrategy) {
		s.IDStrategy = sc.Strategies[0]
	}
	return nil
}

// SetStrategy changes the id strategy for the selected scenario.
func (s *State) SetStrategy(st Strategy) error {
	sc := s.Scenario()
	if !sc.Supports(st) {
		return fmt.Errorf("scenario %s does not support id strategy %q", sc.ID, st)
	}
	s.IDStrategy = st
	return nil
}

// SetVariant sets the on/off variant of the selected scenario.
func (s *State) SetVariant(v string) error {
	if v != VariantOff && v != VariantOn {
		return fmt.Errorf("variant must be %q or %q", VariantOff, VariantOn)
	}
	s.VariantByScenario[s.Scenario().ID] = v
	return nil
}

func (s State) Variant() string {
	if v, ok := s.VariantByScenario[s.Scenario().ID]; ok {
		return v
	}
	return VariantOff
}

// LoadScenario copies the default payload into the override slot for editing.
func (s *State) LoadScenario() {
	sc := s.Scenario()
	s.BaseExternalID = sc.BaseExternalID
	s.PayloadOverrides[sc.ID] = prettyJSON(sc.DefaultPayload())
}

// Reset drops the override and restores the scenario's base id and first strategy.
func (s *State) Reset() {
	sc := s.Scenario()
	delete(s.PayloadOverrides, sc.ID)
	s.BaseExternalID = sc.BaseExternalID
	s.IDStrategy = sc.Strategies[0]
}

// SetOverride stores an edited payload for the selected scenario. Invalid JSON is kept so it can be fixed.
func (s *State) SetOverride(text string) error {
	s.PayloadOverrides[s.Scenario().ID] = text
	return s.PayloadError()
}

// PayloadText is the override when one is stored, else the pretty default payload.
func (s State) PayloadText() string {
	if o, ok := s.PayloadOverrides[s.Scenario().ID]; ok {
		return o
	}
	return prettyJSON(s.Scenario().DefaultPayload())
}

func (s State) PayloadError() error {
	if !json.Valid([]byte(s.PayloadText())) {
		return ErrInvalidPayload
	}
	return nil
}

// Payload builds the request payload for one send. A stored override is sent as-is; otherwise the
// scenario builder runs with the external id and variant.
func (s State) Payload(externalID string) (any, error) {
	sc := s.Scenario()
	if o, ok := s.PayloadOverrides[sc.ID]; ok {
		var v any
		if err := json.Unmarshal([]byte(o), &v); err != nil {
			return nil, ErrInvalidPayload
		}
		return v, nil
	}
	return sc.Payload(externalID, s.Variant()), nil
}

// ExternalID derives the id for the next send. counter is the number of increment sends so far.
func ExternalID(st Strategy, base string, counter int, now time.Time) string {
	switch st {
	case StrategyIncrement:
		return base + "-" + strconv.Itoa(counter+1)
	case StrategyRandom:
		return base + "-" + randomSuffix()
	case StrategyTimestamped:
		return base + "-" + strconv.FormatInt(now.UnixMilli(), 10)
	default:
		return base
	}
}

func randomSuffix() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:3])
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
