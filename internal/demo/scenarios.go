// Package demo sends canned commercial-record events through the test-event endpoint.
package demo

import "fmt"

// Strategy names how the external id of each sent event is derived from the base id.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyIncrement   Strategy = "increment"
	StrategyRandom      Strategy = "random"
	StrategyTimestamped Strategy = "timestamped"
)

const (
	SourceManual          = "manual"
	TypeRecordUpserted    = "commercial_record_upserted"
	IdempotencyScenarioID = "idempotency-variant"
)

const (
	VariantOff = "off"
	VariantOn  = "on"
)

// Scenario is one canned record with its line items.
type Scenario struct {
	ID             string
	Name           string
	Description    string
	Source         string
	Type           string
	BaseExternalID string
	Strategies     []Strategy
	// HasVariant marks scenarios whose payload depends on the on/off variant.
	HasVariant bool

	build func(externalID string, variant string) map[string]any
}

// Payload builds the scenario payload for one external id.
func (s Scenario) Payload(externalID, variant string) map[string]any {
	return s.build(externalID, variant)
}

// DefaultPayload is the payload built from the base external id.
func (s Scenario) DefaultPayload() map[string]any {
	return s.build(s.BaseExternalID, VariantOff)
}

func (s Scenario) Supports(st Strategy) bool {
	for _, v := range s.Strategies {
		if v == st {
			return true
		}
	}
	return false
}

func proposalURI(externalID string) string {
	return fmt.Sprintf("manual://proposal/%s", externalID)
}

func lineURI(externalID, line string) string {
	return fmt.Sprintf("manual://proposal/%s/line/%s", externalID, line)
}

func record(externalID, customer string, commitments map[string]any) map[string]any {
	r := map[string]any{
		"uri":      proposalURI(externalID),
		"kind":     "proposal",
		"customer": map[string]any{"display": customer},
		"currency": "USD",
	}
	if commitments != nil {
		r["commitments"] = commitments
	}
	return r
}

func manualProposal(externalID, _ string) map[string]any {
	return map[string]any{
		"record": record(externalID, "Jane Smith", map[string]any{
			"quotedDeliveryDate": "2026-03-15",
			"quotedInstallDate":  "2026-03-20",
		}),
		"line_items": []any{
			map[string]any{
				"uri":             lineURI(externalID, "table"),
				"title":           "Ash Dining Table",
				"category_key":    "furniture",
				"deliverable_key": "dining_table",
				"quantity":        1,
				"position":        1,
				"config": map[string]any{
					"woodSpecies":      "ash",
					"finish":           "smoke",
					"dimensions":       map[string]any{"length": 84, "width": 40, "height": 30},
					"requiresDesign":   true,
					"requiresApproval": true,
				},
			},
			map[string]any{
				"uri":             lineURI(externalID, "delivery"),
				"title":           "White-glove delivery",
				"category_key":    "delivery",
				"deliverable_key": "delivery_service",
				"quantity":        1,
				"position":        2,
				"config":          map[string]any{"deliveryRequired": true},
			},
			map[string]any{
				"uri":             lineURI(externalID, "install"),
				"title":           "On-site installation",
				"category_key":    "install",
				"deliverable_key": "install_service",
				"quantity":        1,
				"position":        3,
				"config":          map[string]any{"installRequired": true},
			},
		},
	}
}

func cabinetRun(externalID, line, title, room string, position int) map[string]any {
	return map[string]any{
		"uri":             lineURI(externalID, line),
		"title":           title,
		"category_key":    "cabinetry",
		"deliverable_key": "cabinet_run",
		"group_key":       "kitchen",
		"quantity":        1,
		"position":        position,
		"config": map[string]any{
			"room":            room,
			"style":           "Shaker",
			"material":        "Painted maple",
			"requiresSamples": true,
			"installRequired": true,
		},
	}
}

func cabinetry(externalID, _ string) map[string]any {
	return map[string]any{
		"record": record(externalID, "Anderson Residence", map[string]any{"quotedInstallDate": "2026-04-10"}),
		"line_items": []any{
			cabinetRun(externalID, "kitchen", "Kitchen base cabinets", "Kitchen", 1),
			cabinetRun(externalID, "pantry", "Pantry storage cabinets", "Pantry", 2),
		},
	}
}

func designOnly(externalID, _ string) map[string]any {
	return map[string]any{
		"record": record(externalID, "Lopez Condo", nil),
		"line_items": []any{
			map[string]any{
				"uri":             lineURI(externalID, "design"),
				"title":           "Custom kitchen design package",
				"category_key":    "design",
				"deliverable_key": "design_services",
				"quantity":        1,
				"position":        1,
				"config": map[string]any{
					"revisionLimit":    3,
					"deliverables":     []any{"3D renderings", "AR walkthrough"},
					"requiresApproval": true,
				},
			},
		},
	}
}

func idempotency(externalID, variant string) map[string]any {
	return map[string]any{
		"record": record(externalID, "Replay Test", nil),
		"line_items": []any{
			map[string]any{
				"uri":             lineURI(externalID, "table"),
				"title":           "Walnut Coffee Table",
				"category_key":    "furniture",
				"deliverable_key": "coffee_table",
				"quantity":        1,
				"position":        1,
				"config":          map[string]any{"woodSpecies": "walnut", "requiresDesign": variant == VariantOn},
			},
		},
	}
}

var allStrategies = []Strategy{StrategyIncrement, StrategyRandom, StrategyFixed, StrategyTimestamped}

// Scenarios is the built-in library, in picker order.
var Scenarios = []Scenario{
	{
		ID:             "manual-proposal",
		Name:           "Manual proposal (furniture + delivery + install)",
		Description:    "Dining table with delivery/install line items and design/approval flags.",
		Source:         SourceManual,
		Type:           TypeRecordUpserted,
		BaseExternalID: "proposal-demo",
		Strategies:     allStrategies,
		build:          manualProposal,
	},
	{
		ID:             "cabinetry-grouped",
		Name:           "Cabinetry (shared samples + install)",
		Description:    "Grouped cabinet runs that require samples and install for shared planning.",
		Source:         SourceManual,
		Type:           TypeRecordUpserted,
		BaseExternalID: "cabinet-demo",
		Strategies:     allStrategies,
		build:          cabinetry,
	},
	{
		ID:             "design-only",
		Name:           "Design-only engagement",
		Description:    "Design services only, with approval flag and no delivery/install.",
		Source:         SourceManual,
		Type:           TypeRecordUpserted,
		BaseExternalID: "design-demo",
		Strategies:     allStrategies,
		build:          designOnly,
	},
	{
		ID:             IdempotencyScenarioID,
		Name:           "Idempotency + change detection",
		Description:    "Re-send with fixed externalId and flip requiresDesign to test idempotency.",
		Source:         SourceManual,
		Type:           TypeRecordUpserted,
		BaseExternalID: "idempotency-demo",
		Strategies:     []Strategy{StrategyFixed, StrategyTimestamped, StrategyRandom},
		HasVariant:     true,
		build:          idempotency,
	},
}

// Find looks a scenario up by id.
func Find(id string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}
