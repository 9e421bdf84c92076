package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"ftops/internal/domain"
	"ftops/internal/repo"
)

// ruleMatch is the decoded match_json of a template rule.
type ruleMatch struct {
	AttachTo       string         `json:"attach_to"`
	CategoryKey    string         `json:"category_key"`
	DeliverableKey string         `json:"deliverable_key"`
	GroupKey       string         `json:"group_key"`
	Config         map[string]any `json:"config"`
}

// facts is what a rule is evaluated against for one plan context.
type facts struct {
	categories   map[string]bool
	deliverables map[string]bool
	groups       map[string]bool
	configs      []map[string]any
}

func newFacts() facts {
	return facts{categories: map[string]bool{}, deliverables: map[string]bool{}, groups: map[string]bool{}}
}

func (f *facts) add(li repo.LineItem, cfg map[string]any) {
	if li.CategoryKey != "" {
		f.categories[li.CategoryKey] = true
	}
	if li.DeliverableKey != "" {
		f.deliverables[li.DeliverableKey] = true
	}
	if li.GroupKey != "" {
		f.groups[li.GroupKey] = true
	}
	if cfg != nil {
		f.configs = append(f.configs, cfg)
	}
}

func (m ruleMatch) matches(kind string, f facts) bool {
	if m.AttachTo != kind {
		return false
	}
	if m.CategoryKey != "" && !f.categories[m.CategoryKey] {
		return false
	}
	if m.DeliverableKey != "" && !f.deliverables[m.DeliverableKey] {
		return false
	}
	if m.GroupKey != "" && !f.groups[m.GroupKey] {
		return false
	}
	if len(m.Config) == 0 {
		return true
	}
	// every flag must hold on a single config
	for _, cfg := range f.configs {
		ok := true
		for k, want := range m.Config {
			if got, present := cfg[k]; !present || !reflect.DeepEqual(got, want) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

type compiledRule struct {
	rule  domain.TemplateRule
	match ruleMatch
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return false
	}
}

// Preview computes the plan for a record: one project context, one shared
// context per group key and one deliverable context per line item, each with
// the templates whose active rules match it.
func (e Engine) Preview(ctx context.Context, recordURI string) (domain.PlanPreview, error) {
	recordURI = strings.TrimSpace(recordURI)
	if recordURI == "" {
		return domain.PlanPreview{}, invalid("invalid_request", "record_uri is required")
	}
	rec, err := e.Repo.GetRecord(ctx, recordURI)
	if err != nil {
		return domain.PlanPreview{}, orNotFound(err, "record_not_found")
	}
	items, err := e.Repo.LineItems(ctx, recordURI)
	if err != nil {
		return domain.PlanPreview{}, err
	}
	rules, err := e.Repo.ActiveRules(ctx)
	if err != nil {
		return domain.PlanPreview{}, err
	}
	tmpls, err := e.Repo.ListTemplates(ctx)
	if err != nil {
		return domain.PlanPreview{}, err
	}
	byKey := make(map[string]domain.Template, len(tmpls))
	for _, t := range tmpls {
		byKey[t.Key] = t
	}

	preview := domain.PlanPreview{
		PlanID:                    "plan_" + shortHash(rec.URI, rec.SnapshotHash),
		Warnings:                  []string{},
		MatchedTemplatesByContext: map[string][]domain.MatchedTemplate{},
	}
	var compiled []compiledRule
	for _, r := range rules {
		var m ruleMatch
		if err := json.Unmarshal([]byte(r.MatchJSON), &m); err != nil {
			preview.Warnings = append(preview.Warnings, fmt.Sprintf("Rule %s has invalid match_json and was skipped.", r.ID))
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, match: m})
	}
	matchAll := func(kind, key string, f facts) []domain.MatchedTemplate {
		seen := map[string]bool{}
		var out []domain.MatchedTemplate
		for _, c := range compiled {
			if seen[c.rule.TemplateKey] || !c.match.matches(kind, f) {
				continue
			}
			seen[c.rule.TemplateKey] = true
			t := byKey[c.rule.TemplateKey]
			out = append(out, domain.MatchedTemplate{
				TemplateKey:     c.rule.TemplateKey,
				Title:           t.Title,
				Kind:            t.Kind,
				DefaultPosition: t.DefaultPosition,
				RulePriority:    c.rule.Priority,
				RuleID:          c.rule.ID,
			})
		}
		if len(out) > 0 {
			preview.MatchedTemplatesByContext[domain.ContextKey(kind, key)] = out
		}
		return out
	}

	contexts := &domain.PlanContexts{
		Project: &domain.ProjectContext{
			Type:               domain.ScopeProject,
			Key:                domain.ScopeProject,
			RecordURI:          rec.URI,
			CustomerDisplay:    rec.CustomerDisplay,
			QuotedDeliveryDate: rec.QuotedDeliveryDate,
			QuotedInstallDate:  rec.QuotedInstallDate,
			SnapshotHash:       rec.SnapshotHash,
		},
		Shared:       []domain.SharedContext{},
		Deliverables: []domain.DeliverableContext{},
	}
	projectFacts := newFacts()
	groupFacts := map[string]*facts{}
	groupIndex := map[string]int{}

	for _, li := range items {
		cfg, cfgErr := li.Config()
		dc := domain.DeliverableContext{
			Type:           domain.ScopeDeliverable,
			Key:            li.URI,
			RecordURI:      rec.URI,
			LineItemURI:    li.URI,
			Title:          li.Title,
			CategoryKey:    li.CategoryKey,
			DeliverableKey: li.DeliverableKey,
			GroupKey:       li.GroupKey,
			Quantity:       li.Quantity,
			Position:       li.Position,
			Config:         cfg,
		}
		if cfgErr != nil {
			dc.ConfigParseError = cfgErr.Error()
		} else if cfg != nil {
			dc.ConfigHash, _ = canonicalHash(cfg)
		}
		f := newFacts()
		f.add(li, cfg)
		if len(matchAll(domain.ScopeDeliverable, dc.Key, f)) == 0 {
			preview.Warnings = append(preview.Warnings, fmt.Sprintf("No templates matched deliverable %s.", li.URI))
		}
		contexts.Deliverables = append(contexts.Deliverables, dc)
		projectFacts.add(li, cfg)

		if li.GroupKey == "" {
			continue
		}
		idx, ok := groupIndex[li.GroupKey]
		if !ok {
			idx = len(contexts.Shared)
			groupIndex[li.GroupKey] = idx
			gf := newFacts()
			groupFacts[li.GroupKey] = &gf
			contexts.Shared = append(contexts.Shared, domain.SharedContext{
				Type:      domain.ScopeShared,
				Key:       li.GroupKey,
				RecordURI: rec.URI,
				GroupKey:  li.GroupKey,
				LineItems: []domain.SharedLineItem{},
			})
		}
		sc := &contexts.Shared[idx]
		sc.LineItems = append(sc.LineItems, domain.SharedLineItem{
			LineItemURI:    li.URI,
			Title:          li.Title,
			CategoryKey:    li.CategoryKey,
			DeliverableKey: li.DeliverableKey,
			Position:       li.Position,
		})
		sc.Derived.RequiresSamples = sc.Derived.RequiresSamples || truthy(cfg["requiresSamples"])
		sc.Derived.InstallRequired = sc.Derived.InstallRequired || truthy(cfg["installRequired"])
		sc.Derived.DeliveryRequired = sc.Derived.DeliveryRequired || truthy(cfg["deliveryRequired"])
		groupFacts[li.GroupKey].add(li, cfg)
	}

	for _, sc := range contexts.Shared {
		f := groupFacts[sc.GroupKey]
		f.configs = append(f.configs, map[string]any{
			"requiresSamples":  sc.Derived.RequiresSamples,
			"installRequired":  sc.Derived.InstallRequired,
			"deliveryRequired": sc.Derived.DeliveryRequired,
		})
		matchAll(domain.ScopeShared, sc.Key, *f)
	}
	matchAll(domain.ScopeProject, domain.ScopeProject, projectFacts)

	preview.Contexts = contexts
	return preview, nil
}
