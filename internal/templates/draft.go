// Package templates holds the editable drafts behind the templates panel and the calls that persist them.
package templates

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"ftops/internal/domain"
)

const (
	DefaultRulePriority = "100"
	DefaultRuleMatch    = `{"attach_to": "project"}`
)

const (
	msgKeyTitle     = "Template key and title are required."
	msgDefaultState = "Default state JSON must be valid."
	msgPriority     = "Rule priority must be a number."
	msgMatchJSON    = "Rule match JSON must be valid."
)

// Draft is the template form. Every field is kept as typed text until submission.
type Draft struct {
	Key              string
	Title            string
	Kind             string
	Scope            string
	CategoryKey      string
	DeliverableKey   string
	DefaultPosition  string
	DefaultStateJSON string
	IsActive         bool
}

func NewDraft() Draft {
	return Draft{Kind: "task", Scope: domain.ScopeProject, IsActive: true}
}

// DraftFrom fills a draft from a stored template.
func DraftFrom(t domain.Template) Draft {
	d := Draft{
		Key:              t.Key,
		Title:            t.Title,
		Kind:             t.Kind,
		Scope:            t.Scope,
		CategoryKey:      t.CategoryKey,
		DeliverableKey:   t.DeliverableKey,
		DefaultStateJSON: t.DefaultStateJSON,
		IsActive:         bool(t.IsActive),
	}
	if d.Kind == "" {
		d.Kind = "task"
	}
	if d.Scope == "" {
		d.Scope = domain.ScopeProject
	}
	if t.DefaultPosition != nil {
		d.DefaultPosition = strconv.Itoa(*t.DefaultPosition)
	}
	return d
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizePosition yields nil for blank or non-integer text.
func normalizePosition(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil
	}
	n := int(f)
	return &n
}

// parseState returns the parsed default state, JSON null when blank.
func parseState(s string) (json.RawMessage, error) {
	if strings.TrimSpace(s) == "" {
		return json.RawMessage("null"), nil
	}
	if !json.Valid([]byte(s)) {
		return nil, domain.Invalid(msgDefaultState)
	}
	return json.RawMessage(strings.TrimSpace(s)), nil
}

func (d Draft) input() (domain.TemplateInput, error) {
	state, err := parseState(d.DefaultStateJSON)
	if err != nil {
		return domain.TemplateInput{}, err
	}
	return domain.TemplateInput{
		Title:            d.Title,
		Kind:             d.Kind,
		Scope:            d.Scope,
		CategoryKey:      optional(d.CategoryKey),
		DeliverableKey:   optional(d.DeliverableKey),
		DefaultStateJSON: state,
		DefaultPosition:  normalizePosition(d.DefaultPosition),
		IsActive:         d.IsActive,
	}, nil
}

// CreateInput validates the draft for creation. Key and title are trimmed and required.
func (d Draft) CreateInput() (domain.TemplateInput, error) {
	key, title := strings.TrimSpace(d.Key), strings.TrimSpace(d.Title)
	if key == "" || title == "" {
		return domain.TemplateInput{}, domain.Invalid(msgKeyTitle)
	}
	in, err := d.input()
	if err != nil {
		return domain.TemplateInput{}, err
	}
	in.Key = key
	in.Title = title
	return in, nil
}

// UpdateInput validates the draft for an update of an existing template.
func (d Draft) UpdateInput() (domain.TemplateInput, error) {
	return d.input()
}

// RuleDraft is the rule form.
type RuleDraft struct {
	Priority  string
	MatchJSON string
	IsActive  bool
}

func NewRuleDraft() RuleDraft {
	return RuleDraft{Priority: DefaultRulePriority, MatchJSON: DefaultRuleMatch, IsActive: true}
}

func RuleDraftFrom(r domain.TemplateRule) RuleDraft {
	return RuleDraft{Priority: strconv.Itoa(r.Priority), MatchJSON: r.MatchJSON, IsActive: bool(r.IsActive)}
}

func (r RuleDraft) Input() (domain.RuleInput, error) {
	p, err := strconv.Atoi(strings.TrimSpace(r.Priority))
	if err != nil {
		return domain.RuleInput{}, domain.Invalid(msgPriority)
	}
	if !json.Valid([]byte(r.MatchJSON)) {
		return domain.RuleInput{}, domain.Invalid(msgMatchJSON)
	}
	return domain.RuleInput{Priority: p, MatchJSON: r.MatchJSON, IsActive: r.IsActive}, nil
}

// AttachTo reads attach_to from a rule's match JSON, or "" when unreadable.
func AttachTo(matchJSON string) string {
	var m struct {
		AttachTo string `json:"attach_to"`
	}
	if err := json.Unmarshal([]byte(matchJSON), &m); err != nil {
		return ""
	}
	return m.AttachTo
}

// Filter keeps templates whose key, title or scope contain term, case-insensitively.
func Filter(list []domain.Template, term string) []domain.Template {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return list
	}
	var out []domain.Template
	for _, t := range list {
		if strings.Contains(strings.ToLower(t.Key), term) ||
			strings.Contains(strings.ToLower(t.Title), term) ||
			strings.Contains(strings.ToLower(t.Scope), term) {
			out = append(out, t)
		}
	}
	return out
}

// SortRules orders rules by priority, then id.
func SortRules(rules []domain.TemplateRule) []domain.TemplateRule {
	out := append([]domain.TemplateRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
