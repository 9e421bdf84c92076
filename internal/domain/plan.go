package domain

// MatchedTemplate is one template matched to a plan context.
type MatchedTemplate struct {
	TemplateKey     string `json:"templateKey"`
	Title           string `json:"title,omitempty"`
	Kind            string `json:"kind,omitempty"`
	DefaultPosition *int   `json:"default_position"`
	RulePriority    int    `json:"rulePriority"`
	RuleID          string `json:"ruleId"`
}

type ProjectContext struct {
	Type               string `json:"type"`
	Key                string `json:"key"`
	RecordURI          string `json:"record_uri"`
	CustomerDisplay    string `json:"customer_display,omitempty"`
	QuotedDeliveryDate string `json:"quoted_delivery_date,omitempty"`
	QuotedInstallDate  string `json:"quoted_install_date,omitempty"`
	SnapshotHash       string `json:"snapshot_hash,omitempty"`
}

type SharedLineItem struct {
	LineItemURI    string `json:"line_item_uri"`
	Title          string `json:"title,omitempty"`
	CategoryKey    string `json:"category_key,omitempty"`
	DeliverableKey string `json:"deliverable_key,omitempty"`
	Position       *int   `json:"position,omitempty"`
}

type SharedDerived struct {
	RequiresSamples  bool `json:"requiresSamples"`
	InstallRequired  bool `json:"installRequired"`
	DeliveryRequired bool `json:"deliveryRequired"`
}

type SharedContext struct {
	Type      string           `json:"type"`
	Key       string           `json:"key"`
	RecordURI string           `json:"record_uri"`
	GroupKey  string           `json:"group_key"`
	LineItems []SharedLineItem `json:"line_items"`
	Derived   SharedDerived    `json:"derived"`
}

type DeliverableContext struct {
	Type             string         `json:"type"`
	Key              string         `json:"key"`
	RecordURI        string         `json:"record_uri"`
	LineItemURI      string         `json:"line_item_uri"`
	Title            string         `json:"title,omitempty"`
	CategoryKey      string         `json:"category_key,omitempty"`
	DeliverableKey   string         `json:"deliverable_key,omitempty"`
	GroupKey         string         `json:"group_key,omitempty"`
	Quantity         *float64       `json:"quantity,omitempty"`
	Position         *int           `json:"position,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
	ConfigHash       string         `json:"config_hash,omitempty"`
	ConfigParseError string         `json:"configParseError,omitempty"`
}

type PlanContexts struct {
	Project      *ProjectContext      `json:"project"`
	Shared       []SharedContext      `json:"shared"`
	Deliverables []DeliverableContext `json:"deliverables"`
}

// PlanPreview is the normalised plan preview response.
type PlanPreview struct {
	PlanID                    string                       `json:"plan_id,omitempty"`
	Warnings                  []string                     `json:"warnings"`
	Contexts                  *PlanContexts                `json:"contexts"`
	MatchedTemplatesByContext map[string][]MatchedTemplate `json:"matchedTemplatesByContext"`
}

// ContextKey builds the "type::key" index used by MatchedTemplatesByContext.
func ContextKey(kind, key string) string {
	return kind + "::" + key
}

// Matches returns the templates matched to a context, or nil.
func (p PlanPreview) Matches(kind, key string) []MatchedTemplate {
	if p.MatchedTemplatesByContext == nil {
		return nil
	}
	return p.MatchedTemplatesByContext[ContextKey(kind, key)]
}
