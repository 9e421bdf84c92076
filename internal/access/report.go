package access

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// App is an access application as returned by the API, trimmed to the audited fields.
type App struct {
	ID                      string           `json:"id"`
	Name                    string           `json:"name"`
	Type                    string           `json:"type,omitempty"`
	Domain                  string           `json:"domain,omitempty"`
	SelfHostedDomains       []string         `json:"self_hosted_domains"`
	Destinations            []map[string]any `json:"destinations"`
	SessionDuration         string           `json:"session_duration,omitempty"`
	AppLauncherVisible      *bool            `json:"app_launcher_visible,omitempty"`
	AutoRedirectToIdentity  *bool            `json:"auto_redirect_to_identity,omitempty"`
	HTTPOnlyCookieAttribute *bool            `json:"http_only_cookie_attribute,omitempty"`
	SameSiteCookieAttribute string           `json:"same_site_cookie_attribute,omitempty"`
	OptionsPreflightBypass  *bool            `json:"options_preflight_bypass,omitempty"`
	AllowedIdps             []string         `json:"allowed_idps"`
}

type Policy struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Decision        string `json:"decision,omitempty"`
	Precedence      *int   `json:"precedence,omitempty"`
	Include         any    `json:"include,omitempty"`
	Exclude         any    `json:"exclude,omitempty"`
	Require         any    `json:"require,omitempty"`
	SessionDuration string `json:"session_duration,omitempty"`
	Reusable        *bool  `json:"reusable,omitempty"`
}

// AppReport is one matched app with its policies.
type AppReport struct {
	App
	Policies []Policy `json:"policies"`
}

type Report struct {
	GeneratedAt string      `json:"generated_at"`
	AccountID   string      `json:"account_id"`
	Hosts       []string    `json:"hosts"`
	Apps        []AppReport `json:"apps"`
}

// Domains lists the app's domain, self-hosted domains and destination URIs, deduplicated.
func (a App) Domains() []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(a.Domain)
	for _, d := range a.SelfHostedDomains {
		add(d)
	}
	for _, d := range a.Destinations {
		if uri, ok := d["uri"].(string); ok {
			add(uri)
		}
	}
	return out
}

// MatchesHost reports whether any of the app's domains contains host as a substring.
func (a App) MatchesHost(host string) bool {
	for _, d := range a.Domains() {
		if strings.Contains(d, host) {
			return true
		}
	}
	return false
}

func matchesAny(a App, hosts []string) bool {
	for _, h := range hosts {
		if a.MatchesHost(h) {
			return true
		}
	}
	return false
}

// Discover builds the report for hosts, falling back to DefaultHosts. Any API failure aborts it.
func (c *Client) Discover(ctx context.Context, hosts []string, now time.Time) (Report, error) {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	apps, err := c.Apps(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		GeneratedAt: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		AccountID:   c.AccountID,
		Hosts:       hosts,
		Apps:        []AppReport{},
	}
	for _, app := range apps {
		if !matchesAny(app, hosts) {
			continue
		}
		policies, err := c.Policies(ctx, app.ID)
		if err != nil {
			return Report{}, err
		}
		if policies == nil {
			policies = []Policy{}
		}
		if app.SelfHostedDomains == nil {
			app.SelfHostedDomains = []string{}
		}
		if app.Destinations == nil {
			app.Destinations = []map[string]any{}
		}
		if app.AllowedIdps == nil {
			app.AllowedIdps = []string{}
		}
		c.Logger.Debug("matched access app", zap.String("id", app.ID), zap.String("name", app.Name), zap.Int("policies", len(policies)))
		report.Apps = append(report.Apps, AppReport{App: app, Policies: policies})
	}
	return report, nil
}

// Write prints the report as indented JSON and, when outPath is set, saves it with a trailing newline.
func Write(w io.Writer, r Report, outPath string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, string(b)); err != nil {
		return err
	}
	if outPath == "" {
		return nil
	}
	return os.WriteFile(outPath, append(b, '\n'), 0o644)
}
