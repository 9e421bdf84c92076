// Package prefs is the preferences service shared by every panel.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

const (
	KeyTab              = "ftops-ui:tab"
	KeyRecordURI        = "ftops-ui:record-uri"
	KeyAutoRunPreview   = "ftops-ui:auto-run-preview"
	KeyDebugEmail       = "ftops-ui:debug-email"
	KeyProjectID        = "ftops-ui:project-id"
	KeyWorkspaceID      = "ftops-ui:workspace-id"
	KeyTemplateSelected = "ftops-ui:templates:selected"
	KeyTemplateSearch   = "ftops-ui:templates:search"
	KeyDemoState        = "ftops-ui:demo:state"
	KeyDemoLog          = "ftops-ui:demo:log"
)

// Known lists every key the console reads, in display order.
var Known = []string{
	KeyTab, KeyRecordURI, KeyAutoRunPreview, KeyDebugEmail, KeyProjectID,
	KeyWorkspaceID, KeyTemplateSelected, KeyTemplateSearch, KeyDemoState, KeyDemoLog,
}

const (
	TabPreview      = "preview"
	TabEvents       = "events"
	TabDemo         = "demo"
	TabTemplates    = "templates"
	TabProjects     = "projects"
	TabIntegrations = "integrations"
	TabIngest       = "ingest"
	TabWorkspaces   = "workspaces"
)

// Tabs lists the console tabs in display order.
var Tabs = []string{TabPreview, TabEvents, TabDemo, TabTemplates, TabProjects, TabIntegrations, TabIngest, TabWorkspaces}

// Prefs caches preferences in memory and writes every change through to the store.
type Prefs struct {
	mu    sync.RWMutex
	cache map[string]string
	store Store
}

// Open loads the store once into the cache.
func Open(ctx context.Context, store Store) (*Prefs, error) {
	values, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Prefs{cache: values, store: store}, nil
}

// NewMemory returns preferences backed by a MemoryStore.
func NewMemory() *Prefs {
	return &Prefs{cache: map[string]string{}, store: NewMemoryStore()}
}

func (p *Prefs) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache[key]
	return v, ok
}

func (p *Prefs) String(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

func (p *Prefs) Bool(key string, def bool) bool {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (p *Prefs) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Put(ctx, key, value); err != nil {
		return fmt.Errorf("save preference %s: %w", key, err)
	}
	p.cache[key] = value
	return nil
}

func (p *Prefs) SetBool(ctx context.Context, key string, v bool) error {
	return p.Set(ctx, key, strconv.FormatBool(v))
}

// Unset removes key; removing a missing key is not an error.
func (p *Prefs) Unset(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	delete(p.cache, key)
	return nil
}

// SetOrUnset stores value, or removes the key when value is empty.
func (p *Prefs) SetOrUnset(ctx context.Context, key, value string) error {
	if value == "" {
		return p.Unset(ctx, key)
	}
	return p.Set(ctx, key, value)
}

// GetJSON decodes key into out. It reports false when the key is missing or unreadable.
func (p *Prefs) GetJSON(key string, out any) bool {
	v, ok := p.Get(key)
	if !ok || v == "" {
		return false
	}
	return json.Unmarshal([]byte(v), out) == nil
}

func (p *Prefs) SetJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", key, err)
	}
	return p.Set(ctx, key, string(b))
}

// All returns a copy of every stored preference.
func (p *Prefs) All() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.cache))
	for k, v := range p.cache {
		out[k] = v
	}
	return out
}

// Keys returns stored keys sorted.
func (p *Prefs) Keys() []string {
	all := p.All()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ActiveTab returns the persisted tab, defaulting to preview for unknown values.
func (p *Prefs) ActiveTab() string {
	tab := p.String(KeyTab, TabPreview)
	for _, t := range Tabs {
		if t == tab {
			return tab
		}
	}
	return TabPreview
}

func (p *Prefs) SetActiveTab(ctx context.Context, tab string) error {
	for _, t := range Tabs {
		if t == tab {
			return p.Set(ctx, KeyTab, tab)
		}
	}
	return fmt.Errorf("unknown tab %q", tab)
}

func (p *Prefs) RecordURI() string { return p.String(KeyRecordURI, "") }
func (p *Prefs) AutoRunPreview() bool { return p.Bool(KeyAutoRunPreview, true) }
func (p *Prefs) DebugEmail() string { return p.String(KeyDebugEmail, "") }
func (p *Prefs) ProjectID() string { return p.String(KeyProjectID, "") }
func (p *Prefs) WorkspaceID() string { return p.String(KeyWorkspaceID, "") }
