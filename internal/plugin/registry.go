package plugin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicatePlugin = errors.New("duplicate plugin id")
	ErrEmptyPluginID   = errors.New("plugin id is empty")
	ErrUnknownPlugin   = errors.New("unknown plugin id")
	ErrIncludeExclude  = errors.New("include and exclude cannot be used together")
)

// Registry holds the plugins known to a process in registration order.
type Registry struct {
	plugins []Plugin
	byID    map[string]Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Plugin)}
}

// Register adds p. Ids must be unique and non-empty.
func (r *Registry) Register(p Plugin) error {
	id := p.Info().ID
	if strings.TrimSpace(id) == "" {
		return ErrEmptyPluginID
	}
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	r.byID[id] = p
	r.plugins = append(r.plugins, p)
	return nil
}

// Get looks a plugin up by id.
func (r *Registry) Get(id string) (Plugin, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	return len(r.plugins)
}

// All returns every plugin in registration order.
func (r *Registry) All() []Plugin {
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// IDs returns every plugin id in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		ids = append(ids, p.Info().ID)
	}
	return ids
}

// Select picks the plugins to run. With include only those ids run, with
// exclude everything but those ids runs, with neither everything runs.
// Unknown ids are rejected so typos do not silently skip a site.
func (r *Registry) Select(include, exclude []string) ([]Plugin, error) {
	include = compact(include)
	exclude = compact(exclude)

	if len(include) > 0 && len(exclude) > 0 {
		return nil, ErrIncludeExclude
	}
	for _, id := range append(include, exclude...) {
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
		}
	}

	switch {
	case len(include) > 0:
		return r.filter(toSet(include), true), nil
	case len(exclude) > 0:
		return r.filter(toSet(exclude), false), nil
	default:
		return r.All(), nil
	}
}

func (r *Registry) filter(ids map[string]struct{}, keep bool) []Plugin {
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		if _, ok := ids[p.Info().ID]; ok == keep {
			out = append(out, p)
		}
	}
	return out
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
