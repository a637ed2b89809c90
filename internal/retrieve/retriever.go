package retrieve

import (
	"context"

	"aerial/internal/candidate"
	"aerial/internal/media"
	"aerial/internal/progress"
)

// Retriever is a transfer plugin.
type Retriever interface {
	// Name is the plugin's internal name, lowercase, no spaces.
	Name() string
	// SupportedTypes lists the candidate transport types the plugin can
	// fetch.
	SupportedTypes() []candidate.Type
	// AlwaysEnabled plugins run even when absent from the enabled list.
	AlwaysEnabled() bool
	// Retrieve fetches the candidate into dest, publishing positions to
	// prog as it goes. It returns nil on success or an error wrapped with
	// one of this package's sentinels; cancellation of ctx must abort the
	// transfer and surface as ErrAbortHard or ctx.Err(). The plugin may
	// write only to dest.
	Retrieve(ctx context.Context, prog *progress.State, ep *media.Episode, c *candidate.Candidate, dest string) error
}

// Registry holds transfer plugins in registration order.
type Registry struct {
	plugins []Retriever
	byName  map[string]Retriever
}

// NewRegistry builds a registry from plugins in priority order.
func NewRegistry(plugins ...Retriever) *Registry {
	r := &Registry{byName: make(map[string]Retriever, len(plugins))}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register appends a plugin.
func (r *Registry) Register(p Retriever) {
	if _, exists := r.byName[p.Name()]; !exists {
		r.plugins = append(r.plugins, p)
	}
	r.byName[p.Name()] = p
}

// Get returns the plugin registered under name, or nil.
func (r *Registry) Get(name string) Retriever {
	return r.byName[name]
}

// OrderedFor returns the plugins eligible for a transport type in dispatch
// order: enabled names first, then always-enabled plugins not already
// listed.
func (r *Registry) OrderedFor(enabled []string, t candidate.Type) []Retriever {
	seen := make(map[string]struct{}, len(enabled))
	var out []Retriever
	appendIf := func(p Retriever) {
		if p == nil {
			return
		}
		if _, dup := seen[p.Name()]; dup {
			return
		}
		seen[p.Name()] = struct{}{}
		if supportsType(p, t) {
			out = append(out, p)
		}
	}
	for _, name := range enabled {
		appendIf(r.byName[name])
	}
	for _, p := range r.plugins {
		if p.AlwaysEnabled() {
			appendIf(p)
		}
	}
	return out
}

func supportsType(p Retriever, t candidate.Type) bool {
	for _, supported := range p.SupportedTypes() {
		if supported == t {
			return true
		}
	}
	return false
}
