package search

import (
	"context"
	"errors"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/media"
)

// ErrDiscovery marks a plugin-local discovery failure. Dispatch logs it and
// moves on to the next plugin.
var ErrDiscovery = errors.New("discovery error")

// Request carries the parameters for one discovery pass over a series.
type Request struct {
	Series   *media.Series
	Episodes []*media.Episode
	// Earliest bounds how far back providers should look. Zero means
	// unbounded.
	Earliest time.Time
	// MinSize and IdealSize are derived from the series runtime and
	// quality tier.
	MinSize   int64
	IdealSize int64
	Quality   media.Quality
}

// Results maps episodes to their unranked candidates. Entries a plugin
// could not attribute to an episode go in Unassigned and are resolved by
// dispatch via name matching.
type Results struct {
	ByEpisode  map[*media.Episode][]*candidate.Candidate
	Unassigned []*candidate.Candidate
}

// Empty reports whether the result set carries no candidates at all.
func (r Results) Empty() bool {
	return len(r.ByEpisode) == 0 && len(r.Unassigned) == 0
}

// Searcher is a discovery plugin.
type Searcher interface {
	// Name is the plugin's internal name, lowercase, no spaces.
	Name() string
	// Type tags the transport its candidates need.
	Type() candidate.Type
	// AlwaysEnabled plugins run even when absent from the enabled list.
	AlwaysEnabled() bool
	// Search returns candidates for the requested episodes. A failure the
	// plugin understands is reported wrapped in ErrDiscovery; anything
	// else is treated the same by dispatch but logged louder.
	Search(ctx context.Context, req Request) (Results, error)
}

// Registry holds searcher plugins in registration order.
type Registry struct {
	plugins []Searcher
	byName  map[string]Searcher
}

// NewRegistry builds a registry from plugins in priority order.
func NewRegistry(plugins ...Searcher) *Registry {
	r := &Registry{byName: make(map[string]Searcher, len(plugins))}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register appends a plugin. A plugin re-registering under the same name
// replaces the earlier entry's lookup but keeps iteration order.
func (r *Registry) Register(p Searcher) {
	if _, exists := r.byName[p.Name()]; !exists {
		r.plugins = append(r.plugins, p)
	}
	r.byName[p.Name()] = p
}

// Get returns the plugin registered under name, or nil.
func (r *Registry) Get(name string) Searcher {
	return r.byName[name]
}

// Ordered returns plugins in dispatch order: the enabled names first, in
// their configured order, then any always-enabled plugins not already
// listed. Unknown names are skipped.
func (r *Registry) Ordered(enabled []string) []Searcher {
	seen := make(map[string]struct{}, len(enabled))
	var out []Searcher
	for _, name := range enabled {
		p := r.byName[name]
		if p == nil {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, p)
	}
	for _, p := range r.plugins {
		if !p.AlwaysEnabled() {
			continue
		}
		if _, dup := seen[p.Name()]; dup {
			continue
		}
		seen[p.Name()] = struct{}{}
		out = append(out, p)
	}
	return out
}
