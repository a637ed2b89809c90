package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/logging"
	"aerial/internal/media"
)

const mib = int64(1024 * 1024)

// WorkItem pairs an episode with its ranked candidates.
type WorkItem struct {
	Series     *media.Series
	Episode    *media.Episode
	Candidates []*candidate.Candidate
}

// Dispatcher walks discovery plugins in priority order until one yields
// usable candidates.
type Dispatcher struct {
	registry   *Registry
	enabled    []string
	marginDays int
	logger     *slog.Logger
}

// NewDispatcher builds a dispatcher. enabled lists plugin names in priority
// order; marginDays widens the earliest-date window below the oldest
// airdate.
func NewDispatcher(registry *Registry, enabled []string, marginDays int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		registry:   registry,
		enabled:    enabled,
		marginDays: marginDays,
		logger:     logging.WithComponent(logger, "search"),
	}
}

// SizeBounds derives the minimum and ideal candidate sizes for a series
// from its runtime and quality tier.
func SizeBounds(series *media.Series) (minSize, idealSize int64) {
	minPerMin, maxPerMin := series.Quality.SizeWindow()
	runtime := int64(series.Runtime())
	return int64(minPerMin * float64(runtime*mib)), int64(maxPerMin * float64(runtime*mib))
}

// Search runs the plugin walk for one series and returns ranked work items,
// one per episode that ended up with at least one qualified candidate.
// Plugin failures are logged and treated as empty result sets; Search only
// returns an error when the context is cancelled.
func (d *Dispatcher) Search(ctx context.Context, series *media.Series, episodes []*media.Episode) ([]WorkItem, error) {
	if len(episodes) == 0 {
		return nil, nil
	}

	req := Request{
		Series:   series,
		Episodes: episodes,
		Earliest: d.earliest(episodes),
		Quality:  series.Quality,
	}
	req.MinSize, req.IdealSize = SizeBounds(series)

	for _, plugin := range d.registry.Ordered(d.enabled) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		results, err := d.invoke(ctx, plugin, req)
		if err != nil {
			d.logger.Error("searcher failed",
				logging.String(logging.FieldSearcher, plugin.Name()),
				logging.String(logging.FieldSeries, series.Name),
				logging.Error(err))
			continue
		}
		if results.Empty() {
			d.logger.Debug("searcher found no results",
				logging.String(logging.FieldSearcher, plugin.Name()),
				logging.String(logging.FieldSeries, series.Name))
			continue
		}
		if items := d.collate(series, episodes, results, req); len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

// invoke isolates a single plugin call, converting panics into errors so a
// misbehaving plugin cannot take down the check loop.
func (d *Dispatcher) invoke(ctx context.Context, plugin Searcher, req Request) (results Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("searcher panic: %v", r)
		}
	}()
	return plugin.Search(ctx, req)
}

// collate resolves unassigned results against episodes, then ranks and
// filters each episode's candidate list.
func (d *Dispatcher) collate(series *media.Series, episodes []*media.Episode, results Results, req Request) []WorkItem {
	byEpisode := results.ByEpisode
	if byEpisode == nil {
		byEpisode = make(map[*media.Episode][]*candidate.Candidate)
	}

	matchers := make(map[*media.Episode]func(string) bool, len(episodes))
	for _, ep := range episodes {
		matchers[ep] = NameMatcher(series, ep)
	}

	for _, c := range results.Unassigned {
		assigned := false
		for _, ep := range episodes {
			if matchers[ep](c.Filename) {
				byEpisode[ep] = append(byEpisode[ep], c)
				assigned = true
				break
			}
		}
		if assigned || c.Subject == "" {
			continue
		}
		// Subjects can name several episodes at once (archive bundles), so
		// filename matching runs first and subject is the fallback.
		for _, ep := range episodes {
			if matchers[ep](c.Subject) {
				byEpisode[ep] = append(byEpisode[ep], c)
				break
			}
		}
	}

	var items []WorkItem
	for _, ep := range episodes {
		list := byEpisode[ep]
		if len(list) == 0 {
			continue
		}
		ranked := candidate.Rank(list, matchers[ep], req.MinSize, req.IdealSize)
		if len(ranked) == 0 {
			continue
		}
		items = append(items, WorkItem{Series: series, Episode: ep, Candidates: ranked})
	}
	return items
}

func (d *Dispatcher) earliest(episodes []*media.Episode) time.Time {
	var earliest time.Time
	for _, ep := range episodes {
		if ep.AirDate.IsZero() {
			continue
		}
		if earliest.IsZero() || ep.AirDate.Before(earliest) {
			earliest = ep.AirDate
		}
	}
	if earliest.IsZero() {
		return earliest
	}
	return earliest.AddDate(0, 0, -d.marginDays)
}
