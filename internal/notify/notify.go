package notify

import (
	"context"
	"log/slog"

	"aerial/internal/logging"
	"aerial/internal/media"
)

// Retrieved describes one successfully acquired episode for notification
// purposes.
type Retrieved struct {
	Series  string
	Episode media.Episode
}

// Notifier is a notification sink plugin.
type Notifier interface {
	// Name is the plugin's internal name, lowercase, no spaces.
	Name() string
	// Enabled reports whether the sink is configured and should receive
	// events.
	Enabled() bool
	// NotifyRetrieved delivers a batch of newly acquired episodes.
	NotifyRetrieved(ctx context.Context, batch []Retrieved) error
	// NotifyAlert delivers an operator alert.
	NotifyAlert(ctx context.Context, title, message string) error
}

// Registry holds notification sinks in registration order.
type Registry struct {
	sinks  []Notifier
	byName map[string]Notifier
}

// NewRegistry builds a registry from sinks in priority order.
func NewRegistry(sinks ...Notifier) *Registry {
	r := &Registry{byName: make(map[string]Notifier, len(sinks))}
	for _, s := range sinks {
		r.Register(s)
	}
	return r
}

// Register appends a sink.
func (r *Registry) Register(s Notifier) {
	if _, exists := r.byName[s.Name()]; !exists {
		r.sinks = append(r.sinks, s)
	}
	r.byName[s.Name()] = s
}

// Ordered returns the configured sinks in dispatch order: enabled names
// first, then any remaining sink that reports itself enabled.
func (r *Registry) Ordered(enabled []string) []Notifier {
	seen := make(map[string]struct{}, len(enabled))
	var out []Notifier
	appendIf := func(s Notifier) {
		if s == nil {
			return
		}
		if _, dup := seen[s.Name()]; dup {
			return
		}
		seen[s.Name()] = struct{}{}
		if s.Enabled() {
			out = append(out, s)
		}
	}
	for _, name := range enabled {
		appendIf(r.byName[name])
	}
	for _, s := range r.sinks {
		appendIf(s)
	}
	return out
}

// Dispatcher fans events out to every configured sink. Delivery is
// best-effort: a sink error is logged at warn level and the remaining
// sinks still run.
type Dispatcher struct {
	sinks  []Notifier
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher over the sinks the registry resolves
// for the enabled list.
func NewDispatcher(registry *Registry, enabled []string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sinks:  registry.Ordered(enabled),
		logger: logging.WithComponent(logger, "notify"),
	}
}

// Retrieved announces a batch of acquired episodes. Empty batches are
// dropped.
func (d *Dispatcher) Retrieved(ctx context.Context, batch []Retrieved) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range d.sinks {
		if err := sink.NotifyRetrieved(ctx, batch); err != nil {
			d.logger.Warn("retrieved notification failed", logging.Args(
				logging.String(logging.FieldNotifier, sink.Name()),
				logging.Int("episodes", len(batch)),
				logging.Error(err),
			)...)
		}
	}
}

// Alert announces an operator-facing failure.
func (d *Dispatcher) Alert(ctx context.Context, title, message string) {
	for _, sink := range d.sinks {
		if err := sink.NotifyAlert(ctx, title, message); err != nil {
			d.logger.Warn("alert notification failed", logging.Args(
				logging.String(logging.FieldNotifier, sink.Name()),
				logging.Error(err),
			)...)
		}
	}
}
