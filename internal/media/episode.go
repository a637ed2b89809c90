package media

import (
	"fmt"
	"time"
)

// Status is the acquisition lifecycle state of an episode.
type Status int

const (
	// StatusNone marks episodes outside the acquisition window.
	StatusNone Status = iota
	// StatusNeed marks episodes that should be acquired when available.
	StatusNeed
	// StatusHave marks episodes already present in the library.
	StatusHave
	// StatusNeedForced marks episodes re-queued by the operator even though
	// a copy may already exist.
	StatusNeedForced
	// StatusIgnore marks episodes the operator never wants acquired.
	StatusIgnore
)

var statusNames = map[Status]string{
	StatusNone:       "none",
	StatusNeed:       "need",
	StatusHave:       "have",
	StatusNeedForced: "need_forced",
	StatusIgnore:     "ignore",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus converts a stored status name back to its Status value.
func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown episode status %q", name)
}

// Episode is a single installment of a series. SeriesID and the
// season/number pair identify it; AirDate may be zero for undated specials.
type Episode struct {
	ID       int64
	SeriesID int64
	Season   int
	Number   int
	Title    string
	AirDate  time.Time
	Status   Status

	// Filename is the name of the file in the library once retrieved.
	Filename string

	// LastCandidate names the source used for the most recent transfer
	// attempt so a partial download can resume from the same source.
	LastCandidate string

	// Queued is transient daemon state, never persisted. It prevents the
	// periodic check from dispatching an episode twice.
	Queued bool
}

// Code renders the canonical episode code, e.g. "S01E02".
func (e *Episode) Code() string {
	return fmt.Sprintf("S%02dE%02d", e.Season, e.Number)
}

// Ready reports whether the episode is due for acquisition: it is wanted
// and its airdate has passed (forced episodes ignore the airdate).
func (e *Episode) Ready(now time.Time) bool {
	switch e.Status {
	case StatusNeedForced:
		return true
	case StatusNeed:
		return e.AirDate.IsZero() || !e.AirDate.After(now)
	default:
		return false
	}
}

// Wanted reports whether the episode should ever be acquired.
func (e *Episode) Wanted() bool {
	return e.Status == StatusNeed || e.Status == StatusNeedForced
}
