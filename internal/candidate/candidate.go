package candidate

import (
	"context"
	"errors"
	"sync"
	"time"

	"aerial/internal/media"
)

// Type tags the transport a candidate needs. Only retrievers supporting the
// type are eligible to fetch it.
type Type string

const (
	TypeHTTP    Type = "http"
	TypeTorrent Type = "torrent"
)

// ErrUnresolvable indicates the originating searcher can no longer supply
// the transfer target for a candidate.
var ErrUnresolvable = errors.New("candidate cannot be resolved")

// Resolution is the transport-specific connection data a retriever needs.
// Which fields are set depends on the candidate type.
type Resolution struct {
	// URL is the direct transfer target for http candidates.
	URL string
	// Username and Password accompany URL when the source requires
	// basic authentication.
	Username string
	Password string
	// Magnet is the magnet link for torrent candidates.
	Magnet string
}

// ResolveFunc fetches Resolution data from the originating searcher. It may
// hit the network and must honor ctx.
type ResolveFunc func(ctx context.Context) (*Resolution, error)

// Candidate is a proposed source for one episode. Fields are set by the
// discovery plugin and immutable once ranked, except Disqualified which is
// written by ranking.
type Candidate struct {
	Type      Type
	Searcher  string
	Filename  string
	Subject   string
	Size      int64
	Published time.Time
	Quality   media.Quality

	// Disqualified is set during ranking when the container is on the
	// deny list. Disqualified candidates are removed, never retried.
	Disqualified bool

	mu       sync.Mutex
	resolve  ResolveFunc
	resolved *Resolution
}

// SetResolver installs the lazy resolution callback. Discovery plugins call
// this when constructing the candidate.
func (c *Candidate) SetResolver(fn ResolveFunc) {
	c.mu.Lock()
	c.resolve = fn
	c.mu.Unlock()
}

// Resolve returns the transport-specific connection data, fetching it from
// the originating searcher on first call and memoizing the result. Only a
// successful resolution is cached; a failed attempt is retried on the next
// call. Retrievers may call this repeatedly without repeating the fetch.
func (c *Candidate) Resolve(ctx context.Context) (*Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved != nil {
		return c.resolved, nil
	}
	if c.resolve == nil {
		return nil, ErrUnresolvable
	}
	res, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrUnresolvable
	}
	c.resolved = res
	return res, nil
}

// String returns the candidate's display name, preferring the filename.
func (c *Candidate) String() string {
	if c.Filename != "" {
		return c.Filename
	}
	return c.Subject
}
