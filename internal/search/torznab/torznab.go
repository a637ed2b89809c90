// Package torznab implements a discovery plugin speaking the torznab XML
// API exposed by indexer proxies such as Prowlarr and Jackett.
//
// Results carry magnet links (or .torrent URLs) consumed by the torrent
// retriever.
package torznab

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/config"
	"aerial/internal/media"
	"aerial/internal/search"
)

// Searcher queries a torznab endpoint once per requested episode.
type Searcher struct {
	cfg    config.Torznab
	client *http.Client
}

// New builds the plugin from its config section.
func New(cfg config.Torznab) *Searcher {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Searcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Searcher) Name() string { return "torznab" }

func (s *Searcher) Type() candidate.Type { return candidate.TypeTorrent }

func (s *Searcher) AlwaysEnabled() bool { return false }

// Search queries the indexer per episode; per-episode results come back
// already assigned, so dispatch skips name matching for them.
func (s *Searcher) Search(ctx context.Context, req search.Request) (search.Results, error) {
	if strings.TrimSpace(s.cfg.URL) == "" {
		return search.Results{}, fmt.Errorf("%w: torznab url not configured", search.ErrDiscovery)
	}

	results := search.Results{ByEpisode: make(map[*media.Episode][]*candidate.Candidate)}
	title := search.CleanTitle(req.Series.SearchName())

	for _, ep := range req.Episodes {
		if ctx.Err() != nil {
			return search.Results{}, ctx.Err()
		}
		feed, err := s.query(ctx, title+" "+ep.Code())
		if err != nil {
			return search.Results{}, fmt.Errorf("%w: torznab %s: %w", search.ErrDiscovery, ep.Code(), err)
		}
		for _, item := range feed.Channel.Items {
			if c := s.toCandidate(item, req.Quality); c != nil {
				results.ByEpisode[ep] = append(results.ByEpisode[ep], c)
			}
		}
		if len(results.ByEpisode[ep]) == 0 {
			delete(results.ByEpisode, ep)
		}
	}
	return results, nil
}

func (s *Searcher) query(ctx context.Context, q string) (*torznabFeed, error) {
	endpoint, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	values := endpoint.Query()
	values.Set("apikey", s.cfg.APIKey)
	values.Set("t", "search")
	values.Set("q", q)
	endpoint.RawQuery = values.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var feed torznabFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return &feed, nil
}

func (s *Searcher) toCandidate(item torznabItem, quality media.Quality) *candidate.Candidate {
	link := item.Link
	if link == "" {
		return nil
	}
	c := &candidate.Candidate{
		Type:     candidate.TypeTorrent,
		Searcher: s.Name(),
		Filename: item.Title,
		Size:     item.Size,
		Quality:  quality,
	}
	if published, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
		c.Published = published
	}
	c.SetResolver(func(context.Context) (*candidate.Resolution, error) {
		if strings.HasPrefix(strings.ToLower(link), "magnet:") {
			return &candidate.Resolution{Magnet: link}, nil
		}
		// Indexer proxies redirect .torrent links to magnets; the
		// retriever follows either form.
		return &candidate.Resolution{URL: link}, nil
	})
	return c
}

type torznabFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	Size    int64  `xml:"size"`
	PubDate string `xml:"pubDate"`
	Seeders int    `xml:"seeders"`
	Peers   int    `xml:"peers"`
}
