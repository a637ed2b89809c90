// Package easynews implements the easynews global-search discovery plugin.
//
// Easynews exposes its global search as an RSS feed behind basic auth; each
// item's enclosure carries a direct download URL sized for the http
// retriever.
package easynews

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/config"
	"aerial/internal/media"
	"aerial/internal/search"
)

// defaultURL is the global5 search endpoint. The placeholders are filled
// with the query subject, earliest date, and minimum size.
const defaultURL = "https://secure.members.easynews.com/global5/index.html?gps=&sbj={subject}&from=&ns=&fil=&fex=&vc=&ac=&s1=nsubject&s1d=%2B&s2=nrfile&s2d=%2B&s3=dsize&s3d=%2B&pby=500&u=1&svL=&d1={date}&d1t=&d2=&d2t=&b1={size}&b1t=&b2=&b2t=&px1=&px1t=&px2=&px2t=&fps1=&fps1t=&fps2=&fps2t=&bps1=&bps1t=&bps2=&bps2t=&hz1=&hz1t=&hz2=&hz2t=&rn1=&rn1t=&rn2=&rn2t=&fly=2&pno=1&sS=5"

// Searcher queries the easynews global search.
type Searcher struct {
	cfg    config.Easynews
	client *http.Client
}

// New builds the plugin from its config section.
func New(cfg config.Easynews) *Searcher {
	return &Searcher{
		cfg:    cfg,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *Searcher) Name() string { return "easynews" }

func (s *Searcher) Type() candidate.Type { return candidate.TypeHTTP }

func (s *Searcher) AlwaysEnabled() bool { return false }

// Search runs one global-search query covering every requested episode and
// returns the feed items unassigned; dispatch matches them to episodes.
func (s *Searcher) Search(ctx context.Context, req search.Request) (search.Results, error) {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return search.Results{}, fmt.Errorf("%w: easynews credentials not configured", search.ErrDiscovery)
	}

	feed, err := s.fetch(ctx, s.buildQuery(req), req)
	if err != nil {
		return search.Results{}, err
	}

	results := search.Results{}
	for _, item := range feed.Channel.Items {
		if item.Enclosure.URL == "" {
			continue
		}
		c := &candidate.Candidate{
			Type:     candidate.TypeHTTP,
			Searcher: s.Name(),
			Filename: enclosureFilename(item.Enclosure.URL),
			Subject:  item.Title,
			Size:     item.Enclosure.Size(),
			Quality:  req.Quality,
		}
		if published, err := parsePubDate(item.PubDate); err == nil {
			c.Published = published
		}
		enclosureURL := item.Enclosure.URL
		c.SetResolver(func(context.Context) (*candidate.Resolution, error) {
			return &candidate.Resolution{
				URL:      enclosureURL,
				Username: s.cfg.Username,
				Password: s.cfg.Password,
			}, nil
		})
		results.Unassigned = append(results.Unassigned, c)
	}
	return results, nil
}

// buildQuery assembles the search subject: every title word as a bounded
// regexp, the episode code alternation, and a resolution hint for HD tiers.
func (s *Searcher) buildQuery(req search.Request) string {
	title := search.CleanTitle(req.Series.SearchName())
	words := make([]string, 0, len(title))
	for _, word := range strings.Fields(title) {
		words = append(words, `\b`+word+`\b`)
	}
	query := strings.Join(words, " ") + " " + search.EpisodeCodesPattern(req.Episodes)
	if req.Quality == media.QualityHD {
		query += " (720p|1080p)"
	}
	return query
}

func (s *Searcher) fetch(ctx context.Context, query string, req search.Request) (*rssFeed, error) {
	endpoint := s.cfg.URL
	if endpoint == "" {
		endpoint = defaultURL
	}
	size := "100M"
	if req.MinSize > 0 {
		size = fmt.Sprintf("%dM", req.MinSize/(1024*1024))
	}
	date := ""
	if !req.Earliest.IsZero() {
		date = req.Earliest.Format("2006-01-02")
	}
	endpoint = strings.NewReplacer(
		"{subject}", url.QueryEscape(query),
		"{date}", url.QueryEscape(date),
		"{size}", size,
	).Replace(endpoint)

	var lastErr error
	attempts := s.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		feed, err := s.fetchOnce(ctx, endpoint)
		if err == nil {
			return feed, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: easynews: %w", search.ErrDiscovery, lastErr)
}

func (s *Searcher) fetchOnce(ctx context.Context, endpoint string) (*rssFeed, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(s.cfg.Username, s.cfg.Password)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return &feed, nil
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	PubDate   string       `xml:"pubDate"`
	Enclosure rssEnclosure `xml:"enclosure"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
}

// Size parses the enclosure length, tolerating human-readable values like
// "1.2 GiB" that easynews emits in some feed variants.
func (e rssEnclosure) Size() int64 {
	value := strings.TrimSpace(strings.ToLower(e.Length))
	if value == "" {
		return 0
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}

	parts := strings.Fields(value)
	if len(parts) == 0 {
		return 0
	}
	sz, err := strconv.ParseFloat(strings.ReplaceAll(parts[0], ",", ""), 64)
	if err != nil {
		return 0
	}
	mult := float64(1)
	if len(parts) == 2 {
		switch parts[1] {
		case "gib":
			mult = 1024 * 1024 * 1024
		case "gb":
			mult = 1000 * 1000 * 1000
		case "mib":
			mult = 1024 * 1024
		case "mb":
			mult = 1000 * 1000
		case "kib":
			mult = 1024
		case "kb":
			mult = 1000
		}
	}
	return int64(sz * mult)
}

func enclosureFilename(enclosureURL string) string {
	name := path.Base(enclosureURL)
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func parsePubDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty pubDate")
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubDate %q", value)
}
