// Package torrent implements the BitTorrent transfer plugin on top of
// anacrolix/torrent.
//
// Candidates resolve to magnet links or .torrent URLs. The plugin downloads
// the largest video file in the torrent into its own data directory, then
// copies it to the destination path so partial torrent state never leaks
// into the library.
package torrent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	anacrolix "github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"aerial/internal/candidate"
	"aerial/internal/config"
	"aerial/internal/media"
	"aerial/internal/progress"
	"aerial/internal/retrieve"
)

var videoExts = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true, ".webm": true,
}

// Retriever downloads torrent candidates.
type Retriever struct {
	cfg config.Torrent

	mu     sync.Mutex
	client *anacrolix.Client
}

// New builds the plugin. The torrent client starts lazily on first use so
// a daemon with no torrent searchers never opens a listen port.
func New(cfg config.Torrent) *Retriever {
	return &Retriever{cfg: cfg}
}

func (r *Retriever) Name() string { return "torrent" }

func (r *Retriever) SupportedTypes() []candidate.Type {
	return []candidate.Type{candidate.TypeTorrent}
}

func (r *Retriever) AlwaysEnabled() bool { return false }

// Close shuts down the torrent client if it was ever started.
func (r *Retriever) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}

func (r *Retriever) getClient() (*anacrolix.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}

	if err := os.MkdirAll(r.cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	clientCfg := anacrolix.NewDefaultClientConfig()
	clientCfg.DataDir = r.cfg.DataDir
	clientCfg.Seed = false
	clientCfg.NoDHT = r.cfg.DisableDHT
	if r.cfg.ListenPort > 0 {
		clientCfg.ListenPort = r.cfg.ListenPort
	}

	client, err := anacrolix.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Retrieve downloads the candidate and copies the resulting video file to
// dest.
func (r *Retriever) Retrieve(ctx context.Context, prog *progress.State, ep *media.Episode, c *candidate.Candidate, dest string) error {
	res, err := c.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "resolve", "candidate resolution failed", err)
	}

	client, err := r.getClient()
	if err != nil {
		return retrieve.Wrap(retrieve.ErrHard, r.Name(), "client", "torrent client unavailable", err)
	}

	t, err := r.addTorrent(ctx, client, res)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "add", c.String(), err)
	}
	defer t.Drop()

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return ctx.Err()
	}

	file := chooseVideoFile(t)
	if file == nil {
		return retrieve.Wrap(retrieve.ErrAbortSoft, r.Name(), "inspect", "torrent contains no video file", nil)
	}
	prog.SetTotal(file.Length())
	file.Download()

	if err := r.waitForCompletion(ctx, prog, file); err != nil {
		return err
	}
	if err := copyFile(filepath.Join(r.cfg.DataDir, file.Path()), dest); err != nil {
		return retrieve.Wrap(retrieve.ErrHard, r.Name(), "copy", dest, err)
	}
	return nil
}

func (r *Retriever) addTorrent(ctx context.Context, client *anacrolix.Client, res *candidate.Resolution) (*anacrolix.Torrent, error) {
	if res.Magnet != "" {
		return client.AddMagnet(res.Magnet)
	}
	if res.URL == "" {
		return nil, fmt.Errorf("no magnet or torrent url")
	}

	// Indexer proxies frequently serve .torrent files from their link
	// URLs, redirecting to a magnet when they only have one.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if final := resp.Request.URL; final != nil && final.Scheme == "magnet" {
		return client.AddMagnet(final.String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	info, err := metainfo.Load(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("parse metainfo: %w", err)
	}
	return client.AddTorrent(info)
}

// waitForCompletion polls transfer progress, dropping the torrent when no
// bytes arrive for the configured stall cutoff.
func (r *Retriever) waitForCompletion(ctx context.Context, prog *progress.State, file *anacrolix.File) error {
	stallCutoff := time.Duration(r.cfg.StallCutoff) * time.Minute
	if stallCutoff <= 0 {
		stallCutoff = 30 * time.Minute
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastProgress := time.Now()
	lastCompleted := int64(0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		completed := file.BytesCompleted()
		prog.Publish(completed)
		if completed >= file.Length() {
			return nil
		}
		if completed > lastCompleted {
			lastCompleted = completed
			lastProgress = time.Now()
		} else if time.Since(lastProgress) > stallCutoff {
			return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "download",
				fmt.Sprintf("stalled for %s", stallCutoff), nil)
		}
	}
}

func chooseVideoFile(t *anacrolix.Torrent) *anacrolix.File {
	var best *anacrolix.File
	for _, f := range t.Files() {
		if !videoExts[strings.ToLower(filepath.Ext(f.Path()))] {
			continue
		}
		if best == nil || f.Length() > best.Length() {
			best = f
		}
	}
	return best
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
