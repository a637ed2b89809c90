// Package httpget implements the direct-download transfer plugin.
//
// It supports range resume of partial files, verifies early in the
// transfer that the payload is actually video, and treats HTTP 416 with an
// empty body as an already-complete download.
package httpget

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"aerial/internal/candidate"
	"aerial/internal/media"
	"aerial/internal/progress"
	"aerial/internal/retrieve"
)

// verifyThreshold is how many bytes must arrive before the payload can be
// probed.
const verifyThreshold = 512 * 1024

// verifyRetryStep spaces out re-probes while an early probe stays
// inconclusive.
const verifyRetryStep = 8 * 1024 * 1024

const copyBufferSize = 128 * 1024

// Retriever downloads http candidates.
type Retriever struct {
	client   *http.Client
	verifier retrieve.Verifier
}

// New builds the plugin. verifier may be nil to skip content verification.
func New(verifier retrieve.Verifier) *Retriever {
	return &Retriever{
		// No overall timeout: transfers legitimately run for hours.
		// Cancellation comes from the request context.
		client:   &http.Client{},
		verifier: verifier,
	}
}

func (r *Retriever) Name() string { return "http" }

func (r *Retriever) SupportedTypes() []candidate.Type {
	return []candidate.Type{candidate.TypeHTTP}
}

func (r *Retriever) AlwaysEnabled() bool { return true }

// Retrieve fetches the candidate into dest, resuming from dest's current
// size when the file already exists.
func (r *Retriever) Retrieve(ctx context.Context, prog *progress.State, ep *media.Episode, c *candidate.Candidate, dest string) error {
	res, err := c.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "resolve", "candidate resolution failed", err)
	}
	if res.URL == "" {
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "resolve", "searcher did not provide a url", nil)
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return retrieve.Wrap(retrieve.ErrHard, r.Name(), "open", dest, err)
	}
	defer file.Close()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return retrieve.Wrap(retrieve.ErrHard, r.Name(), "seek", dest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "request", res.URL, err)
	}
	if res.Username != "" {
		req.SetBasicAuth(res.Username, res.Password)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "get", res.URL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		// The server has nothing beyond our offset: the previous attempt
		// already fetched the whole file.
		if resp.ContentLength <= 0 {
			prog.Publish(offset)
			return r.finalVerify(ctx, dest, c.Quality)
		}
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "get",
			fmt.Sprintf("unexpected range response for %s", res.URL), nil)
	case http.StatusOK:
		// Server ignored the range request; start over.
		if offset > 0 {
			if err := file.Truncate(0); err != nil {
				return retrieve.Wrap(retrieve.ErrHard, r.Name(), "truncate", dest, err)
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return retrieve.Wrap(retrieve.ErrHard, r.Name(), "seek", dest, err)
			}
			offset = 0
		}
	case http.StatusPartialContent:
	default:
		return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "get",
			fmt.Sprintf("http status %d for %s", resp.StatusCode, res.URL), nil)
	}

	if resp.ContentLength > 0 {
		prog.SetTotal(offset + resp.ContentLength)
	}

	if err := r.copyBody(ctx, prog, file, resp.Body, offset, dest, c.Quality); err != nil {
		return err
	}
	return r.finalVerify(ctx, dest, c.Quality)
}

func (r *Retriever) copyBody(ctx context.Context, prog *progress.State, file *os.File, body io.Reader, offset int64, dest string, quality media.Quality) error {
	buf := make([]byte, copyBufferSize)
	position := offset
	verified := false
	nextVerify := int64(verifyThreshold)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return retrieve.Wrap(retrieve.ErrHard, r.Name(), "write", dest, writeErr)
			}
			position += int64(n)
			prog.Publish(position)

			if r.verifier != nil && !verified && position >= nextVerify {
				ok, verr := r.verifier.Verify(ctx, dest, quality)
				if verr != nil {
					return retrieve.Wrap(retrieve.ErrAbortSoft, r.Name(), "verify", dest, verr)
				}
				if ok {
					verified = true
				} else {
					nextVerify = position + verifyRetryStep
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retrieve.Wrap(retrieve.ErrSoft, r.Name(), "read", dest, readErr)
		}
	}
}

// finalVerify probes the finished file once more. Only a definitive
// mismatch aborts; an inconclusive probe (no prober available, odd
// container) lets the file through, as the transfer itself succeeded.
func (r *Retriever) finalVerify(ctx context.Context, dest string, quality media.Quality) error {
	if r.verifier == nil {
		return nil
	}
	if _, err := r.verifier.Verify(ctx, dest, quality); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retrieve.Wrap(retrieve.ErrAbortSoft, r.Name(), "verify", dest, err)
	}
	return nil
}
