package httpget

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/media"
	"aerial/internal/progress"
	"aerial/internal/retrieve"
)

type stubVerifier struct {
	ok    bool
	err   error
	calls int
}

func (v *stubVerifier) Verify(context.Context, string, media.Quality) (bool, error) {
	v.calls++
	return v.ok, v.err
}

func resolvedCandidate(url, user, pass string) *candidate.Candidate {
	c := &candidate.Candidate{Type: candidate.TypeHTTP, Filename: "show.s01e01.mkv"}
	c.SetResolver(func(context.Context) (*candidate.Resolution, error) {
		return &candidate.Resolution{URL: url, Username: user, Password: pass}, nil
	})
	return c
}

func testEpisode() *media.Episode {
	return &media.Episode{Season: 1, Number: 1}
}

func TestRetrieveDownloadsFile(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user != "u" || pass != "p" {
			http.Error(w, "denied", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mkv")
	r := New(nil)
	prog := progress.New(int64(len(payload)), time.Minute)

	err := r.Retrieve(context.Background(), prog, testEpisode(), resolvedCandidate(server.URL, "u", "p"), dest)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("payload mismatch: %d bytes", len(data))
	}
	if prog.Position() != int64(len(payload)) {
		t.Fatalf("final position = %d", prog.Position())
	}
}

func TestRetrieveResumesWithRange(t *testing.T) {
	full := "0123456789abcdef"
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if gotRange != "bytes=8-" {
			http.Error(w, "unexpected range", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(full[8:]))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mkv")
	if err := os.WriteFile(dest, []byte(full[:8]), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	err := r.Retrieve(context.Background(), progress.New(int64(len(full)), time.Minute), testEpisode(), resolvedCandidate(server.URL, "", ""), dest)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != full {
		t.Fatalf("resumed content = %q", data)
	}
}

func TestRetrieveRestartsWhenRangeIgnored(t *testing.T) {
	full := "freshcontent"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(full))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mkv")
	if err := os.WriteFile(dest, []byte("stalepartial"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	err := r.Retrieve(context.Background(), progress.New(0, time.Minute), testEpisode(), resolvedCandidate(server.URL, "", ""), dest)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != full {
		t.Fatalf("content = %q, want fresh payload", data)
	}
}

func TestRetrieve416MeansComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mkv")
	if err := os.WriteFile(dest, []byte("entire file already here"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	err := r.Retrieve(context.Background(), progress.New(0, time.Minute), testEpisode(), resolvedCandidate(server.URL, "", ""), dest)
	if err != nil {
		t.Fatalf("Retrieve: %v, want success for fully retrieved file", err)
	}
}

func TestRetrieveBadStatusIsSoft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	r := New(nil)
	dest := filepath.Join(t.TempDir(), "out.mkv")
	err := r.Retrieve(context.Background(), progress.New(0, time.Minute), testEpisode(), resolvedCandidate(server.URL, "", ""), dest)
	if !retrieve.IsSoft(err) {
		t.Fatalf("err = %v, want soft", err)
	}
}

func TestRetrieveVerificationFailureAborts(t *testing.T) {
	payload := strings.Repeat("x", 1024*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	verifier := &stubVerifier{err: retrieve.Wrap(retrieve.ErrAbortSoft, "", "verify", "not video", nil)}
	r := New(verifier)
	dest := filepath.Join(t.TempDir(), "out.mkv")

	err := r.Retrieve(context.Background(), progress.New(int64(len(payload)), time.Minute), testEpisode(), resolvedCandidate(server.URL, "", ""), dest)
	if !errors.Is(err, retrieve.ErrAbortSoft) {
		t.Fatalf("err = %v, want soft abort", err)
	}
	if verifier.calls == 0 {
		t.Fatal("verifier never invoked")
	}
}

func TestRetrieveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		_, _ = w.Write([]byte(strings.Repeat("x", 256*1024)))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		cancel()
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	r := New(nil)
	dest := filepath.Join(t.TempDir(), "out.mkv")
	err := r.Retrieve(ctx, progress.New(1048576, time.Minute), testEpisode(), resolvedCandidate(server.URL, "", ""), dest)
	if !retrieve.IsCancelled(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
}

func TestRetrieveUnresolvableIsSoft(t *testing.T) {
	c := &candidate.Candidate{Type: candidate.TypeHTTP, Filename: "x.mkv"}
	r := New(nil)
	err := r.Retrieve(context.Background(), progress.New(0, time.Minute), testEpisode(), c, filepath.Join(t.TempDir(), "out.mkv"))
	if !retrieve.IsSoft(err) {
		t.Fatalf("err = %v, want soft", err)
	}
}
