package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aerial/internal/config"
	"aerial/internal/logging"
	"aerial/internal/media"
)

type fakeSink struct {
	name      string
	enabled   bool
	err       error
	retrieved int
	alerts    int
}

func (f *fakeSink) Name() string  { return f.name }
func (f *fakeSink) Enabled() bool { return f.enabled }

func (f *fakeSink) NotifyRetrieved(context.Context, []Retrieved) error {
	f.retrieved++
	return f.err
}

func (f *fakeSink) NotifyAlert(context.Context, string, string) error {
	f.alerts++
	return f.err
}

func sampleBatch() []Retrieved {
	return []Retrieved{
		{Series: "Show", Episode: media.Episode{Season: 1, Number: 2, Title: "Pilot"}},
		{Series: "Other", Episode: media.Episode{Season: 3, Number: 4}},
	}
}

func TestRegistryOrderedSkipsDisabled(t *testing.T) {
	a := &fakeSink{name: "a", enabled: true}
	b := &fakeSink{name: "b"}
	c := &fakeSink{name: "c", enabled: true}
	registry := NewRegistry(a, b, c)

	ordered := registry.Ordered([]string{"c", "b"})
	if len(ordered) != 2 || ordered[0].Name() != "c" || ordered[1].Name() != "a" {
		names := make([]string, len(ordered))
		for i, s := range ordered {
			names[i] = s.Name()
		}
		t.Fatalf("Ordered = %v", names)
	}
}

func TestDispatcherContinuesPastFailingSink(t *testing.T) {
	failing := &fakeSink{name: "a", enabled: true, err: errors.New("boom")}
	healthy := &fakeSink{name: "b", enabled: true}
	d := NewDispatcher(NewRegistry(failing, healthy), []string{"a", "b"}, logging.NewNop())

	d.Retrieved(context.Background(), sampleBatch())
	d.Alert(context.Background(), "Discovery failed", "details")

	if failing.retrieved != 1 || healthy.retrieved != 1 {
		t.Fatalf("retrieved calls = %d/%d", failing.retrieved, healthy.retrieved)
	}
	if failing.alerts != 1 || healthy.alerts != 1 {
		t.Fatalf("alert calls = %d/%d", failing.alerts, healthy.alerts)
	}
}

func TestDispatcherDropsEmptyBatch(t *testing.T) {
	sink := &fakeSink{name: "a", enabled: true}
	d := NewDispatcher(NewRegistry(sink), []string{"a"}, logging.NewNop())

	d.Retrieved(context.Background(), nil)
	if sink.retrieved != 0 {
		t.Fatal("empty batch reached the sink")
	}
}

func TestNtfyDisabledWithoutTopic(t *testing.T) {
	sink := NewNtfy(config.Ntfy{})
	if sink.Enabled() {
		t.Fatal("sink enabled with no topic")
	}
	if err := sink.NotifyAlert(context.Background(), "x", "y"); err != nil {
		t.Fatalf("disabled sink returned %v", err)
	}
}

func TestNtfyRetrievedBatch(t *testing.T) {
	var gotTitle, gotTags, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	defer server.Close()

	sink := NewNtfy(config.Ntfy{Topic: server.URL})
	if !sink.Enabled() {
		t.Fatal("sink with topic not enabled")
	}
	if err := sink.NotifyRetrieved(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("NotifyRetrieved: %v", err)
	}
	if gotTitle != "Aerial - Retrieved 2 episode(s)" {
		t.Fatalf("Title = %q", gotTitle)
	}
	if gotTags != "aerial,retrieved" {
		t.Fatalf("Tags = %q", gotTags)
	}
	want := "Show S01E02 - Pilot\nOther S03E04"
	if gotBody != want {
		t.Fatalf("body = %q, want %q", gotBody, want)
	}
}

func TestNtfyAlertSetsPriority(t *testing.T) {
	var gotPriority string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPriority = r.Header.Get("Priority")
	}))
	defer server.Close()

	sink := NewNtfy(config.Ntfy{Topic: server.URL})
	if err := sink.NotifyAlert(context.Background(), "Discovery failed", "easynews unreachable"); err != nil {
		t.Fatalf("NotifyAlert: %v", err)
	}
	if gotPriority != "high" {
		t.Fatalf("Priority = %q", gotPriority)
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	sink := NewNtfy(config.Ntfy{Topic: server.URL})
	err := sink.NotifyAlert(context.Background(), "x", "y")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want 403 failure", err)
	}
}

func TestNtfyBareTopicTargetsPublicServer(t *testing.T) {
	sink := NewNtfy(config.Ntfy{Topic: "aerial-home"})
	if sink.endpoint != "https://ntfy.sh/aerial-home" {
		t.Fatalf("endpoint = %q", sink.endpoint)
	}
}

func TestLibraryRefreshAppendsAPIKey(t *testing.T) {
	var gotMethod, gotKey, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewLibraryRefresh(config.LibraryRefresh{URL: server.URL + "/Library/Refresh", APIKey: "secret"})
	if !sink.Enabled() {
		t.Fatal("sink with url not enabled")
	}
	if err := sink.NotifyRetrieved(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("NotifyRetrieved: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/Library/Refresh" || gotKey != "secret" {
		t.Fatalf("request = %s %s api_key=%q", gotMethod, gotPath, gotKey)
	}
}

func TestLibraryRefreshIgnoresAlerts(t *testing.T) {
	sink := NewLibraryRefresh(config.LibraryRefresh{URL: "http://example.invalid"})
	if err := sink.NotifyAlert(context.Background(), "x", "y"); err != nil {
		t.Fatalf("NotifyAlert = %v, want nil", err)
	}
}

func TestLibraryRefreshDisabledWithoutURL(t *testing.T) {
	sink := NewLibraryRefresh(config.LibraryRefresh{})
	if sink.Enabled() {
		t.Fatal("sink enabled with no url")
	}
}
