package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aerial/internal/media"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func addSeries(t *testing.T, store *Store, name string) *media.Series {
	t.Helper()
	series, err := store.AddSeries(context.Background(), &media.Series{
		Name:       name,
		RuntimeMin: 42,
		Quality:    media.QualityHD,
	})
	if err != nil {
		t.Fatalf("AddSeries: %v", err)
	}
	return series
}

func TestSeriesRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	series := addSeries(t, store, "Test Show")
	if series.ID == 0 {
		t.Fatal("series ID not assigned")
	}
	if series.Quality != media.QualityHD {
		t.Fatalf("Quality = %v", series.Quality)
	}

	series.Paused = true
	series.SearchString = "test show us"
	if err := store.UpdateSeries(ctx, series); err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}

	got, err := store.SeriesByName(ctx, "Test Show")
	if err != nil {
		t.Fatalf("SeriesByName: %v", err)
	}
	if got == nil || !got.Paused || got.SearchString != "test show us" {
		t.Fatalf("updated series = %+v", got)
	}

	missing, err := store.SeriesByID(ctx, 9999)
	if err != nil {
		t.Fatalf("SeriesByID: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing series")
	}
}

func TestUpsertEpisodePreservesAcquisitionState(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	series := addSeries(t, store, "Show")

	ep, err := store.UpsertEpisode(ctx, &media.Episode{
		SeriesID: series.ID,
		Season:   1,
		Number:   2,
		Title:    "Pilot Part 2",
		AirDate:  time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:   media.StatusNeed,
	})
	if err != nil {
		t.Fatalf("UpsertEpisode: %v", err)
	}

	ep.Status = media.StatusHave
	ep.Filename = "Show S01E02.mkv"
	ep.LastCandidate = "Show.S01E02.720p.x264.mkv"
	if err := store.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	// A metadata refresh upserts the same episode with a corrected title.
	_, err = store.UpsertEpisode(ctx, &media.Episode{
		SeriesID: series.ID,
		Season:   1,
		Number:   2,
		Title:    "Corrected Title",
		AirDate:  time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
		Status:   media.StatusNeed,
	})
	if err != nil {
		t.Fatalf("second UpsertEpisode: %v", err)
	}

	got, err := store.Episode(ctx, series.ID, 1, 2)
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if got.Title != "Corrected Title" {
		t.Fatalf("Title = %q, want refreshed title", got.Title)
	}
	if got.Status != media.StatusHave {
		t.Fatalf("Status = %v, want preserved StatusHave", got.Status)
	}
	if got.Filename != "Show S01E02.mkv" || got.LastCandidate == "" {
		t.Fatalf("acquisition fields lost: %+v", got)
	}
}

func TestNeededEpisodesOrderingAndFiltering(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	series := addSeries(t, store, "Show")
	pausedSeries := addSeries(t, store, "Paused Show")
	pausedSeries.Paused = true
	if err := store.UpdateSeries(ctx, pausedSeries); err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}

	day := func(d int) time.Time {
		return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
	}
	episodes := []*media.Episode{
		{SeriesID: series.ID, Season: 1, Number: 3, AirDate: day(20), Status: media.StatusNeed},
		{SeriesID: series.ID, Season: 1, Number: 1, AirDate: day(5), Status: media.StatusNeed},
		{SeriesID: series.ID, Season: 1, Number: 2, AirDate: day(10), Status: media.StatusHave},
		{SeriesID: series.ID, Season: 2, Number: 1, Status: media.StatusNeedForced},
		{SeriesID: pausedSeries.ID, Season: 1, Number: 1, AirDate: day(1), Status: media.StatusNeed},
	}
	for _, ep := range episodes {
		if _, err := store.UpsertEpisode(ctx, ep); err != nil {
			t.Fatalf("UpsertEpisode: %v", err)
		}
	}

	needed, err := store.NeededEpisodes(ctx)
	if err != nil {
		t.Fatalf("NeededEpisodes: %v", err)
	}
	if len(needed) != 3 {
		t.Fatalf("len(needed) = %d, want 3", len(needed))
	}
	if needed[0].Number != 1 || needed[1].Number != 3 {
		t.Fatalf("wrong airdate order: %v then %v", needed[0].Code(), needed[1].Code())
	}
	if !needed[2].AirDate.IsZero() {
		t.Fatal("undated episode should sort last")
	}
}

func TestDeleteSeriesCascades(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	series := addSeries(t, store, "Doomed")
	if _, err := store.UpsertEpisode(ctx, &media.Episode{SeriesID: series.ID, Season: 1, Number: 1, Status: media.StatusNeed}); err != nil {
		t.Fatalf("UpsertEpisode: %v", err)
	}

	if err := store.DeleteSeries(ctx, series.ID); err != nil {
		t.Fatalf("DeleteSeries: %v", err)
	}

	eps, err := store.EpisodesBySeries(ctx, series.ID)
	if err != nil {
		t.Fatalf("EpisodesBySeries: %v", err)
	}
	if len(eps) != 0 {
		t.Fatalf("episodes survived cascade: %d", len(eps))
	}
}

func TestSetEpisodeStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	series := addSeries(t, store, "Show")
	ep, err := store.UpsertEpisode(ctx, &media.Episode{SeriesID: series.ID, Season: 1, Number: 1, Status: media.StatusNone})
	if err != nil {
		t.Fatalf("UpsertEpisode: %v", err)
	}

	if err := store.SetEpisodeStatus(ctx, ep.ID, media.StatusIgnore); err != nil {
		t.Fatalf("SetEpisodeStatus: %v", err)
	}
	got, err := store.EpisodeByID(ctx, ep.ID)
	if err != nil {
		t.Fatalf("EpisodeByID: %v", err)
	}
	if got.Status != media.StatusIgnore {
		t.Fatalf("Status = %v, want ignore", got.Status)
	}
}
