package search

import (
	"testing"
	"time"

	"aerial/internal/media"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Office (US)", "Office"},
		{"Marvel's Agents of S.H.I.E.L.D.", "Marvels Agents S H I E L D"},
		{"Café Élite", "Cafe Elite"},
		{"It's Always Sunny", "Its Always Sunny"},
		{"Law & Order", "Law Order"},
	}
	for _, tt := range tests {
		if got := CleanTitle(tt.in); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameMatcher(t *testing.T) {
	series := &media.Series{Name: "The Good Show (UK)"}
	ep := &media.Episode{
		Season:  1,
		Number:  7,
		AirDate: time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC),
	}
	matches := NameMatcher(series, ep)

	tests := []struct {
		name string
		want bool
	}{
		{"Good.Show.S01E07.720p.HDTV.x264.mkv", true},
		{"good show s01e07 repost", true},
		{"Good.Show.1x07.HDTV.mkv", true},
		{"Good.Show.2026.04.12.720p.mkv", true},
		{"Good.Show.20260412.720p.mkv", true},
		{"Good.Show.S01E08.720p.mkv", false},
		{"Other.Show.S01E07.720p.mkv", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := matches(tt.name); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNameMatcherUsesSearchString(t *testing.T) {
	series := &media.Series{Name: "Official Long Name", SearchString: "short name"}
	ep := &media.Episode{Season: 2, Number: 3}
	matches := NameMatcher(series, ep)

	if !matches("Short.Name.S02E03.mkv") {
		t.Fatal("search string override not used")
	}
	if matches("Official.Long.Name.S02E03.mkv") {
		t.Fatal("matched against display name instead of search string")
	}
}
