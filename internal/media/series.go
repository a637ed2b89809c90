package media

import "strings"

// Quality tiers drive the expected-size window used during candidate ranking.
type Quality string

const (
	QualityAny Quality = "any"
	QualitySD  Quality = "sd"
	QualityHD  Quality = "hd"
	QualityUHD Quality = "uhd"
)

// ParseQuality maps user input onto a known tier, defaulting to QualityAny.
func ParseQuality(value string) Quality {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sd", "480p", "576p":
		return QualitySD
	case "hd", "720p", "1080p":
		return QualityHD
	case "uhd", "4k", "2160p":
		return QualityUHD
	default:
		return QualityAny
	}
}

// SizeWindow returns the acceptable megabytes-per-minute range for the tier.
// Candidates outside min*runtime*0.4 are disqualified outright; the full
// window informs the ranking size rules.
func (q Quality) SizeWindow() (minMBPerMin, maxMBPerMin float64) {
	switch q {
	case QualityUHD:
		return 30, 120
	case QualityHD:
		return 10, 25
	case QualitySD:
		return 2, 8
	default:
		return 2, 20
	}
}

// Series is a tracked show. ID is assigned by the library store.
type Series struct {
	ID           int64
	Name         string
	SearchString string
	Path         string
	RuntimeMin   int
	Quality      Quality
	Language     string
	Paused       bool
}

// SearchName returns the string used for provider queries, preferring the
// explicit override when one is configured.
func (s *Series) SearchName() string {
	if strings.TrimSpace(s.SearchString) != "" {
		return s.SearchString
	}
	return s.Name
}

// Runtime returns the episode runtime in minutes, defaulting when the
// series metadata does not carry one.
func (s *Series) Runtime() int {
	if s.RuntimeMin > 0 {
		return s.RuntimeMin
	}
	return 45
}
