package candidate

import (
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// MatchFunc reports whether a release name refers to the episode being
// ranked. Supplied by search dispatch, which owns title matching.
type MatchFunc func(name string) bool

// Container preferences. Denied containers disqualify the candidate.
var extScores = map[string]float64{
	"mkv": 3, "mp4": 2, "avi": 1,
	"wmv": math.Inf(-1), "mpg": math.Inf(-1), "ts": math.Inf(-1), "rar": math.Inf(-1),
}

type avRule struct {
	video *regexp.Regexp
	audio *regexp.Regexp
	score float64
}

func tagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[-. ])` + tag + `([-. ]|$)`)
}

// Audio/video signature preferences. A combined video+audio match dominates
// video alone, which dominates audio alone. Negative scores stick; positive
// scores are replaced only by higher positive scores.
var avRules = []avRule{
	{tagPattern(`[xh]\.?264`), tagPattern(`(ac-?3|dts)`), 10},
	{tagPattern(`[xh]\.?264`), nil, 9},
	{nil, tagPattern(`(ac-?3|dts)`), 8},
	{nil, tagPattern(`aac\.?2?`), -1},
}

type tagScore struct {
	pattern *regexp.Regexp
	score   float64
}

var resScores = []tagScore{
	{tagPattern(`1080p`), 2},
	{tagPattern(`720p`), 1},
}

var modScores = []tagScore{
	{tagPattern(`blu-?ray`), 10},
	{tagPattern(`proper`), 9},
	{tagPattern(`re-?pack`), 7},
	{tagPattern(`immerse`), 6},
	{tagPattern(`dimension`), 5},
	{tagPattern(`nlsubs`), 4},
	{tagPattern(`web-?dl`), 3},
}

// Compare orders two candidates for the same episode. It returns a negative
// value when a should rank before b, positive when b ranks first, and zero
// when the chain cannot separate them. As a side effect it marks candidates
// with denied containers as disqualified.
func Compare(a, b *Candidate, matches MatchFunc, idealSize int64) int {
	aname := strings.ToLower(a.String())
	bname := strings.ToLower(b.String())

	// A name that provably refers to the episode beats one matched only
	// through its subject line.
	if matches != nil {
		am, bm := matches(a.Filename), matches(b.Filename)
		if am != bm {
			return rankBool(am)
		}
	}

	// Container extension.
	ascore := extScores[strings.TrimPrefix(filepath.Ext(aname), ".")]
	bscore := extScores[strings.TrimPrefix(filepath.Ext(bname), ".")]
	if math.IsInf(ascore, -1) {
		a.Disqualified = true
	}
	if math.IsInf(bscore, -1) {
		b.Disqualified = true
	}
	if ascore != bscore {
		return rankBool(ascore > bscore)
	}

	// Audio/video signature.
	if ascore, bscore = avScore(aname), avScore(bname); ascore != bscore {
		return rankBool(ascore > bscore)
	}

	// Size proximity to ideal.
	if idealSize > 0 && a.Size > 0 && b.Size > 0 {
		aratio := float64(a.Size) / float64(idealSize)
		bratio := float64(b.Size) / float64(idealSize)
		pair := float64(a.Size) / float64(b.Size)
		switch {
		case pair > 0.8 && pair < 1.2:
			// Within 20% of each other: same.
		case aratio > 0.6 && aratio < 1.4 && bratio > 0.6 && bratio < 1.4:
			// Both plausible: prefer the larger.
			return rankBool(a.Size > b.Size)
		default:
			return rankBool(math.Abs(1-aratio) < math.Abs(1-bratio))
		}
	}

	// Resolution tag, then release modifiers.
	if ascore, bscore = tagScoreOf(aname, resScores), tagScoreOf(bname, resScores); ascore != bscore {
		return rankBool(ascore > bscore)
	}
	if ascore, bscore = tagScoreOf(aname, modScores), tagScoreOf(bname, modScores); ascore != bscore {
		return rankBool(ascore > bscore)
	}

	// Publish date, newest first. A dated candidate outranks an undated one.
	if !a.Published.Equal(b.Published) {
		if a.Published.IsZero() || b.Published.IsZero() {
			return rankBool(!a.Published.IsZero())
		}
		return rankBool(a.Published.After(b.Published))
	}
	return 0
}

// Rank orders candidates best-first and removes disqualified entries and
// those below minSize. The sort is stable so equal candidates keep their
// discovery order.
func Rank(list []*Candidate, matches MatchFunc, minSize, idealSize int64) []*Candidate {
	sort.SliceStable(list, func(i, j int) bool {
		return Compare(list[i], list[j], matches, idealSize) < 0
	})
	out := list[:0]
	for _, c := range list {
		if c.Disqualified || c.Size < minSize {
			continue
		}
		out = append(out, c)
	}
	return out
}

func rankBool(aFirst bool) int {
	if aFirst {
		return -1
	}
	return 1
}

func avScore(name string) float64 {
	var score float64
	for _, rule := range avRules {
		if score < 0 {
			break
		}
		if rule.video != nil && !rule.video.MatchString(name) {
			continue
		}
		if rule.audio != nil && !rule.audio.MatchString(name) {
			continue
		}
		if rule.score > score || rule.score < 0 {
			score = rule.score
		}
	}
	return score
}

func tagScoreOf(name string, rules []tagScore) float64 {
	var score float64
	for _, rule := range rules {
		if rule.pattern.MatchString(name) {
			score = rule.score
		}
	}
	return score
}
