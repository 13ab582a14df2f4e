package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// Effects are the value deltas a reply carries.
type Effects struct {
	Trust     int
	Suspicion int
}

// Parsed is a model reply split into display text, value effects, and any
// event tags it asked to trigger.
type Parsed struct {
	CleanText string
	Effects   Effects
	TagFound  bool
	Events    []string
}

// The canonical tag is a trailing <<T+x|S+y>>; models drift, so bracketed
// and bare variants are tolerated too, tried strictest first.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<<\s*T\s*[:=]?\s*([+-]?\d+)\s*[|;,]\s*S\s*[:=]?\s*([+-]?\d+)\s*>>`),
	regexp.MustCompile(`(?i)\[\s*T\s*[:=]?\s*([+-]?\d+)\s*[|;,]\s*S\s*[:=]?\s*([+-]?\d+)\s*\]`),
	regexp.MustCompile(`(?i)T\s*[:=]?\s*([+-]?\d+)\s*[|;,]\s*S\s*[:=]?\s*([+-]?\d+)`),
}

var (
	eventPattern    = regexp.MustCompile(`(?i)<<\s*EVENT\s*:\s*([^>]+?)\s*>>`)
	leftoverPattern = regexp.MustCompile(`<<[^>]+>>`)
)

// ParseTaggedResponse extracts the numeric tag and event tags from a raw
// model reply and strips them all from the player-visible text. A reply
// with no recognizable tag keeps zero effects and reports TagFound=false;
// the caller decides the default.
func ParseTaggedResponse(raw string) Parsed {
	if raw == "" {
		return Parsed{}
	}

	out := Parsed{CleanText: raw}
	for _, pattern := range scorePatterns {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		trust, _ := strconv.Atoi(m[1])
		suspicion, _ := strconv.Atoi(m[2])
		out.Effects = Effects{Trust: trust, Suspicion: suspicion}
		out.TagFound = true
		out.CleanText = pattern.ReplaceAllString(out.CleanText, "")
		break
	}

	for _, m := range eventPattern.FindAllStringSubmatch(raw, -1) {
		out.Events = append(out.Events, strings.TrimSpace(m[1]))
	}

	out.CleanText = eventPattern.ReplaceAllString(out.CleanText, "")
	out.CleanText = leftoverPattern.ReplaceAllString(out.CleanText, "")
	out.CleanText = strings.TrimSpace(out.CleanText)
	return out
}
