// Package normalize canonicalizes candidate events for comparison while
// preserving what sources wrote for display. Every function is total:
// bad input degrades to best-effort fields, never an error.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"techcal/src-server/adapter"
	"techcal/src-server/model"

	"github.com/olebedev/when"
	"golang.org/x/text/cases"
)

// layouts tried before handing loose date text to the when parser
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"Jan 2 2006",
	"01/02/2006 15:04",
	"01/02/06",
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// leading listing-style decoration some groups prepend to every title
	listingPrefix = regexp.MustCompile(`(?i)^(meetup|event|webinar|talk):\s*`)

	virtualKeywords = []string{"zoom", "online", "virtual", "webinar", "meet.google", "teams", "remote", "discord"}
	hybridKeywords  = []string{"hybrid", "in person & online", "online & in person"}
	streetAddress   = regexp.MustCompile(`(?i)\b\d+[a-z]?\s+\w+(\s\w+)*\s+(st|street|ave|avenue|rd|road|blvd|boulevard|ln|lane|dr|drive|way|plaza|square|platz|straße)\b`)

	caseFolder = cases.Fold()
)

type Options struct {
	// canonical timezone for every stored timestamp
	Location *time.Location
	// parser for human-written date text ("next thursday 7pm")
	When *when.Parser
	// reference instant for relative date text; zero means time.Now()
	Now time.Time
}

// Normalize returns the candidate with Start in the canonical timezone,
// the Title/DisplayTitle split applied, and LocationType classified.
// A start that stays zero marks the candidate invalid; dropping it is
// the caller's job.
func Normalize(c adapter.CandidateEvent, opts Options) adapter.CandidateEvent {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	if c.Start.IsZero() && c.RawDate != "" {
		c.Start = parseStart(c.RawDate, loc, opts)
	}
	if !c.Start.IsZero() {
		c.Start = c.Start.In(loc)
	}

	// DisplayTitle keeps the source's decoration; Title is the
	// comparison-safe form with edge emoji removed
	display := collapse(c.Title)
	if c.DisplayTitle != "" {
		display = collapse(c.DisplayTitle)
	}
	c.DisplayTitle = display
	c.Title = trimEdgeEmoji(display)

	c.Location = collapse(c.Location)
	c.GroupName = collapse(c.GroupName)
	c.SubmitterName = collapse(c.SubmitterName)

	if c.LocationType == "" {
		c.LocationType = string(classifyLocation(c.Location))
	}

	return c
}

func parseStart(raw string, loc *time.Location, opts Options) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t
		}
	}

	if opts.When != nil {
		now := opts.Now
		if now.IsZero() {
			now = time.Now().In(loc)
		}
		if result, err := opts.When.Parse(raw, now); err == nil && result != nil {
			return result.Time
		}
	}

	return time.Time{}
}

func classifyLocation(location string) model.LocationType {
	if location == "" {
		return model.LocationUnknown
	}
	folded := strings.ToLower(location)

	for _, keyword := range hybridKeywords {
		if strings.Contains(folded, keyword) {
			return model.LocationHybrid
		}
	}

	virtual := false
	for _, keyword := range virtualKeywords {
		if strings.Contains(folded, keyword) {
			virtual = true
			break
		}
	}
	inPerson := streetAddress.MatchString(location)

	switch {
	case virtual && inPerson:
		return model.LocationHybrid
	case virtual:
		return model.LocationVirtual
	case inPerson:
		return model.LocationInPerson
	default:
		return model.LocationUnknown
	}
}

// TitleKey is the identity fold of a title: case-folded, emoji and
// listing prefixes stripped, whitespace collapsed.
func TitleKey(title string) string {
	title = stripEmoji(title)
	title = listingPrefix.ReplaceAllString(collapse(title), "")
	return caseFolder.String(collapse(title))
}

// OwnerKey folds the identity owner: the group when known, otherwise
// the submitter. A submission naming the group can then corroborate the
// group's own listing instead of forking a second identity.
func OwnerKey(c adapter.CandidateEvent) string {
	owner := c.GroupName
	if owner == "" {
		owner = c.SubmitterName
	}
	return caseFolder.String(collapse(owner))
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// IsEmoji reports whether r sits in the emoji codepoint blocks the
// renderer and the identity fold care about.
func IsEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF, // symbols & pictographs
		r >= 0x1F600 && r <= 0x1F64F, // emoticons
		r >= 0x1F680 && r <= 0x1F6FF, // transport
		r >= 0x1F900 && r <= 0x1F9FF, // supplemental
		r >= 0x1FA70 && r <= 0x1FAFF, // extended-A
		r >= 0x1F1E6 && r <= 0x1F1FF, // regional indicators
		r >= 0x2600 && r <= 0x26FF, // misc symbols
		r >= 0x2700 && r <= 0x27BF, // dingbats
		r == 0xFE0F: // variation selector
		return true
	}
	return false
}

func stripEmoji(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !IsEmoji(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trimEdgeEmoji removes decorative emoji at the ends of a title only, so
// the result is always a substring of the display title.
func trimEdgeEmoji(s string) string {
	runes := []rune(s)
	start, end := 0, len(runes)
	for start < end && (IsEmoji(runes[start]) || runes[start] == ' ') {
		start++
	}
	for end > start && (IsEmoji(runes[end-1]) || runes[end-1] == ' ') {
		end--
	}
	return string(runes[start:end])
}
