package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xyedo/rrule"
)

// how far ahead a recurring VEVENT is expanded into occurrences
const icsExpandHorizon = 120 * 24 * time.Hour

// icsSource subscribes to a published .ics feed. Recurring events are
// expanded into concrete occurrences within the horizon; one bad VEVENT
// is skipped without dropping its siblings.
type icsSource struct {
	cfg    SourceConfig
	client *http.Client
	now    func() time.Time
}

func newICSSource(cfg SourceConfig, client *http.Client) *icsSource {
	return &icsSource{cfg: cfg, client: client, now: time.Now}
}

func (s *icsSource) Name() string {
	return s.cfg.Name
}

func (s *icsSource) Kind() SourceKind {
	return KindGroup
}

func (s *icsSource) Fetch(ctx context.Context) ([]CandidateEvent, error) {
	body, err := fetchURL(ctx, s.client, s.cfg.URL)
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}
	return s.parse(body)
}

func (s *icsSource) parse(body []byte) ([]CandidateEvent, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}

	ref := Ref{Source: s.cfg.Name, Adapter: "ics", Kind: KindGroup}
	candidates := make([]CandidateEvent, 0)

	for _, ve := range cal.Events() {
		base, err := s.parseVEvent(ve, ref)
		if err != nil {
			slog.Warn("ics vevent skipped", "source", s.cfg.Name, "error", err)
			continue
		}

		rruleProp := ve.GetProperty(ics.ComponentPropertyRrule)
		if rruleProp == nil || rruleProp.Value == "" {
			candidates = append(candidates, base)
			continue
		}

		occurrences, err := s.expand(base.Start, rruleProp.Value)
		if err != nil {
			slog.Warn("ics rrule skipped, keeping base occurrence", "source", s.cfg.Name, "error", err)
			candidates = append(candidates, base)
			continue
		}
		for _, start := range occurrences {
			occurrence := base
			occurrence.Start = start
			occurrence.RawDate = ""
			candidates = append(candidates, occurrence)
		}
	}

	return candidates, nil
}

func (s *icsSource) parseVEvent(ve *ics.VEvent, ref Ref) (CandidateEvent, error) {
	candidate := CandidateEvent{
		GroupName:    s.cfg.Group,
		GroupWebsite: s.cfg.GroupWebsite,
		Source:       ref,
	}

	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
		candidate.Title = p.Value
	}
	if candidate.Title == "" {
		return candidate, fmt.Errorf("missing SUMMARY")
	}
	if p := ve.GetProperty(ics.ComponentPropertyLocation); p != nil {
		candidate.Location = p.Value
	}
	if p := ve.GetProperty(ics.ComponentPropertyUrl); p != nil {
		candidate.URL = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return candidate, fmt.Errorf("missing DTSTART: %w", err)
	}
	candidate.Start = start

	return candidate, nil
}

// expand turns an RRULE into occurrence starts within [now, now+horizon].
func (s *icsSource) expand(dtstart time.Time, rule string) ([]time.Time, error) {
	set, err := rrule.StrToRRuleSet(strings.Join([]string{
		"DTSTART:" + dtstart.UTC().Format("20060102T150405Z"),
		"RRULE:" + rule,
	}, "\n"))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return set.Between(now, now.Add(icsExpandHorizon), true), nil
}
