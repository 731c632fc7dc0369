package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// jsonFeedSource reads a group's event API. Group APIs disagree on field
// names and envelope shape, so mapping is tolerant: the first matching
// key wins and a record missing a title is skipped, not fatal.
type jsonFeedSource struct {
	cfg    SourceConfig
	client *http.Client
}

func newJSONFeedSource(cfg SourceConfig, client *http.Client) *jsonFeedSource {
	return &jsonFeedSource{cfg: cfg, client: client}
}

func (s *jsonFeedSource) Name() string {
	return s.cfg.Name
}

func (s *jsonFeedSource) Kind() SourceKind {
	return KindGroup
}

func (s *jsonFeedSource) Fetch(ctx context.Context) ([]CandidateEvent, error) {
	body, err := fetchURL(ctx, s.client, s.cfg.URL)
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}

	rows, err := flattenJSON(body)
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}

	ref := Ref{Source: s.cfg.Name, Adapter: "json_feed", Kind: KindGroup}
	candidates := make([]CandidateEvent, 0, len(rows))
	for _, row := range rows {
		title := pickStr(row, "title", "name", "summary")
		if title == "" {
			slog.Warn("json feed record has no title, skipping", "source", s.cfg.Name)
			continue
		}

		candidate := CandidateEvent{
			Title:        title,
			RawDate:      pickStr(row, "start", "start_time", "datetime", "date", "time"),
			Location:     pickStr(row, "location", "venue", "address", "place"),
			URL:          pickStr(row, "url", "link", "event_url", "permalink"),
			GroupName:    pickStr(row, "group", "organizer", "host"),
			GroupWebsite: pickStr(row, "group_url", "organizer_url"),
			Source:       ref,
		}
		if candidate.GroupName == "" {
			candidate.GroupName = s.cfg.Group
		}
		if candidate.GroupWebsite == "" {
			candidate.GroupWebsite = s.cfg.GroupWebsite
		}
		// RFC3339 starts are handled here; anything looser is left to
		// the normalizer
		if t, err := time.Parse(time.RFC3339, candidate.RawDate); err == nil {
			candidate.Start = t
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// flattenJSON accepts a top-level array or any of the usual envelopes
// ({"events": [...]}, {"data": [...]}, {"items": [...]}). The first
// envelope key holding an array wins, even when it is empty: a quiet
// week is valid feed output, not a parse failure.
func flattenJSON(body []byte) ([]map[string]any, error) {
	rows := make([]map[string]any, 0)

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err == nil {
		for _, key := range []string{"events", "data", "items", "results"} {
			arr, ok := envelope[key].([]any)
			if !ok {
				continue
			}
			for _, item := range arr {
				if row, ok := item.(map[string]any); ok {
					rows = append(rows, row)
				}
			}
			return rows, nil
		}
	}

	var arr []any
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, err
	}
	for _, item := range arr {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func pickStr(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := row[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}
