package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// submissionSource reads the drop file the submission form (an external
// collaborator) appends to: one JSON object per submitted event. These
// carry a human submitter, which outranks group listings at merge time.
type submissionSource struct {
	cfg SourceConfig
}

type submissionRecord struct {
	Title         string `json:"title"`
	Start         string `json:"start"`
	Location      string `json:"location"`
	URL           string `json:"url"`
	GroupName     string `json:"group"`
	GroupWebsite  string `json:"group_website"`
	SubmitterName string `json:"submitter_name"`
	SubmitterLink string `json:"submitter_link"`
}

func newSubmissionSource(cfg SourceConfig) *submissionSource {
	return &submissionSource{cfg: cfg}
}

func (s *submissionSource) Name() string {
	return s.cfg.Name
}

func (s *submissionSource) Kind() SourceKind {
	return KindSubmission
}

func (s *submissionSource) Fetch(ctx context.Context) ([]CandidateEvent, error) {
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}

	records, err := decodeSubmissions(data)
	if err != nil {
		return nil, &Error{Source: s.cfg.Name, Err: err}
	}

	ref := Ref{Source: s.cfg.Name, Adapter: "submission", Kind: KindSubmission}
	candidates := make([]CandidateEvent, 0, len(records))
	for i, record := range records {
		if record.Title == "" || record.Start == "" {
			slog.Warn("submission record incomplete, skipping",
				"source", s.cfg.Name, "index", i, "title", record.Title)
			continue
		}

		candidate := CandidateEvent{
			Title:         record.Title,
			RawDate:       record.Start,
			Location:      record.Location,
			URL:           record.URL,
			GroupName:     record.GroupName,
			GroupWebsite:  record.GroupWebsite,
			SubmitterName: record.SubmitterName,
			SubmitterLink: record.SubmitterLink,
			Source:        ref,
		}
		if t, err := time.Parse(time.RFC3339, record.Start); err == nil {
			candidate.Start = t
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// decodeSubmissions reads the drop file's native format, one JSON object
// per line, so the form can append without rewriting. A whole array is
// accepted too for hand-maintained files.
func decodeSubmissions(data []byte) ([]submissionRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []submissionRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []submissionRecord
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		var record submissionRecord
		if err := dec.Decode(&record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
