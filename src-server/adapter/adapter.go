package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	userAgent      = "techcal/1.0 (+https://github.com/techcal/techcal)"
	defaultTimeout = 30 * time.Second
)

type SourceKind string

const (
	KindScraped    SourceKind = "scraped"
	KindGroup      SourceKind = "group"
	KindSubmission SourceKind = "submission"
)

// Ref is one provenance reference: which configured source produced a
// candidate, and through which adapter.
type Ref struct {
	Source  string
	Adapter string
	Kind    SourceKind
}

// CandidateEvent is a single-source, pre-normalization record. The
// normalizer fills Start from RawDate when the adapter couldn't, and
// derives the comparison-safe Title/decorated DisplayTitle split.
type CandidateEvent struct {
	Title        string
	DisplayTitle string

	Start   time.Time
	RawDate string // loose date text when the source has no machine timestamp

	Location     string
	LocationType string

	GroupName    string
	GroupWebsite string

	SubmitterName string
	SubmitterLink string

	URL    string
	Source Ref
}

// Error is a whole-source failure (unreachable, unparseable payload).
// Non-fatal to the run: the source contributes zero candidates.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Source turns one configured source's payload into candidates. A
// malformed record is skipped and logged, never returned as an error;
// only whole-source failures surface as *Error.
type Source interface {
	Name() string
	Kind() SourceKind
	Fetch(ctx context.Context) ([]CandidateEvent, error)
}

// New builds the adapter for one catalog entry. A nil client gets a
// per-source one honoring cfg.Timeout.
func New(cfg SourceConfig, client *http.Client) (Source, error) {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.Timeout)}
	}
	switch cfg.Type {
	case "json_feed":
		return newJSONFeedSource(cfg, client), nil
	case "html":
		return newHTMLSource(cfg, client), nil
	case "ics":
		return newICSSource(cfg, client), nil
	case "submission":
		return newSubmissionSource(cfg), nil
	default:
		return nil, fmt.Errorf("adapter.New: unknown source type: %s", cfg.Type)
	}
}

func fetchURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
