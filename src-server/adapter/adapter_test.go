package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(SourceConfig{Name: "x", Type: "carrier_pigeon"}, nil); err == nil {
		t.Fatal("expected an error for an unknown source type")
	}
}

func TestFlattenJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"top-level array", `[{"title":"a"},{"title":"b"}]`, 2},
		{"events envelope", `{"events":[{"title":"a"}]}`, 1},
		{"data envelope", `{"data":[{"title":"a"},{"title":"b"},{"title":"c"}]}`, 3},
		{"items envelope", `{"items":[{"title":"a"}]}`, 1},
		{"non-object rows skipped", `[{"title":"a"},"junk",42]`, 1},
		{"empty envelope is a quiet week, not a failure", `{"events":[]}`, 0},
		{"empty top-level array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := flattenJSON([]byte(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if len(rows) != tt.want {
				t.Errorf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}

	if _, err := flattenJSON([]byte(`{not json`)); err == nil {
		t.Error("expected an error for malformed json")
	}
}

func TestJSONFeedFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "techcal/") {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Write([]byte(`{"events":[
			{"name":"Rust Night","start_time":"2024-06-05T18:00:00Z","venue":"Hack Space","link":"https://example.com/rust"},
			{"start":"2024-06-06T18:00:00Z"},
			{"title":"Go Talk","date":"next thursday 7pm"}
		]}`))
	}))
	defer server.Close()

	src, err := New(SourceConfig{
		Name:    "groupx-feed",
		Type:    "json_feed",
		URL:     server.URL,
		Group:   "GroupX",
		Timeout: Duration(5 * time.Second),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind() != KindGroup {
		t.Errorf("kind %s, want group", src.Kind())
	}

	candidates, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// the record without a title is skipped
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	rust := candidates[0]
	if rust.Title != "Rust Night" || rust.Location != "Hack Space" || rust.URL != "https://example.com/rust" {
		t.Errorf("field mapping wrong: %+v", rust)
	}
	if rust.GroupName != "GroupX" {
		t.Errorf("group fallback missing, got %q", rust.GroupName)
	}
	want := time.Date(2024, 6, 5, 18, 0, 0, 0, time.UTC)
	if !rust.Start.Equal(want) {
		t.Errorf("rfc3339 start not parsed: %v", rust.Start)
	}
	if candidates[0].Source.Source != "groupx-feed" || candidates[0].Source.Kind != KindGroup {
		t.Errorf("provenance ref wrong: %+v", candidates[0].Source)
	}

	// loose date text is carried for the normalizer, not parsed here
	goTalk := candidates[1]
	if !goTalk.Start.IsZero() || goTalk.RawDate != "next thursday 7pm" {
		t.Errorf("loose date handling wrong: start=%v raw=%q", goTalk.Start, goTalk.RawDate)
	}
}

func TestJSONFeedFetchQuietWeek(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[]}`))
	}))
	defer server.Close()

	src, err := New(SourceConfig{Name: "groupx-feed", Type: "json_feed", URL: server.URL}, server.Client())
	if err != nil {
		t.Fatal(err)
	}
	candidates, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("an empty feed is not a source failure: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}

func TestJSONFeedFetchBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src, err := New(SourceConfig{Name: "groupx-feed", Type: "json_feed", URL: server.URL}, server.Client())
	if err != nil {
		t.Fatal(err)
	}
	_, err = src.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected a whole-source error")
	}
	var adapterErr *Error
	if !errors.As(err, &adapterErr) || adapterErr.Source != "groupx-feed" {
		t.Errorf("error should carry the source name: %v", err)
	}
}

func TestHTMLParse(t *testing.T) {
	page := `<html><body>
		<div class="event">
			<h2>Rust Night 🦀</h2>
			<time datetime="2024-06-05T18:00">June 5</time>
			<span class="location">Hack Space</span>
			<a href="/events/rust-night">details</a>
		</div>
		<div class="event">
			<h2>Go Talk</h2>
			<p>Join us Jun 12, 2024 7:00 pm for talks.</p>
		</div>
		<div class="event"><p>   </p></div>
	</body></html>`

	src := newHTMLSource(SourceConfig{
		Name:     "feedy",
		URL:      "https://example.com/events",
		Selector: ".event",
	}, nil)

	candidates, err := src.parse([]byte(page))
	if err != nil {
		t.Fatal(err)
	}
	// the empty item has no title and is skipped
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	rust := candidates[0]
	if rust.Title != "Rust Night 🦀" {
		t.Errorf("title %q", rust.Title)
	}
	if rust.RawDate != "2024-06-05T18:00" {
		t.Errorf("datetime attribute should win, got %q", rust.RawDate)
	}
	if rust.Location != "Hack Space" {
		t.Errorf("location %q", rust.Location)
	}
	if rust.URL != "https://example.com/events/rust-night" {
		t.Errorf("relative link not resolved: %q", rust.URL)
	}
	if rust.Source.Kind != KindScraped {
		t.Errorf("kind %s, want scraped", rust.Source.Kind)
	}

	goTalk := candidates[1]
	if goTalk.RawDate != "Jun 12, 2024 7:00 pm" {
		t.Errorf("inline date not found, got %q", goTalk.RawDate)
	}
}

func TestICSParse(t *testing.T) {
	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//techcal test//EN",
		"BEGIN:VEVENT",
		"UID:one@test",
		"SUMMARY:Rust Night",
		"DTSTART:20240605T180000Z",
		"LOCATION:Zoom",
		"URL:https://example.com/rust",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:two@test",
		"DTSTART:20240606T180000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	src := newICSSource(SourceConfig{Name: "groupx-cal", Group: "GroupX"}, nil)
	src.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	candidates, err := src.parse([]byte(feed))
	if err != nil {
		t.Fatal(err)
	}
	// the VEVENT without a SUMMARY is skipped
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	rust := candidates[0]
	if rust.Title != "Rust Night" || rust.Location != "Zoom" || rust.URL != "https://example.com/rust" {
		t.Errorf("vevent mapping wrong: %+v", rust)
	}
	if !rust.Start.Equal(time.Date(2024, 6, 5, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("start %v", rust.Start)
	}
	if rust.GroupName != "GroupX" {
		t.Errorf("group fallback missing, got %q", rust.GroupName)
	}
}

func TestICSExpandsRecurrence(t *testing.T) {
	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//techcal test//EN",
		"BEGIN:VEVENT",
		"UID:standup@test",
		"SUMMARY:Weekly Standup",
		"DTSTART:20240603T090000Z",
		"RRULE:FREQ=WEEKLY;COUNT=50",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := newICSSource(SourceConfig{Name: "groupx-cal"}, nil)
	src.now = func() time.Time { return now }

	candidates, err := src.parse([]byte(feed))
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) < 2 {
		t.Fatalf("recurrence not expanded, got %d candidates", len(candidates))
	}

	horizon := now.Add(icsExpandHorizon)
	for i, c := range candidates {
		if c.Title != "Weekly Standup" {
			t.Errorf("occurrence %d: title %q", i, c.Title)
		}
		start := c.Start.UTC()
		if start.Before(now) || start.After(horizon) {
			t.Errorf("occurrence %d outside horizon: %v", i, start)
		}
		if start.Weekday() != time.Monday || start.Hour() != 9 {
			t.Errorf("occurrence %d off the weekly grid: %v", i, start)
		}
	}
	if !candidates[0].Start.UTC().Equal(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first occurrence %v", candidates[0].Start)
	}
}

func TestSubmissionFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.json")
	err := os.WriteFile(path, []byte(`[
		{"title":"Launch Party","start":"2024-06-07T19:00:00Z","submitter_name":"Jane","submitter_link":"https://jane.example.com","group":"GroupX"},
		{"title":"No Start Given"},
		{"start":"2024-06-08T10:00:00Z"}
	]`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	src := newSubmissionSource(SourceConfig{Name: "community-submissions", Path: path})
	if src.Kind() != KindSubmission {
		t.Errorf("kind %s, want submission", src.Kind())
	}

	candidates, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// records missing a title or a start are skipped
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	launch := candidates[0]
	if launch.SubmitterName != "Jane" || launch.SubmitterLink != "https://jane.example.com" {
		t.Errorf("submitter fields wrong: %+v", launch)
	}
	if launch.GroupName != "GroupX" {
		t.Errorf("group field wrong: %q", launch.GroupName)
	}
	if !launch.Start.Equal(time.Date(2024, 6, 7, 19, 0, 0, 0, time.UTC)) {
		t.Errorf("start %v", launch.Start)
	}
}

func TestSubmissionFetchJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.jsonl")
	lines := `{"title":"Launch Party","start":"2024-06-07T19:00:00Z","submitter_name":"Jane"}
{"title":"Go Talk","start":"2024-06-08T10:00:00Z","submitter_name":"Sam"}
`
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	src := newSubmissionSource(SourceConfig{Name: "community-submissions", Path: path})
	candidates, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].SubmitterName != "Jane" || candidates[1].SubmitterName != "Sam" {
		t.Errorf("append order not preserved: %q, %q", candidates[0].SubmitterName, candidates[1].SubmitterName)
	}
}

func TestSubmissionFetchEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	src := newSubmissionSource(SourceConfig{Name: "community-submissions", Path: path})
	candidates, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("an empty drop file is not a source failure: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}

func TestSubmissionFetchMissingFile(t *testing.T) {
	src := newSubmissionSource(SourceConfig{Name: "community-submissions", Path: "/does/not/exist.json"})
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("expected a whole-source error")
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(dir, "sources.yaml")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("defaults filled", func(t *testing.T) {
		path := write(t, `
sources:
  - name: groupx-feed
    type: json_feed
    url: https://groupx.example.com/events.json
  - name: feedy
    type: html
    url: https://feedy.example.com/events
    selector: ".listing"
    timeout: 10s
`)
		catalog, err := LoadCatalog(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(catalog.Sources) != 2 {
			t.Fatalf("got %d sources", len(catalog.Sources))
		}
		if catalog.Sources[0].Timeout != Duration(defaultTimeout) {
			t.Errorf("timeout default missing: %v", catalog.Sources[0].Timeout)
		}
		if catalog.Sources[0].Selector != ".event" {
			t.Errorf("selector default missing: %q", catalog.Sources[0].Selector)
		}
		if catalog.Sources[1].Timeout != Duration(10*time.Second) || catalog.Sources[1].Selector != ".listing" {
			t.Errorf("explicit values must survive: %+v", catalog.Sources[1])
		}
	})

	invalid := []struct {
		name string
		body string
	}{
		{"blank name", "sources:\n  - type: html\n    url: https://x.example.com\n"},
		{"blank type", "sources:\n  - name: x\n    url: https://x.example.com\n"},
		{"submission without path", "sources:\n  - name: x\n    type: submission\n"},
		{"feed without url", "sources:\n  - name: x\n    type: json_feed\n"},
		{"bad timeout", "sources:\n  - name: x\n    type: html\n    url: https://x.example.com\n    timeout: banana\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, tt.body)
			if _, err := LoadCatalog(path); err == nil {
				t.Error("expected an error")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCatalog(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected an error")
		}
	})
}
