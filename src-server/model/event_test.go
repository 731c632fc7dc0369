package model_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"techcal/src-server/model"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// a second pool connection would get its own empty in-memory db
	db.SetMaxOpenConns(1)
	bundb := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bundb.Close() })

	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}
	return bundb
}

func testEvent(id string, start time.Time, priority int, source string) model.Event {
	return model.Event{
		ID:               id,
		Title:            "Rust Night",
		DisplayTitle:     "Rust Night 🦀",
		StartUnixUTC:     start.Unix(),
		LocationType:     string(model.LocationUnknown),
		Priority:         priority,
		ExpiresAtUnixUTC: start.Add(720 * time.Hour).Unix(),
		Sources: []*model.EventSource{
			{SourceName: source, Kind: "group"},
		},
	}
}

func TestEventUpsertValidation(t *testing.T) {
	bundb := newTestDB(t)
	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*model.Event)
	}{
		{"blank id", func(e *model.Event) { e.ID = "" }},
		{"blank title", func(e *model.Event) { e.Title = "" }},
		{"blank start", func(e *model.Event) { e.StartUnixUTC = 0 }},
		{"blank expiry", func(e *model.Event) { e.ExpiresAtUnixUTC = 0 }},
		{"no sources", func(e *model.Event) { e.Sources = nil }},
		{"invalid url", func(e *model.Event) { e.URL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := testEvent("deadbeef", start, 1, "groupx-feed")
			tt.mutate(&event)
			if err := event.Upsert(context.Background(), bundb); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestEventUpsertIsIdempotent(t *testing.T) {
	bundb := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	event := testEvent("deadbeef", start, 2, "groupx-feed")
	if err := event.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}

	again := testEvent("deadbeef", start, 2, "groupx-feed")
	if err := again.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}

	var stored model.Event
	if err := bundb.NewSelect().Model(&stored).Where("id = ?", "deadbeef").Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if stored.UpdatedAt != 0 {
		t.Error("identical upsert must not touch the row")
	}

	count, err := bundb.NewSelect().Model((*model.EventSource)(nil)).Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("got %d provenance rows, want 1", count)
	}
}

func TestEventUpsertMergeRules(t *testing.T) {
	bundb := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	scraped := testEvent("deadbeef", start, 1, "feedy")
	scraped.Location = "Hack Space, 12 Main Street"
	if err := scraped.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}

	// a higher-priority submission overwrites display fields
	submission := testEvent("deadbeef", start, 3, "community-submissions")
	submission.DisplayTitle = "Rust Night (doors 17:30)"
	submission.URL = "https://example.com/rust-night"
	if err := submission.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}

	var stored model.Event
	if err := bundb.NewSelect().
		Model(&stored).
		Relation("Sources").
		Where("id = ?", "deadbeef").
		Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if stored.DisplayTitle != "Rust Night (doors 17:30)" {
		t.Errorf("display title %q, want the submission's", stored.DisplayTitle)
	}
	if stored.Priority != 3 {
		t.Errorf("priority %d, want 3", stored.Priority)
	}
	if stored.Location != "Hack Space, 12 Main Street" {
		t.Error("higher-priority blank must not clear the stored location")
	}
	if len(stored.Sources) != 2 {
		t.Fatalf("got %d provenance rows, want 2", len(stored.Sources))
	}

	// a lower-priority source only fills blanks
	scrapedAgain := testEvent("deadbeef", start, 1, "feedy")
	scrapedAgain.DisplayTitle = "RUST NIGHT!!!"
	scrapedAgain.GroupName = "GroupX"
	if err := scrapedAgain.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}
	if err := bundb.NewSelect().Model(&stored).Where("id = ?", "deadbeef").Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if stored.DisplayTitle != "Rust Night (doors 17:30)" {
		t.Error("lower-priority source must not overwrite the display title")
	}
	if stored.GroupName != "GroupX" {
		t.Error("lower-priority source should backfill the blank group name")
	}
}

func TestEventsInRange(t *testing.T) {
	bundb := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	weekStart := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	inWeek := testEvent("aaa", weekStart.Add(18*time.Hour), 1, "feedy")
	inWeek.GroupName = "GroupX"
	inWeek.LocationType = string(model.LocationVirtual)
	sameMinute := testEvent("bbb", weekStart.Add(18*time.Hour), 1, "groupx-feed")
	nextWeek := testEvent("ccc", weekStart.AddDate(0, 0, 8), 1, "feedy")
	expired := testEvent("ddd", weekStart.Add(20*time.Hour), 1, "feedy")
	expired.ExpiresAtUnixUTC = now.Add(-time.Hour).Unix()

	for _, event := range []model.Event{inWeek, sameMinute, nextWeek, expired} {
		if err := event.Upsert(ctx, bundb); err != nil {
			t.Fatal(err)
		}
	}

	events, err := model.EventsInRange(ctx, bundb, weekStart, weekStart.AddDate(0, 0, 7), model.QueryFilter{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// same start: ordered by id
	if events[0].ID != "aaa" || events[1].ID != "bbb" {
		t.Errorf("order [%s %s], want [aaa bbb]", events[0].ID, events[1].ID)
	}
	if len(events[0].Sources) != 1 {
		t.Error("provenance should load with the event")
	}

	filtered, err := model.EventsInRange(ctx, bundb, weekStart, weekStart.AddDate(0, 0, 7), model.QueryFilter{
		Now:          now,
		GroupName:    "GroupX",
		LocationType: model.LocationVirtual,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "aaa" {
		t.Errorf("filtered query returned %d events", len(filtered))
	}
}

func TestExpireRemovesRowsForGood(t *testing.T) {
	bundb := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-48 * time.Hour)

	event := testEvent("deadbeef", start, 1, "feedy")
	event.ExpiresAtUnixUTC = now.Add(-time.Hour).Unix()
	if err := event.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}

	removed, err := model.Expire(ctx, bundb, now)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed %d events, want 1", removed)
	}

	sources, err := bundb.NewSelect().Model((*model.EventSource)(nil)).Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sources != 0 {
		t.Errorf("got %d orphaned provenance rows, want 0", sources)
	}

	removed, err = model.Expire(ctx, bundb, now)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Error("expire must be idempotent")
	}

	// a re-ingested copy of the expired event stays invisible to queries
	// until its expiry moves past now
	again := testEvent("deadbeef", start, 1, "feedy")
	again.ExpiresAtUnixUTC = now.Add(-time.Hour).Unix()
	if err := again.Upsert(ctx, bundb); err != nil {
		t.Fatal(err)
	}
	events, err := model.EventsInRange(ctx, bundb, start.Add(-time.Hour), start.Add(time.Hour), model.QueryFilter{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Error("expired event must not resurrect into range queries")
	}
}
