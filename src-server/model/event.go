package model

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/uptrace/bun"
)

type LocationType string

const (
	LocationInPerson LocationType = "in_person"
	LocationVirtual  LocationType = "virtual"
	LocationHybrid   LocationType = "hybrid"
	LocationUnknown  LocationType = "unknown"
)

// Event is one canonical, deduplicated occurrence. ID is a pure function
// of the normalized identity fields, so re-ingesting the same logical
// event lands on the same row.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID           string `bun:"id,pk"`            // required
	Title        string `bun:"title,notnull"`    // required, comparison-safe
	DisplayTitle string `bun:"display_title"`    // decorated; contains Title
	StartUnixUTC int64  `bun:"start,notnull"`    // required, canonical timezone
	Location     string `bun:"location"`
	LocationType string `bun:"location_type,notnull"`

	GroupName     string `bun:"group_name"`
	GroupWebsite  string `bun:"group_website"`
	SubmitterName string `bun:"submitter_name"`
	SubmitterLink string `bun:"submitter_link"`
	URL           string `bun:"url"`

	// rank of the source that last won the display fields; a later upsert
	// only overwrites them with an equal-or-higher rank
	Priority int `bun:"priority,notnull"`

	ExpiresAtUnixUTC int64 `bun:"expires_at,notnull"` // required
	CreatedAt        int64 `bun:"created_at,notnull"`
	UpdatedAt        int64 `bun:"updated_at"`

	Sources []*EventSource `bun:"rel:has-many,join:id=event_id"`
}

// Merge-on-conflict write. An existing row keeps its higher-priority
// display fields, gets blanks backfilled, and accumulates provenance;
// upserting identical input is a no-op.
func (e *Event) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("(*Event).Upsert: event id is blank")
	case e.Title == "":
		return fmt.Errorf("(*Event).Upsert: title is blank")
	case e.StartUnixUTC == 0:
		return fmt.Errorf("(*Event).Upsert: start is blank")
	case e.ExpiresAtUnixUTC == 0:
		return fmt.Errorf("(*Event).Upsert: expires at is blank")
	case len(e.Sources) == 0:
		return fmt.Errorf("(*Event).Upsert: sources is empty")
	case e.URL != "":
		if _, err := url.ParseRequestURI(e.URL); err != nil {
			return fmt.Errorf("(*Event).Upsert: url is invalid: %w", err)
		}
	}
	if e.DisplayTitle == "" {
		e.DisplayTitle = e.Title
	}
	if e.LocationType == "" {
		e.LocationType = string(LocationUnknown)
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UTC().Unix()
	}

	existing := new(Event)
	err := db.NewSelect().
		Model(existing).
		Where("id = ?", e.ID).
		Scan(ctx)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.NewInsert().
			Model(e).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Event).Upsert: can't insert event: %w", err)
		}
	case err != nil:
		return fmt.Errorf("(*Event).Upsert: can't check existing event: %w", err)
	default:
		if existing.merge(e) {
			existing.UpdatedAt = time.Now().UTC().Unix()
			if _, err := db.NewUpdate().
				Model(existing).
				WherePK().
				Exec(ctx); err != nil {
				return fmt.Errorf("(*Event).Upsert: can't update event: %w", err)
			}
		}
	}

	for _, src := range e.Sources {
		src.EventID = e.ID
		if err := src.Insert(ctx, db); err != nil {
			return fmt.Errorf("(*Event).Upsert: %w", err)
		}
	}

	return nil
}

// Applies the priority/backfill rules from the incoming row onto the
// stored one; reports whether anything material changed.
func (e *Event) merge(in *Event) bool {
	changed := false
	set := func(dst *string, val string) {
		if val != "" && *dst != val {
			*dst = val
			changed = true
		}
	}

	if in.Priority >= e.Priority {
		set(&e.Title, in.Title)
		set(&e.DisplayTitle, in.DisplayTitle)
		set(&e.Location, in.Location)
		set(&e.URL, in.URL)
		set(&e.GroupName, in.GroupName)
		set(&e.GroupWebsite, in.GroupWebsite)
		set(&e.SubmitterName, in.SubmitterName)
		set(&e.SubmitterLink, in.SubmitterLink)
		if in.LocationType != "" && in.LocationType != string(LocationUnknown) && e.LocationType != in.LocationType {
			e.LocationType = in.LocationType
			changed = true
		}
		if in.Priority > e.Priority {
			e.Priority = in.Priority
			changed = true
		}
	} else {
		// lower-priority source may only fill blanks
		fill := func(dst *string, val string) {
			if *dst == "" && val != "" {
				*dst = val
				changed = true
			}
		}
		fill(&e.Location, in.Location)
		fill(&e.URL, in.URL)
		fill(&e.GroupName, in.GroupName)
		fill(&e.GroupWebsite, in.GroupWebsite)
		fill(&e.SubmitterName, in.SubmitterName)
		fill(&e.SubmitterLink, in.SubmitterLink)
		if e.LocationType == string(LocationUnknown) && in.LocationType != "" && in.LocationType != string(LocationUnknown) {
			e.LocationType = in.LocationType
			changed = true
		}
	}
	if in.ExpiresAtUnixUTC > e.ExpiresAtUnixUTC {
		e.ExpiresAtUnixUTC = in.ExpiresAtUnixUTC
		changed = true
	}
	return changed
}

type QueryFilter struct {
	GroupName    string
	LocationType LocationType
	// expiry cutoff; zero means time.Now()
	Now time.Time
}

// Events with start in [from, to), ascending by start then id, expired
// rows excluded.
func EventsInRange(ctx context.Context, db bun.IDB, from, to time.Time, filter QueryFilter) ([]Event, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}

	events := []Event{}
	query := db.NewSelect().
		Model(&events).
		Relation("Sources").
		Where("start >= ?", from.UTC().Unix()).
		Where("start < ?", to.UTC().Unix()).
		Where("expires_at > ?", now.UTC().Unix()).
		Order("start ASC", "id ASC")
	if filter.GroupName != "" {
		query = query.Where("group_name = ?", filter.GroupName)
	}
	if filter.LocationType != "" {
		query = query.Where("location_type = ?", string(filter.LocationType))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("EventsInRange: %w", err)
	}
	return events, nil
}

// Removes events whose retention window has passed, provenance rows
// included. Idempotent.
func Expire(ctx context.Context, db *bun.DB, now time.Time) (int, error) {
	var removed int64
	if err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*EventSource)(nil)).
			Where("event_id IN (SELECT id FROM events WHERE expires_at <= ?)", now.UTC().Unix()).
			Exec(ctx); err != nil {
			return fmt.Errorf("can't delete expired sources: %w", err)
		}
		res, err := tx.NewDelete().
			Model((*Event)(nil)).
			Where("expires_at <= ?", now.UTC().Unix()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("can't delete expired events: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("can't count expired events: %w", err)
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("Expire: %w", err)
	}
	return int(removed), nil
}
