package model

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// EventSource is one provenance reference: which configured source
// corroborated the event. Never rendered, only merged and inspected.
type EventSource struct {
	bun.BaseModel `bun:"table:event_sources"`

	ID         int64  `bun:"id,pk,autoincrement"`
	EventID    string `bun:"event_id,notnull"`
	SourceName string `bun:"source_name,notnull"`
	Kind       string `bun:"kind,notnull"` // scraped | group | submission
}

// Insert is a no-op when the (event_id, source_name) pair is already
// recorded, so provenance accumulation stays idempotent.
func (s *EventSource) Insert(ctx context.Context, db bun.IDB) error {
	switch {
	case s.EventID == "":
		return fmt.Errorf("(*EventSource).Insert: event id is blank")
	case s.SourceName == "":
		return fmt.Errorf("(*EventSource).Insert: source name is blank")
	}

	exists, err := db.NewSelect().
		Model((*EventSource)(nil)).
		Where("event_id = ?", s.EventID).
		Where("source_name = ?", s.SourceName).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*EventSource).Insert: can't check existing source: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.NewInsert().
		Model(s).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*EventSource).Insert: %w", err)
	}
	return nil
}
