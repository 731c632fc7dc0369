package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

func CreateSchema(db *bun.DB) error {
	if err := db.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{
			(*Event)(nil),
			(*EventSource)(nil),
		} {
			if _, err := tx.
				NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}

		// the three query axes must each beat a full scan
		for _, index := range []struct {
			name   string
			column string
		}{
			{"events_start_idx", "start"},
			{"events_group_name_idx", "group_name"},
			{"events_location_type_idx", "location_type"},
			{"events_expires_at_idx", "expires_at"},
		} {
			if _, err := tx.
				NewCreateIndex().
				Model((*Event)(nil)).
				Index(index.name).
				Column(index.column).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}
		if _, err := tx.
			NewCreateIndex().
			Model((*EventSource)(nil)).
			Index("event_sources_event_source_idx").
			Column("event_id", "source_name").
			Unique().
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("CreateSchema: %w", err)
	}

	return nil
}
