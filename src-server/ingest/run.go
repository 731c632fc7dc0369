// Package ingest runs the write path: fetch every configured source,
// normalize, dedup, upsert, expire. All aggregation state lives in the
// run-scoped Summary; nothing module-level survives a run.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"techcal/src-server/adapter"
	"techcal/src-server/dedup"
	"techcal/src-server/metric"
	"techcal/src-server/model"
	"techcal/src-server/normalize"
	"techcal/src-server/utils"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	WORKER_COUNT = 4
	fetchTimeout = 2 * time.Minute
)

type SourceResult struct {
	Candidates int
	Failed     bool
}

// Summary is the run-scoped accumulation context: per-source results
// and pipeline counts, surfaced once at run end.
type Summary struct {
	RunID    string
	Sources  map[string]SourceResult
	Dropped  int
	Merged   int
	Upserted int
	Expired  int
}

// Run executes one ingestion pass. Per-source failures are absorbed and
// counted; only a store failure aborts the run, leaving previously
// committed events untouched.
func Run(ctx context.Context, as *utils.AppState, catalog *adapter.Catalog) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Sources: make(map[string]SourceResult, len(catalog.Sources)),
	}

	sources := make([]adapter.Source, 0, len(catalog.Sources))
	for _, cfg := range catalog.Sources {
		src, err := adapter.New(cfg, nil)
		if err != nil {
			slog.Error("ingest: can't build adapter", "source", cfg.Name, "error", err)
			summary.Sources[cfg.Name] = SourceResult{Failed: true}
			metric.AdapterFailures.WithLabelValues(cfg.Name).Inc()
			continue
		}
		sources = append(sources, src)
	}

	// fetch sources concurrently; no ordering guarantee and no shared
	// cancellation: one timed-out source never cancels the others
	var mu sync.Mutex
	candidates := make([]adapter.CandidateEvent, 0)

	jobs := make(chan adapter.Source, len(sources))
	var wg sync.WaitGroup
	for i := 0; i < WORKER_COUNT; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
				extracted, err := src.Fetch(fetchCtx)
				cancel()

				mu.Lock()
				if err != nil {
					slog.Warn("ingest: source failed", "run_id", summary.RunID, "source", src.Name(), "error", err)
					summary.Sources[src.Name()] = SourceResult{Failed: true}
					metric.AdapterFailures.WithLabelValues(src.Name()).Inc()
				} else {
					summary.Sources[src.Name()] = SourceResult{Candidates: len(extracted)}
					candidates = append(candidates, extracted...)
					metric.CandidatesTotal.Add(float64(len(extracted)))
				}
				mu.Unlock()
			}
		}()
	}
	for _, src := range sources {
		jobs <- src
	}
	close(jobs)
	wg.Wait()

	// normalize, dropping candidates whose start stays unparseable
	opts := normalize.Options{
		Location: as.Config.GetLocation(),
		When:     as.WhenParse,
	}
	normalized := make([]adapter.CandidateEvent, 0, len(candidates))
	for _, c := range candidates {
		c = normalize.Normalize(c, opts)
		if c.Start.IsZero() {
			slog.Warn("ingest: candidate has no parseable start, dropping",
				"run_id", summary.RunID, "source", c.Source.Source, "title", c.Title, "raw_date", c.RawDate)
			summary.Dropped++
			metric.CandidatesDropped.Inc()
			continue
		}
		normalized = append(normalized, c)
	}

	events := dedup.Merge(normalized, dedup.Options{
		Tolerance: as.Config.GetMergeTolerance(),
		Rank:      dedup.RankFromOrder(as.Config.GetPriorityOrder()),
		Retention: as.Config.GetRetentionWindow(),
		Dropped: func(c adapter.CandidateEvent, reason string) {
			slog.Warn("ingest: candidate dropped before merge",
				"run_id", summary.RunID, "source", c.Source.Source, "reason", reason)
			summary.Dropped++
			metric.CandidatesDropped.Inc()
		},
	})
	summary.Merged = len(events)

	for i := range events {
		start := time.Now()
		if err := as.BunDB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return events[i].Upsert(ctx, tx)
		}); err != nil {
			return summary, fmt.Errorf("ingest.Run: store write failed: %w", err)
		}
		summary.Upserted++
		metric.EventsUpserted.Inc()
		select {
		case as.MetricChans.DatabaseWrite <- float64(time.Since(start).Microseconds()):
		default:
		}
	}

	expired, err := model.Expire(ctx, as.BunDB, time.Now())
	if err != nil {
		return summary, fmt.Errorf("ingest.Run: %w", err)
	}
	summary.Expired = expired
	metric.EventsExpired.Add(float64(expired))
	metric.LastRunUnixtime.SetToCurrentTime()

	slog.Info("ingest: run complete",
		"run_id", summary.RunID,
		"sources", len(summary.Sources),
		"failed_sources", summary.failedCount(),
		"merged", summary.Merged,
		"upserted", summary.Upserted,
		"dropped", summary.Dropped,
		"expired", summary.Expired,
	)
	return summary, nil
}

func (s *Summary) failedCount() int {
	count := 0
	for _, result := range s.Sources {
		if result.Failed {
			count++
		}
	}
	return count
}
