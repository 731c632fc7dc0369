package metric

import (
	"log/slog"
	"time"

	"techcal/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "techcal_candidates_total",
		Help: "Candidate events extracted across all sources",
	})
	CandidatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "techcal_candidates_dropped_total",
		Help: "Candidates dropped before merge (unparseable start, missing fields)",
	})
	AdapterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "techcal_adapter_failures_total",
		Help: "Whole-source fetch/parse failures",
	}, []string{"source"})
	EventsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "techcal_events_upserted_total",
		Help: "Canonical events written to the store",
	})
	EventsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "techcal_events_expired_total",
		Help: "Events removed by the retention window",
	})
	LastRunUnixtime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "techcal_last_run_unixtime",
		Help: "Unix time of the last completed ingestion run",
	})
	EmojiRunsElided = promauto.NewCounter(prometheus.CounterOpts{
		Name: "techcal_emoji_runs_elided_total",
		Help: "Emoji runs left out of the image view for lack of an emoji font",
	})
)

func databaseWrite(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseWrite := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "techcal_database_write_microsec",
		Help: "The latency of the last store write in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseWrite); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register techcal_database_write_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("techcal_database_write_microsec metric registered")
		databaseWrite.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseWrite) {
				case true:
					slog.Debug("techcal_database_write_microsec metric unregistered")
				case false:
					slog.Warn("techcal_database_write_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseWrite:
				databaseWrite.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseWrite.Set(0)
			}
		}
	}()
}

func renderLatency(as *utils.AppState, clearTickerInterval *time.Duration) {
	renderLatency := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "techcal_render_microsec",
		Help: "The latency of the last calendar render in microseconds",
	})
	good := true
	if err := prometheus.Register(renderLatency); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register techcal_render_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("techcal_render_microsec metric registered")
		renderLatency.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(renderLatency) {
				case true:
					slog.Debug("techcal_render_microsec metric unregistered")
				case false:
					slog.Warn("techcal_render_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.RenderLatency:
				renderLatency.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				renderLatency.Set(0)
			}
		}
	}()
}

func Init(as *utils.AppState) {
	clearTickerInterval := 5 * time.Minute

	databaseWrite(as, &clearTickerInterval)
	renderLatency(as, &clearTickerInterval)
}
