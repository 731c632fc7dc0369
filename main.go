package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"techcal/src-server/adapter"
	"techcal/src-server/grouping"
	"techcal/src-server/ingest"
	"techcal/src-server/metric"
	"techcal/src-server/model"
	"techcal/src-server/publish"
	"techcal/src-server/render"
	"techcal/src-server/scheduler"
	"techcal/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "techcal",
		Short:         "Aggregates tech-event listings into a deduplicated static calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(ingestCmd(), renderCmd(), serveCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("techcal failed", "error", err)
		os.Exit(1)
	}
}

func newAppState() (*utils.AppState, error) {
	as := utils.NewAppState()
	if err := model.CreateSchema(as.BunDB); err != nil {
		return nil, fmt.Errorf("can't create database schema: %w", err)
	}
	return as, nil
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over the source catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := newAppState()
			if err != nil {
				return err
			}
			defer as.GracefulShutdown()
			return runIngest(cmd.Context(), as)
		},
	}
}

func renderCmd() *cobra.Command {
	var weekFlag string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the week calendar from the current store snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := newAppState()
			if err != nil {
				return err
			}
			defer as.GracefulShutdown()

			ref := time.Now().In(as.Config.GetLocation())
			if weekFlag != "" {
				parsed, err := time.ParseInLocation("2006-01-02", weekFlag, as.Config.GetLocation())
				if err != nil {
					return fmt.Errorf("invalid --week: %w", err)
				}
				ref = parsed
			}
			return runRender(cmd.Context(), as, ref)
		},
	}
	cmd.Flags().StringVar(&weekFlag, "week", "", "any date (YYYY-MM-DD) inside the week to render; defaults to the current week")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled ingestion and rendering with a /metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := newAppState()
			if err != nil {
				return err
			}

			metric.Init(as)

			if _, err := scheduler.Start(as,
				func() {
					if err := runIngest(context.Background(), as); err != nil {
						slog.Error("scheduled ingest failed", "error", err)
					}
				},
				func() {
					ref := time.Now().In(as.Config.GetLocation())
					if err := runRender(context.Background(), as, ref); err != nil {
						slog.Error("scheduled render failed", "error", err)
					}
				},
			); err != nil {
				return err
			}

			go func() {
				muxer := http.NewServeMux()
				muxer.Handle("GET /metrics", promhttp.Handler())
				if err := http.ListenAndServe(":"+as.Config.GetPort(), muxer); err != nil {
					slog.Error("cannot start HTTP server", "error", err)
					as.AppCloseSignalChan <- syscall.SIGTERM
				}
			}()

			slog.Info("techcal is now running, press Ctrl+C to exit")
			signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			<-as.AppCloseSignalChan
			as.GracefulShutdown()

			slog.Info("gracefully shutting down...")
			return nil
		},
	}
}

func runIngest(ctx context.Context, as *utils.AppState) error {
	catalog, err := adapter.LoadCatalog(as.Config.GetSourcesFile())
	if err != nil {
		return err
	}
	_, err = ingest.Run(ctx, as, catalog)
	return err
}

// runRender executes the read path: one consistent snapshot query, then
// pure grouping and rendering, then atomic publication.
func runRender(ctx context.Context, as *utils.AppState, ref time.Time) error {
	started := time.Now()
	loc := as.Config.GetLocation()
	weekStart := grouping.WeekStart(ref.In(loc))

	events, err := model.EventsInRange(ctx, as.BunDB, weekStart, weekStart.AddDate(0, 0, 7), model.QueryFilter{})
	if err != nil {
		return err
	}
	days := grouping.Week(events, weekStart, loc)

	html, err := render.HTML(days, weekStart)
	if err != nil {
		return err
	}
	if err := publish.Write(as.Config.GetOutputDir(), "index.html", html); err != nil {
		return err
	}

	assets, err := render.LoadFontAssets(
		as.Config.GetFontBold(),
		as.Config.GetFontRegular(),
		as.Config.GetFontEmoji(),
	)
	if err != nil {
		// the HTML view already published; the image view is additive
		slog.Warn("image view skipped, fonts unavailable", "error", err)
	} else {
		img, err := render.Image(days, weekStart, assets)
		if err != nil {
			return err
		}
		if err := publish.Write(as.Config.GetOutputDir(), "week.png", img); err != nil {
			return err
		}
	}

	select {
	case as.MetricChans.RenderLatency <- float64(time.Since(started).Microseconds()):
	default:
	}

	slog.Info("render complete",
		"week_start", weekStart.Format("2006-01-02"),
		"events", len(events),
		"output_dir", as.Config.GetOutputDir(),
	)
	return nil
}
