package utils

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	port string

	dbPath      string
	sourcesFile string
	outputDir   string

	location       *time.Location
	retention      time.Duration
	mergeTolerance time.Duration
	priorityOrder  []string

	ingestCron string
	renderCron string

	fontBold    string
	fontRegular string
	fontEmoji   string
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),

		dbPath: func() string {
			dbPath := os.Getenv("DB_PATH")
			if dbPath == "" {
				dbPath = "./techcal.db"
			}
			slog.Debug("env", "DB_PATH", dbPath)
			return dbPath
		}(),
		sourcesFile: func() string {
			sourcesFile := os.Getenv("SOURCES_FILE")
			if sourcesFile == "" {
				sourcesFile = "./sources.yaml"
			}
			slog.Debug("env", "SOURCES_FILE", sourcesFile)
			return sourcesFile
		}(),
		outputDir: func() string {
			outputDir := os.Getenv("OUTPUT_DIR")
			if outputDir == "" {
				outputDir = "./out"
			}
			slog.Debug("env", "OUTPUT_DIR", outputDir)
			return outputDir
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			var err error
			switch timezoneStr {
			case "", "UTC":
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					slog.Error("invalid timezone", "timezone", timezoneStr, "error", err)
					os.Exit(1)
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr)
			return loc
		}(),
		retention: func() time.Duration {
			retentionStr := os.Getenv("RETENTION_WINDOW")
			if retentionStr == "" {
				retentionStr = "720h" // 30 days
			}
			duration, err := time.ParseDuration(retentionStr)
			if err != nil {
				slog.Error("invalid RETENTION_WINDOW", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "RETENTION_WINDOW", retentionStr, "duration", duration)
			return duration
		}(),
		mergeTolerance: func() time.Duration {
			toleranceStr := os.Getenv("MERGE_TOLERANCE")
			if toleranceStr == "" {
				toleranceStr = "5m"
			}
			duration, err := time.ParseDuration(toleranceStr)
			if err != nil {
				slog.Error("invalid MERGE_TOLERANCE", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "MERGE_TOLERANCE", toleranceStr, "duration", duration)
			return duration
		}(),
		priorityOrder: func() []string {
			orderStr := os.Getenv("PRIORITY_ORDER")
			if orderStr == "" {
				orderStr = "submission,group,scraped"
			}
			order := strings.Split(orderStr, ",")
			for i, kind := range order {
				order[i] = strings.TrimSpace(kind)
			}
			slog.Debug("env", "PRIORITY_ORDER", orderStr)
			return order
		}(),

		ingestCron: func() string {
			ingestCron := os.Getenv("INGEST_CRON")
			if ingestCron == "" {
				ingestCron = "0 2 * * *" // nightly
			}
			slog.Debug("env", "INGEST_CRON", ingestCron)
			return ingestCron
		}(),
		renderCron: func() string {
			renderCron := os.Getenv("RENDER_CRON")
			if renderCron == "" {
				renderCron = "30 2 * * *" // nightly, after ingestion
			}
			slog.Debug("env", "RENDER_CRON", renderCron)
			return renderCron
		}(),

		fontBold: func() string {
			fontBold := os.Getenv("FONT_BOLD")
			if fontBold == "" {
				slog.Warn("FONT_BOLD is not set, image rendering will fail")
			}
			slog.Debug("env", "FONT_BOLD", fontBold)
			return fontBold
		}(),
		fontRegular: func() string {
			fontRegular := os.Getenv("FONT_REGULAR")
			if fontRegular == "" {
				slog.Warn("FONT_REGULAR is not set, image rendering will fail")
			}
			slog.Debug("env", "FONT_REGULAR", fontRegular)
			return fontRegular
		}(),
		fontEmoji: func() string {
			// optional; rendering degrades to emoji-less titles without it
			fontEmoji := os.Getenv("FONT_EMOJI")
			slog.Debug("env", "FONT_EMOJI", fontEmoji)
			return fontEmoji
		}(),
	}
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get DB_PATH env
func (c *Config) GetDBPath() string {
	return c.dbPath
}

// Get SOURCES_FILE env
func (c *Config) GetSourcesFile() string {
	return c.sourcesFile
}

// Get OUTPUT_DIR env
func (c *Config) GetOutputDir() string {
	return c.outputDir
}

// Get TIMEZONE env; the canonical timezone every stored timestamp uses
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// Get RETENTION_WINDOW env
func (c *Config) GetRetentionWindow() time.Duration {
	return c.retention
}

// Get MERGE_TOLERANCE env
func (c *Config) GetMergeTolerance() time.Duration {
	return c.mergeTolerance
}

// Get PRIORITY_ORDER env, highest priority first
func (c *Config) GetPriorityOrder() []string {
	return c.priorityOrder
}

// Get INGEST_CRON env
func (c *Config) GetIngestCron() string {
	return c.ingestCron
}

// Get RENDER_CRON env
func (c *Config) GetRenderCron() string {
	return c.renderCron
}

// Get FONT_BOLD env
func (c *Config) GetFontBold() string {
	return c.fontBold
}

// Get FONT_REGULAR env
func (c *Config) GetFontRegular() string {
	return c.fontRegular
}

// Get FONT_EMOJI env
func (c *Config) GetFontEmoji() string {
	return c.fontEmoji
}
