// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/jonluca/palate-sub000/visits"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

// EngineOptions holds the flags shared by every command.
type EngineOptions struct {
	DbPath string
	Driver string

	ClusterGap      time.Duration
	ClusterDistance float64

	SuggestRadius  float64
	PrimaryRadius  float64
	MaxSuggestions int

	MergeGap         time.Duration
	MergeConcurrency int

	BatchSize int
}

var engineOptions = &EngineOptions{}

var rootCmd = &cobra.Command{
	Use:   "palate",
	Short: "discover restaurant visits in a photo library",
	Long: `
palate groups geotagged photos into visits, suggests the award restaurants
each visit may have happened at, and keeps the review and merge workflow
that turns those suggestions into a confirmed dining history.
`,
	SilenceUsage: true,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func defaultDbPath() string {
	if p := os.Getenv("PALATE_DB_PATH"); p != "" {
		return p
	}

	return "db"
}

// openRepository opens the store under --db-path, creating it if needed.
func openRepository(ctx context.Context) (*sql.DB, visits.Repository, error) {
	if err := os.MkdirAll(engineOptions.DbPath, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating db directory: %w", err)
	}

	var file string

	switch engineOptions.Driver {
	case visits.DriverDuckDB:
		file = "palate.duckdb"
	case visits.DriverSQLite:
		file = "palate.sqlite"
	default:
		return nil, nil, fmt.Errorf("unknown driver %q (want %s or %s)", engineOptions.Driver, visits.DriverDuckDB, visits.DriverSQLite)
	}

	db, err := visits.OpenDatabase(ctx, engineOptions.Driver, filepath.Join(engineOptions.DbPath, file))
	if err != nil {
		return nil, nil, err
	}

	return db, visits.NewSQLRepository(db), nil
}

func clusterOptions() visits.ClusterOptions {
	return visits.ClusterOptions{
		MaxGap:      engineOptions.ClusterGap,
		MaxDistance: engineOptions.ClusterDistance,
	}
}

func newSuggester(repo visits.Repository) *visits.Suggester {
	return visits.NewSuggester(visits.NewReferenceIndex(repo), visits.SuggestOptions{
		MaxSuggestions: engineOptions.MaxSuggestions,
		SearchRadius:   engineOptions.SuggestRadius,
		PrimaryRadius:  engineOptions.PrimaryRadius,
	})
}

func batchOptions(description string) visits.BatchOptions {
	return visits.BatchOptions{
		Size:     engineOptions.BatchSize,
		Progress: visits.TerminalProgress(description),
	}
}

func mergeOptions(progress visits.ProgressFunc) visits.MergeOptions {
	return visits.MergeOptions{
		MaxGap:      engineOptions.MergeGap,
		Concurrency: engineOptions.MergeConcurrency,
		Progress:    progress,
	}
}

func init() {
	clusterDefaults := visits.DefaultClusterOptions()
	suggestDefaults := visits.DefaultSuggestOptions()
	mergeDefaults := visits.DefaultMergeOptions()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(
		&engineOptions.DbPath,
		"db-path",
		defaultDbPath(),
		"Directory holding the database (env PALATE_DB_PATH)",
	)
	flags.StringVar(
		&engineOptions.Driver,
		"driver",
		visits.DriverDuckDB,
		"Storage engine: duckdb or sqlite",
	)
	flags.DurationVar(
		&engineOptions.ClusterGap,
		"cluster-gap",
		clusterDefaults.MaxGap,
		"Photos further apart in time than this start a new visit",
	)
	flags.Float64Var(
		&engineOptions.ClusterDistance,
		"cluster-distance",
		clusterDefaults.MaxDistance,
		"Photos further than this many meters from a visit center start a new visit",
	)
	flags.Float64Var(
		&engineOptions.SuggestRadius,
		"suggest-radius",
		suggestDefaults.SearchRadius,
		"Search radius in meters for restaurant suggestions",
	)
	flags.Float64Var(
		&engineOptions.PrimaryRadius,
		"primary-radius",
		suggestDefaults.PrimaryRadius,
		"The nearest suggestion within this many meters becomes the primary one",
	)
	flags.IntVar(
		&engineOptions.MaxSuggestions,
		"max-suggestions",
		suggestDefaults.MaxSuggestions,
		"Maximum number of suggestions per visit",
	)
	flags.DurationVar(
		&engineOptions.MergeGap,
		"merge-gap",
		mergeDefaults.MaxGap,
		"Confirmed visits to the same restaurant closer than this are merge candidates",
	)
	flags.IntVar(
		&engineOptions.MergeConcurrency,
		"merge-concurrency",
		mergeDefaults.Concurrency,
		"Number of merge groups processed in parallel",
	)
	flags.IntVar(
		&engineOptions.BatchSize,
		"batch-size",
		visits.DefaultBatchSize,
		"Rows written per transaction in bulk operations",
	)
}
