// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jonluca/palate-sub000/visits"
	"github.com/jonluca/palate-sub000/visits/utils"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import photos, classifier labels and calendar events",
}

var skipDiscover bool

var ingestPhotosCmd = &cobra.Command{
	Use:   "photos <file>",
	Short: "Import photo records and discover visits",
	Long: `Reads a JSON array of photo records, stores them and clusters every
geotagged photo that isn't part of a visit yet into new pending visits with
their restaurant suggestions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photos, err := visits.ReadPhotosFile(args[0])
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		saved, err := visits.SavePhotos(cmd.Context(), repo, photos, batchOptions("photos"))
		if err != nil {
			return fmt.Errorf("saving photos: %w", err)
		}

		fmt.Printf("✅ Stored %s photos (%s skipped)\n",
			utils.FormatInt(int64(saved.Processed)),
			utils.FormatInt(int64(saved.Failed)))

		if skipDiscover {
			return saved.Err()
		}

		discovered, err := visits.DiscoverVisits(cmd.Context(), repo, newSuggester(repo), clusterOptions(), batchOptions("visits"))
		if err != nil {
			return fmt.Errorf("discovering visits: %w", err)
		}

		return saved.Merge(discovered).Err()
	},
}

var ingestLabelsCmd = &cobra.Command{
	Use:   "labels <file>",
	Short: "Import food classifier output",
	Long: `Reads a JSON array of {photo_id, food_detected, food_labels, all_labels}
records. When food_detected is missing it is derived from the food labels.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cls, err := visits.ReadClassificationsFile(args[0])
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := visits.ApplyClassifications(cmd.Context(), repo, cls, batchOptions("labels"))
		if err != nil {
			return fmt.Errorf("applying classifications: %w", err)
		}

		fmt.Printf("✅ Applied %s classifications\n", utils.FormatInt(int64(result.Processed)))

		return result.Err()
	},
}

var calendarSlack = visits.DefaultCalendarOptions().Slack

var ingestCalendarCmd = &cobra.Command{
	Use:   "calendar <file>",
	Short: "Link calendar events to pending visits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := visits.ReadCalendarFile(args[0])
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := visits.ImportCalendarEvents(cmd.Context(), repo, newSuggester(repo).Index(), events, visits.CalendarOptions{
			Slack: calendarSlack,
			Batch: batchOptions("calendar"),
		})
		if err != nil {
			return fmt.Errorf("importing calendar: %w", err)
		}

		return result.Batch.Err()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestPhotosCmd)
	ingestCmd.AddCommand(ingestLabelsCmd)
	ingestCmd.AddCommand(ingestCalendarCmd)

	ingestPhotosCmd.Flags().BoolVar(
		&skipDiscover,
		"skip-discover",
		false,
		"Only store the photos, don't cluster them into visits",
	)
	ingestCalendarCmd.Flags().DurationVar(
		&calendarSlack,
		"slack",
		calendarSlack,
		"Widen each event by this much on both sides when looking for visits",
	)
}
