// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonluca/palate-sub000/visits"
	"github.com/jonluca/palate-sub000/visits/utils"
	"github.com/spf13/cobra"
)

var visitsCmd = &cobra.Command{
	Use:   "visits",
	Short: "Review decisions on individual visits",
}

var visitsConfirmCmd = &cobra.Command{
	Use:   "confirm <visit> <reference-id>",
	Short: "Confirm a visit as a visit to a reference restaurant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		refID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid reference id %q: %w", args[1], err)
		}

		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := visits.ConfirmVisit(cmd.Context(), repo, args[0], refID)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Visit %s confirmed at %s\n", v.ID, v.RestaurantID)

		return nil
	},
}

var visitsConfirmPrimaryCmd = &cobra.Command{
	Use:   "confirm-primary",
	Short: "Confirm every pending visit against its primary suggestion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := visits.ConfirmPrimarySuggestions(cmd.Context(), repo, batchOptions("confirm"))
		if err != nil {
			return err
		}

		return result.Err()
	},
}

var visitsRejectCmd = &cobra.Command{
	Use:   "reject <visit>",
	Short: "Mark a visit as not a restaurant visit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := visits.RejectVisit(cmd.Context(), repo, args[0]); err != nil {
			return err
		}

		fmt.Printf("✅ Visit %s rejected\n", args[0])

		return nil
	},
}

var visitsMergeCmd = &cobra.Command{
	Use:   "merge <target> <source>",
	Short: "Merge the source visit into the target visit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := visits.MergeVisits(cmd.Context(), repo, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("✅ Merged %s into %s: %s photos, %s → %s\n",
			args[1], v.ID,
			utils.FormatInt(int64(v.PhotoCount)),
			v.StartTime.Local().Format("2006-01-02 15:04"),
			v.EndTime.Local().Format("2006-01-02 15:04"))

		return nil
	},
}

var visitsNotesCmd = &cobra.Command{
	Use:   "notes <visit> <text>",
	Short: "Replace the notes of a visit",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		_, err = visits.UpdateNotes(cmd.Context(), repo, args[0], strings.Join(args[1:], " "))

		return err
	},
}

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Restaurant suggestions of pending visits",
}

var suggestionsRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute the suggestions of every pending visit",
	Long: `Rebuilds the suggestion list and primary suggestion of every pending visit
from the current reference dataset. Run it after loading new restaurants or
changing the suggestion radii.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := newSuggester(repo).RecomputePending(cmd.Context(), repo, batchOptions("suggestions"))
		if err != nil {
			return err
		}

		return result.Err()
	},
}

var reviewLimit int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Print the pending visits in review order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := visits.BuildReviewQueue(cmd.Context(), repo)
		if err != nil {
			return err
		}

		total := len(items)
		if reviewLimit > 0 && len(items) > reviewLimit {
			items = items[:reviewLimit]
		}

		for _, it := range items {
			v := it.Visit

			flags := ""
			if it.CalendarMatched {
				flags += " 📅"
			}

			if v.FoodProbable {
				flags += " 🍽️"
			}

			fmt.Printf("[%d] %s  %s  %s photos%s\n",
				it.Tier, v.ID, v.StartTime.Local().Format("2006-01-02 15:04"), utils.FormatInt(int64(v.PhotoCount)), flags)

			for _, s := range it.Suggestions {
				marker := " "
				if s.Primary {
					marker = "*"
				}

				fmt.Printf("    %s %-40.40s %8s  (ref %d)\n", marker, s.Restaurant.Name, utils.FormatMeters(s.DistanceMeters), s.Restaurant.ID)
			}

			if len(it.FoodLabels) > 0 {
				labels := make([]string, len(it.FoodLabels))
				for i, l := range it.FoodLabels {
					labels[i] = l.Label
				}

				fmt.Printf("    labels: %s\n", strings.Join(labels, ", "))
			}
		}

		fmt.Printf("%s pending visits\n", utils.FormatInt(int64(total)))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(visitsCmd)
	visitsCmd.AddCommand(visitsConfirmCmd)
	visitsCmd.AddCommand(visitsConfirmPrimaryCmd)
	visitsCmd.AddCommand(visitsRejectCmd)
	visitsCmd.AddCommand(visitsMergeCmd)
	visitsCmd.AddCommand(visitsNotesCmd)

	rootCmd.AddCommand(suggestionsCmd)
	suggestionsCmd.AddCommand(suggestionsRecomputeCmd)

	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 20, "Maximum number of visits to print, 0 for all")
}
