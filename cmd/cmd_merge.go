// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jonluca/palate-sub000/visits"
	"github.com/jonluca/palate-sub000/visits/utils"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Find and merge duplicate confirmed visits",
}

var mergeDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List groups of confirmed visits that look like one dining occasion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		groups, err := visits.FindMergeGroups(cmd.Context(), repo, mergeOptions(nil))
		if err != nil {
			return err
		}

		for _, g := range groups {
			fmt.Printf("%s (%s) - %d visits, %s photos\n",
				g.RestaurantName, g.RestaurantID, len(g.Visits), utils.FormatInt(int64(g.TotalPhotos)))

			for _, v := range g.Visits {
				fmt.Printf("    %s  %s → %s\n", v.ID,
					v.StartTime.Local().Format("2006-01-02 15:04"),
					v.EndTime.Local().Format("2006-01-02 15:04"))
			}
		}

		fmt.Printf("%s merge groups\n", utils.FormatInt(int64(len(groups))))

		return nil
	},
}

var mergeAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Merge every detected group into its earliest visit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := visits.AutoMerge(cmd.Context(), repo, mergeOptions(visits.TerminalProgress("merge groups")))
		if err != nil {
			return err
		}

		if result.FailedGroups > 0 {
			return fmt.Errorf("%d of %d groups failed", result.FailedGroups, result.Groups)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.AddCommand(mergeDetectCmd)
	mergeCmd.AddCommand(mergeAutoCmd)
}
