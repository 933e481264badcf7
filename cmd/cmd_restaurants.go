// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/jonluca/palate-sub000/visits"
	"github.com/jonluca/palate-sub000/visits/utils"
	"github.com/spf13/cobra"
)

var restaurantsCmd = &cobra.Command{
	Use:   "restaurants",
	Short: "Manage the reference restaurant dataset",
}

var restaurantsLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load reference restaurants from a JSON file",
	Long: `Reads a JSON array of restaurants and upserts them by id. Rows with an
empty name or invalid coordinates are skipped and reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		restaurants, err := visits.ReadReferenceFile(args[0])
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		index := visits.NewReferenceIndex(repo)

		result, err := visits.LoadReferenceRestaurants(cmd.Context(), repo, index, restaurants, batchOptions("restaurants"))
		if err != nil {
			return fmt.Errorf("loading restaurants: %w", err)
		}

		count, err := repo.CountReferenceRestaurants(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("✅ Loaded %s restaurants (%s skipped), %s in the dataset\n",
			utils.FormatInt(int64(result.Processed)),
			utils.FormatInt(int64(result.Failed)),
			utils.FormatInt(int64(count)))

		return result.Err()
	},
}

var nearbyOptions struct {
	Lat, Lon float64
	Radius   float64
}

var restaurantsNearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List the reference restaurants closest to a location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		radius := nearbyOptions.Radius
		if radius <= 0 {
			radius = engineOptions.SuggestRadius
		}

		nearby, err := newSuggester(repo).Index().Nearby(cmd.Context(), nearbyOptions.Lat, nearbyOptions.Lon, engineOptions.MaxSuggestions, radius)
		if err != nil {
			return err
		}

		if len(nearby) == 0 {
			fmt.Printf("No restaurants within %s\n", utils.FormatMeters(radius))

			return nil
		}

		a, b, c := strings.Repeat("─", 8), strings.Repeat("─", 40), strings.Repeat("─", 12)
		fmt.Printf("╭─%8s─┬─%-40s─┬─%-12s─╮\n", a, b, c)
		fmt.Printf("│ %8s │ %-40s │ %-12s │\n", "Distance", "Restaurant", "Award")
		fmt.Printf("├─%8s─┼─%-40s─┼─%-12s─┤\n", a, b, c)

		for _, n := range nearby {
			fmt.Printf("│ %8s │ %-40.40s │ %-12.12s │\n", utils.FormatMeters(n.DistanceMeters), n.Restaurant.Name, n.Restaurant.Award)
		}

		fmt.Printf("╰─%8s─┴─%-40s─┴─%-12s─╯\n", a, b, c)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(restaurantsCmd)
	restaurantsCmd.AddCommand(restaurantsLoadCmd)
	restaurantsCmd.AddCommand(restaurantsNearbyCmd)

	restaurantsNearbyCmd.Flags().Float64Var(&nearbyOptions.Lat, "lat", 0, "Latitude")
	restaurantsNearbyCmd.Flags().Float64Var(&nearbyOptions.Lon, "lon", 0, "Longitude")
	restaurantsNearbyCmd.Flags().Float64Var(&nearbyOptions.Radius, "radius", 0, "Search radius in meters (defaults to --suggest-radius)")
	_ = restaurantsNearbyCmd.MarkFlagRequired("lat")
	_ = restaurantsNearbyCmd.MarkFlagRequired("lon")
}
