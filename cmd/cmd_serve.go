// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jonluca/palate-sub000/visits"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API (local only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		server := visits.NewServer(repo, newSuggester(repo), visits.ServerOptions{
			Addr:  serveAddr,
			Merge: mergeOptions(nil),
			Batch: visits.BatchOptions{Size: engineOptions.BatchSize},
		})

		fmt.Println("🔒 Local only - not exposed to internet")

		return server.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address")
}
