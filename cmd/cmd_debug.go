// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jonluca/palate-sub000/spatial"
	"github.com/jonluca/palate-sub000/visits"
	"github.com/jonluca/palate-sub000/visits/utils"
	"github.com/spf13/cobra"
)

// isTerminal reports whether f is a character device. If it can't be
// stat'ed we say that it isn't.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}

// eachLine calls fn for every line of stdin, prompting when stdin is a terminal.
func eachLine(prompt string, fn func(line string)) error {
	input := os.Stdin
	if isTerminal(input) {
		fmt.Fprintln(os.Stderr, prompt)
	}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugDistanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Print the distance between two points",
	Long: `Reads two WKT points per line, separated by a tab, and prints the line
followed by the great-circle distance between them.

$ printf 'POINT(-73.9776 40.7614)\tPOINT(-73.9776 40.7621)\n' | palate debug distance
POINT(-73.9776 40.7614)	POINT(-73.9776 40.7621)	78 m
	`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return eachLine("Enter two points per line, tab separated…", func(line string) {
			a, b, ok := strings.Cut(line, "\t")
			if !ok {
				fmt.Printf("%s\t%q\n", line, "expected two tab separated points")

				return
			}

			var p, q spatial.Point
			if err := p.Scan(strings.TrimSpace(a)); err != nil {
				fmt.Printf("%s\t%q\n", line, err)

				return
			}

			if err := q.Scan(strings.TrimSpace(b)); err != nil {
				fmt.Printf("%s\t%q\n", line, err)

				return
			}

			fmt.Printf("%s\t%s\n", line, utils.FormatMeters(p.HaversineDistance(&q)))
		})
	},
}

var debugTitleCmd = &cobra.Command{
	Use:   "title",
	Short: "Check calendar titles against restaurant names",
	Long: `Reads a calendar title and a restaurant name per line, separated by a tab,
and prints the cleaned title and whether it matches the restaurant.

$ printf 'Dinner at Le Bernardin (Resy)\tLe Bernardin\n' | palate debug title
Dinner at Le Bernardin (Resy)	le bernardin	true
	`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return eachLine("Enter a title and a restaurant name per line, tab separated…", func(line string) {
			title, name, _ := strings.Cut(line, "\t")
			fmt.Printf("%s\t%s\t%t\n", title, visits.CleanCalendarTitle(title), visits.CalendarTitleMatches(title, name))
		})
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugDistanceCmd)
	debugCmd.AddCommand(debugTitleCmd)
}
