// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/jonluca/palate-sub000/visits/utils"
)

// TitleMatchThreshold is the minimum similarity for a fuzzy title match.
const TitleMatchThreshold = 0.8

// minContainmentLength keeps very short names from matching any title that
// happens to contain them as a word.
const minContainmentLength = 4

var (
	// reservation boilerplate in front of the venue name
	titlePrefixRegex = regexp.MustCompile(
		`^(?:(?:resy|opentable|open table|tock|sevenrooms|reservation|booking)\s*:\s*|` +
			`(?:(?:a\s+)?(?:reservation|booking|reserved table|table(?:\s+for\s+\d+)?|` +
			`dinner|lunch|brunch|breakfast|drinks|supper|tasting menu|date night)\s+(?:at|@)\s+))`,
	)

	// reservation boilerplate after the venue name
	titleSuffixRegex = regexp.MustCompile(
		`(?:\s*[-–|:]\s*|\s+)(?:\(?\s*(?:via\s+)?(?:resy|opentable|open table|tock|sevenrooms)\s*\)?|` +
			`reservation|booking|confirmed|for\s+\d+(?:\s+(?:people|guests|persons|ppl))?)$`,
	)

	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// nonAlphanumericRegex is used to remove non-alphanumeric characters during text cleaning.
var nonAlphanumericRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// normalizeName folds accents and case, drops punctuation and collapses
// whitespace.
func normalizeName(s string) string {
	s = nonAlphanumericRegex.ReplaceAllString(utils.FoldName(s), "")

	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// CleanCalendarTitle strips reservation boilerplate from an event title and
// normalizes what is left, e.g. "Dinner at Le Bernardin (Resy)" becomes
// "le bernardin".
func CleanCalendarTitle(title string) string {
	s := utils.FoldName(title)

	for {
		next := titlePrefixRegex.ReplaceAllString(s, "")
		next = strings.TrimSpace(titleSuffixRegex.ReplaceAllString(next, ""))

		if next == s || next == "" {
			break
		}

		s = next
	}

	return normalizeName(s)
}

// CalendarTitleMatches reports whether an event title refers to the named
// restaurant. The comparison ignores case, accents, punctuation and
// reservation boilerplate, and tolerates small spelling differences.
func CalendarTitleMatches(title, restaurantName string) bool {
	t := CleanCalendarTitle(title)
	n := normalizeName(restaurantName)

	if t == "" || n == "" {
		return false
	}

	if t == n {
		return true
	}

	short, long := t, n
	if len(short) > len(long) {
		short, long = long, short
	}

	if len(short) >= minContainmentLength && strings.Contains(" "+long+" ", " "+short+" ") {
		return true
	}

	if levenshteinSimilarity(t, n) >= TitleMatchThreshold {
		return true
	}

	return cosineSimilarity(vectorize(t), vectorize(n)) >= TitleMatchThreshold
}

// levenshteinSimilarity is 1 - editDistance/maxLength over runes.
func levenshteinSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}

	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// vectorize converts a given text into a bag-of-words frequency map (vector).
func vectorize(text string) map[string]int {
	vector := make(map[string]int)

	for _, word := range strings.Fields(normalizeName(text)) {
		vector[word]++
	}

	return vector
}

// cosineSimilarity calculates the cosine similarity between two word vectors (frequency maps).
// A score of 1 means the vectors are identical, 0 means they are completely dissimilar.
func cosineSimilarity(v1, v2 map[string]int) float64 {
	dotProduct := 0

	for k, v := range v1 {
		if v2[k] > 0 {
			dotProduct += v * v2[k]
		}
	}

	mag1 := 0
	for _, v := range v1 {
		mag1 += v * v
	}

	mag2 := 0
	for _, v := range v2 {
		mag2 += v * v
	}

	if mag1 == 0 || mag2 == 0 {
		return 0
	}

	return float64(dotProduct) / (math.Sqrt(float64(mag1)) * math.Sqrt(float64(mag2)))
}
