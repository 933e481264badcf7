// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanCalendarTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Le Bernardin", "le bernardin"},
		{"Dinner at Le Bernardin (Resy)", "le bernardin"},
		{"Reservation at Eleven Madison Park via Resy", "eleven madison park"},
		{"Table for 2 at Atomix", "atomix"},
		{"Atomix - Tock", "atomix"},
		{"Atomix – OpenTable", "atomix"},
		{"Lunch @ L'Arpège", "larpege"},
		{"Resy: Sushi Nakazawa", "sushi nakazawa"},
		{"Per Se reservation", "per se"},
		{"Brunch at Café Boulud for 4 people", "cafe boulud"},
		{"  Birthday   dinner - Atomix  ", "birthday dinner atomix"},
		{"Dinner at Кафе Пушкинъ (Resy)", "кафе пушкинъ"},
		{"鮨 さいとう", "鮨 さいとう"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanCalendarTitle(tc.title))
		})
	}
}

func TestCalendarTitleMatches(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		restaurant string
		want       bool
	}{
		{"exact", "Le Bernardin", "Le Bernardin", true},
		{"boilerplate", "Dinner at Le Bernardin (Resy)", "Le Bernardin", true},
		{"accents and punctuation", "dinner at l'arpege", "L'Arpège", true},
		{"name inside a longer title", "Birthday dinner - Atomix", "Atomix", true},
		{"typo", "Sushi Nakasawa", "Sushi Nakazawa", true},
		{"word order", "Madison Park Eleven", "Eleven Madison Park", true},
		{"short names need an exact match", "Dinner at Kokonas", "Ko", false},
		{"short exact name", "Dinner at Ko", "Ko", true},
		{"partial word is not containment", "Nomad bar", "Noma", false},
		{"unrelated", "Team standup", "Atomix", false},
		{"empty title", "", "Atomix", false},
		{"only boilerplate", "Reservation", "Atomix", false},
		{"cyrillic", "Dinner at Кафе Пушкинъ", "Кафе Пушкинъ", true},
		{"japanese", "Lunch at 鮨 さいとう", "鮨 さいとう", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalendarTitleMatches(tc.title, tc.restaurant))
		})
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"atomix", "atomix", 1},
		{"kitten", "sitting", 1 - 3.0/7},
		{"café", "cafe", 0.75},
		{"日本料理", "日本料埋", 0.75},
	}

	for _, tc := range tests {
		assert.InDelta(t, tc.want, levenshteinSimilarity(tc.a, tc.b), 1e-9, "%q vs %q", tc.a, tc.b)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity(vectorize("eleven madison park"), vectorize("Park, Madison, Eleven")), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity(vectorize("atomix"), vectorize("per se")), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity(vectorize(""), vectorize("per se")), 1e-9)
}
