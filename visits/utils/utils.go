// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var quotes = runes.Map(func(r rune) rune {
	switch r {
	case '‘', '’', 'ʼ':
		return '\''
	case '“', '”':
		return '"'
	}

	return r
})

// FoldName case folds s, strips diacritics and compatibility forms, turns
// curly quotes into straight ones and collapses runs of whitespace, so
// "Crème  Brûlée" and "creme brulee" compare equal.
func FoldName(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		quotes,
		norm.NFC,
	)

	s, _, err := transform.String(t, cases.Fold().String(s))
	if err != nil {
		return ""
	}

	return strings.Join(strings.Fields(s), " ")
}

var printer = message.NewPrinter(language.English)

// FormatInt groups the digits of n by thousands: 15234 → "15,234".
func FormatInt(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatMeters renders a distance for humans: "80 m" or "1.2 km".
func FormatMeters(m float64) string {
	if m < 1000 {
		return printer.Sprintf("%.0f m", m)
	}

	return printer.Sprintf("%.1f km", m/1000)
}
