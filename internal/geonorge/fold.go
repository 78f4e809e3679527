package geonorge

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining diacritical marks after decomposition, so
// "Grünerløkka" and "grunerlokka" compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// æ and ø do not decompose under NFD; map them explicitly.
var norwegianLetters = strings.NewReplacer("æ", "ae", "ø", "o", "å", "a")

// Fold case-folds and diacritic-strips a string for matching user input
// against street names.
func Fold(s string) string {
	lowered := norwegianLetters.Replace(strings.ToLower(s))
	folded, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// FilterStreets keeps streets whose folded name contains the folded query.
// The backend matches loosely; this keeps the dropdown to what the user
// actually typed.
func FilterStreets(streets []Street, query string) []Street {
	needle := Fold(query)
	if needle == "" {
		return streets
	}

	filtered := make([]Street, 0, len(streets))
	for _, s := range streets {
		if strings.Contains(Fold(s.Name), needle) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
