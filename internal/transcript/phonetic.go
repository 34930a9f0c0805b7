package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// foldReplacer strips the diacritics Spanish STT output drops or invents
// at random, so "cedula" and "cédula" encode identically. The eñe folds
// to a plain n for the same reason.
var foldReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

// fold lowercases and strips diacritics for comparison.
func fold(s string) string {
	return foldReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// leadTokensAlign reports whether the first word of a window is close
// enough to the first word of a term for the window to be a plausible
// utterance of it.
func leadTokensAlign(windowLead, termLead string) bool {
	return matchr.JaroWinkler(windowLead, termLead, false) >= leadTokenThreshold
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when a word is too short or has no
// consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler similarity between the
// input window and a vocabulary term using three strategies:
//
//  1. Full-string comparison ("registro sibil" vs "registro civil").
//  2. Space-stripped comparison when the word counts differ, for words
//     the recognizer split or fused ("registrocivil").
//
// Pairwise token comparison is deliberately absent: a single shared word
// must not pull a whole multi-word term into the transcript.
func bestSimilarity(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) != len(termTokens) {
		concatIn := strings.Join(inputTokens, "")
		concatTerm := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(concatIn, concatTerm, false); s > score {
			score = s
		}
	}

	return score
}
