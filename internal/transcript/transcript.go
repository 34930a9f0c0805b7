// Package transcript corrects recognition errors in Spanish transcripts
// against a known vocabulary of procedure and institution names.
//
// Speech recognition reliably mangles domain words: "cédula" comes back
// as "sédula" or "cedula de ciudadania" loses its accents entirely. The
// corrector aligns each word (and multi-word window) of a transcript
// against the vocabulary using Double Metaphone phonetic codes, ranked
// by Jaro-Winkler similarity, and substitutes the canonical form when
// the match is confident enough.
package transcript

import (
	"log/slog"
	"strings"

	"github.com/identia-project/identia/internal/procedure"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	crossLengthThreshold     = 0.95
	leadTokenThreshold       = 0.60
)

// Correction records one substitution made by the corrector.
type Correction struct {
	Original  string
	Corrected string
	Score     float64
}

// Option is a functional option for Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for
// a phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(t float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = t
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(t float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = t
	}
}

// Corrector aligns transcript words against a fixed vocabulary. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	terms    []term
	maxWords int
}

// term is one vocabulary entry with its phonetic codes precomputed.
type term struct {
	canonical string
	folded    string
	tokens    []string
	codes     map[string]struct{}
}

// NewCorrector builds a Corrector over vocab. Entries keep their exact
// spelling in substitutions; matching is accent- and case-insensitive.
func NewCorrector(vocab []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocab {
		folded := fold(v)
		tokens := strings.Fields(folded)
		if len(tokens) == 0 {
			continue
		}
		c.terms = append(c.terms, term{
			canonical: v,
			folded:    folded,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > c.maxWords {
			c.maxWords = len(tokens)
		}
	}
	return c
}

// Correct returns text with recognized vocabulary terms substituted in
// their canonical spelling. Unmatched words pass through unchanged.
func (c *Corrector) Correct(text string) string {
	corrected, changes := c.CorrectDetailed(text)
	for _, ch := range changes {
		slog.Debug("transcript corrected", "from", ch.Original, "to", ch.Corrected, "score", ch.Score)
	}
	return corrected
}

// CorrectDetailed is Correct plus the list of substitutions applied.
//
// At each token position, n-gram windows from the widest vocabulary term
// down to a single word are tried; the longest confident match wins, so
// "registro civil" beats a lone "registro".
func (c *Corrector) CorrectDetailed(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.terms) == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		// Try every window width and keep the best-scoring match. On a
		// tie the narrower window wins, so a loose wide match cannot
		// swallow a filler word next to an exact one.
		var (
			bestN     int
			bestTerm  string
			bestScore float64
		)
		for n := 1; n <= maxN; n++ {
			window := strings.Join(tokens[i:i+n], " ")
			canonical, score, ok := c.match(window)
			if ok && score > bestScore {
				bestN, bestTerm, bestScore = n, canonical, score
			}
		}

		if bestN == 0 {
			output = append(output, tokens[i])
			i++
			continue
		}

		window := strings.Join(tokens[i:i+bestN], " ")
		if fold(window) == fold(bestTerm) {
			// Already the canonical form; keep the original tokens
			// without recording a correction.
			output = append(output, tokens[i:i+bestN]...)
		} else {
			output = append(output, strings.Fields(bestTerm)...)
			corrections = append(corrections, Correction{
				Original:  window,
				Corrected: bestTerm,
				Score:     bestScore,
			})
		}
		i += bestN
	}

	return strings.Join(output, " "), corrections
}

// match tests one window against the vocabulary. Phonetically overlapping
// terms are ranked by Jaro-Winkler and preferred over pure fuzzy matches.
func (c *Corrector) match(window string) (canonical string, score float64, ok bool) {
	folded := fold(window)
	tokens := strings.Fields(folded)
	if len(tokens) == 0 {
		return "", 0, false
	}
	windowCodes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, t := range c.terms {
		// The window must start where the term starts; a dissimilar
		// leading word means the window opened on a filler.
		if !leadTokensAlign(tokens[0], t.tokens[0]) {
			continue
		}

		jw := bestSimilarity(tokens, t.tokens, folded, t.folded)

		// A window may only map to a term with a different word count
		// when the recognizer fused or split words, which shows up as a
		// near-exact concatenated match. Anything looser would swallow
		// surrounding words.
		if len(tokens) != len(t.tokens) && jw < crossLengthThreshold {
			continue
		}

		if codesOverlap(windowCodes, t.codes) {
			if jw >= c.phoneticThreshold && (!bestPhonetic || jw > bestScore) {
				best, bestScore, bestPhonetic = t.canonical, jw, true
			}
		} else if !bestPhonetic {
			if jw >= c.fuzzyThreshold && jw > bestScore {
				best, bestScore = t.canonical, jw
			}
		}
	}

	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// ProcedureVocabulary returns the correction vocabulary for the kiosk:
// every catalog procedure name plus the recurring domain terms citizens
// use to ask for them.
func ProcedureVocabulary() []string {
	vocab := []string{
		"cédula",
		"cédula de ciudadanía",
		"tarjeta de identidad",
		"registro civil",
		"pasaporte",
		"apostilla",
		"matrimonio",
		"cita",
		"trámite",
		"Registraduría",
	}
	for _, p := range procedure.All() {
		vocab = append(vocab, p.Name)
	}
	return vocab
}
