package intent

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/identia-project/identia/internal/procedure"
)

// defaultWordThreshold is the minimum Jaro-Winkler score for a word in the
// utterance to count as naming a word of a catalog procedure. STT output of
// Spanish procedure vocabulary ("sedula", "renobar") typically lands well
// above this against the intended word and well below it against unrelated
// ones.
const defaultWordThreshold = 0.88

// minWordLen filters out short function words ("de", "la", "mi") that would
// otherwise produce accidental high-similarity pairs.
const minWordLen = 5

// Matcher resolves noisy free text against the procedure catalog using
// per-word Jaro-Winkler similarity. It is the last classification stage,
// consulted only when no regex rule matched.
type Matcher struct {
	threshold float64
	names     []string // normalized catalog names, parallel to ids
	ids       []string
}

// MatcherOption is a functional option for Matcher.
type MatcherOption func(*Matcher)

// WithThreshold overrides the per-word similarity threshold.
func WithThreshold(t float64) MatcherOption {
	return func(m *Matcher) {
		m.threshold = t
	}
}

// NewMatcher builds a Matcher over the full procedure catalog.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{threshold: defaultWordThreshold}
	for _, p := range procedure.All() {
		m.names = append(m.names, procedure.Normalize(p.Name))
		m.ids = append(m.ids, p.ID)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match scores the normalized utterance against every catalog entry and
// returns the best-scoring procedure when it clears the threshold. The
// score of an entry is the best Jaro-Winkler similarity across all pairs
// of content words (utterance word × name word).
func (m *Matcher) Match(norm string) (*procedure.Procedure, bool) {
	inWords := contentWords(norm)
	if len(inWords) == 0 {
		return nil, false
	}

	bestScore := 0.0
	bestIdx := -1
	for i, name := range m.names {
		score := m.scoreEntry(inWords, name)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestScore < m.threshold {
		return nil, false
	}
	return procedure.ByID(m.ids[bestIdx]), true
}

// scoreEntry computes the per-word best similarity between the utterance
// words and the words of one normalized catalog name.
func (m *Matcher) scoreEntry(inWords []string, name string) float64 {
	best := 0.0
	for _, nw := range contentWords(name) {
		for _, iw := range inWords {
			if s := matchr.JaroWinkler(iw, nw, false); s > best {
				best = s
			}
		}
	}
	return best
}

// contentWords splits s into words of at least minWordLen runes.
func contentWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) >= minWordLen {
			out = append(out, w)
		}
	}
	return out
}
