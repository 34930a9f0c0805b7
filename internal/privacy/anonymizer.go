// Package privacy detects and masks personal data before it leaves the
// kiosk. Citizen utterances routinely carry cédula numbers, phone
// numbers and full names; external completion services only ever see
// opaque placeholder tokens, which are swapped back into the reply
// afterwards.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/identia-project/identia/internal/procedure"
)

// Kind classifies a detected piece of personal data. The kind is embedded
// in the placeholder token so a reader of the anonymized text still sees
// what was hidden.
type Kind string

const (
	KindCedula   Kind = "CEDULA"
	KindEmail    Kind = "EMAIL"
	KindPhone    Kind = "TELEFONO"
	KindCard     Kind = "TARJETA"
	KindBirthday Kind = "FECHA_NACIMIENTO"
	KindName     Kind = "NOMBRE"
)

// pattern pairs a detector with the confidence of its matches. Overlap
// resolution keeps the highest-confidence span.
type pattern struct {
	kind       Kind
	re         *regexp.Regexp
	confidence float64
}

// Cédula shapes: dashed serial, dotted thousands, and a bare 8 to 11
// digit run (the weakest form, easily something else).
var patterns = []pattern{
	{KindCedula, regexp.MustCompile(`\b\d{3}-?\d{7}-?\d\b`), 0.90},
	{KindCedula, regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}\b`), 0.85},
	{KindCedula, regexp.MustCompile(`\b\d{8,11}\b`), 0.70},
	{KindEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), 0.95},
	{KindPhone, regexp.MustCompile(`\+57\s?3\d{2}\s?\d{3}\s?\d{4}`), 0.95},
	{KindPhone, regexp.MustCompile(`\b3\d{2}[\s.-]?\d{3}[\s.-]?\d{4}\b`), 0.85},
	{KindPhone, regexp.MustCompile(`\b60\d[\s.-]?\d{3}[\s.-]?\d{4}\b`), 0.80},
	{KindCard, regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), 0.90},
	{KindBirthday, regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-](?:19|20)\d{2}\b`), 0.60},
}

// nameWord matches one capitalised word, Spanish accents included.
var nameWord = regexp.MustCompile(`\p{Lu}[\p{Ll}áéíóúñüÁÉÍÓÚÑ]+`)

// commonNames holds frequent Colombian given names and surnames,
// accent-stripped and lower-cased. A capitalised word is treated as a
// name when its normalized form is in this set; adjacent hits merge into
// one span.
var commonNames = map[string]bool{
	"juan": true, "maria": true, "carlos": true, "ana": true, "luis": true,
	"pedro": true, "jose": true, "jorge": true, "andres": true, "diana": true,
	"camila": true, "laura": true, "sofia": true, "diego": true, "paula": true,
	"fernanda": true, "gomez": true, "fernandez": true, "rodriguez": true,
	"martinez": true, "garcia": true, "lopez": true, "perez": true,
	"gonzalez": true, "sanchez": true, "ramirez": true, "torres": true,
	"diaz": true, "ruiz": true, "castro": true, "morales": true,
}

// nameConfidence is deliberately low: a capitalised dictionary word can
// open a sentence without being anyone's name.
const nameConfidence = 0.60

// span is one detected piece of personal data, by byte offset.
type span struct {
	start, end int
	kind       Kind
	confidence float64
}

// Option is a functional option for Anonymizer.
type Option func(*Anonymizer)

// WithSalt fixes the token salt. Tests use it for reproducible tokens;
// without it every Anonymizer salts independently, so tokens from one
// session are meaningless in another.
func WithSalt(salt string) Option {
	return func(a *Anonymizer) {
		a.salt = salt
	}
}

// Anonymizer replaces personal data with salted placeholder tokens and
// restores them afterwards. Safe for concurrent use; it holds no mutable
// state, mappings travel with the caller.
type Anonymizer struct {
	salt string
}

// New creates an Anonymizer with a random per-instance salt.
func New(opts ...Option) *Anonymizer {
	a := &Anonymizer{salt: uuid.NewString()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Anonymize replaces every detected piece of personal data in text with a
// placeholder token and returns the rewritten text plus the token to
// original mapping needed to undo it.
func (a *Anonymizer) Anonymize(text string) (string, map[string]string) {
	spans := detect(text)
	mapping := make(map[string]string, len(spans))

	// Replace back to front so earlier offsets stay valid.
	out := text
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		value := text[sp.start:sp.end]
		tok := a.token(sp.kind, value)
		mapping[tok] = value
		out = out[:sp.start] + tok + out[sp.end:]
	}
	return out, mapping
}

// Deanonymize substitutes the original values back into text. Tokens
// absent from the mapping are left in place.
func (a *Anonymizer) Deanonymize(text string, mapping map[string]string) string {
	for tok, value := range mapping {
		text = strings.ReplaceAll(text, tok, value)
	}
	return text
}

// token builds the placeholder for value: the kind plus a short salted
// hash, stable within one Anonymizer so repeated mentions of the same
// value collapse to the same token.
func (a *Anonymizer) token(kind Kind, value string) string {
	sum := sha256.Sum256([]byte(a.salt + ":" + string(kind) + ":" + value))
	return "[" + string(kind) + "_" + hex.EncodeToString(sum[:4]) + "]"
}

// detect runs every detector over text and resolves overlaps, keeping the
// highest-confidence span. The result is sorted by position.
func detect(text string) []span {
	var all []span
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			all = append(all, span{start: loc[0], end: loc[1], kind: p.kind, confidence: p.confidence})
		}
	}
	all = append(all, detectNames(text)...)

	sort.Slice(all, func(i, j int) bool {
		if all[i].confidence != all[j].confidence {
			return all[i].confidence > all[j].confidence
		}
		if li, lj := all[i].end-all[i].start, all[j].end-all[j].start; li != lj {
			return li > lj
		}
		return all[i].start < all[j].start
	})

	var kept []span
	for _, sp := range all {
		if overlapsAny(sp, kept) {
			continue
		}
		kept = append(kept, sp)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// detectNames finds runs of capitalised dictionary names and merges
// adjacent hits ("Maria Gomez" is one span, not two).
func detectNames(text string) []span {
	var spans []span
	for _, loc := range nameWord.FindAllStringIndex(text, -1) {
		word := procedure.Normalize(text[loc[0]:loc[1]])
		if !commonNames[word] {
			continue
		}
		if n := len(spans); n > 0 && text[spans[n-1].end:loc[0]] == " " {
			spans[n-1].end = loc[1]
			continue
		}
		spans = append(spans, span{start: loc[0], end: loc[1], kind: KindName, confidence: nameConfidence})
	}
	return spans
}

func overlapsAny(sp span, spans []span) bool {
	for _, other := range spans {
		if sp.start < other.end && other.start < sp.end {
			return true
		}
	}
	return false
}

// MaskCedula hides all but the last four digits of a cédula for storage
// and display.
func MaskCedula(cedula string) string {
	if len(cedula) < 4 {
		return "***"
	}
	return "***" + cedula[len(cedula)-4:]
}
