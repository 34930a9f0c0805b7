package flow

import (
	"regexp"
	"strings"

	"github.com/identia-project/identia/internal/procedure"
	"github.com/identia-project/identia/internal/tracking"
)

// Guard identifies which interception rule fires for a raw input. Guards
// run before generic intent routing, in priority order; at most one fires
// per input.
type Guard int

const (
	// GuardNone: no interception, the input flows to intent routing.
	GuardNone Guard = iota

	// GuardStatus: the input is a status lookup (keywords or a PIN-shaped
	// token).
	GuardStatus

	// GuardMatrimonio: matrimonio capture mode is armed and the input is
	// treated as a marriage registration number attempt.
	GuardMatrimonio

	// GuardVoiceVerify: voice-identity capture mode is armed and the
	// input is treated as a name + cédula utterance.
	GuardVoiceVerify
)

// statusKeywords matches utterances asking about an existing procedure.
var statusKeywords = regexp.MustCompile(`estado|seguimiento|radicado|como va mi|consultar.*pin|mi pin`)

// Detect applies the guard chain to the normalized input for the given
// state. Priority: status lookup, then matrimonio capture, then voice
// verify. Only one guard fires.
//
// While a capture mode is armed the input belongs to that capture: a
// cédula or registration number can look exactly like a PIN, so the bare
// token shortcut is suspended and only explicit status keywords divert.
func Detect(state State, text string) Guard {
	norm := procedure.Normalize(strings.TrimSpace(text))
	if norm == "" {
		return GuardNone
	}
	captureArmed := state.Modes.MatrimonioCapture || state.Modes.VoiceVerify
	if statusKeywords.MatchString(norm) || (!captureArmed && containsPINToken(text)) {
		return GuardStatus
	}
	if state.Modes.MatrimonioCapture {
		return GuardMatrimonio
	}
	if state.Modes.VoiceVerify {
		return GuardVoiceVerify
	}
	return GuardNone
}

// containsPINToken reports whether any whitespace-separated token of text
// has the exact shape of a tracking PIN. A bare PIN reply ("A3K7P2") must
// reach the status guard even without keywords.
func containsPINToken(text string) bool {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,;:!?¡¿")
		// Purely alphabetic tokens are ordinary words, not PINs.
		if !strings.ContainsAny(tok, "0123456789") {
			continue
		}
		if tracking.ValidPIN(tok) {
			return true
		}
	}
	return false
}

// ExtractPIN returns the first PIN-shaped token of text, normalized, or "".
func ExtractPIN(text string) string {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,;:!?¡¿")
		if !strings.ContainsAny(tok, "0123456789") {
			continue
		}
		if tracking.ValidPIN(tok) {
			return strings.ToUpper(tok)
		}
	}
	return ""
}

// spokenSymbols maps Spanish number words (and separator words) to their
// symbols, so dictated numbers survive speech recognition. Whole tokens
// only; "todos" stays a word.
var spokenSymbols = map[string]string{
	"cero": "0", "uno": "1", "dos": "2", "tres": "3", "cuatro": "4",
	"cinco": "5", "seis": "6", "siete": "7", "ocho": "8", "nueve": "9",
	"guion": "-", "punto": ".", "coma": ",",
}

var (
	digitDashGap = regexp.MustCompile(`(\d)\s*-\s*(\d)`)
	digitGap     = regexp.MustCompile(`(\d)\s+(\d)`)
)

// NormalizeSpokenDigits lower-cases text, replaces spoken digit words with
// digits, and collapses whitespace between adjacent digits so "uno dos
// tres" becomes "123".
func NormalizeSpokenDigits(text string) string {
	words := strings.Fields(procedure.Normalize(strings.TrimSpace(text)))
	for i, w := range words {
		if sym, ok := spokenSymbols[w]; ok {
			words[i] = sym
		}
	}
	t := strings.Join(words, " ")
	t = digitDashGap.ReplaceAllString(t, "$1-$2")
	for digitGap.MatchString(t) {
		t = digitGap.ReplaceAllString(t, "$1$2")
	}
	return t
}

// cedulaPattern matches a Colombian cédula number: 6 to 12 digits.
var cedulaPattern = regexp.MustCompile(`\b(\d{6,12})\b`)

// VoiceIdentity is the parsed result of a voice-identity utterance.
type VoiceIdentity struct {
	Nombre string
	Cedula string
}

// ParseVoiceIdentity accepts an utterance iff it contains a 6 to 12 digit
// number and at least two space-separated name tokens. Spoken digit words
// are normalized first, so "Juan Perez uno cero dos tres cuatro cinco seis
// siete ocho nueve" parses the same as "Juan Perez 1023456789".
func ParseVoiceIdentity(text string) (VoiceIdentity, bool) {
	norm := NormalizeSpokenDigits(text)

	m := cedulaPattern.FindString(norm)
	if m == "" {
		return VoiceIdentity{}, false
	}

	var names []string
	for _, tok := range strings.Fields(norm) {
		if strings.ContainsAny(tok, "0123456789") {
			continue
		}
		tok = strings.Trim(tok, ".,;:!?¡¿")
		if tok != "" {
			names = append(names, tok)
		}
	}
	if len(names) < 2 {
		return VoiceIdentity{}, false
	}
	return VoiceIdentity{
		Nombre: strings.Join(names, " "),
		Cedula: m,
	}, true
}

// Registration-number patterns of the Colombian civil registry:
// long form XX-XXXX-XXXXXXX, short form 7 to 11 consecutive digits.
var (
	registroLargo = regexp.MustCompile(`\b(\d{2})-(\d{4})-(\d{7})\b`)
	registroCorto = regexp.MustCompile(`\b(\d{7,11})\b`)
)

// ParseRegistroMatrimonio extracts a marriage registration number from the
// utterance, preferring the long dashed form. Returns false when neither
// pattern is present.
func ParseRegistroMatrimonio(text string) (string, bool) {
	norm := NormalizeSpokenDigits(text)

	if m := registroLargo.FindStringSubmatch(norm); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3], true
	}
	if m := registroCorto.FindString(norm); m != "" {
		return m, true
	}
	return "", false
}
