// Package intent classifies free-text citizen utterances into discrete
// intents with canned responses and reply suggestions.
//
// Classification is an ordered list of regex rules evaluated against the
// lower-cased, accent-stripped utterance; the first matching rule wins, so
// rule order encodes priority and is part of the package's tested contract.
// When no rule matches, a fuzzy pass compares the utterance against the
// procedure catalog (Jaro-Winkler, to absorb STT noise) before giving up
// with IntentUnknown.
//
// Route is a pure function of its inputs: no I/O, no stored state beyond
// the immutable rule set.
package intent

import (
	"fmt"
	"strings"

	"github.com/identia-project/identia/internal/procedure"
)

// Intent is a discrete classification of a citizen utterance.
type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentHelp       Intent = "help"
	IntentProcedure  Intent = "procedure"
	IntentStatus     Intent = "status"
	IntentSchedule   Intent = "schedule"
	IntentFees       Intent = "fees"
	IntentHuman      Intent = "human"
	IntentGoodbye    Intent = "goodbye"
	IntentOutOfScope Intent = "out_of_scope"
	IntentUnknown    Intent = "unknown"
)

// Result is the outcome of routing one utterance.
type Result struct {
	// Intent is the winning classification.
	Intent Intent

	// Rule is the name of the matching rule, or "fuzzy-catalog" / "" for
	// the fuzzy and unknown outcomes. Exposed for logging and tests.
	Rule string

	// ProcedureID is set when the intent selects a catalog procedure.
	ProcedureID string

	// ResponseText is the assistant reply for this intent.
	ResponseText string

	// Suggestions are the quick-reply chips to offer alongside the reply.
	Suggestions []string
}

// Router evaluates the ordered rule set. The zero value is not usable;
// construct with New.
type Router struct {
	rules   []Rule
	matcher *Matcher
}

// Option is a functional option for Router.
type Option func(*Router)

// WithRules replaces the built-in rule set. Used by tests that assert
// ordering behaviour with a controlled rule list.
func WithRules(rules []Rule) Option {
	return func(r *Router) {
		r.rules = rules
	}
}

// WithMatcher replaces the fuzzy catalog matcher. Passing nil disables the
// fuzzy pass entirely.
func WithMatcher(m *Matcher) Option {
	return func(r *Router) {
		r.matcher = m
	}
}

// New creates a Router with the default rule set and fuzzy matcher.
func New(opts ...Option) *Router {
	r := &Router{
		rules:   defaultRules(),
		matcher: NewMatcher(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Append adds a rule after all existing rules. Appended rules therefore
// have the lowest priority, matching the contract that adding a rule is a
// unit append.
func (r *Router) Append(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Route classifies text. activeName is the display name of the currently
// selected procedure, interpolated into responses where relevant; pass ""
// when no procedure is active.
func (r *Router) Route(text string, activeName string) Result {
	norm := procedure.Normalize(strings.TrimSpace(text))
	if norm != "" {
		for _, rule := range r.rules {
			if !rule.Pattern.MatchString(norm) {
				continue
			}
			return r.build(rule.Intent, rule.Name, rule.ProcedureID, activeName)
		}
		if r.matcher != nil {
			if p, ok := r.matcher.Match(norm); ok {
				return r.build(IntentProcedure, "fuzzy-catalog", p.ID, activeName)
			}
		}
	}
	return r.build(IntentUnknown, "", "", activeName)
}

// build assembles the Result for an intent, resolving the response template
// and suggestion list.
func (r *Router) build(in Intent, rule string, procID string, activeName string) Result {
	name := activeName
	if p := procedure.ByID(procID); p != nil {
		name = p.Name
	}
	res := Result{
		Intent:       in,
		Rule:         rule,
		ProcedureID:  procID,
		ResponseText: responseFor(in, name),
		Suggestions:  suggestionsFor(in),
	}
	return res
}

// responseFor selects the deterministic reply for an intent, interpolating
// the procedure name where the template uses it.
func responseFor(in Intent, procedureName string) string {
	switch in {
	case IntentGreeting:
		return "¡Hola! Soy IDENTIA, su asistente de la Registraduría.\n" +
			"Puedo ayudarle con cédulas, registro civil, apostillas y citas.\n" +
			"¿Qué trámite necesita realizar hoy?"
	case IntentHelp:
		return "No se preocupe, estoy para ayudarle.\n" +
			"Puede decirme qué trámite necesita, por ejemplo:\n" +
			"\"Quiero renovar mi cédula\" o \"Necesito una copia de matrimonio\".\n" +
			"También puede tocar los botones en pantalla."
	case IntentProcedure:
		if procedureName == "" {
			return "¡Perfecto! Vamos a iniciar su trámite.\nPrimero necesito verificar su identidad."
		}
		return fmt.Sprintf("¡Perfecto! Vamos a iniciar su trámite de %s.\n"+
			"Primero necesito verificar su identidad.", procedureName)
	case IntentStatus:
		return "Con gusto consulto el estado de su trámite.\n" +
			"Por favor dígame o escriba su PIN de seguimiento (6 caracteres, ej: A3K7P2)."
	case IntentSchedule:
		return "Para agendar una cita primero debemos iniciar el trámite correspondiente.\n" +
			"¿Qué trámite desea realizar?"
	case IntentFees:
		return "Las tarifas dependen del trámite: los duplicados y renovaciones de " +
			"cédula tienen costo, las copias de registro civil también; la primera " +
			"cédula y la tarjeta de identidad son gratuitas.\n¿Sobre cuál trámite desea saber?"
	case IntentHuman:
		return "Entiendo, a veces es mejor hablar con una persona.\n" +
			"Puede llamar al 01 8000 111 555 o acercarse a cualquier sede de la " +
			"Registraduría. ¿Desea que continuemos mientras tanto?"
	case IntentGoodbye:
		return "¡Gracias por usar IDENTIA! Que tenga un excelente día."
	case IntentOutOfScope:
		return "Las licencias de conducción las gestiona el organismo de tránsito, " +
			"no la Registraduría.\n¿Puedo ayudarle con algún otro trámite?"
	default:
		return "Disculpe, no entendí bien su solicitud.\n" +
			"¿Podría decirme qué trámite necesita?\n" +
			"Por ejemplo: \"renovar cédula\" o \"copia de nacimiento\"."
	}
}

// defaultSuggestions is the fallback chip list shown when an intent has no
// dedicated entry.
var defaultSuggestions = []string{
	"Renovar cédula",
	"Copia de nacimiento",
	"Consultar estado",
	"Ayuda",
}

// suggestionTable maps intents to their quick-reply chips.
var suggestionTable = map[Intent][]string{
	IntentGreeting: {"Renovar cédula", "Copia de matrimonio", "Apostilla", "Consultar estado"},
	IntentHelp:     {"Quiero renovar mi cédula", "Necesito un acta de nacimiento", "Hablar con un asesor"},
	IntentStatus:   {"No tengo mi PIN", "Volver al inicio"},
	IntentFees:     {"Tarifa de duplicado", "Tarifa de copia de nacimiento", "Volver al inicio"},
	IntentHuman:    {"Continuar con el asistente", "Volver al inicio"},
	IntentUnknown:  {"Renovar cédula", "Copia de nacimiento", "Consultar estado", "Hablar con un asesor"},
}

// suggestionsFor returns a copy of the chip list for an intent so callers
// cannot mutate the shared tables.
func suggestionsFor(in Intent) []string {
	src, ok := suggestionTable[in]
	if !ok {
		src = defaultSuggestions
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
