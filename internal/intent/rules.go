package intent

import "regexp"

// Rule pairs a compiled pattern with the intent it produces. Rules are
// evaluated in slice order against the normalized utterance and the first
// match wins, so a specific pattern ("primera vez" + "cedula") must appear
// before the generic one ("cedula") or it is unreachable. Adding a rule is
// a unit append.
type Rule struct {
	// Name is a human-readable label for logging and tests.
	Name string

	// Pattern is matched against the lower-cased, accent-stripped utterance.
	Pattern *regexp.Regexp

	// Intent is the classification produced when Pattern matches.
	Intent Intent

	// ProcedureID selects a catalog procedure for IntentProcedure rules.
	ProcedureID string
}

// defaultRules returns the built-in rule set in priority order.
func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "cedula-primera-vez",
			Pattern:     regexp.MustCompile(`primera\s+vez.*cedula|cedula.*primera\s+vez|mi\s+primera\s+cedula`),
			Intent:      IntentProcedure,
			ProcedureID: "cedula_primera_vez",
		},
		{
			Name:        "cedula-duplicado",
			Pattern:     regexp.MustCompile(`duplicado|perdi\s|me\s+robaron|extravi`),
			Intent:      IntentProcedure,
			ProcedureID: "cedula_duplicado",
		},
		{
			Name:        "cedula-rectificacion",
			Pattern:     regexp.MustCompile(`rectific|corregir\s+(un\s+)?(dato|nombre|error)`),
			Intent:      IntentProcedure,
			ProcedureID: "cedula_rectificacion",
		},
		{
			Name:        "cedula-renovacion",
			Pattern:     regexp.MustCompile(`renovar|renovacion`),
			Intent:      IntentProcedure,
			ProcedureID: "cedula_renovacion",
		},
		{
			Name:        "tarjeta-identidad",
			Pattern:     regexp.MustCompile(`tarjeta\s+de\s+identidad`),
			Intent:      IntentProcedure,
			ProcedureID: "tarjeta_identidad",
		},
		{
			Name:        "cedula-generica",
			Pattern:     regexp.MustCompile(`cedula`),
			Intent:      IntentProcedure,
			ProcedureID: "cedula_renovacion",
		},
		{
			Name:        "matrimonio",
			Pattern:     regexp.MustCompile(`matrimonio|casad[oa]`),
			Intent:      IntentProcedure,
			ProcedureID: "copia_matrimonio",
		},
		{
			Name:        "defuncion",
			Pattern:     regexp.MustCompile(`defuncion|fallecimiento`),
			Intent:      IntentProcedure,
			ProcedureID: "copia_defuncion",
		},
		{
			Name:        "inscripcion-nacimiento",
			Pattern:     regexp.MustCompile(`inscri.*nacimiento|registrar\s+(a\s+)?mi\s+(hij[oa]|beb)`),
			Intent:      IntentProcedure,
			ProcedureID: "inscripcion_nacimiento",
		},
		{
			Name:        "nacimiento",
			Pattern:     regexp.MustCompile(`nacimiento|acta`),
			Intent:      IntentProcedure,
			ProcedureID: "copia_nacimiento",
		},
		{
			Name:        "apostilla",
			Pattern:     regexp.MustCompile(`apostilla`),
			Intent:      IntentProcedure,
			ProcedureID: "apostilla",
		},
		{
			// The Registraduría does not issue driving licences; point the
			// citizen at the right entity instead of guessing a procedure.
			Name:    "licencia-conducir",
			Pattern: regexp.MustCompile(`licencia|conducir|\bmanejar\b|\bpase\b`),
			Intent:  IntentOutOfScope,
		},
		{
			Name:    "estado-tramite",
			Pattern: regexp.MustCompile(`estado|seguimiento|radicado|\bpin\b|como\s+va\s+mi`),
			Intent:  IntentStatus,
		},
		{
			Name:    "agendar-cita",
			Pattern: regexp.MustCompile(`cita|agendar|calendario|horario`),
			Intent:  IntentSchedule,
		},
		{
			Name:    "tarifas",
			Pattern: regexp.MustCompile(`tarifa|costo|precio|cuanto\s+(cuesta|vale)`),
			Intent:  IntentFees,
		},
		{
			Name:    "saludo",
			Pattern: regexp.MustCompile(`\bhola\b|buenos\s+dias|buenas\s+(tardes|noches)|saludos`),
			Intent:  IntentGreeting,
		},
		{
			Name:    "ayuda",
			Pattern: regexp.MustCompile(`ayuda|\bhelp\b|no\s+entiendo|que\s+puedes\s+hacer`),
			Intent:  IntentHelp,
		},
		{
			Name:    "asesor-humano",
			Pattern: regexp.MustCompile(`asesor|humano|operador|persona\s+real|hablar\s+con\s+alguien`),
			Intent:  IntentHuman,
		},
		{
			Name:    "despedida",
			Pattern: regexp.MustCompile(`gracias|adios|hasta\s+luego|chao`),
			Intent:  IntentGoodbye,
		},
	}
}
