// Package procedure defines the catalog of citizen-facing government
// procedures the assistant can guide a citizen through.
//
// The catalog is static: in the real Registraduría deployment it would be
// fetched from the records backend, but its shape is fixed and small enough
// that the client ships its own copy and treats the backend as authoritative
// only for tracking state.
package procedure

import "strings"

// Category groups procedures the way the Registraduría organizes its services.
type Category string

const (
	CategoryIdentificacion Category = "identificacion"
	CategoryRegistroCivil  Category = "registro_civil"
	CategoryConsultas      Category = "consultas"
	CategoryCitas          Category = "citas"
)

// Procedure describes a single government transaction with a fixed step
// sequence (identity → documents → legal review → scheduling).
type Procedure struct {
	// ID is the stable catalog identifier (e.g. "cedula_duplicado").
	ID string

	// Name is the citizen-facing display name.
	Name string

	// Category groups the procedure for menu display.
	Category Category

	// RequiresBiometric marks procedures where identity must be proven with
	// a biometric or voice check before documents are accepted.
	RequiresBiometric bool

	// Fee is the display fee for the procedure. Empty means the procedure
	// is free of charge.
	Fee string

	// DocumentType selects the document schema used during capture review.
	DocumentType string
}

// MatrimonioLookupID is the procedure that triggers the specialized
// marriage-registration-number voice capture instead of document scanning.
const MatrimonioLookupID = "copia_matrimonio"

// catalog lists every supported procedure in menu order.
var catalog = []Procedure{
	{
		ID:                "cedula_primera_vez",
		Name:              "Cédula de Ciudadanía — Primera Vez",
		Category:          CategoryIdentificacion,
		RequiresBiometric: true,
		DocumentType:      "registro_nacimiento",
	},
	{
		ID:                "cedula_duplicado",
		Name:              "Cédula de Ciudadanía — Duplicado",
		Category:          CategoryIdentificacion,
		RequiresBiometric: true,
		Fee:               "$57.950 COP",
		DocumentType:      "cedula",
	},
	{
		ID:                "cedula_rectificacion",
		Name:              "Cédula de Ciudadanía — Rectificación",
		Category:          CategoryIdentificacion,
		RequiresBiometric: true,
		Fee:               "$57.950 COP",
		DocumentType:      "cedula",
	},
	{
		ID:                "cedula_renovacion",
		Name:              "Cédula de Ciudadanía — Renovación",
		Category:          CategoryIdentificacion,
		RequiresBiometric: true,
		Fee:               "$57.950 COP",
		DocumentType:      "cedula",
	},
	{
		ID:           "tarjeta_identidad",
		Name:         "Tarjeta de Identidad",
		Category:     CategoryIdentificacion,
		DocumentType: "registro_nacimiento",
	},
	{
		ID:           "inscripcion_nacimiento",
		Name:         "Registro Civil — Inscripción de Nacimiento",
		Category:     CategoryRegistroCivil,
		DocumentType: "certificado_nacido_vivo",
	},
	{
		ID:           "copia_nacimiento",
		Name:         "Registro Civil — Copia de Nacimiento",
		Category:     CategoryRegistroCivil,
		Fee:          "$22.200 COP",
		DocumentType: "registro_nacimiento",
	},
	{
		ID:           MatrimonioLookupID,
		Name:         "Registro Civil — Copia de Matrimonio",
		Category:     CategoryRegistroCivil,
		Fee:          "$22.200 COP",
		DocumentType: "registro_matrimonio",
	},
	{
		ID:           "copia_defuncion",
		Name:         "Registro Civil — Copia de Defunción",
		Category:     CategoryRegistroCivil,
		Fee:          "$22.200 COP",
		DocumentType: "registro_defuncion",
	},
	{
		ID:           "apostilla",
		Name:         "Apostilla de Documentos",
		Category:     CategoryRegistroCivil,
		Fee:          "$35.000 COP",
		DocumentType: "documento_apostilla",
	},
}

// All returns the full catalog in menu order. The returned slice is a copy;
// callers may reorder or filter it freely.
func All() []Procedure {
	out := make([]Procedure, len(catalog))
	copy(out, catalog)
	return out
}

// ByID returns the procedure with the given catalog ID, or nil when the ID
// is unknown.
func ByID(id string) *Procedure {
	for i := range catalog {
		if catalog[i].ID == id {
			p := catalog[i]
			return &p
		}
	}
	return nil
}

// ByCategory returns all procedures in the given category, in menu order.
func ByCategory(c Category) []Procedure {
	var out []Procedure
	for _, p := range catalog {
		if p.Category == c {
			out = append(out, p)
		}
	}
	return out
}

// Names returns the display names of every procedure, used as the haystack
// for fuzzy matching of spoken procedure requests.
func Names() []string {
	out := make([]string, len(catalog))
	for i, p := range catalog {
		out[i] = p.Name
	}
	return out
}

// normalizeAccents maps the accented vowels common in procedure names to
// their plain ASCII forms so STT output ("cedula") matches catalog entries
// ("Cédula").
func normalizeAccents(s string) string {
	r := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
		"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ñ", "n",
	)
	return r.Replace(strings.ToLower(s))
}

// Normalize lower-cases s and strips Spanish accents. Exposed for the
// intent matcher so catalog names and citizen utterances are compared in
// the same normal form.
func Normalize(s string) string {
	return normalizeAccents(s)
}
