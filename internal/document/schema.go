package document

// FieldSpec describes one extractable field of a document type.
type FieldSpec struct {
	// Name is the stable field key (e.g. "numero_documento").
	Name string

	// Label is the citizen-facing field label shown in the review form.
	Label string

	// Required marks fields that must be non-empty before the record can
	// be confirmed.
	Required bool
}

// Schema lists the fields of one document type in display order.
type Schema struct {
	Type   string
	Fields []FieldSpec
}

// Required returns the names of all required fields.
func (s Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// schemas maps document types to their review schemas. Field sets follow
// the Registraduría document layouts.
var schemas = map[string]Schema{
	"cedula": {
		Type: "cedula",
		Fields: []FieldSpec{
			{Name: "numero_documento", Label: "Número de documento", Required: true},
			{Name: "nombres", Label: "Nombres", Required: true},
			{Name: "apellidos", Label: "Apellidos", Required: true},
			{Name: "fecha_nacimiento", Label: "Fecha de nacimiento", Required: true},
			{Name: "lugar_nacimiento", Label: "Lugar de nacimiento"},
			{Name: "fecha_expedicion", Label: "Fecha de expedición"},
		},
	},
	"registro_nacimiento": {
		Type: "registro_nacimiento",
		Fields: []FieldSpec{
			{Name: "numero_registro", Label: "Número de registro (NUIP)", Required: true},
			{Name: "nombres", Label: "Nombres del inscrito", Required: true},
			{Name: "apellidos", Label: "Apellidos del inscrito", Required: true},
			{Name: "fecha_nacimiento", Label: "Fecha de nacimiento", Required: true},
			{Name: "oficina_registro", Label: "Oficina de registro"},
		},
	},
	"registro_matrimonio": {
		Type: "registro_matrimonio",
		Fields: []FieldSpec{
			{Name: "numero_registro", Label: "Número de registro", Required: true},
			{Name: "contrayente_1", Label: "Primer contrayente", Required: true},
			{Name: "contrayente_2", Label: "Segundo contrayente", Required: true},
			{Name: "fecha_matrimonio", Label: "Fecha del matrimonio"},
		},
	},
	"registro_defuncion": {
		Type: "registro_defuncion",
		Fields: []FieldSpec{
			{Name: "numero_registro", Label: "Número de registro", Required: true},
			{Name: "nombres", Label: "Nombres del fallecido", Required: true},
			{Name: "apellidos", Label: "Apellidos del fallecido", Required: true},
			{Name: "fecha_defuncion", Label: "Fecha de defunción"},
		},
	},
	"certificado_nacido_vivo": {
		Type: "certificado_nacido_vivo",
		Fields: []FieldSpec{
			{Name: "numero_certificado", Label: "Número de certificado", Required: true},
			{Name: "nombre_madre", Label: "Nombre de la madre", Required: true},
			{Name: "fecha_nacimiento", Label: "Fecha de nacimiento", Required: true},
			{Name: "institucion", Label: "Institución de salud"},
		},
	},
	"documento_apostilla": {
		Type: "documento_apostilla",
		Fields: []FieldSpec{
			{Name: "tipo_documento", Label: "Tipo de documento", Required: true},
			{Name: "numero_documento", Label: "Número del documento", Required: true},
			{Name: "pais_destino", Label: "País de destino", Required: true},
		},
	},
}

// genericSchema covers document types without a dedicated schema.
var genericSchema = Schema{
	Type: "generico",
	Fields: []FieldSpec{
		{Name: "numero_documento", Label: "Número de documento", Required: true},
		{Name: "titular", Label: "Titular", Required: true},
	},
}

// SchemaFor returns the review schema for documentType, falling back to a
// generic two-field schema for unknown types.
func SchemaFor(documentType string) Schema {
	if s, ok := schemas[documentType]; ok {
		return s
	}
	return genericSchema
}
