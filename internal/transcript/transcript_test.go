package transcript

import (
	"strings"
	"testing"
)

func testVocabulary() []string {
	return []string{
		"cédula",
		"cédula de ciudadanía",
		"registro civil",
		"pasaporte",
		"apostilla",
		"cita",
	}
}

func TestCorrect_Substitutions(t *testing.T) {
	t.Parallel()

	c := NewCorrector(testVocabulary())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "misheard initial consonant",
			in:   "quiero renovar mi sédula",
			want: "quiero renovar mi cédula",
		},
		{
			name: "two word term",
			in:   "necesito el rejistro sibil de mi hijo",
			want: "necesito el registro civil de mi hijo",
		},
		{
			name: "seseo spelling of cita",
			in:   "quiero una sita para el pasaporte",
			want: "quiero una cita para el pasaporte",
		},
		{
			name: "fused words",
			in:   "el registrocivil de nacimiento",
			want: "el registro civil de nacimiento",
		},
		{
			name: "no vocabulary words",
			in:   "no tengo nada que hacer hoy",
			want: "no tengo nada que hacer hoy",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Correct(tt.in); got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCorrect_AccentOnlyDifferenceIsNotACorrection(t *testing.T) {
	t.Parallel()

	c := NewCorrector(testVocabulary())

	got, changes := c.CorrectDetailed("necesito mi cedula")
	if got != "necesito mi cedula" {
		t.Errorf("text = %q, want unchanged", got)
	}
	if len(changes) != 0 {
		t.Errorf("changes = %v, want none", changes)
	}
}

func TestCorrectDetailed_RecordsSubstitution(t *testing.T) {
	t.Parallel()

	c := NewCorrector(testVocabulary())

	got, changes := c.CorrectDetailed("mi sédula se venció")
	if !strings.Contains(got, "cédula") {
		t.Fatalf("text = %q, want cédula substituted", got)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(changes))
	}
	ch := changes[0]
	if ch.Original != "sédula" || ch.Corrected != "cédula" {
		t.Errorf("correction = %+v", ch)
	}
	if ch.Score < 0.70 {
		t.Errorf("score = %v, want >= phonetic threshold", ch.Score)
	}
}

func TestCorrect_WindowNeverSwallowsNeighbours(t *testing.T) {
	t.Parallel()

	c := NewCorrector(testVocabulary())

	in := "la cedula de mi esposa"
	got := c.Correct(in)
	if !strings.Contains(got, "de mi esposa") {
		t.Errorf("Correct(%q) = %q, surrounding words were dropped", in, got)
	}
}

func TestCorrect_HighThresholdPassesThrough(t *testing.T) {
	t.Parallel()

	c := NewCorrector(testVocabulary(), WithPhoneticThreshold(0.99))

	in := "quiero renovar mi sédula"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct(%q) = %q, want unchanged at threshold 0.99", in, got)
	}
}

func TestProcedureVocabulary(t *testing.T) {
	t.Parallel()

	vocab := ProcedureVocabulary()
	var hasApostilla, hasCatalogName bool
	for _, v := range vocab {
		if v == "apostilla" {
			hasApostilla = true
		}
		if strings.Contains(v, "Apostilla de Documentos") {
			hasCatalogName = true
		}
	}
	if !hasApostilla {
		t.Error("vocabulary is missing the apostilla keyword")
	}
	if !hasCatalogName {
		t.Error("vocabulary is missing the catalog procedure names")
	}
}
