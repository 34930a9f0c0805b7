package document

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// stubProcessor returns a fixed extraction or error.
type stubProcessor struct {
	ext Extraction
	err error
}

func (s *stubProcessor) ProcessDocument(context.Context, []byte, string) (Extraction, error) {
	return s.ext, s.err
}

func cedulaExtraction() Extraction {
	return Extraction{
		Confidence: 0.91,
		Fields: map[string]string{
			"numero_documento": "1023456789",
			"nombres":          "JUAN CARLOS",
			"apellidos":        "PEREZ GOMEZ",
			"fecha_nacimiento": "1990-04-12",
			"lugar_nacimiento": "BOGOTÁ D.C.",
			"fecha_expedicion": "2015-06-01",
		},
	}
}

func TestBegin_SurfacesCollaboratorOutput(t *testing.T) {
	t.Parallel()

	ext := cedulaExtraction()
	ext.Warnings = []string{"imagen con poco contraste"}
	c := NewCoordinator(&stubProcessor{ext: ext})

	rec, err := c.Begin(context.Background(), []byte("img"), "cedula", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if rec.Confidence != 0.91 {
		t.Errorf("confidence = %v, want collaborator value 0.91", rec.Confidence)
	}
	if len(rec.Warnings) != 1 {
		t.Errorf("warnings = %v, want collaborator warnings", rec.Warnings)
	}
	if rec.Field("numero_documento") != "1023456789" {
		t.Errorf("field not surfaced: %q", rec.Field("numero_documento"))
	}
}

func TestBegin_ReleasesDeviceOnProcessError(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&stubProcessor{err: errors.New("boom")})
	released := false
	_, err := c.Begin(context.Background(), []byte("img"), "cedula", func() { released = true })
	if err == nil {
		t.Fatal("expected error from collaborator")
	}
	if !released {
		t.Error("capture device not released on processing failure")
	}
}

func TestConfirm_Unedited(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&stubProcessor{ext: cedulaExtraction()})
	if _, err := c.Begin(context.Background(), nil, "cedula", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	res, err := c.Confirm()
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.WasEdited {
		t.Error("WasEdited = true for untouched record")
	}
	if c.Active() != nil {
		t.Error("record not discarded after confirmation")
	}
}

func TestConfirm_ReportsEdit(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&stubProcessor{ext: cedulaExtraction()})
	if _, err := c.Begin(context.Background(), nil, "cedula", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.EditField("nombres", "JUAN CAMILO"); err != nil {
		t.Fatalf("EditField: %v", err)
	}

	res, err := c.Confirm()
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !res.WasEdited {
		t.Error("WasEdited = false after a correction")
	}
	if res.Fields["nombres"] != "JUAN CAMILO" {
		t.Errorf("confirmed value = %q, want the corrected one", res.Fields["nombres"])
	}
}

func TestConfirm_EditBackToOriginalIsNotAnEdit(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&stubProcessor{ext: cedulaExtraction()})
	if _, err := c.Begin(context.Background(), nil, "cedula", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.EditField("nombres", "OTRO"); err != nil {
		t.Fatalf("EditField: %v", err)
	}
	if err := c.EditField("nombres", "JUAN CARLOS"); err != nil {
		t.Fatalf("EditField: %v", err)
	}

	res, err := c.Confirm()
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.WasEdited {
		t.Error("WasEdited = true although final values equal the extraction")
	}
}

func TestConfirm_MissingRequiredFields(t *testing.T) {
	t.Parallel()

	ext := cedulaExtraction()
	ext.Fields["nombres"] = ""
	delete(ext.Fields, "apellidos")
	c := NewCoordinator(&stubProcessor{ext: ext})
	if _, err := c.Begin(context.Background(), nil, "cedula", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	_, err := c.Confirm()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Confirm err = %v, want *ValidationError", err)
	}
	if len(verr.Missing) != 2 {
		t.Fatalf("missing = %v, want both empty required fields", verr.Missing)
	}
	for _, label := range []string{"Apellidos", "Nombres"} {
		if !strings.Contains(verr.Error(), label) {
			t.Errorf("error %q does not name %q", verr.Error(), label)
		}
	}

	// Validation failure performs no state transition: fixing the fields
	// and confirming again must succeed.
	if c.Active() == nil {
		t.Fatal("record discarded by failed confirmation")
	}
	if err := c.EditField("nombres", "JUAN"); err != nil {
		t.Fatalf("EditField: %v", err)
	}
	if err := c.EditField("apellidos", "PEREZ"); err != nil {
		t.Fatalf("EditField: %v", err)
	}
	if _, err := c.Confirm(); err != nil {
		t.Fatalf("Confirm after fixing fields: %v", err)
	}
}

func TestRetry_DiscardsAndReleases(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&stubProcessor{ext: cedulaExtraction()})
	released := false
	if _, err := c.Begin(context.Background(), nil, "cedula", func() { released = true }); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if !c.Retry() {
		t.Error("Retry = false with an active capture")
	}
	if !released {
		t.Error("capture device not released on retry")
	}
	if c.Active() != nil {
		t.Error("record survived Retry")
	}
	if c.Retry() {
		t.Error("Retry = true with no active capture")
	}
	if _, err := c.Confirm(); !errors.Is(err, ErrNoActiveRecord) {
		t.Errorf("Confirm after Retry = %v, want ErrNoActiveRecord", err)
	}
}

func TestEditField_UnknownField(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&stubProcessor{ext: cedulaExtraction()})
	if _, err := c.Begin(context.Background(), nil, "cedula", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.EditField("no_existe", "x"); err == nil {
		t.Error("expected error for unknown field name")
	}
	// A schema field the extraction missed may still be filled in.
	ext := Extraction{Confidence: 0.8, Fields: map[string]string{"numero_registro": "123"}}
	c2 := NewCoordinator(&stubProcessor{ext: ext})
	if _, err := c2.Begin(context.Background(), nil, "registro_matrimonio", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c2.EditField("contrayente_1", "MARIA"); err != nil {
		t.Errorf("EditField for missed schema field: %v", err)
	}
}
