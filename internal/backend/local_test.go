package backend

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/identia-project/identia/internal/document"
	"github.com/identia-project/identia/internal/intent"
	"github.com/identia-project/identia/internal/tracking"
)

func newLocal(seed int64) *Local {
	return NewLocal(intent.New(), WithLocalRand(rand.New(rand.NewSource(seed))))
}

func TestLocalStartSession(t *testing.T) {
	t.Parallel()
	l := newLocal(1)

	a, err := l.StartSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := l.StartSession(context.Background())
	if a == b || !strings.HasPrefix(a, "local-") {
		t.Errorf("session ids = %q, %q", a, b)
	}
}

func TestLocalSendMessage_UsesRouter(t *testing.T) {
	t.Parallel()
	l := newLocal(1)

	resp, err := l.SendMessage(context.Background(), MessageRequest{Message: "hola"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Intent != string(intent.IntentGreeting) {
		t.Errorf("intent = %q, want greeting", resp.Intent)
	}
	if resp.Response == "" || len(resp.Suggestions) == 0 {
		t.Errorf("incomplete response: %+v", resp)
	}
}

func TestLocalProcessDocument_ConfidenceAndPerturbation(t *testing.T) {
	t.Parallel()
	l := newLocal(42)
	ctx := context.Background()

	pristine := func(docType string) map[string]string {
		fields := make(map[string]string)
		for _, f := range document.SchemaFor(docType).Fields {
			v, ok := sampleFieldValues[f.Name]
			if !ok {
				v = strings.ToUpper(f.Label)
			}
			fields[f.Name] = v
		}
		return fields
	}

	sawLow, sawHigh := false, false
	for i := 0; i < 50; i++ {
		resp, err := l.ProcessDocument(ctx, DocumentRequest{DocumentType: "cedula"})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Confidence < 0.70 || resp.Confidence > 0.95 {
			t.Fatalf("confidence %v out of [0.70, 0.95]", resp.Confidence)
		}

		clean := pristine("cedula")
		var mutated int
		for name, v := range resp.Extracted {
			if clean[name] != v {
				mutated++
			}
		}
		if resp.Confidence >= 0.85 {
			sawHigh = true
			if mutated != 0 || len(resp.Warnings) != 0 {
				t.Fatalf("high confidence %.2f but %d mutated fields, warnings %v",
					resp.Confidence, mutated, resp.Warnings)
			}
		} else {
			sawLow = true
			if mutated != len(resp.Warnings) {
				t.Fatalf("warnings (%d) do not match mutated fields (%d)",
					len(resp.Warnings), mutated)
			}
		}
	}
	if !sawLow || !sawHigh {
		t.Skip("seed produced only one confidence band")
	}
}

func TestLocalVoiceIdentity(t *testing.T) {
	t.Parallel()
	l := newLocal(1)
	ctx := context.Background()

	ok, err := l.VerifyVoiceIdentity(ctx, VoiceIdentityRequest{Nombre: "juan perez", Cedula: "1023456789"})
	if err != nil || !ok.Verificado {
		t.Fatalf("verification failed: %+v, %v", ok, err)
	}
	if !strings.Contains(ok.Mensaje, "juan perez") {
		t.Errorf("mensaje = %q", ok.Mensaje)
	}

	bad, err := l.VerifyVoiceIdentity(ctx, VoiceIdentityRequest{Nombre: "", Cedula: "123"})
	if err != nil || bad.Verificado {
		t.Fatalf("empty name verified: %+v, %v", bad, err)
	}
}

func TestLocalTrackingLifecycle(t *testing.T) {
	t.Parallel()
	l := newLocal(7)
	ctx := context.Background()

	pin, err := l.IssueTrackingID(ctx, "cedula_duplicado", map[string]string{"nombre": "JUAN"})
	if err != nil {
		t.Fatal(err)
	}
	if !tracking.ValidPIN(pin) {
		t.Fatalf("issued pin %q is not well formed", pin)
	}

	st, err := l.QueryStatus(ctx, pin)
	if err != nil {
		t.Fatal(err)
	}
	if st.Estado != string(tracking.StatusIniciado) {
		t.Errorf("estado = %q", st.Estado)
	}

	if _, err := l.QueryStatus(ctx, "ZZZZZ9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown pin err = %v, want ErrNotFound", err)
	}
	// Prefixes never match.
	if _, err := l.QueryStatus(ctx, pin[:5]); !errors.Is(err, ErrNotFound) {
		t.Errorf("prefix lookup err = %v, want ErrNotFound", err)
	}

	appt, err := l.ConfirmAppointment(ctx, AppointmentRequest{Pin: pin, Fecha: "2026-09-07", Hora: "09:00"})
	if err != nil {
		t.Fatal(err)
	}
	st, _ = l.QueryStatus(ctx, pin)
	if st.Estado != string(tracking.StatusCitaAgendada) {
		t.Errorf("estado after booking = %q", st.Estado)
	}

	cancel, err := l.CancelAppointment(ctx, appt.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if cancel.EventID != appt.EventID || cancel.Mensaje == "" {
		t.Errorf("cancel response = %+v", cancel)
	}
	st, _ = l.QueryStatus(ctx, pin)
	if st.Estado != string(tracking.StatusEnRevision) {
		t.Errorf("estado after cancellation = %q, want en_revision_legal", st.Estado)
	}

	// Cancelling an unknown event still succeeds, like the remote.
	if _, err := l.CancelAppointment(ctx, "evt-desconocido"); err != nil {
		t.Errorf("unknown event cancel: %v", err)
	}
}

func TestLocalQuerySlots(t *testing.T) {
	t.Parallel()
	l := newLocal(1)
	ctx := context.Background()

	// 2026-09-07 is a Monday. Two slots of the grid are always taken.
	slots, err := l.QuerySlots(ctx, "2026-09-07")
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != len(officeSlots)-2 {
		t.Errorf("weekday slots = %v, want %d of the grid", slots, len(officeSlots)-2)
	}
	grid := make(map[string]bool, len(officeSlots))
	for _, s := range officeSlots {
		grid[s] = true
	}
	for _, s := range slots {
		if !grid[s] {
			t.Errorf("slot %q not in the office grid", s)
		}
	}

	// Availability is a function of the date alone: the same day always
	// books the same two slots, independent of the client's random source.
	again, err := newLocal(99).QuerySlots(ctx, "2026-09-07")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(slots, again) {
		t.Errorf("availability not deterministic per date: %v vs %v", slots, again)
	}

	// A different weekday removes a different pair.
	tuesday, err := l.QuerySlots(ctx, "2026-09-08")
	if err != nil {
		t.Fatal(err)
	}
	if len(tuesday) != len(officeSlots)-2 {
		t.Errorf("tuesday slots = %v", tuesday)
	}

	// 2026-09-05 is a Saturday.
	slots, err = l.QuerySlots(ctx, "2026-09-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Errorf("weekend slots = %v, want none", slots)
	}

	if _, err := l.QuerySlots(ctx, "el lunes"); err == nil {
		t.Error("malformed date accepted")
	}
}
