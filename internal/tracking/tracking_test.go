package tracking

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"
)

// stubPinService implements PinService with a fixed result or error.
type stubPinService struct {
	pin string
	err error
}

func (s *stubPinService) IssueTrackingID(context.Context, string, map[string]string) (string, error) {
	return s.pin, s.err
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
}

func TestIssue_UsesBackendPin(t *testing.T) {
	t.Parallel()

	iss := NewIssuer(&stubPinService{pin: "a3k7p2"}, NewMemoryStore(), WithClock(fixedClock))
	got, err := iss.Issue(context.Background(), "cedula_duplicado", "Cédula — Duplicado", "Juan Perez", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got.PIN != "A3K7P2" {
		t.Errorf("pin = %q, want normalized backend pin A3K7P2", got.PIN)
	}
	if !strings.HasPrefix(got.Radicado, "IDENTIA-20260831-") {
		t.Errorf("radicado = %q, want IDENTIA-20260831-* prefix", got.Radicado)
	}
}

// The stored record never holds the citizen's full cédula; only the
// masked tail survives.
func TestIssue_StoresMaskedCedula(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	iss := NewIssuer(&stubPinService{pin: "A3K7P2"}, store, WithClock(fixedClock))
	_, err := iss.Issue(context.Background(), "cedula_duplicado", "Cédula — Duplicado", "Juan Perez",
		map[string]string{"cedula": "1023456789"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec, err := store.Get(context.Background(), "A3K7P2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Cedula != "***6789" {
		t.Errorf("stored cedula = %q, want the masked form", rec.Cedula)
	}
	if strings.Contains(rec.Cedula, "1023456789") {
		t.Error("full cédula leaked into the store")
	}

	rep, err := iss.Lookup(context.Background(), "A3K7P2")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rep.Cedula != "***6789" {
		t.Errorf("report cedula = %q, want the masked form", rep.Cedula)
	}
}

func TestIssue_FallsBackToLocalPin(t *testing.T) {
	t.Parallel()

	iss := NewIssuer(
		&stubPinService{err: errors.New("backend down")},
		NewMemoryStore(),
		WithRand(rand.New(rand.NewSource(1))),
	)
	got, err := iss.Issue(context.Background(), "apostilla", "Apostilla", "Ana Gomez", nil)
	if err != nil {
		t.Fatalf("Issue must not fail when the backend is down: %v", err)
	}
	if !ValidPIN(got.PIN) {
		t.Errorf("local pin %q is not a valid PIN", got.PIN)
	}
}

func TestIssue_LocalPinsAreUnique(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	iss := NewIssuer(nil, store, WithRand(rand.New(rand.NewSource(42))))

	seen := map[string]bool{}
	for range 50 {
		got, err := iss.Issue(context.Background(), "apostilla", "Apostilla", "X", nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[got.PIN] {
			t.Fatalf("duplicate pin issued: %s", got.PIN)
		}
		seen[got.PIN] = true
	}
}

func TestLookup_ExactMatchOnly(t *testing.T) {
	t.Parallel()

	iss := NewIssuer(&stubPinService{pin: "A3K7P2"}, NewMemoryStore(), WithClock(fixedClock))
	if _, err := iss.Issue(context.Background(), "copia_nacimiento", "Copia de Nacimiento", "Juan", nil); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Case and whitespace are normalized, but nothing else.
	rep, err := iss.Lookup(context.Background(), "  a3k7p2 ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rep.Status != StatusIniciado {
		t.Errorf("status = %q, want iniciado", rep.Status)
	}
	if rep.Progress != 0 {
		t.Errorf("progress = %d, want 0", rep.Progress)
	}

	// A prefix of a valid PIN must not match.
	if _, err := iss.Lookup(context.Background(), "A3K7P"); !errors.Is(err, ErrNotFound) {
		t.Errorf("partial pin lookup = %v, want ErrNotFound", err)
	}
	if _, err := iss.Lookup(context.Background(), "ZZKKQQ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown pin lookup = %v, want ErrNotFound", err)
	}
}

func TestAdvance_ProgressAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	iss := NewIssuer(&stubPinService{pin: "A3K7P2"}, NewMemoryStore(), WithClock(fixedClock))
	if _, err := iss.Issue(ctx, "cedula_renovacion", "Renovación", "Juan", nil); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	steps := []Status{StatusIdentidadOK, StatusDocsOK, StatusEnRevision, StatusCitaAgendada}
	for _, st := range steps {
		if err := iss.Advance(ctx, "A3K7P2", st, ""); err != nil {
			t.Fatalf("Advance(%s): %v", st, err)
		}
	}

	rep, err := iss.Lookup(ctx, "A3K7P2")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rep.Status != StatusCitaAgendada {
		t.Errorf("status = %q, want cita_agendada", rep.Status)
	}
	if want := 4 * 100 / 6; rep.Progress != want {
		t.Errorf("progress = %d, want %d", rep.Progress, want)
	}
	if len(rep.History) != 3 {
		t.Errorf("history len = %d, want the last 3 events", len(rep.History))
	}
	if err := iss.Advance(ctx, "NOPE99", StatusListo, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Advance unknown pin = %v, want ErrNotFound", err)
	}
}

func TestValidPIN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pin  string
		want bool
	}{
		{"A3K7P2", true},
		{"a3k7p2", true},
		{" A3K7P2 ", true},
		{"A3K7P", false},   // too short
		{"A3K7P22", false}, // too long
		{"A3K7P0", false},  // 0 excluded from alphabet
		{"A3K7PO", false},  // O excluded from alphabet
		{"", false},
	}
	for _, tc := range tests {
		if got := ValidPIN(tc.pin); got != tc.want {
			t.Errorf("ValidPIN(%q) = %v, want %v", tc.pin, got, tc.want)
		}
	}
}
