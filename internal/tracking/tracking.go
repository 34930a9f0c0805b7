// Package tracking issues tracking PINs for submitted procedures and
// answers status lookups by PIN.
//
// A PIN is an opaque 6-character identifier handed to the citizen once
// identity and documents are confirmed. The backend collaborator is asked
// for the PIN first; when it is unreachable a locally generated PIN (unique
// within the local store) is substituted so the flow never blocks on
// backend availability.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/identia-project/identia/internal/privacy"
)

// Status is the lifecycle state of a submitted procedure.
type Status string

const (
	StatusIniciado     Status = "iniciado"
	StatusIdentidadOK  Status = "identidad_verificada"
	StatusDocsOK       Status = "documentos_revisados"
	StatusEnRevision   Status = "en_revision_legal"
	StatusCitaAgendada Status = "cita_agendada"
	StatusListo        Status = "listo_para_recoger"
	StatusEntregado    Status = "entregado"
	StatusRechazado    Status = "rechazado"
)

// statusOrder lists the happy-path progression used to compute a progress
// percentage. StatusRechazado is terminal and outside the progression.
var statusOrder = []Status{
	StatusIniciado,
	StatusIdentidadOK,
	StatusDocsOK,
	StatusEnRevision,
	StatusCitaAgendada,
	StatusListo,
	StatusEntregado,
}

// statusMessages maps each status to its citizen-friendly description.
var statusMessages = map[Status]string{
	StatusIniciado:     "Su trámite fue recibido y está en espera de verificación de identidad.",
	StatusIdentidadOK:  "Su identidad fue verificada exitosamente. Estamos revisando sus documentos.",
	StatusDocsOK:       "Sus documentos fueron revisados. Su caso está en revisión legal.",
	StatusEnRevision:   "Su trámite está en revisión legal. Tiempo estimado: 3 a 5 días hábiles.",
	StatusCitaAgendada: "¡Su cita está agendada! Recuerde llevar los documentos originales.",
	StatusListo:        "¡Su documento está listo para recoger! Visite la oficina con su cédula.",
	StatusEntregado:    "Su documento fue entregado exitosamente. ¡Gracias por usar IDENTIA!",
	StatusRechazado:    "Su trámite fue rechazado. Por favor visite la oficina para más información.",
}

// Message returns the citizen-friendly description of s.
func (s Status) Message() string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return "Estado en proceso."
}

// Progress returns the completion percentage for s along the happy path.
func (s Status) Progress() int {
	for i, st := range statusOrder {
		if st == s {
			return i * 100 / (len(statusOrder) - 1)
		}
	}
	return 0
}

// Event is one entry in a procedure's status history.
type Event struct {
	Status Status
	Note   string
	At     time.Time
}

// Appointment records a confirmed appointment attached to a procedure.
type Appointment struct {
	Fecha   string // YYYY-MM-DD
	Hora    string // HH:MM
	Oficina string
	EventID string
}

// Record is the locally stored state of a submitted procedure, keyed by PIN.
type Record struct {
	PIN        string
	Radicado   string
	TipoID     string
	TipoNombre string
	Ciudadano  string
	// Cedula holds only the masked form; the full number never enters
	// the store.
	Cedula      string
	Status      Status
	History     []Event
	Appointment *Appointment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrNotFound is returned by lookups for PINs with no stored record.
// PINs never partially match.
var ErrNotFound = errors.New("tracking: pin not found")

// Store persists tracking records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create stores a new record. The record's PIN must not already exist.
	Create(ctx context.Context, rec Record) error

	// Get retrieves the record for pin. Returns ErrNotFound when absent.
	Get(ctx context.Context, pin string) (*Record, error)

	// UpdateStatus advances the record to status, appending a history
	// event. Returns ErrNotFound when the PIN is absent.
	UpdateStatus(ctx context.Context, pin string, status Status, note string) error

	// AttachAppointment records a confirmed appointment on the record.
	// Returns ErrNotFound when the PIN is absent.
	AttachAppointment(ctx context.Context, pin string, appt Appointment) error
}

// PinService is the backend collaborator slice the issuer depends on.
type PinService interface {
	// IssueTrackingID requests a tracking PIN for a procedure submission.
	IssueTrackingID(ctx context.Context, tipo string, datos map[string]string) (string, error)
}

// pinAlphabet excludes the visually confusable characters O, 0, I and 1.
const pinAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// pinLength is the fixed PIN length, short enough to read over the phone.
const pinLength = 6

// Issuer creates tracking records and answers status lookups.
// It is safe for concurrent use when its Store is.
type Issuer struct {
	remote PinService // may be nil: local generation only
	store  Store
	rng    *rand.Rand
	now    func() time.Time
}

// IssuerOption is a functional option for Issuer.
type IssuerOption func(*Issuer)

// WithRand sets the random source for locally generated PINs. Tests use a
// fixed seed for reproducibility.
func WithRand(rng *rand.Rand) IssuerOption {
	return func(i *Issuer) {
		i.rng = rng
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer. remote may be nil to always generate PINs
// locally (demonstration mode).
func NewIssuer(remote PinService, store Store, opts ...IssuerOption) *Issuer {
	iss := &Issuer{
		remote: remote,
		store:  store,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
	for _, o := range opts {
		o(iss)
	}
	return iss
}

// Issued is the outcome of a successful Issue call.
type Issued struct {
	PIN      string
	Radicado string
}

// Issue creates a tracking record for the given procedure and returns its
// PIN. The backend collaborator is asked first; on any failure a local PIN
// is generated instead, so Issue only fails when the local store rejects
// the record.
func (i *Issuer) Issue(ctx context.Context, tipoID, tipoNombre, ciudadano string, datos map[string]string) (Issued, error) {
	pin := ""
	if i.remote != nil {
		remotePin, err := i.remote.IssueTrackingID(ctx, tipoID, datos)
		if err != nil {
			slog.Warn("tracking: backend pin request failed, generating locally", "error", err)
		} else {
			pin = normalizePIN(remotePin)
		}
	}
	if pin == "" {
		var err error
		pin, err = i.generatePIN(ctx)
		if err != nil {
			return Issued{}, err
		}
	}

	now := i.now()
	radicado := fmt.Sprintf("IDENTIA-%s-%s",
		now.Format("20060102"),
		strings.ToUpper(uuid.NewString()[:6]),
	)
	cedula := datos["cedula"]
	if cedula == "" {
		cedula = datos["numero"]
	}
	rec := Record{
		PIN:        pin,
		Radicado:   radicado,
		TipoID:     tipoID,
		TipoNombre: tipoNombre,
		Ciudadano:  ciudadano,
		Cedula:     privacy.MaskCedula(cedula),
		Status:     StatusIniciado,
		History: []Event{{
			Status: StatusIniciado,
			Note:   "Trámite iniciado desde IDENTIA",
			At:     now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := i.store.Create(ctx, rec); err != nil {
		return Issued{}, fmt.Errorf("tracking: store record: %w", err)
	}
	return Issued{PIN: pin, Radicado: radicado}, nil
}

// Report is the answer to a status lookup.
type Report struct {
	PIN        string
	Radicado   string
	TipoNombre string
	// Cedula is the stored masked form, safe to display.
	Cedula      string
	Status      Status
	Progress    int
	Message     string
	Appointment *Appointment
	History     []Event // most recent three events
}

// Lookup returns the status report for pin, matching exactly (after
// normalization of case and surrounding space). Returns ErrNotFound for
// unknown PINs.
func (i *Issuer) Lookup(ctx context.Context, pin string) (*Report, error) {
	rec, err := i.store.Get(ctx, normalizePIN(pin))
	if err != nil {
		return nil, err
	}

	history := rec.History
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	return &Report{
		PIN:         rec.PIN,
		Radicado:    rec.Radicado,
		TipoNombre:  rec.TipoNombre,
		Cedula:      rec.Cedula,
		Status:      rec.Status,
		Progress:    rec.Status.Progress(),
		Message:     rec.Status.Message(),
		Appointment: rec.Appointment,
		History:     history,
	}, nil
}

// Advance moves the record for pin to status. Used by the session manager
// as the flow progresses (identity verified, documents reviewed, appointment
// confirmed).
func (i *Issuer) Advance(ctx context.Context, pin string, status Status, note string) error {
	return i.store.UpdateStatus(ctx, normalizePIN(pin), status, note)
}

// AttachAppointment records the confirmed appointment for pin.
func (i *Issuer) AttachAppointment(ctx context.Context, pin string, appt Appointment) error {
	return i.store.AttachAppointment(ctx, normalizePIN(pin), appt)
}

// RandomPIN draws a PIN from the tracking alphabet using rng. Callers that
// need uniqueness must check for collisions themselves.
func RandomPIN(rng *rand.Rand) string {
	b := make([]byte, pinLength)
	for j := range b {
		b[j] = pinAlphabet[rng.Intn(len(pinAlphabet))]
	}
	return string(b)
}

// generatePIN produces a PIN that does not collide with any stored record.
func (i *Issuer) generatePIN(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		pin := RandomPIN(i.rng)
		_, err := i.store.Get(ctx, pin)
		if errors.Is(err, ErrNotFound) {
			return pin, nil
		}
		if err != nil {
			return "", fmt.Errorf("tracking: collision check: %w", err)
		}
	}
	return "", errors.New("tracking: could not generate a unique pin")
}

// normalizePIN upper-cases and trims a citizen-entered PIN. Normalization
// never widens matching: lookups still require full equality.
func normalizePIN(pin string) string {
	return strings.ToUpper(strings.TrimSpace(pin))
}

// ValidPIN reports whether s has the shape of a tracking PIN: exactly six
// characters from the PIN alphabet after normalization.
func ValidPIN(s string) bool {
	s = normalizePIN(s)
	if len(s) != pinLength {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune(pinAlphabet, c) {
			return false
		}
	}
	return true
}
