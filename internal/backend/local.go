package backend

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/identia-project/identia/internal/document"
	"github.com/identia-project/identia/internal/intent"
	"github.com/identia-project/identia/internal/tracking"
)

// officeSlots are the bookable appointment times of a registry office day.
var officeSlots = []string{"08:00", "09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

// homoglyphs maps characters to their common OCR confusions, used to
// perturb low-confidence extractions.
var homoglyphs = map[rune]rune{
	'o': '0', 'O': '0', 'i': '1', 'I': '1', 'l': '1',
	'e': '3', 'E': '3', 'a': '4', 'A': '4', 's': '5', 'S': '5',
	'0': 'O', '1': 'I', '5': 'S',
}

// sampleFieldValues provides plausible extraction values per schema field.
var sampleFieldValues = map[string]string{
	"nombre":           "JUAN CARLOS PEREZ GOMEZ",
	"numero":           "1023456789",
	"cedula":           "1023456789",
	"fecha_nacimiento": "1990-05-14",
	"lugar_nacimiento": "BOGOTA D.C.",
	"fecha_expedicion": "2018-03-22",
	"registro":         "11-2023-1234567",
	"fecha_registro":   "2023-06-10",
	"notaria":          "NOTARIA 15 DE BOGOTA",
	"contrayente_1":    "JUAN CARLOS PEREZ GOMEZ",
	"contrayente_2":    "MARIA FERNANDA LOPEZ RUIZ",
	"fecha_defuncion":  "2024-01-30",
	"nombre_fallecido": "PEDRO ANTONIO PEREZ",
	"institucion":      "HOSPITAL SAN JOSE",
	"pais_destino":     "ESPANA",
}

// Compile-time assertion that Local implements Client.
var _ Client = (*Local)(nil)

// LocalOption is a functional option for Local.
type LocalOption func(*Local)

// WithLocalRand sets the random source. Tests use a fixed seed for
// reproducible confidences and perturbations.
func WithLocalRand(rng *rand.Rand) LocalOption {
	return func(l *Local) {
		l.rng = rng
	}
}

// Local is the offline stand-in for the government services API. Every
// response is synthesized deterministically (given a fixed random source)
// with the same shape the remote backend produces, so an unreachable
// backend degrades service quality, never availability.
//
// Safe for concurrent use.
type Local struct {
	router *intent.Router

	mu  sync.Mutex
	rng *rand.Rand
	// issued maps locally issued PINs to their simulated state.
	issued map[string]string
	// booked maps calendar event IDs to the PIN they were booked under,
	// so a cancellation can rewind the simulated state.
	booked map[string]string
}

// NewLocal creates a Local stand-in. router computes SendMessage replies;
// it must be non-nil.
func NewLocal(router *intent.Router, opts ...LocalOption) *Local {
	l := &Local{
		router: router,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		issued: make(map[string]string),
		booked: make(map[string]string),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// StartSession returns a fresh local session ID.
func (l *Local) StartSession(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "local-" + uuid.NewString(), nil
}

// SendMessage computes the reply with the local intent router.
func (l *Local) SendMessage(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	if err := ctx.Err(); err != nil {
		return MessageResponse{}, err
	}
	res := l.router.Route(req.Message, req.Context["procedure"])
	return MessageResponse{
		Response:    res.ResponseText,
		Intent:      string(res.Intent),
		Suggestions: res.Suggestions,
	}, nil
}

// VerifyBiometric always verifies, with a simulated confidence. The local
// stand-in has no biometric reference data; rejecting would strand the
// citizen, accepting only degrades assurance in demonstration mode.
func (l *Local) VerifyBiometric(ctx context.Context, req BiometricRequest) (BiometricResponse, error) {
	if err := ctx.Err(); err != nil {
		return BiometricResponse{}, err
	}
	l.mu.Lock()
	conf := 0.90 + l.rng.Float64()*0.08
	l.mu.Unlock()
	return BiometricResponse{Verified: true, Confidence: conf}, nil
}

// ProcessDocument synthesizes an extraction from the document schema. The
// confidence is drawn from [0.70, 0.95]; below 0.85 a subset of fields is
// perturbed (character deletion or homoglyph substitution) to emulate scan
// noise, with a warning per perturbed field.
func (l *Local) ProcessDocument(ctx context.Context, req DocumentRequest) (DocumentResponse, error) {
	if err := ctx.Err(); err != nil {
		return DocumentResponse{}, err
	}
	schema := document.SchemaFor(req.DocumentType)

	l.mu.Lock()
	defer l.mu.Unlock()

	conf := 0.70 + l.rng.Float64()*0.25
	fields := make(map[string]string, len(schema.Fields))
	var warnings []string

	for _, f := range schema.Fields {
		v, ok := sampleFieldValues[f.Name]
		if !ok {
			v = strings.ToUpper(f.Label)
		}
		if conf < 0.85 && l.rng.Float64() < 0.4 {
			v = l.perturb(v)
			warnings = append(warnings, fmt.Sprintf("lectura dudosa en el campo %s", f.Label))
		}
		fields[f.Name] = v
	}
	return DocumentResponse{Confidence: conf, Extracted: fields, Warnings: warnings}, nil
}

// perturb applies one scan-noise mutation to v: a character deletion or a
// homoglyph substitution. Caller holds l.mu.
func (l *Local) perturb(v string) string {
	runes := []rune(v)
	if len(runes) < 2 {
		return v
	}
	pos := l.rng.Intn(len(runes))
	if l.rng.Float64() < 0.5 {
		// Deletion.
		return string(append(runes[:pos], runes[pos+1:]...))
	}
	if sub, ok := homoglyphs[runes[pos]]; ok {
		runes[pos] = sub
		return string(runes)
	}
	return string(append(runes[:pos], runes[pos+1:]...))
}

// VerifyVoiceIdentity accepts any well-formed name and cédula. Shape
// validation happened upstream in the capture parser; the local stand-in
// has no voiceprint reference to compare against.
func (l *Local) VerifyVoiceIdentity(ctx context.Context, req VoiceIdentityRequest) (VoiceIdentityResponse, error) {
	if err := ctx.Err(); err != nil {
		return VoiceIdentityResponse{}, err
	}
	if req.Nombre == "" || req.Cedula == "" {
		return VoiceIdentityResponse{
			Verificado: false,
			Mensaje:    "No pude entender su nombre y número de cédula. Intente de nuevo, por favor.",
		}, nil
	}
	return VoiceIdentityResponse{
		Verificado: true,
		Mensaje:    fmt.Sprintf("Identidad verificada. Bienvenido, %s.", req.Nombre),
	}, nil
}

// IssueTrackingID generates a local PIN and remembers it for QueryStatus.
func (l *Local) IssueTrackingID(ctx context.Context, tipo string, datos map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var pin string
	for {
		pin = tracking.RandomPIN(l.rng)
		if _, taken := l.issued[pin]; !taken {
			break
		}
	}
	l.issued[pin] = string(tracking.StatusIniciado)
	return pin, nil
}

// QueryStatus reports the state of a locally issued PIN. Unknown PINs
// return ErrNotFound; there is no partial matching.
func (l *Local) QueryStatus(ctx context.Context, pin string) (StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return StatusResponse{}, err
	}
	l.mu.Lock()
	estado, ok := l.issued[strings.ToUpper(strings.TrimSpace(pin))]
	l.mu.Unlock()
	if !ok {
		return StatusResponse{}, ErrNotFound
	}
	st := tracking.Status(estado)
	return StatusResponse{
		Estado: estado,
		Pasos:  []string{st.Message()},
	}, nil
}

// QuerySlots simulates office availability: weekdays expose the standard
// grid minus two already-booked slots, weekends have none. Which slots
// are taken is a deterministic function of the date, so repeated queries
// for the same day agree without any booking state.
func (l *Local) QuerySlots(ctx context.Context, fecha string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	day, err := time.Parse("2006-01-02", fecha)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid date %q: %w", fecha, err)
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return []string{}, nil
	}

	rng := rand.New(rand.NewSource(day.Unix()))
	taken := rng.Perm(len(officeSlots))[:2]
	booked := map[int]bool{taken[0]: true, taken[1]: true}

	slots := make([]string, 0, len(officeSlots)-2)
	for i, s := range officeSlots {
		if booked[i] {
			continue
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// ConfirmAppointment books the slot unconditionally and advances the
// simulated tracking state.
func (l *Local) ConfirmAppointment(ctx context.Context, req AppointmentRequest) (AppointmentResponse, error) {
	if err := ctx.Err(); err != nil {
		return AppointmentResponse{}, err
	}
	eventID := "evt-" + uuid.NewString()
	l.mu.Lock()
	if _, ok := l.issued[req.Pin]; ok {
		l.issued[req.Pin] = string(tracking.StatusCitaAgendada)
	}
	l.booked[eventID] = req.Pin
	l.mu.Unlock()
	return AppointmentResponse{
		Mensaje: fmt.Sprintf("Cita confirmada para el %s a las %s.", req.Fecha, req.Hora),
		EventID: eventID,
	}, nil
}

// CancelAppointment frees the booked slot. A locally booked event rewinds
// the simulated tracking state to legal review; unknown event IDs still
// cancel, matching the forgiving remote behaviour.
func (l *Local) CancelAppointment(ctx context.Context, eventID string) (CancelResponse, error) {
	if err := ctx.Err(); err != nil {
		return CancelResponse{}, err
	}
	l.mu.Lock()
	if pin, ok := l.booked[eventID]; ok {
		delete(l.booked, eventID)
		if _, issued := l.issued[pin]; issued {
			l.issued[pin] = string(tracking.StatusEnRevision)
		}
	}
	l.mu.Unlock()
	return CancelResponse{
		Mensaje: "Su cita fue cancelada. Puede agendar una nueva cuando lo desee.",
		EventID: eventID,
	}, nil
}
