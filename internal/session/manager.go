// Package session hosts the top-level coordinator for one citizen
// conversation: it owns the transcript, the flow state machine, the
// active procedure, the tracking PIN, and wires the guard chain, intent
// routing, document review, voice I/O and backend collaborators
// together.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/identia-project/identia/internal/assist"
	"github.com/identia-project/identia/internal/backend"
	"github.com/identia-project/identia/internal/document"
	"github.com/identia-project/identia/internal/flow"
	"github.com/identia-project/identia/internal/procedure"
	"github.com/identia-project/identia/internal/tracking"
	"github.com/identia-project/identia/internal/voice"
)

// Speaker is the voice controller slice the manager drives. It may be
// absent, in which case the session is text-only.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	StopSpeaking()
	StopListening()
	State() voice.State
}

// voiceThreshold is the match threshold sent with voice-identity checks.
const voiceThreshold = 0.75

// defaultCalendarDelay paces the automatic calendar opening after PIN
// issuance so the citizen hears the PIN first.
const defaultCalendarDelay = 2500 * time.Millisecond

// historyWindow caps the conversation history handed to responders.
const historyWindow = 10

// speakEnqueueWait bounds how long commit waits for room in the speech
// queue when a burst has filled it.
const speakEnqueueWait = 5 * time.Second

// ErrNotApplicable is returned by operations fired in a flow step where
// they have no meaning.
var ErrNotApplicable = errors.New("session: operation not applicable in current step")

// Option is a functional option for Manager.
type Option func(*Manager)

// WithSpeaker attaches a voice controller. Without it, assistant
// messages are appended but not spoken.
func WithSpeaker(s Speaker) Option {
	return func(m *Manager) {
		m.speaker = s
	}
}

// WithCalendarDelay overrides the pause before the calendar opens after
// PIN issuance. Tests use a short delay.
func WithCalendarDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.calendarDelay = d
	}
}

// Manager owns the Session aggregate. All mutation goes through its
// methods, which serialize on one mutex; reads get value copies. It is
// safe for concurrent use.
type Manager struct {
	client  backend.Client
	chain   assist.Responder
	issuer  *tracking.Issuer
	speaker Speaker

	calendarDelay time.Duration

	// inflight counts pending backend calls for the avatar projection.
	inflight atomic.Int32

	// speakCh feeds the speech pump so assistant messages are spoken in
	// transcript order without blocking dispatch.
	speakCh   chan string
	closeOnce sync.Once

	mu           sync.Mutex
	id           string
	machine      *flow.Machine
	docs         *document.Coordinator
	transcript   []Message
	nextID       uint64
	pending      []string
	suggestions  []string
	interim      string
	citizen      string
	collected    map[string]string
	calendarOpen bool
	// homeGen invalidates pending timers; only Home advances it.
	homeGen uint64
	timer   *time.Timer
	update  func(View)
}

// NewManager creates a Manager. The responder chain answers free-form
// input once the guard chain declines; issuer owns PIN issuance and
// status lookups.
func NewManager(client backend.Client, chain assist.Responder, issuer *tracking.Issuer, opts ...Option) *Manager {
	m := &Manager{
		client:        client,
		chain:         chain,
		issuer:        issuer,
		calendarDelay: defaultCalendarDelay,
		machine:       flow.NewMachine(),
		speakCh:       make(chan string, 64),
	}
	for _, o := range opts {
		o(m)
	}
	go m.speechPump()
	return m
}

// speechPump forwards queued assistant messages to the speaker one at a
// time, preserving transcript order.
func (m *Manager) speechPump() {
	for text := range m.speakCh {
		if m.speaker == nil {
			continue
		}
		if err := m.speaker.Speak(context.Background(), text); err != nil && !errors.Is(err, voice.ErrNotSupported) {
			slog.Warn("session: speak failed", "error", err)
		}
	}
}

// Close releases the speech pump and any pending timer. The transcript
// stays readable.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.speakCh) })
}

// OnUpdate installs the handler invoked with a fresh View after every
// state change. The cell is mutable so wiring order does not matter;
// the latest handler wins.
func (m *Manager) OnUpdate(fn func(View)) {
	m.mu.Lock()
	m.update = fn
	m.mu.Unlock()
}

// Start opens the backend session and greets the citizen.
func (m *Manager) Start(ctx context.Context) error {
	done := m.beginCall()
	id, err := m.client.StartSession(ctx)
	done()
	if err != nil {
		// The fallback client never fails here; a bare HTTP client can.
		return fmt.Errorf("session: start: %w", err)
	}

	m.mu.Lock()
	m.id = id
	m.docs = document.NewCoordinator(backend.NewDocumentProcessor(m.client, id))
	m.suggestions = []string{"Renovar cédula", "Copia de matrimonio", "Apostilla", "Consultar estado"}
	m.sayLocked("¡Bienvenido a IDENTIA! Soy su asistente para trámites de la Registraduría. ¿En qué puedo ayudarle?")
	m.commit()
	return nil
}

// ID returns the backend session identifier.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Transcript returns a copy of the full transcript.
func (m *Manager) Transcript() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// View returns the current projection.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// HandleText dispatches one citizen utterance (typed, or a finalized
// speech transcript): the guard chain runs first, in priority order, and
// only when no guard fires does the input reach the responder chain.
func (m *Manager) HandleText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	m.mu.Lock()
	m.interim = ""
	m.appendLocked(RoleCitizen, text)

	switch flow.Detect(m.machine.State(), text) {
	case flow.GuardStatus:
		m.statusLookupLocked(ctx, text)
	case flow.GuardMatrimonio:
		m.matrimonioLocked(ctx, text)
	case flow.GuardVoiceVerify:
		m.voiceVerifyLocked(ctx, text)
	default:
		m.routeLocked(ctx, text)
	}
	m.commit()
}

// SelectProcedure enters the catalog procedure with the given ID, as if
// the citizen tapped it in the menu.
func (m *Manager) SelectProcedure(ctx context.Context, id string) error {
	m.mu.Lock()
	err := m.selectLocked(id, true)
	m.commit()
	return err
}

// VerifyBiometric submits captured biometric data. On success the flow
// short-circuits to scheduling (identity, documents and legal advance
// together) and a tracking PIN is issued before the calendar opens. A
// mismatch is surfaced with a retry affordance, never retried silently.
func (m *Manager) VerifyBiometric(ctx context.Context, kind string, data []byte) error {
	m.mu.Lock()
	st := m.machine.State()
	if st.Step != flow.StepIdentity && st.Step != flow.StepDocument {
		m.mu.Unlock()
		return ErrNotApplicable
	}

	done := m.beginCall()
	resp, err := m.client.VerifyBiometric(ctx, backend.BiometricRequest{
		SessionID: m.id,
		Type:      kind,
		Data:      data,
	})
	done()
	if err != nil {
		m.sayLocked("La verificación biométrica no está disponible en este momento. Puede intentar con una foto de su documento.")
		m.commit()
		return err
	}
	if !resp.Verified {
		m.sayLocked("No pude verificar su identidad. Puede intentar de nuevo o pedir ayuda de un asesor humano.")
		m.commit()
		return nil
	}

	if err := m.machine.BiometricSuccess(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.sayLocked(fmt.Sprintf("Identidad verificada con una confianza del %.0f%%.", resp.Confidence*100))
	m.issueLocked(ctx)
	m.commit()
	return nil
}

// CaptureDocument runs one document capture: the image goes to the
// processing collaborator and the extracted fields open a review cycle.
// release closes the camera and is invoked whenever the cycle ends
// without confirmation.
func (m *Manager) CaptureDocument(ctx context.Context, image []byte, release document.ReleaseFunc) (*document.Record, error) {
	m.mu.Lock()
	st := m.machine.State()
	if st.Procedure == nil {
		m.mu.Unlock()
		if release != nil {
			release()
		}
		return nil, ErrNotApplicable
	}
	if st.Step == flow.StepIdentity {
		if err := m.machine.StartDocumentCapture(); err != nil {
			m.mu.Unlock()
			if release != nil {
				release()
			}
			return nil, err
		}
	} else if st.Step != flow.StepDocument {
		m.mu.Unlock()
		if release != nil {
			release()
		}
		return nil, ErrNotApplicable
	}

	done := m.beginCall()
	rec, err := m.docs.Begin(ctx, image, st.Procedure.DocumentType, release)
	done()
	if err != nil {
		m.sayLocked("No pude procesar la imagen. Intente capturarla de nuevo con buena luz.")
		m.commit()
		return nil, err
	}

	if rec.Confidence < 0.85 {
		m.sayLocked("Procesé su documento, pero la lectura fue difícil. Por favor revise y corrija los campos antes de confirmar.")
	} else {
		m.sayLocked("Documento procesado. Verifique que los campos extraídos sean correctos.")
	}
	m.commit()
	return rec, nil
}

// EditDocumentField updates one field of the record under review.
func (m *Manager) EditDocumentField(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		return document.ErrNoActiveRecord
	}
	return m.docs.EditField(name, value)
}

// ConfirmDocument validates and confirms the record under review. On
// success the flow advances straight to scheduling and a tracking PIN is
// issued. Missing required fields block the transition with a corrective
// message; resubmission always remains possible.
func (m *Manager) ConfirmDocument(ctx context.Context) error {
	m.mu.Lock()
	if m.docs == nil {
		m.mu.Unlock()
		return document.ErrNoActiveRecord
	}
	res, err := m.docs.Confirm()
	var verr *document.ValidationError
	if errors.As(err, &verr) {
		m.sayLocked("Faltan campos requeridos: " + strings.Join(verr.Missing, ", ") + ". Complételos para continuar.")
		m.commit()
		return err
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.collected = res.Fields
	if err := m.machine.DocumentConfirmed(); err != nil {
		m.mu.Unlock()
		return err
	}
	if res.WasEdited {
		m.sayLocked("Gracias por corregir los datos. Documentos verificados.")
	} else {
		m.sayLocked("Documentos verificados.")
	}
	m.issueLocked(ctx)
	m.commit()
	return nil
}

// RetryDocument discards the review in progress and asks for a new
// capture. The camera is released by the coordinator.
func (m *Manager) RetryDocument(ctx context.Context) {
	m.mu.Lock()
	if m.docs != nil && m.docs.Retry() {
		m.sayLocked("Descartemos esa captura. Tome una nueva foto del documento.")
	}
	m.commit()
}

// CancelCapture closes the camera and returns the flow to the identity
// step so the citizen can choose another verification way.
func (m *Manager) CancelCapture(ctx context.Context) {
	m.mu.Lock()
	if m.docs != nil {
		m.docs.Cancel()
	}
	m.machine.CaptureCancelled()
	m.commit()
}

// QuerySlots returns the free appointment times for a date (YYYY-MM-DD).
func (m *Manager) QuerySlots(ctx context.Context, fecha string) ([]string, error) {
	done := m.beginCall()
	defer done()
	return m.client.QuerySlots(ctx, fecha)
}

// ConfirmAppointment books the chosen slot and completes the procedure.
func (m *Manager) ConfirmAppointment(ctx context.Context, fecha, hora, oficina string) error {
	m.mu.Lock()
	st := m.machine.State()
	if st.Step != flow.StepSchedule || st.Procedure == nil {
		m.mu.Unlock()
		return ErrNotApplicable
	}

	done := m.beginCall()
	resp, err := m.client.ConfirmAppointment(ctx, backend.AppointmentRequest{
		Tipo:    st.Procedure.ID,
		Nombre:  m.citizen,
		Fecha:   fecha,
		Hora:    hora,
		Oficina: oficina,
		Pin:     st.TrackingPIN,
	})
	done()
	if err != nil {
		m.sayLocked("No pude agendar la cita. Intente con otro horario.")
		m.commit()
		return err
	}

	if err := m.machine.AppointmentConfirmed(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.calendarOpen = false
	if st.TrackingPIN != "" {
		if err := m.issuer.Advance(ctx, st.TrackingPIN, tracking.StatusCitaAgendada, "Cita agendada desde IDENTIA"); err != nil {
			slog.Warn("session: advance tracking status", "error", err)
		}
		if err := m.issuer.AttachAppointment(ctx, st.TrackingPIN, tracking.Appointment{
			Fecha:   fecha,
			Hora:    hora,
			Oficina: oficina,
			EventID: resp.EventID,
		}); err != nil {
			slog.Warn("session: attach appointment", "error", err)
		}
	}
	m.sayLocked(resp.Mensaje + " ¡Gracias por usar IDENTIA!")
	m.commit()
	return nil
}

// CancelAppointment cancels the appointment booked in this session. The
// tracking record rewinds to legal review so a new slot can be chosen.
func (m *Manager) CancelAppointment(ctx context.Context) error {
	m.mu.Lock()
	st := m.machine.State()
	if st.TrackingPIN == "" {
		m.mu.Unlock()
		return ErrNotApplicable
	}
	report, err := m.issuer.Lookup(ctx, st.TrackingPIN)
	if err != nil || report.Appointment == nil {
		m.mu.Unlock()
		return ErrNotApplicable
	}

	done := m.beginCall()
	resp, err := m.client.CancelAppointment(ctx, report.Appointment.EventID)
	done()
	if err != nil {
		m.sayLocked("No pude cancelar la cita en este momento. Intente de nuevo.")
		m.commit()
		return err
	}

	if err := m.issuer.Advance(ctx, st.TrackingPIN, tracking.StatusEnRevision, "Cita cancelada desde IDENTIA"); err != nil {
		slog.Warn("session: advance tracking status", "error", err)
	}
	m.sayLocked(resp.Mensaje)
	m.commit()
	return nil
}

// HandleBack restores the previous navigation snapshot exactly. The
// transcript is untouched; an open capture cycle is discarded. A pending
// calendar timer keeps running and re-checks its target state when it
// fires.
func (m *Manager) HandleBack(ctx context.Context) {
	m.mu.Lock()
	if m.docs != nil {
		m.docs.Cancel()
	}
	if m.machine.Back() {
		m.calendarOpen = false
	}
	m.commit()
}

// HandleHome resets the session to the welcome state: flow, mode flags,
// PIN, navigation stack and pending timers are cleared. The transcript
// is preserved and exactly one "returned home" message is appended.
func (m *Manager) HandleHome(ctx context.Context) {
	if m.speaker != nil {
		m.speaker.StopListening()
		m.speaker.StopSpeaking()
	}

	m.mu.Lock()
	m.homeGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.docs != nil {
		m.docs.Cancel()
	}
	m.machine.Home()
	m.collected = nil
	m.citizen = ""
	m.calendarOpen = false
	m.suggestions = []string{"Renovar cédula", "Copia de matrimonio", "Apostilla", "Consultar estado"}
	m.sayLocked("Volvimos al inicio. ¿En qué trámite le puedo ayudar?")
	m.commit()
}

// VoiceCallbacks wires the manager into a listening session: finals are
// dispatched like typed text, interim transcripts flow into the view,
// and recognition failures become plain-language messages so the citizen
// can continue by typing.
func (m *Manager) VoiceCallbacks(ctx context.Context) voice.Callbacks {
	return voice.Callbacks{
		OnInterim: func(text string) {
			m.mu.Lock()
			m.interim = text
			m.commit()
		},
		OnResult: func(text string) {
			m.HandleText(ctx, text)
		},
		OnError: func(kind voice.ErrorKind) {
			m.mu.Lock()
			m.interim = ""
			switch kind {
			case voice.ErrorNotSupported, voice.ErrorPermissionDenied:
				m.sayLocked("El micrófono no está disponible. Puede escribir su mensaje.")
			case voice.ErrorNoSpeech:
				m.sayLocked("No le escuché. ¿Puede repetirlo o escribir su mensaje?")
			case voice.ErrorNetwork, voice.ErrorOther:
				m.sayLocked("El reconocimiento de voz falló. Puede escribir su mensaje.")
			case voice.ErrorCancelled:
				// The citizen stopped the capture; nothing to say.
			}
			m.commit()
		},
		OnEnd: func() {
			m.mu.Lock()
			m.interim = ""
			m.commit()
		},
	}
}

// ---- internal dispatch -------------------------------------------------

// routeLocked sends the utterance through the responder chain and applies
// the reply: the text is appended (and spoken), suggestions refresh, and
// a procedure match triggers selection.
func (m *Manager) routeLocked(ctx context.Context, text string) {
	st := m.machine.State()
	active := ""
	if st.Procedure != nil {
		active = st.Procedure.Name
	}

	done := m.beginCall()
	reply, err := m.chain.Respond(ctx, assist.Query{
		SessionID:       m.id,
		Text:            text,
		ActiveProcedure: active,
		History:         m.historyLocked(),
	})
	done()
	if err != nil {
		// The chain ends in the local router, so this is exceptional.
		slog.Warn("session: responder chain failed", "error", err)
		m.sayLocked("Lo siento, no pude procesar su mensaje. Intente de nuevo.")
		return
	}

	if len(reply.Suggestions) > 0 {
		m.suggestions = reply.Suggestions
	}
	m.sayLocked(reply.Text)
	if reply.ProcedureID != "" && st.Step == flow.StepWelcome {
		if err := m.selectLocked(reply.ProcedureID, false); err != nil {
			slog.Warn("session: select from reply", "procedure", reply.ProcedureID, "error", err)
		}
	}
}

// selectLocked enters a procedure and appends the step-appropriate
// guidance. announce controls whether the selection itself is spoken;
// replies coming from the responder chain already contain that text.
func (m *Manager) selectLocked(id string, announce bool) error {
	p := procedure.ByID(id)
	if p == nil {
		return fmt.Errorf("session: unknown procedure %q", id)
	}
	if err := m.machine.SelectProcedure(p); err != nil {
		return err
	}
	m.collected = nil
	m.calendarOpen = false

	if announce {
		text := "Perfecto, iniciemos el trámite: " + p.Name + "."
		if p.Fee != "" {
			text += " El costo es " + p.Fee + "."
		}
		m.sayLocked(text)
	}

	st := m.machine.State()
	switch {
	case st.Modes.MatrimonioCapture:
		m.sayLocked("Para buscar su registro de matrimonio, dígame el número de registro. Por ejemplo: 11-2023-1234567.")
	case p.RequiresBiometric:
		// Arm the voice shortcut so a spoken name + cédula verifies
		// identity without the camera.
		if err := m.machine.StartVoiceVerify(); err != nil {
			slog.Warn("session: arm voice verify", "error", err)
		}
		m.sayLocked("Primero verifiquemos su identidad. Use la verificación biométrica, o dígame su nombre completo y su número de cédula.")
	default:
		m.sayLocked("Para continuar, capture una foto clara de su documento.")
	}
	return nil
}

// statusLookupLocked answers a status query. The local issuer is asked
// first (it also stores remotely issued PINs); a miss falls through to
// the backend so PINs from earlier sessions still resolve. An unknown
// PIN is a plain NotFound, never a partial match.
func (m *Manager) statusLookupLocked(ctx context.Context, text string) {
	pin := flow.ExtractPIN(text)
	if pin == "" {
		m.sayLocked("Para consultar su trámite necesito el PIN de seguimiento de seis caracteres. ¿Cuál es su PIN?")
		return
	}

	done := m.beginCall()
	rep, err := m.issuer.Lookup(ctx, pin)
	done()
	if err == nil {
		text := fmt.Sprintf("Su trámite %q está %d%% completado. %s", rep.TipoNombre, rep.Progress, rep.Message)
		if rep.Appointment != nil {
			text += fmt.Sprintf(" Tiene cita el %s a las %s en %s.", rep.Appointment.Fecha, rep.Appointment.Hora, rep.Appointment.Oficina)
		}
		m.sayLocked(text)
		return
	}
	if !errors.Is(err, tracking.ErrNotFound) {
		slog.Warn("session: local status lookup", "error", err)
	}

	done = m.beginCall()
	st, err := m.client.QueryStatus(ctx, pin)
	done()
	if errors.Is(err, backend.ErrNotFound) {
		m.sayLocked("No encontré ningún trámite con el PIN " + pin + ". Verifique el código e intente de nuevo.")
		return
	}
	if err != nil {
		m.sayLocked("No pude consultar el estado en este momento. Intente de nuevo en unos minutos.")
		return
	}
	reply := "Su trámite está en estado: " + st.Estado + "."
	if len(st.Pasos) > 0 {
		reply += " Pasos: " + strings.Join(st.Pasos, "; ") + "."
	}
	m.sayLocked(reply)
}

// matrimonioLocked consumes an utterance while the marriage-record
// capture mode is armed. A malformed number is a recoverable validation
// failure; a valid one completes the lookup path and issues the PIN.
func (m *Manager) matrimonioLocked(ctx context.Context, text string) {
	reg, ok := flow.ParseRegistroMatrimonio(text)
	if !ok {
		m.sayLocked("No reconocí el número de registro. Dígalo de nuevo; por ejemplo: 11-2023-1234567.")
		return
	}

	m.machine.RegistroCaptured()
	if err := m.machine.DocumentConfirmed(); err != nil {
		slog.Warn("session: matrimonio confirm", "error", err)
		m.sayLocked("No pude avanzar con ese registro en este paso.")
		return
	}
	m.collected = map[string]string{"registro": reg}
	m.sayLocked("Encontré el registro de matrimonio " + reg + ".")
	m.issueLocked(ctx)
}

// voiceVerifyLocked consumes an utterance while the voice-identity mode
// is armed. Acceptance requires a 6 to 12 digit cédula and at least two
// name tokens; a mismatch gets a retry affordance plus the human escape
// hatch, never an automatic retry.
func (m *Manager) voiceVerifyLocked(ctx context.Context, text string) {
	vi, ok := flow.ParseVoiceIdentity(text)
	if !ok {
		m.sayLocked("Necesito su nombre completo y su número de cédula. Por ejemplo: Juan Pérez, cédula 1023456789.")
		return
	}

	done := m.beginCall()
	resp, err := m.client.VerifyVoiceIdentity(ctx, backend.VoiceIdentityRequest{
		Nombre:    vi.Nombre,
		Cedula:    vi.Cedula,
		Threshold: voiceThreshold,
	})
	done()
	if err != nil {
		m.sayLocked("No pude verificar su identidad en este momento. Intente de nuevo.")
		return
	}
	if !resp.Verificado {
		m.sayLocked(resp.Mensaje + " Puede intentar de nuevo o pedir ayuda de un asesor humano.")
		return
	}

	m.citizen = vi.Nombre
	if err := m.machine.BiometricSuccess(); err != nil {
		slog.Warn("session: voice verify transition", "error", err)
		return
	}
	m.sayLocked(resp.Mensaje)
	m.issueLocked(ctx)
}

// issueLocked requests the tracking PIN and opens the scheduling stage.
// The PIN is always issued (and announced) before the calendar timer is
// armed.
func (m *Manager) issueLocked(ctx context.Context) {
	st := m.machine.State()
	if st.Procedure == nil {
		return
	}

	datos := make(map[string]string, len(m.collected)+1)
	for k, v := range m.collected {
		datos[k] = v
	}
	if m.citizen != "" {
		datos["nombre"] = m.citizen
	}

	done := m.beginCall()
	issued, err := m.issuer.Issue(ctx, st.Procedure.ID, st.Procedure.Name, m.citizen, datos)
	done()
	if err != nil {
		slog.Error("session: issue pin", "error", err)
		m.sayLocked("No pude generar su PIN de seguimiento. Intente de nuevo.")
		return
	}
	if err := m.machine.PinIssued(issued.PIN); err != nil {
		slog.Warn("session: pin transition", "error", err)
		return
	}
	if err := m.issuer.Advance(ctx, issued.PIN, tracking.StatusDocsOK, "Identidad y documentos verificados"); err != nil {
		slog.Warn("session: advance tracking status", "error", err)
	}

	m.sayLocked(fmt.Sprintf("Su PIN de seguimiento es %s y su radicado es %s. Guárdelos para consultar el estado de su trámite.", issued.PIN, issued.Radicado))
	m.armCalendarLocked()
}

// armCalendarLocked schedules the automatic calendar opening. The timer
// is cancellable only by HandleHome; Back does not stop it, so the
// firing callback re-checks that scheduling is still the current stage.
func (m *Manager) armCalendarLocked() {
	gen := m.homeGen
	m.timer = time.AfterFunc(m.calendarDelay, func() {
		m.mu.Lock()
		if gen != m.homeGen || m.machine.State().Step != flow.StepSchedule {
			m.mu.Unlock()
			return
		}
		m.calendarOpen = true
		m.sayLocked("Ahora agendemos su cita. ¿Qué fecha le conviene?")
		m.commit()
	})
}

// ---- aggregate plumbing ------------------------------------------------

// appendLocked appends one transcript message with the next monotonic ID.
func (m *Manager) appendLocked(role Role, text string) {
	m.nextID++
	m.transcript = append(m.transcript, Message{ID: m.nextID, Role: role, Text: text})
}

// sayLocked appends an assistant message and queues it for speech.
// Transcript append and speech are coupled: every assistant message is
// spoken once, exactly once, in transcript order.
func (m *Manager) sayLocked(text string) {
	m.appendLocked(RoleAssistant, text)
	m.pending = append(m.pending, text)
}

// commit publishes the view and hands queued speech to the pump. It must
// be called with m.mu held and releases it.
func (m *Manager) commit() {
	pending := m.pending
	m.pending = nil
	update := m.update
	view := m.viewLocked()
	m.mu.Unlock()

	if update != nil {
		update(view)
	}
	if len(pending) > 0 {
		// One batch becomes one utterance so a later message in the same
		// dispatch does not pre-empt an earlier one mid-word.
		utterance := strings.Join(pending, " ")
		select {
		case m.speakCh <- utterance:
		default:
			// Queue full under a burst. Wait for the pump to make room
			// rather than lose the message; every assistant message is
			// spoken exactly once.
			t := time.NewTimer(speakEnqueueWait)
			select {
			case m.speakCh <- utterance:
				t.Stop()
			case <-t.C:
				slog.Warn("session: speech queue full, dropping utterance")
			}
		}
	}
}

// NotifySpeechEnd republishes the view after synthesis drains so the
// avatar leaves the speaking state. Wired to the voice controller's
// speech-ended hook.
func (m *Manager) NotifySpeechEnd() {
	m.mu.Lock()
	m.commit()
}

// beginCall marks a backend call in flight for the avatar projection and
// returns the matching completion func.
func (m *Manager) beginCall() func() {
	m.inflight.Add(1)
	return func() { m.inflight.Add(-1) }
}

// viewLocked computes the projection. Avatar priority: listening beats
// processing beats speaking beats idle.
func (m *Manager) viewLocked() View {
	st := m.machine.State()

	avatar := "idle"
	speakerState := voice.StateIdle
	if m.speaker != nil {
		speakerState = m.speaker.State()
	}
	switch {
	case speakerState == voice.StateListening:
		avatar = "listening"
	case m.inflight.Load() > 0:
		avatar = "processing"
	case speakerState == voice.StateSpeaking:
		avatar = "speaking"
	}

	v := View{
		SessionID:    m.id,
		Transcript:   make([]Message, len(m.transcript)),
		Step:         st.Step,
		StepName:     st.Step.String(),
		Indicators:   st.Step.Indicators(),
		Verified:     st.Verified,
		TrackingPIN:  st.TrackingPIN,
		CanGoBack:    m.machine.History().CanGoBack(),
		CalendarOpen: m.calendarOpen,
		Avatar:       avatar,
		Suggestions:  append([]string(nil), m.suggestions...),
		Interim:      m.interim,
	}
	copy(v.Transcript, m.transcript)
	if st.Procedure != nil {
		v.Procedure = st.Procedure.Name
	}
	return v
}

// historyLocked converts the transcript tail into responder turns.
func (m *Manager) historyLocked() []assist.Turn {
	start := 0
	if len(m.transcript) > historyWindow {
		start = len(m.transcript) - historyWindow
	}
	turns := make([]assist.Turn, 0, len(m.transcript)-start)
	for _, msg := range m.transcript[start:] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "assistant"
		}
		turns = append(turns, assist.Turn{Role: role, Text: msg.Text})
	}
	return turns
}
