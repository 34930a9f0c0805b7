package flow

import (
	"fmt"

	"github.com/identia-project/identia/internal/procedure"
)

// Machine drives the step state model for a procedure run:
//
//	welcome → identity → (document) → legal → schedule → done
//
// Identity can be proven three ways, and two of them short-circuit: a
// successful biometric or voice check is treated as sufficient
// identity+document+legal proof (three indicators advance at once), and a
// confirmed document scan likewise completes identity+document+legal
// together because legal review is modeled as instantaneous. Both paths
// end up with the single Verified flag set; the conflation of the two
// verification strengths is a documented policy, not an accident.
//
// Machine is not safe for concurrent use; the session manager serializes
// access behind its own mutex.
type Machine struct {
	state   State
	history History
}

// NewMachine creates a machine in the welcome state.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns a copy of the current flow state.
func (m *Machine) State() State {
	return m.state
}

// History exposes the navigation history for depth checks.
func (m *Machine) History() *History {
	return &m.history
}

// invalidTransition builds the error for an event fired in the wrong step.
func invalidTransition(event string, from Step) error {
	return fmt.Errorf("flow: %s no aplica en el paso %s", event, from)
}

// SelectProcedure enters a procedure: the pre-selection state is pushed
// onto the navigation history (so "back" restores it exactly), the step
// advances to identity, and for the marriage-record lookup the matrimonio
// capture mode is armed. Re-selecting is idempotent per
// session in the sense that each selection pushes a fresh snapshot.
func (m *Machine) SelectProcedure(p *procedure.Procedure) error {
	if p == nil {
		return fmt.Errorf("flow: procedimiento nulo")
	}
	m.history.Push(m.state.Snapshot())

	m.state.Procedure = p
	m.state.Step = StepIdentity
	m.state.Verified = false
	m.state.TrackingPIN = ""
	m.state.Modes = Modes{MatrimonioCapture: p.ID == procedure.MatrimonioLookupID}
	return nil
}

// StartVoiceVerify arms the voice-identity capture mode.
func (m *Machine) StartVoiceVerify() error {
	if m.state.Step != StepIdentity {
		return invalidTransition("verificación por voz", m.state.Step)
	}
	m.state.Modes.VoiceVerify = true
	return nil
}

// RegistroCaptured disarms the matrimonio capture mode once a valid
// registration number has been accepted.
func (m *Machine) RegistroCaptured() {
	m.state.Modes.MatrimonioCapture = false
}

// BiometricSuccess applies the biometric shortcut: identity, document and
// legal advance together and the machine lands in the legal stage awaiting
// PIN issuance.
func (m *Machine) BiometricSuccess() error {
	if m.state.Step != StepIdentity && m.state.Step != StepDocument {
		return invalidTransition("verificación biométrica", m.state.Step)
	}
	m.state.Step = StepLegal
	m.state.Verified = true
	m.state.Modes.VoiceVerify = false
	return nil
}

// StartDocumentCapture enters the parallel document sub-path.
func (m *Machine) StartDocumentCapture() error {
	if m.state.Step != StepIdentity {
		return invalidTransition("captura de documento", m.state.Step)
	}
	m.state.Step = StepDocument
	return nil
}

// CaptureCancelled abandons the document sub-path and returns the
// machine to identity so the citizen can pick another verification way.
func (m *Machine) CaptureCancelled() {
	if m.state.Step == StepDocument {
		m.state.Step = StepIdentity
	}
}

// DocumentConfirmed applies the document path: identity, document and
// legal complete together (legal review is instantaneous) and the machine
// moves straight to scheduling.
func (m *Machine) DocumentConfirmed() error {
	if m.state.Step != StepDocument && m.state.Step != StepIdentity {
		return invalidTransition("confirmación de documento", m.state.Step)
	}
	m.state.Step = StepSchedule
	m.state.Verified = true
	return nil
}

// PinIssued records the tracking PIN and opens the scheduling interaction.
func (m *Machine) PinIssued(pin string) error {
	if m.state.Step != StepLegal && m.state.Step != StepSchedule {
		return invalidTransition("emisión de PIN", m.state.Step)
	}
	if pin == "" {
		return fmt.Errorf("flow: PIN vacío")
	}
	m.state.Step = StepSchedule
	m.state.TrackingPIN = pin
	return nil
}

// AppointmentConfirmed marks the run complete.
func (m *Machine) AppointmentConfirmed() error {
	if m.state.Step != StepSchedule {
		return invalidTransition("confirmación de cita", m.state.Step)
	}
	m.state.Step = StepDone
	return nil
}

// Home forces the machine back to welcome: all mode flags, the PIN, the
// active procedure and the navigation stack are cleared. The transcript is
// not owned here and survives by construction.
func (m *Machine) Home() {
	m.state = State{}
	m.history.Reset()
}

// Back restores the previous snapshot exactly, without altering the
// transcript. It reports false when there is nothing to go back to.
func (m *Machine) Back() bool {
	snap, ok := m.history.Pop()
	if !ok {
		return false
	}
	m.state.Restore(snap)
	return true
}
