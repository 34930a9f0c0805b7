package flow

import "github.com/identia-project/identia/internal/procedure"

// Modes are the special input-interception flags armed by certain flows.
type Modes struct {
	// VoiceVerify routes the next utterances into voice-identity capture.
	VoiceVerify bool

	// MatrimonioCapture routes the next utterances into marriage
	// registration-number capture.
	MatrimonioCapture bool
}

// State is the observable flow state of a session, excluding the
// transcript and the navigation stack themselves.
type State struct {
	// Procedure is the active catalog procedure, nil before selection.
	Procedure *procedure.Procedure

	// Step is the current flow stage.
	Step Step

	// Verified records that identity has been proven for this run. The
	// biometric, voice and document paths all set the same flag; they are
	// deliberately conflated (see the short-circuit policy in Machine).
	Verified bool

	// TrackingPIN is the issued tracking identifier, empty until issuance.
	TrackingPIN string

	// Modes are the active capture-interception flags.
	Modes Modes
}

// Snapshot is an immutable, comparable copy of every State field, captured
// at the moment a procedure is entered. Popping a snapshot must restore
// the exact prior observable state, so Snapshot carries values only: the
// procedure by catalog ID rather than by pointer.
type Snapshot struct {
	ProcedureID string
	Step        Step
	Verified    bool
	TrackingPIN string
	Modes       Modes
}

// Snapshot captures the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Step:        s.Step,
		Verified:    s.Verified,
		TrackingPIN: s.TrackingPIN,
		Modes:       s.Modes,
	}
	if s.Procedure != nil {
		snap.ProcedureID = s.Procedure.ID
	}
	return snap
}

// Restore overwrites the state with the snapshot's values.
func (s *State) Restore(snap Snapshot) {
	s.Procedure = procedure.ByID(snap.ProcedureID) // nil for ""
	s.Step = snap.Step
	s.Verified = snap.Verified
	s.TrackingPIN = snap.TrackingPIN
	s.Modes = snap.Modes
}

// History is the stack of flow snapshots enabling "back" and "home"
// without losing the conversation transcript. The zero value is an empty,
// usable history.
type History struct {
	stack []Snapshot
}

// Push appends snap to the stack.
func (h *History) Push(snap Snapshot) {
	h.stack = append(h.stack, snap)
}

// Pop removes and returns the top snapshot. When the stack is empty it
// returns the zero Snapshot and false; callers must check CanGoBack (or
// the boolean) before relying on the result.
func (h *History) Pop() (Snapshot, bool) {
	if len(h.stack) == 0 {
		return Snapshot{}, false
	}
	top := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return top, true
}

// CanGoBack reports whether a Pop would return a snapshot.
func (h *History) CanGoBack() bool {
	return len(h.stack) > 0
}

// Depth returns the number of stored snapshots: the procedure-selection
// events not yet undone by Pop or Reset.
func (h *History) Depth() int {
	return len(h.stack)
}

// Reset clears the stack unconditionally ("home").
func (h *History) Reset() {
	h.stack = h.stack[:0]
}
