// Package flow implements the per-procedure step state machine, the
// back-navigation history, and the guard chain that intercepts raw citizen
// input before generic intent routing.
package flow

// Step is the current stage within a procedure.
type Step int

const (
	// StepWelcome is the pre-procedure state: the assistant is greeting
	// and offering the catalog.
	StepWelcome Step = iota

	// StepIdentity awaits identity verification (biometric, voice, or
	// document scan).
	StepIdentity

	// StepDocument is the parallel sub-path: a document capture/review
	// cycle is in progress because identity is being proven by scan
	// rather than by a biometric shortcut.
	StepDocument

	// StepLegal is the (instantaneous) legal-review stage reached through
	// the biometric shortcut.
	StepLegal

	// StepSchedule is the appointment-scheduling interaction.
	StepSchedule

	// StepDone marks the procedure complete.
	StepDone
)

// String returns the wire/display name of the step.
func (s Step) String() string {
	switch s {
	case StepWelcome:
		return "welcome"
	case StepIdentity:
		return "identity"
	case StepDocument:
		return "document"
	case StepLegal:
		return "legal"
	case StepSchedule:
		return "schedule"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Indicators reports which of the four step indicators (identity,
// documents, legal, schedule) display as complete for s. The biometric and
// document short-circuits advance several indicators at once.
func (s Step) Indicators() [4]bool {
	switch s {
	case StepLegal:
		return [4]bool{true, true, true, false}
	case StepSchedule:
		return [4]bool{true, true, true, false}
	case StepDone:
		return [4]bool{true, true, true, true}
	default:
		return [4]bool{}
	}
}
