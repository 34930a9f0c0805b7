package session

import "github.com/identia-project/identia/internal/flow"

// Role identifies who authored a transcript message.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAssistant Role = "assistant"
)

// Message is one immutable transcript entry. IDs are monotonic within a
// session; the transcript is append-only and survives back/home
// navigation.
type Message struct {
	ID   uint64 `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// View is the published projection of the session for rendering. It is a
// value copy; mutating it has no effect on the session.
type View struct {
	SessionID string `json:"sessionId"`

	Transcript []Message `json:"transcript"`

	// Step is the current flow stage and Indicators its four-light
	// (identity, documents, legal, schedule) completion display.
	Step       flow.Step `json:"-"`
	StepName   string    `json:"step"`
	Indicators [4]bool   `json:"indicators"`

	// Procedure is the active procedure's display name, empty before
	// selection.
	Procedure   string `json:"procedure,omitempty"`
	Verified    bool   `json:"verified"`
	TrackingPIN string `json:"trackingPin,omitempty"`

	CanGoBack bool `json:"canGoBack"`

	// CalendarOpen reports that the scheduling calendar should be shown.
	CalendarOpen bool `json:"calendarOpen"`

	// Avatar is the derived assistant activity: listening, processing,
	// speaking or idle. Purely a projection, never mutated on its own.
	Avatar string `json:"avatar"`

	// Suggestions are the current quick-reply chips.
	Suggestions []string `json:"suggestions,omitempty"`

	// Interim is the in-flight partial speech transcript, empty when the
	// citizen is not speaking.
	Interim string `json:"interim,omitempty"`
}
