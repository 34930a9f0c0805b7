package gateway

import "github.com/identia-project/identia/internal/session"

// Inbound is one client event. Text frames carry JSON; binary frames
// carry raw microphone PCM and bypass this envelope.
type Inbound struct {
	// Type selects the action: text, select, voice_start, voice_stop,
	// biometric, doc_capture, doc_edit, doc_confirm, doc_retry,
	// doc_cancel, slots, appointment, back, home.
	Type string `json:"type"`

	Text        string `json:"text,omitempty"`
	ProcedureID string `json:"procedureId,omitempty"`

	// Kind and Data carry biometric submissions; Data doubles as the
	// captured document image for doc_capture (base64 over the wire).
	Kind string `json:"kind,omitempty"`
	Data []byte `json:"data,omitempty"`

	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`

	Fecha   string `json:"fecha,omitempty"`
	Hora    string `json:"hora,omitempty"`
	Oficina string `json:"oficina,omitempty"`
}

// Outbound is one server event. Synthesized speech goes out as binary
// frames and bypasses this envelope.
type Outbound struct {
	// Type is one of: state, catalog, document, slots, error.
	Type string `json:"type"`

	View    *session.View  `json:"view,omitempty"`
	Catalog []CatalogEntry `json:"catalog,omitempty"`

	Document *DocumentPayload `json:"document,omitempty"`
	Slots    []string         `json:"slots,omitempty"`

	Error string `json:"error,omitempty"`
}

// CatalogEntry is one selectable procedure for the menu.
type CatalogEntry struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	Fee               string `json:"fee,omitempty"`
	RequiresBiometric bool   `json:"requiresBiometric"`
}

// DocumentPayload is the review form for a processed capture.
type DocumentPayload struct {
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
	Warnings   []string          `json:"warnings,omitempty"`
}
