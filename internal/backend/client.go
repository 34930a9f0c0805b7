// Package backend defines the collaborator interface for the government
// services API and its local stand-in.
//
// Every call follows the same availability policy: try the remote backend
// once, and on any transport failure substitute a deterministic local
// result with the same shape. Transport failures are never surfaced to the
// citizen.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned by QueryStatus when no record exists for the
// given PIN. It is a semantic miss, not a transport failure, so fallback
// clients must not mask it.
var ErrNotFound = errors.New("backend: no record for pin")

// MessageRequest carries one citizen utterance to the conversational
// endpoint.
type MessageRequest struct {
	SessionID string            `json:"sessionId"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// MessageResponse is the assistant reply computed by the backend.
type MessageResponse struct {
	Response    string   `json:"response"`
	Intent      string   `json:"intent"`
	Suggestions []string `json:"suggestions"`
}

// BiometricRequest submits captured biometric data for verification.
type BiometricRequest struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Data      []byte `json:"data"`
}

// BiometricResponse reports the verification outcome.
type BiometricResponse struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// DocumentRequest submits a captured document image for field extraction.
type DocumentRequest struct {
	SessionID    string `json:"sessionId"`
	Image        []byte `json:"image"`
	DocumentType string `json:"documentType"`
}

// DocumentResponse carries the extracted fields with an overall
// confidence and any extraction warnings.
type DocumentResponse struct {
	Confidence float64           `json:"confidence"`
	Extracted  map[string]string `json:"extracted"`
	Warnings   []string          `json:"warnings"`
}

// VoiceIdentityRequest submits a spoken name and cédula for verification.
type VoiceIdentityRequest struct {
	Nombre    string  `json:"nombre"`
	Cedula    string  `json:"cedula"`
	Threshold float64 `json:"threshold"`
}

// VoiceIdentityResponse reports the voice-identity outcome with a
// citizen-facing message.
type VoiceIdentityResponse struct {
	Verificado bool   `json:"verificado"`
	Mensaje    string `json:"mensaje"`
}

// StatusResponse is the tracking state of a submitted procedure.
type StatusResponse struct {
	Estado string   `json:"estado"`
	Pasos  []string `json:"pasos"`
}

// AppointmentRequest books an office appointment slot.
type AppointmentRequest struct {
	Tipo    string `json:"tipo"`
	Nombre  string `json:"nombre"`
	Fecha   string `json:"fecha"`
	Hora    string `json:"hora"`
	Oficina string `json:"oficina"`
	Pin     string `json:"pin"`
}

// AppointmentResponse confirms a booked appointment.
type AppointmentResponse struct {
	Mensaje string `json:"mensaje"`
	EventID string `json:"event_id"`
}

// CancelResponse confirms a cancelled appointment.
type CancelResponse struct {
	Mensaje string `json:"mensaje"`
	EventID string `json:"event_id"`
}

// Client is the abstraction over the government services backend. Both the
// HTTP client and the local stand-in implement it, and the two compose
// into a remote-then-local fallback.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// StartSession opens a conversational session and returns its ID.
	StartSession(ctx context.Context) (string, error)

	// SendMessage submits an utterance and returns the computed reply.
	SendMessage(ctx context.Context, req MessageRequest) (MessageResponse, error)

	// VerifyBiometric checks captured biometric data.
	VerifyBiometric(ctx context.Context, req BiometricRequest) (BiometricResponse, error)

	// ProcessDocument extracts structured fields from a document image.
	ProcessDocument(ctx context.Context, req DocumentRequest) (DocumentResponse, error)

	// VerifyVoiceIdentity checks a spoken name and cédula.
	VerifyVoiceIdentity(ctx context.Context, req VoiceIdentityRequest) (VoiceIdentityResponse, error)

	// IssueTrackingID requests a tracking PIN for a completed procedure.
	IssueTrackingID(ctx context.Context, tipo string, datos map[string]string) (string, error)

	// QueryStatus looks up the procedure state for a PIN. Returns
	// ErrNotFound when the PIN is unknown; PINs never partially match.
	QueryStatus(ctx context.Context, pin string) (StatusResponse, error)

	// QuerySlots returns the free appointment times for a date
	// (YYYY-MM-DD). Weekend dates have no slots.
	QuerySlots(ctx context.Context, fecha string) ([]string, error)

	// ConfirmAppointment books a slot and returns the calendar event.
	ConfirmAppointment(ctx context.Context, req AppointmentRequest) (AppointmentResponse, error)

	// CancelAppointment cancels a booked appointment by its calendar
	// event ID.
	CancelAppointment(ctx context.Context, eventID string) (CancelResponse, error)
}
