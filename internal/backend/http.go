package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Compile-time assertion that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// HTTPOption is a functional option for HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPTimeout sets the per-request timeout. Defaults to 10s; the
// fallback policy depends on remote calls failing fast.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// HTTPClient implements Client against the remote government services API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient for the API at baseURL
// (e.g., "https://servicios.registraduria.gov.co").
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend: baseURL must not be empty")
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// postJSON sends body as JSON to path and decodes the response into out.
func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// getJSON fetches path and decodes the response into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("backend: %s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

// Healthz probes the backend's health endpoint. Used by the readiness
// check, never by the conversational path.
func (c *HTTPClient) Healthz(ctx context.Context) error {
	return c.getJSON(ctx, "/healthz", nil)
}

// StartSession opens a conversational session.
func (c *HTTPClient) StartSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.postJSON(ctx, "/api/sesion", struct{}{}, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// SendMessage submits an utterance to the conversational endpoint.
func (c *HTTPClient) SendMessage(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	var out MessageResponse
	err := c.postJSON(ctx, "/api/mensaje", req, &out)
	return out, err
}

// VerifyBiometric checks captured biometric data.
func (c *HTTPClient) VerifyBiometric(ctx context.Context, req BiometricRequest) (BiometricResponse, error) {
	var out BiometricResponse
	err := c.postJSON(ctx, "/api/biometria/verificar", req, &out)
	return out, err
}

// ProcessDocument extracts structured fields from a document image.
func (c *HTTPClient) ProcessDocument(ctx context.Context, req DocumentRequest) (DocumentResponse, error) {
	var out DocumentResponse
	err := c.postJSON(ctx, "/api/documentos/procesar", req, &out)
	return out, err
}

// VerifyVoiceIdentity checks a spoken name and cédula.
func (c *HTTPClient) VerifyVoiceIdentity(ctx context.Context, req VoiceIdentityRequest) (VoiceIdentityResponse, error) {
	var out VoiceIdentityResponse
	err := c.postJSON(ctx, "/api/voz/verificar", req, &out)
	return out, err
}

// IssueTrackingID requests a tracking PIN.
func (c *HTTPClient) IssueTrackingID(ctx context.Context, tipo string, datos map[string]string) (string, error) {
	in := struct {
		Tipo  string            `json:"tipo"`
		Datos map[string]string `json:"datos"`
	}{Tipo: tipo, Datos: datos}
	var out struct {
		Pin string `json:"pin"`
	}
	if err := c.postJSON(ctx, "/api/pin/generar", in, &out); err != nil {
		return "", err
	}
	return out.Pin, nil
}

// QueryStatus looks up the procedure state for a PIN.
func (c *HTTPClient) QueryStatus(ctx context.Context, pin string) (StatusResponse, error) {
	var out StatusResponse
	err := c.getJSON(ctx, "/api/estado/"+url.PathEscape(pin), &out)
	return out, err
}

// QuerySlots returns the free appointment times for a date.
func (c *HTTPClient) QuerySlots(ctx context.Context, fecha string) ([]string, error) {
	var out struct {
		Slots []string `json:"slots"`
	}
	if err := c.getJSON(ctx, "/api/citas/slots?fecha="+url.QueryEscape(fecha), &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// ConfirmAppointment books a slot.
func (c *HTTPClient) ConfirmAppointment(ctx context.Context, req AppointmentRequest) (AppointmentResponse, error) {
	var out AppointmentResponse
	err := c.postJSON(ctx, "/api/citas/agendar", req, &out)
	return out, err
}

// CancelAppointment cancels a booked appointment.
func (c *HTTPClient) CancelAppointment(ctx context.Context, eventID string) (CancelResponse, error) {
	in := struct {
		EventID string `json:"event_id"`
	}{EventID: eventID}
	var out CancelResponse
	err := c.postJSON(ctx, "/api/citas/cancelar", in, &out)
	return out, err
}
