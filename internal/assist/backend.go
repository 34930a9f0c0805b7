package assist

import (
	"context"

	"github.com/identia-project/identia/internal/backend"
)

// Compile-time assertion that BackendResponder implements Responder.
var _ Responder = (*BackendResponder)(nil)

// BackendResponder answers through the remote conversational endpoint.
type BackendResponder struct {
	client backend.Client
}

// NewBackendResponder wraps a backend client as a responder.
func NewBackendResponder(client backend.Client) *BackendResponder {
	return &BackendResponder{client: client}
}

// Respond implements Responder.
func (b *BackendResponder) Respond(ctx context.Context, q Query) (Reply, error) {
	req := backend.MessageRequest{
		SessionID: q.SessionID,
		Message:   q.Text,
	}
	if q.ActiveProcedure != "" {
		req.Context = map[string]string{"procedure": q.ActiveProcedure}
	}
	resp, err := b.client.SendMessage(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:        resp.Response,
		Intent:      resp.Intent,
		Suggestions: resp.Suggestions,
		Source:      "backend",
	}, nil
}
