package assist

import (
	"context"

	"github.com/identia-project/identia/internal/intent"
)

// Compile-time assertion that RouterResponder implements Responder.
var _ Responder = (*RouterResponder)(nil)

// RouterResponder answers with the rule-based intent router. It never
// fails, which makes it the terminal entry of a chain.
type RouterResponder struct {
	router *intent.Router
}

// NewRouterResponder wraps an intent router as a responder.
func NewRouterResponder(router *intent.Router) *RouterResponder {
	return &RouterResponder{router: router}
}

// Respond implements Responder.
func (r *RouterResponder) Respond(ctx context.Context, q Query) (Reply, error) {
	result := r.router.Route(q.Text, q.ActiveProcedure)
	return Reply{
		Text:        result.ResponseText,
		Intent:      string(result.Intent),
		ProcedureID: result.ProcedureID,
		Suggestions: result.Suggestions,
		Source:      "local",
	}, nil
}
