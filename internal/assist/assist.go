// Package assist produces the assistant reply for a user utterance.
//
// Replies come from a chain of responders tried in order: the remote
// conversational endpoint first, then an LLM completion, then the local
// rule-based router. The chain always answers; the local responder
// cannot fail.
package assist

import (
	"context"

	"github.com/identia-project/identia/internal/resilience"
)

// Turn is one prior exchange in the conversation, passed to responders
// that can use history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string
	Text string
}

// Query is one user utterance plus the conversational context needed to
// answer it.
type Query struct {
	SessionID string
	Text      string

	// ActiveProcedure is the display name of the procedure the session
	// is currently working through, or empty.
	ActiveProcedure string

	History []Turn
}

// Reply is the assistant's answer.
type Reply struct {
	Text        string
	Intent      string
	ProcedureID string
	Suggestions []string

	// Source names the responder that produced the reply. Exposed for
	// logging and tests.
	Source string
}

// Responder produces a reply for a query.
type Responder interface {
	Respond(ctx context.Context, q Query) (Reply, error)
}

// Chain tries each responder in order until one answers. Each position
// carries its own circuit breaker so a dead remote is skipped quickly.
type Chain struct {
	group *resilience.FallbackGroup[Responder]
}

// NewChain builds a chain with primary as the first responder. Register
// further responders with Add; the last one should be infallible, so a
// RouterResponder belongs at the end.
func NewChain(primary Responder, name string, cfg resilience.FallbackConfig) *Chain {
	return &Chain{group: resilience.NewFallbackGroup[Responder](primary, name, cfg)}
}

// Add appends a fallback responder, tried after all earlier ones.
func (c *Chain) Add(name string, r Responder) {
	c.group.AddFallback(name, r)
}

// Respond runs the query through the chain.
func (c *Chain) Respond(ctx context.Context, q Query) (Reply, error) {
	return resilience.ExecuteWithResult(c.group, func(r Responder) (Reply, error) {
		return r.Respond(ctx, q)
	})
}
