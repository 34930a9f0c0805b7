package assist

import (
	"context"

	"github.com/identia-project/identia/internal/privacy"
)

// Compile-time assertion that PrivacyResponder implements Responder.
var _ Responder = (*PrivacyResponder)(nil)

// PrivacyResponder shields the wrapped responder from personal data. The
// utterance and the conversation history are anonymized before the call
// and the reply is deanonymized after, so an external completion service
// only ever sees placeholder tokens. Wrap the LLM position of the chain
// with it; the backend and the local router stay on the kiosk and need no
// shielding.
type PrivacyResponder struct {
	next Responder
	anon *privacy.Anonymizer
}

// NewPrivacyResponder wraps next behind anon.
func NewPrivacyResponder(next Responder, anon *privacy.Anonymizer) *PrivacyResponder {
	return &PrivacyResponder{next: next, anon: anon}
}

// Respond implements Responder.
func (p *PrivacyResponder) Respond(ctx context.Context, q Query) (Reply, error) {
	mapping := make(map[string]string)

	text, m := p.anon.Anonymize(q.Text)
	q.Text = text
	for tok, v := range m {
		mapping[tok] = v
	}

	if len(q.History) > 0 {
		history := make([]Turn, len(q.History))
		for i, t := range q.History {
			anonText, hm := p.anon.Anonymize(t.Text)
			for tok, v := range hm {
				mapping[tok] = v
			}
			history[i] = Turn{Role: t.Role, Text: anonText}
		}
		q.History = history
	}

	reply, err := p.next.Respond(ctx, q)
	if err != nil {
		return Reply{}, err
	}
	reply.Text = p.anon.Deanonymize(reply.Text, mapping)
	return reply, nil
}
