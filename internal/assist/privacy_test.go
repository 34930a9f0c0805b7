package assist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/identia-project/identia/internal/privacy"
)

// captureResponder records the query it received and answers with a
// reply computed from it.
type captureResponder struct {
	got   Query
	reply func(Query) Reply
	err   error
}

func (c *captureResponder) Respond(ctx context.Context, q Query) (Reply, error) {
	c.got = q
	if c.err != nil {
		return Reply{}, c.err
	}
	return c.reply(q), nil
}

func TestPrivacyResponder_ShieldsPersonalData(t *testing.T) {
	t.Parallel()
	inner := &captureResponder{reply: func(Query) Reply { return Reply{Text: "entendido"} }}
	p := NewPrivacyResponder(inner, privacy.New(privacy.WithSalt("test")))

	_, err := p.Respond(context.Background(), Query{
		Text: "Soy Maria Gomez, mi cédula es 1023456789",
		History: []Turn{
			{Role: "user", Text: "mi celular es 310 555 1234"},
			{Role: "assistant", Text: "Con gusto."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, leaked := range []string{"1023456789", "Maria Gomez", "310 555 1234"} {
		if strings.Contains(inner.got.Text, leaked) {
			t.Errorf("utterance leaked %q: %q", leaked, inner.got.Text)
		}
		for _, turn := range inner.got.History {
			if strings.Contains(turn.Text, leaked) {
				t.Errorf("history leaked %q: %q", leaked, turn.Text)
			}
		}
	}
	if !strings.Contains(inner.got.Text, "[CEDULA_") || !strings.Contains(inner.got.Text, "[NOMBRE_") {
		t.Errorf("utterance not tokenized: %q", inner.got.Text)
	}
	if !strings.Contains(inner.got.History[0].Text, "[TELEFONO_") {
		t.Errorf("history not tokenized: %q", inner.got.History[0].Text)
	}
}

// A reply that repeats a placeholder token gets the original value back.
func TestPrivacyResponder_RestoresReply(t *testing.T) {
	t.Parallel()
	inner := &captureResponder{reply: func(q Query) Reply {
		return Reply{Text: "Registré su documento: " + q.Text}
	}}
	p := NewPrivacyResponder(inner, privacy.New(privacy.WithSalt("test")))

	reply, err := p.Respond(context.Background(), Query{Text: "cédula 1023456789"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "Registré su documento: cédula 1023456789"; reply.Text != want {
		t.Errorf("reply = %q, want %q", reply.Text, want)
	}
}

func TestPrivacyResponder_PropagatesError(t *testing.T) {
	t.Parallel()
	inner := &captureResponder{err: errors.New("rate limited")}
	p := NewPrivacyResponder(inner, privacy.New())

	if _, err := p.Respond(context.Background(), Query{Text: "hola"}); err == nil {
		t.Fatal("expected the inner error to propagate")
	}
}
