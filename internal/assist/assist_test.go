package assist

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/identia-project/identia/internal/intent"
	"github.com/identia-project/identia/internal/resilience"
)

// stubResponder returns a fixed reply or error and counts calls.
type stubResponder struct {
	reply Reply
	err   error
	calls atomic.Int32
}

func (s *stubResponder) Respond(ctx context.Context, q Query) (Reply, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Reply{}, s.err
	}
	return s.reply, nil
}

func TestChain_PrimaryWins(t *testing.T) {
	t.Parallel()
	primary := &stubResponder{reply: Reply{Text: "desde el backend", Source: "backend"}}
	local := &stubResponder{reply: Reply{Text: "local", Source: "local"}}

	chain := NewChain(primary, "backend", resilience.FallbackConfig{})
	chain.Add("local", local)

	reply, err := chain.Respond(context.Background(), Query{Text: "hola"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Source != "backend" {
		t.Errorf("source = %q, want backend", reply.Source)
	}
	if local.calls.Load() != 0 {
		t.Errorf("local responder called %d times, want 0", local.calls.Load())
	}
}

func TestChain_FallsThroughInOrder(t *testing.T) {
	t.Parallel()
	primary := &stubResponder{err: errors.New("connection refused")}
	llm := &stubResponder{err: errors.New("rate limited")}
	local := &stubResponder{reply: Reply{Text: "respuesta local", Source: "local"}}

	chain := NewChain(primary, "backend", resilience.FallbackConfig{})
	chain.Add("llm", llm)
	chain.Add("local", local)

	reply, err := chain.Respond(context.Background(), Query{Text: "hola"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Source != "local" {
		t.Errorf("source = %q, want local", reply.Source)
	}
	if primary.calls.Load() != 1 || llm.calls.Load() != 1 {
		t.Errorf("calls = %d/%d, want one attempt each", primary.calls.Load(), llm.calls.Load())
	}
}

func TestChain_BreakerSkipsDeadPrimary(t *testing.T) {
	t.Parallel()
	primary := &stubResponder{err: errors.New("connection refused")}
	local := &stubResponder{reply: Reply{Text: "local"}}

	chain := NewChain(primary, "backend", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	chain.Add("local", local)

	for i := 0; i < 5; i++ {
		if _, err := chain.Respond(context.Background(), Query{Text: "hola"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := primary.calls.Load(); got != 2 {
		t.Errorf("primary tried %d times, want 2 before the breaker opened", got)
	}
}

func TestChain_AllFailed(t *testing.T) {
	t.Parallel()
	chain := NewChain(&stubResponder{err: errors.New("boom")}, "backend", resilience.FallbackConfig{})

	_, err := chain.Respond(context.Background(), Query{Text: "hola"})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestRouterResponder(t *testing.T) {
	t.Parallel()
	r := NewRouterResponder(intent.New())

	reply, err := r.Respond(context.Background(), Query{Text: "buenos días"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Intent != string(intent.IntentGreeting) {
		t.Errorf("intent = %q, want greeting", reply.Intent)
	}
	if reply.Text == "" {
		t.Error("expected a non-empty reply")
	}

	reply, err = r.Respond(context.Background(), Query{Text: "quiero renovar mi cédula"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.ProcedureID != "cedula_renovacion" {
		t.Errorf("procedure = %q, want cedula_renovacion", reply.ProcedureID)
	}
}
