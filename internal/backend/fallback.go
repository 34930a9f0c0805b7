package backend

import (
	"context"
	"errors"
	"log/slog"

	"github.com/identia-project/identia/internal/resilience"
)

// Compile-time assertion that Fallback implements Client.
var _ Client = (*Fallback)(nil)

// Fallback composes the remote HTTP client with the local stand-in under
// the try-remote-then-local policy: one attempt against the backend, no
// retry, no backoff; any transport failure silently substitutes the local
// result. A circuit breaker on the remote side skips the doomed attempt
// entirely while the backend is known to be down, so the UI never waits on
// a dead connection.
//
// ErrNotFound is a semantic answer, not a transport failure; it passes
// through without triggering the local substitute and without tripping the
// breaker.
type Fallback struct {
	remote  Client // nil when running offline-only
	local   Client
	breaker *resilience.CircuitBreaker
}

// NewFallback creates the composed client. remote may be nil, in which
// case every call goes straight to local.
func NewFallback(remote, local Client, cbCfg resilience.CircuitBreakerConfig) *Fallback {
	if cbCfg.Name == "" {
		cbCfg.Name = "backend"
	}
	return &Fallback{
		remote:  remote,
		local:   local,
		breaker: resilience.NewCircuitBreaker(cbCfg),
	}
}

// call runs fn against the remote once (breaker permitting) and falls back
// to the local stand-in on transport failure. Package-level because Go
// does not support method-level type parameters.
func call[R any](f *Fallback, fn func(Client) (R, error)) (R, error) {
	if f.remote != nil {
		var (
			res      R
			semantic error
		)
		err := f.breaker.Execute(func() error {
			r, err := fn(f.remote)
			if err == nil || errors.Is(err, ErrNotFound) {
				res, semantic = r, err
				return nil
			}
			return err
		})
		if err == nil {
			return res, semantic
		}
		slog.Debug("backend unreachable, using local stand-in", "error", err)
	}
	return fn(f.local)
}

func (f *Fallback) StartSession(ctx context.Context) (string, error) {
	return call(f, func(c Client) (string, error) {
		return c.StartSession(ctx)
	})
}

func (f *Fallback) SendMessage(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	return call(f, func(c Client) (MessageResponse, error) {
		return c.SendMessage(ctx, req)
	})
}

func (f *Fallback) VerifyBiometric(ctx context.Context, req BiometricRequest) (BiometricResponse, error) {
	return call(f, func(c Client) (BiometricResponse, error) {
		return c.VerifyBiometric(ctx, req)
	})
}

func (f *Fallback) ProcessDocument(ctx context.Context, req DocumentRequest) (DocumentResponse, error) {
	return call(f, func(c Client) (DocumentResponse, error) {
		return c.ProcessDocument(ctx, req)
	})
}

func (f *Fallback) VerifyVoiceIdentity(ctx context.Context, req VoiceIdentityRequest) (VoiceIdentityResponse, error) {
	return call(f, func(c Client) (VoiceIdentityResponse, error) {
		return c.VerifyVoiceIdentity(ctx, req)
	})
}

func (f *Fallback) IssueTrackingID(ctx context.Context, tipo string, datos map[string]string) (string, error) {
	return call(f, func(c Client) (string, error) {
		return c.IssueTrackingID(ctx, tipo, datos)
	})
}

func (f *Fallback) QueryStatus(ctx context.Context, pin string) (StatusResponse, error) {
	return call(f, func(c Client) (StatusResponse, error) {
		return c.QueryStatus(ctx, pin)
	})
}

func (f *Fallback) QuerySlots(ctx context.Context, fecha string) ([]string, error) {
	return call(f, func(c Client) ([]string, error) {
		return c.QuerySlots(ctx, fecha)
	})
}

func (f *Fallback) ConfirmAppointment(ctx context.Context, req AppointmentRequest) (AppointmentResponse, error) {
	return call(f, func(c Client) (AppointmentResponse, error) {
		return c.ConfirmAppointment(ctx, req)
	})
}

func (f *Fallback) CancelAppointment(ctx context.Context, eventID string) (CancelResponse, error) {
	return call(f, func(c Client) (CancelResponse, error) {
		return c.CancelAppointment(ctx, eventID)
	})
}
