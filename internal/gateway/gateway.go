// Package gateway serves the browser-facing WebSocket endpoint: client
// input events in, session state projections and synthesized audio out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/identia-project/identia/internal/procedure"
	"github.com/identia-project/identia/internal/session"
)

// sendBuffer caps queued outbound frames per connection.
const sendBuffer = 64

// writeTimeout bounds a single frame write to a slow client.
const writeTimeout = 10 * time.Second

// Listener abstracts voice capture so tests can fake it.
type Listener interface {
	Start(ctx context.Context) error
	Feed(chunk []byte) error
	Stop()
}

// AudioFeed delivers synthesized speech audio to a subscriber. The
// returned cancel func detaches the subscriber; chunks arriving after
// cancel are dropped.
type AudioFeed interface {
	Subscribe(fn func(chunk []byte)) (cancel func())
}

// frame is one queued outbound websocket message.
type frame struct {
	typ  websocket.MessageType
	data []byte
}

// Handler upgrades HTTP requests to the session WebSocket. The engine
// drives a single kiosk conversation, so one connection is active at a
// time; a newer connection takes over the update feed.
type Handler struct {
	manager  *session.Manager
	listener Listener
	audio    AudioFeed
}

// NewHandler creates the WebSocket handler for manager. listener may be
// nil when no microphone capture is wired; audio may be nil when no TTS
// output is wired.
func NewHandler(manager *session.Manager, listener Listener, audio AudioFeed) *Handler {
	return &Handler{manager: manager, listener: listener, audio: audio}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The kiosk frontend is served from the same origin; dev setups
		// proxy through it.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("gateway: accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	ctx := r.Context()
	snd := &sender{out: make(chan frame, sendBuffer)}

	// The manager publishes into the latest handler cell; this
	// connection becomes the latest.
	h.manager.OnUpdate(func(v session.View) {
		snd.enqueueJSON(Outbound{Type: "state", View: &v})
	})
	defer h.manager.OnUpdate(nil)

	// Synthesized speech streams to the client as binary frames.
	if h.audio != nil {
		cancel := h.audio.Subscribe(snd.enqueueBinary)
		defer cancel()
	}

	// Initial frames: the catalog and the current state.
	snd.enqueueJSON(Outbound{Type: "catalog", Catalog: catalogEntries()})
	v := h.manager.View()
	snd.enqueueJSON(Outbound{Type: "state", View: &v})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.readPump(ctx, conn, snd) })
	g.Go(func() error { return writePump(ctx, conn, snd.out) })

	if err := g.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) &&
		websocket.CloseStatus(err) == -1 {
		slog.Warn("gateway: connection ended", "error", err)
	}
	conn.Close(websocket.StatusNormalClosure, "bye")
}

// readPump consumes client frames: binary frames are microphone audio,
// text frames are JSON input events.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, snd *sender) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			if h.listener != nil {
				if err := h.listener.Feed(data); err != nil {
					slog.Debug("gateway: dropped audio chunk", "error", err)
				}
			}
			continue
		}

		var ev Inbound
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("gateway: malformed event", "error", err)
			continue
		}
		h.dispatch(ctx, ev, snd)
	}
}

// dispatch applies one input event to the session.
func (h *Handler) dispatch(ctx context.Context, ev Inbound, snd *sender) {
	switch ev.Type {
	case "text":
		h.manager.HandleText(ctx, ev.Text)

	case "select":
		if err := h.manager.SelectProcedure(ctx, ev.ProcedureID); err != nil {
			snd.enqueueError("trámite desconocido")
		}

	case "voice_start":
		if h.listener == nil {
			snd.enqueueError("entrada de voz no disponible")
			return
		}
		if err := h.listener.Start(ctx); err != nil {
			snd.enqueueError("no pude iniciar la escucha")
		}

	case "voice_stop":
		if h.listener != nil {
			h.listener.Stop()
		}

	case "biometric":
		if err := h.manager.VerifyBiometric(ctx, ev.Kind, ev.Data); err != nil {
			slog.Debug("gateway: biometric", "error", err)
		}

	case "doc_capture":
		rec, err := h.manager.CaptureDocument(ctx, ev.Data, nil)
		if err != nil {
			snd.enqueueError("no pude procesar el documento")
			return
		}
		snd.enqueueJSON(Outbound{Type: "document", Document: &DocumentPayload{
			Fields:     rec.Fields(),
			Confidence: rec.Confidence,
			Warnings:   rec.Warnings,
		}})

	case "doc_edit":
		if err := h.manager.EditDocumentField(ev.Field, ev.Value); err != nil {
			snd.enqueueError("campo no editable")
		}

	case "doc_confirm":
		if err := h.manager.ConfirmDocument(ctx); err != nil {
			slog.Debug("gateway: confirm document", "error", err)
		}

	case "doc_retry":
		h.manager.RetryDocument(ctx)

	case "doc_cancel":
		h.manager.CancelCapture(ctx)

	case "slots":
		slots, err := h.manager.QuerySlots(ctx, ev.Fecha)
		if err != nil {
			snd.enqueueError("fecha inválida")
			return
		}
		snd.enqueueJSON(Outbound{Type: "slots", Slots: slots})

	case "appointment":
		if err := h.manager.ConfirmAppointment(ctx, ev.Fecha, ev.Hora, ev.Oficina); err != nil {
			slog.Debug("gateway: confirm appointment", "error", err)
		}

	case "appointment_cancel":
		if err := h.manager.CancelAppointment(ctx); err != nil {
			slog.Debug("gateway: cancel appointment", "error", err)
		}

	case "back":
		h.manager.HandleBack(ctx)

	case "home":
		h.manager.HandleHome(ctx)

	default:
		slog.Debug("gateway: unknown event type", "type", ev.Type)
	}
}

// writePump drains the frame queue onto the connection. It is the only
// goroutine that writes to conn.
func writePump(ctx context.Context, conn *websocket.Conn, out <-chan frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, f.typ, f.data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// sender queues outbound frames for the write pump. Enqueues never
// block; a full queue means the client fell behind and frames drop.
type sender struct {
	out chan frame
}

func (s *sender) enqueueJSON(ev Outbound) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Debug("gateway: marshal outbound", "error", err)
		return
	}
	select {
	case s.out <- frame{typ: websocket.MessageText, data: data}:
	default:
		slog.Debug("gateway: dropping frame, client is slow", "type", ev.Type)
	}
}

func (s *sender) enqueueBinary(chunk []byte) {
	select {
	case s.out <- frame{typ: websocket.MessageBinary, data: chunk}:
	default:
		slog.Debug("gateway: dropping audio frame, client is slow")
	}
}

func (s *sender) enqueueError(msg string) {
	s.enqueueJSON(Outbound{Type: "error", Error: msg})
}

// catalogEntries projects the procedure catalog for the menu.
func catalogEntries() []CatalogEntry {
	all := procedure.All()
	out := make([]CatalogEntry, len(all))
	for i, p := range all {
		out[i] = CatalogEntry{
			ID:                p.ID,
			Name:              p.Name,
			Category:          string(p.Category),
			Fee:               p.Fee,
			RequiresBiometric: p.RequiresBiometric,
		}
	}
	return out
}
