package app

import (
	"context"
	"sync"

	"github.com/identia-project/identia/internal/gateway"
	"github.com/identia-project/identia/internal/session"
	"github.com/identia-project/identia/internal/transcript"
	"github.com/identia-project/identia/internal/voice"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Compile-time assertions for the gateway adapters.
var (
	_ gateway.Listener  = (*voiceListener)(nil)
	_ gateway.AudioFeed = (*audioFeed)(nil)
)

// voiceListener adapts the voice controller to the gateway's capture
// interface. Final transcripts pass through the vocabulary corrector
// before reaching the session, so "sédula" still selects the cédula.
type voiceListener struct {
	controller *voice.Controller
	manager    *session.Manager
	corrector  *transcript.Corrector
}

func (l *voiceListener) Start(ctx context.Context) error {
	cb := l.manager.VoiceCallbacks(ctx)
	if l.corrector != nil {
		next := cb.OnResult
		cb.OnResult = func(text string) {
			next(l.corrector.Correct(text))
		}
	}
	return l.controller.StartListening(ctx, cb)
}

func (l *voiceListener) Feed(chunk []byte) error {
	return l.controller.FeedAudio(chunk)
}

func (l *voiceListener) Stop() {
	l.controller.StopListening()
}

// audioFeed fans synthesized audio from the voice controller out to the
// active gateway connection. publish is the controller's AudioSink; it
// never blocks, so a slow subscriber drops chunks rather than stalling
// playback.
type audioFeed struct {
	mu   sync.Mutex
	subs map[int]func(chunk []byte)
	next int
}

func newAudioFeed() *audioFeed {
	return &audioFeed{subs: make(map[int]func(chunk []byte))}
}

// Subscribe registers fn for synthesized chunks until cancel is called.
func (f *audioFeed) Subscribe(fn func(chunk []byte)) (cancel func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// publish delivers one chunk to every subscriber.
func (f *audioFeed) publish(chunk []byte) {
	f.mu.Lock()
	fns := make([]func(chunk []byte), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(chunk)
	}
}
