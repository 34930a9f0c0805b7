// Package voice implements the voice I/O controller that mediates between
// the browser's audio stream and the STT/TTS providers.
//
// The controller enforces mutual exclusion between listening and speaking:
// starting one stops the other, so the assistant never transcribes its own
// synthesized speech. A citizen starting to talk while the assistant
// speaks (barge-in) therefore cancels playback immediately.
package voice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/identia-project/identia/pkg/provider/stt"
	"github.com/identia-project/identia/pkg/provider/tts"
)

// ErrNotSupported is returned by StartListening or Speak when the
// corresponding provider is absent. Callers fail fast and fall back to
// text-only interaction.
var ErrNotSupported = errors.New("voice: provider not configured")

// ErrNotListening is returned by FeedAudio when no capture session is open.
var ErrNotListening = errors.New("voice: not listening")

// ErrorKind classifies recognition failures for the UI.
type ErrorKind string

const (
	// ErrorPermissionDenied: the citizen refused microphone access.
	ErrorPermissionDenied ErrorKind = "permission-denied"
	// ErrorNoSpeech: the session ended without any recognized speech.
	ErrorNoSpeech ErrorKind = "no-speech"
	// ErrorNetwork: the provider connection failed.
	ErrorNetwork ErrorKind = "network"
	// ErrorCancelled: the session was stopped before completing.
	ErrorCancelled ErrorKind = "cancelled"
	// ErrorNotSupported: voice input is unavailable on this deployment.
	ErrorNotSupported ErrorKind = "not-supported"
	// ErrorOther: any failure outside the kinds above.
	ErrorOther ErrorKind = "other"
)

// State is the controller's externally observable activity.
type State int

const (
	// StateIdle: neither listening nor speaking.
	StateIdle State = iota
	// StateListening: a capture session is open.
	StateListening
	// StateSpeaking: synthesized audio is being emitted.
	StateSpeaking
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

// Callbacks receive recognition results for one listening session. All
// callbacks are invoked from the controller's pump goroutine, never
// concurrently with each other. OnEnd fires exactly once per session,
// after the last OnInterim/OnResult/OnError.
type Callbacks struct {
	// OnInterim receives low-latency partial transcripts.
	OnInterim func(text string)

	// OnResult receives authoritative final transcripts.
	OnResult func(text string)

	// OnError receives a classified recognition failure.
	OnError func(kind ErrorKind)

	// OnEnd signals that the session is over, whatever the cause.
	OnEnd func()
}

// AudioSink consumes synthesized PCM chunks, typically forwarding them to
// the connected browser. It must not block indefinitely.
type AudioSink func(chunk []byte)

// Option is a functional option for Controller.
type Option func(*Controller)

// WithStreamConfig overrides the capture stream configuration.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(c *Controller) {
		c.streamCfg = cfg
	}
}

// WithVoice sets the synthesis voice profile.
func WithVoice(v tts.VoiceProfile) Option {
	return func(c *Controller) {
		c.voice = v
	}
}

// WithSpeechEnded sets fn to be invoked after synthesized audio has fully
// drained to the sink. Speech that is cancelled or replaced does not fire
// it; the interrupting operation already owns the state change.
func WithSpeechEnded(fn func()) Option {
	return func(c *Controller) {
		c.speechEnded = fn
	}
}

// Controller mediates listening and speaking for a single session. All
// exported methods are safe for concurrent use.
type Controller struct {
	sttProvider stt.Provider
	ttsProvider tts.Provider
	sink        AudioSink
	streamCfg   stt.StreamConfig
	voice       tts.VoiceProfile
	speechEnded func()

	mu sync.Mutex
	// listen is the active capture session state, nil when not listening.
	listen *listenSession
	// speakCancel cancels the active synthesis, nil when not speaking.
	speakCancel context.CancelFunc
	speakDone   chan struct{}
}

// listenSession tracks one open capture session.
type listenSession struct {
	handle stt.SessionHandle
	cancel context.CancelFunc
	// ended guards the exactly-once OnEnd contract.
	ended sync.Once
	// pumpDone is closed when the pump goroutine returns.
	pumpDone chan struct{}
}

// NewController creates a controller. Either provider may be nil; the
// corresponding operation then fails fast with ErrNotSupported. sink
// receives synthesized audio and may be nil when TTS is absent.
func NewController(sttProvider stt.Provider, ttsProvider tts.Provider, sink AudioSink, opts ...Option) *Controller {
	c := &Controller{
		sttProvider: sttProvider,
		ttsProvider: ttsProvider,
		sink:        sink,
		streamCfg:   stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "es"},
		voice:       tts.VoiceProfile{ID: "nova", SpeedFactor: 1.0},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State reports the current activity. Listening wins over speaking by
// construction: the two are mutually exclusive.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.listen != nil:
		return StateListening
	case c.speakCancel != nil:
		return StateSpeaking
	default:
		return StateIdle
	}
}

// StartListening opens a capture session and pumps recognition results
// into cb. Any active speech is cancelled first (barge-in). If a session
// is already open it is stopped and replaced; its OnEnd fires before the
// new session starts.
//
// Fails fast with ErrNotSupported when no STT provider is configured.
func (c *Controller) StartListening(ctx context.Context, cb Callbacks) error {
	if c.sttProvider == nil {
		if cb.OnError != nil {
			cb.OnError(ErrorNotSupported)
		}
		return ErrNotSupported
	}

	c.mu.Lock()
	c.stopSpeakingLocked()
	c.stopListeningLocked()
	c.mu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	handle, err := c.sttProvider.StartStream(sessCtx, c.streamCfg)
	if err != nil {
		cancel()
		if cb.OnError != nil {
			cb.OnError(ErrorNetwork)
		}
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
		return fmt.Errorf("voice: start capture: %w", err)
	}

	ls := &listenSession{
		handle:   handle,
		cancel:   cancel,
		pumpDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.listen = ls
	// Speak may have slipped in while StartStream was in flight; the
	// session now owns the controller, so cancel that speech too.
	c.stopSpeakingLocked()
	c.mu.Unlock()

	go c.pump(ls, cb)
	return nil
}

// pump forwards transcripts to the callbacks until both provider channels
// close, then fires OnEnd exactly once. A session that ends without any
// final transcript reports ErrorNoSpeech first.
func (c *Controller) pump(ls *listenSession, cb Callbacks) {
	defer close(ls.pumpDone)

	partials := ls.handle.Partials()
	finals := ls.handle.Finals()
	gotFinal := false

	for partials != nil || finals != nil {
		select {
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if cb.OnInterim != nil && tr.Text != "" {
				cb.OnInterim(tr.Text)
			}
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if tr.Text == "" {
				continue
			}
			gotFinal = true
			if cb.OnResult != nil {
				cb.OnResult(tr.Text)
			}
		}
	}

	ls.ended.Do(func() {
		if !gotFinal && cb.OnError != nil {
			cb.OnError(ErrorNoSpeech)
		}
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	})

	c.mu.Lock()
	if c.listen == ls {
		c.listen = nil
	}
	c.mu.Unlock()
}

// FeedAudio delivers a captured PCM chunk to the open session.
func (c *Controller) FeedAudio(chunk []byte) error {
	c.mu.Lock()
	ls := c.listen
	c.mu.Unlock()
	if ls == nil {
		return ErrNotListening
	}
	if err := ls.handle.SendAudio(chunk); err != nil {
		return fmt.Errorf("voice: feed audio: %w", err)
	}
	return nil
}

// StopListening closes the capture session, if any. Pending audio is
// flushed by the provider, so a final transcript may still arrive before
// OnEnd. Idempotent.
func (c *Controller) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopListeningLocked()
}

// stopListeningLocked closes the active session and waits for its pump to
// finish so OnEnd has fired before we return. Caller holds c.mu.
func (c *Controller) stopListeningLocked() {
	ls := c.listen
	if ls == nil {
		return
	}
	c.listen = nil

	// Close flushes the provider and closes the transcript channels; the
	// pump then drains and fires OnEnd. Release the lock while waiting so
	// callbacks may re-enter the controller.
	c.mu.Unlock()
	_ = ls.handle.Close()
	ls.cancel()
	<-ls.pumpDone
	c.mu.Lock()
}

// Speak synthesizes text and streams the audio to the sink. Any open
// capture session is stopped first, and any previous speech is cancelled
// and replaced. Markup is stripped before synthesis so SSML-like tags and
// markdown emphasis are never read aloud.
//
// Speak returns once synthesis has started; it does not wait for playback.
// Fails fast with ErrNotSupported when no TTS provider is configured.
func (c *Controller) Speak(ctx context.Context, text string) error {
	if c.ttsProvider == nil {
		return ErrNotSupported
	}
	plain := StripMarkup(text)
	if plain == "" {
		return nil
	}

	c.mu.Lock()
	c.stopListeningLocked()
	c.stopSpeakingLocked()

	speakCtx, cancel := context.WithCancel(ctx)
	textCh := make(chan string, 1)
	textCh <- plain
	close(textCh)

	audio, err := c.ttsProvider.SynthesizeStream(speakCtx, textCh, c.voice)
	if err != nil {
		cancel()
		c.mu.Unlock()
		return fmt.Errorf("voice: synthesize: %w", err)
	}

	done := make(chan struct{})
	c.speakCancel = cancel
	c.speakDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for chunk := range audio {
			if c.sink != nil {
				c.sink(chunk)
			}
		}
		cancel()
		c.mu.Lock()
		completed := c.speakDone == done
		if completed {
			c.speakCancel = nil
			c.speakDone = nil
		}
		c.mu.Unlock()
		if completed && c.speechEnded != nil {
			c.speechEnded()
		}
	}()
	return nil
}

// StopSpeaking cancels active synthesis and playback. Idempotent.
func (c *Controller) StopSpeaking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSpeakingLocked()
}

// stopSpeakingLocked cancels synthesis and waits for the forwarding
// goroutine to drain. Caller holds c.mu.
func (c *Controller) stopSpeakingLocked() {
	cancel := c.speakCancel
	done := c.speakDone
	if cancel == nil {
		return
	}
	c.speakCancel = nil
	c.speakDone = nil

	c.mu.Unlock()
	cancel()
	<-done
	c.mu.Lock()
}

// Close stops all activity. Safe to call multiple times.
func (c *Controller) Close() {
	c.StopSpeaking()
	c.StopListening()
}

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	asidePattern    = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	bulletPattern   = regexp.MustCompile(`(?m)^\s*-\s+|•`)
	emphasisPattern = regexp.MustCompile("[*_`#]+")
	spacePattern    = regexp.MustCompile(`\s+`)
)

// StripMarkup reduces assistant text to plain prose for the synthesizer:
// SSML-like tags, bracketed and parenthetical asides, bullet glyphs, and
// markdown emphasis are all removed. A hyphen inside a word survives;
// only line-leading dashes count as bullets.
func StripMarkup(text string) string {
	t := tagPattern.ReplaceAllString(text, " ")
	t = asidePattern.ReplaceAllString(t, " ")
	t = bulletPattern.ReplaceAllString(t, " ")
	t = emphasisPattern.ReplaceAllString(t, "")
	t = spacePattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
