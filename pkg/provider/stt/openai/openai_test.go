package openai_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/identia-project/identia/pkg/provider/stt"
	"github.com/identia-project/identia/pkg/provider/stt/openai"
)

// newMockServer creates a test server that responds to the transcription
// endpoint with a JSON body containing responseText. It increments
// *callCount on every matched request.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// makeSpeechPCM generates a sine-wave PCM buffer at 440 Hz whose RMS is
// well above the silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer (RMS = 0).
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

func mustStartStream(t *testing.T, p *openai.Provider, cfg stt.StreamConfig) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	return h
}

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	_, err := openai.New("")
	if err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := openai.New("test-key",
		openai.WithModel("whisper-1"),
		openai.WithLanguage("es"),
		openai.WithSampleRate(16000),
		openai.WithSilenceThresholdMs(300),
		openai.WithMaxBufferDurationMs(5000),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

func TestStartStream_CancelledContext_ReturnsError(t *testing.T) {
	p, _ := openai.New("test-key")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestStartStream_Channels_NonNil(t *testing.T) {
	p, _ := openai.New("test-key")
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	defer h.Close()

	if h.Partials() == nil {
		t.Error("Partials() returned nil channel")
	}
	if h.Finals() == nil {
		t.Error("Finals() returned nil channel")
	}
}

func TestSession_SilenceAfterSpeech_FlushesFinal(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "quiero renovar mi cédula", &calls)
	defer srv.Close()

	p, err := openai.New("test-key",
		openai.WithBaseURL(srv.URL),
		openai.WithSilenceThresholdMs(100),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "es"})
	defer h.Close()

	// 200 ms of speech, then enough silence to cross the 100 ms threshold.
	if err := h.SendAudio(makeSpeechPCM(3200)); err != nil {
		t.Fatalf("SendAudio speech: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := h.SendAudio(makeSilencePCM(1600)); err != nil {
			t.Fatalf("SendAudio silence: %v", err)
		}
	}

	select {
	case tr := <-h.Finals():
		if tr.Text != "quiero renovar mi cédula" {
			t.Errorf("final text = %q", tr.Text)
		}
		if !tr.IsFinal {
			t.Error("final transcript not marked final")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no final transcript before timeout")
	}

	if calls.Load() == 0 {
		t.Error("transcription endpoint was never called")
	}
}

func TestSession_OnlySilence_NoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "nada", &calls)
	defer srv.Close()

	p, _ := openai.New("test-key", openai.WithBaseURL(srv.URL))
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	for i := 0; i < 10; i++ {
		if err := h.SendAudio(makeSilencePCM(1600)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := calls.Load(); got != 0 {
		t.Errorf("endpoint called %d times for pure silence", got)
	}
}

func TestSession_CloseFlushesPendingSpeech(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "buenos días", &calls)
	defer srv.Close()

	p, _ := openai.New("test-key", openai.WithBaseURL(srv.URL))
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	if err := h.SendAudio(makeSpeechPCM(3200)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	// Give the process loop a moment to drain the audio channel.
	time.Sleep(50 * time.Millisecond)
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if calls.Load() == 0 {
		t.Error("pending speech was not flushed on Close")
	}

	var got string
	for tr := range h.Finals() {
		got = tr.Text
	}
	if got != "buenos días" {
		t.Errorf("final after close = %q", got)
	}
}

func TestSession_SendAudioAfterClose_ReturnsError(t *testing.T) {
	p, _ := openai.New("test-key")
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SendAudio(makeSpeechPCM(160)); err == nil {
		t.Fatal("SendAudio accepted after Close")
	}
	// Close twice is safe.
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSession_SetKeywords_Accepted(t *testing.T) {
	p, _ := openai.New("test-key")
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	defer h.Close()

	err := h.SetKeywords([]stt.KeywordBoost{{Keyword: "apostilla", Boost: 2}})
	if err != nil {
		t.Errorf("SetKeywords: %v", err)
	}
}
