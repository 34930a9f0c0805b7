// Package openai provides a TTS provider backed by the OpenAI speech
// synthesis API. It implements the tts.Provider interface.
//
// The speech endpoint synthesises one request per text fragment and the
// response body is streamed to the audio channel in fixed-size chunks, so
// playback can begin before a long sentence finishes synthesising.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/identia-project/identia/pkg/provider/tts"
)

const (
	defaultModel = "tts-1"
	defaultVoice = "nova"

	// audioChunkSize is the size of PCM slices emitted on the audio
	// channel. 4096 bytes is 128 ms at 16 kHz mono 16-bit.
	audioChunkSize = 4096
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// knownVoices is the fixed voice catalogue of the speech endpoint.
var knownVoices = []string{"alloy", "ash", "echo", "fable", "onyx", "nova", "shimmer"}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
}

// New creates a new Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// SynthesizeStream consumes text fragments and emits raw 16-bit PCM audio
// chunks. Each fragment becomes one synthesis request; the response body
// is forwarded in audioChunkSize slices. The returned channel is closed
// when the text channel closes or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = defaultVoice
	}
	if !validVoice(voiceID) {
		return nil, fmt.Errorf("openai: unknown voice %q", voiceID)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-text:
				if !ok {
					return
				}
				if frag == "" {
					continue
				}
				if err := p.synthesizeFragment(ctx, frag, voiceID, voice.SpeedFactor, out); err != nil {
					// Synthesis errors end the stream early; the caller
					// distinguishes cancellation via ctx.Err().
					return
				}
			}
		}
	}()
	return out, nil
}

// synthesizeFragment performs one speech request and forwards the PCM
// response body to out in chunks.
func (p *Provider) synthesizeFragment(ctx context.Context, frag, voiceID string, speed float64, out chan<- []byte) error {
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		Input:          frag,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if speed > 0 {
		params.Speed = oai.Float(speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: speech request: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, audioChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai: read speech response: %w", err)
		}
	}
}

// ListVoices returns the fixed voice catalogue of the speech endpoint.
// The endpoint has no discovery API, so the list is compiled in.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	voices := make([]tts.VoiceProfile, 0, len(knownVoices))
	for _, id := range knownVoices {
		voices = append(voices, tts.VoiceProfile{
			ID:          id,
			Name:        id,
			Provider:    "openai",
			SpeedFactor: 1.0,
			Metadata:    map[string]string{"languages": "multilingual"},
		})
	}
	return voices, nil
}

// validVoice reports whether id is in the compiled-in catalogue.
func validVoice(id string) bool {
	for _, v := range knownVoices {
		if v == id {
			return true
		}
	}
	return false
}
