package assist

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/identia-project/identia/internal/intent"
)

// systemPrompt frames the assistant for conversational completions. The
// model produces the reply text only; intent classification stays with
// the rule router so behaviour is deterministic.
const systemPrompt = `Eres IDENTIA, un asistente virtual de la Registraduría.
Ayudas a los ciudadanos con trámites de identificación y registro civil:
cédulas, tarjetas de identidad, copias de registro y apostillas.
Responde en español, con frases cortas y claras, sin tecnicismos.
Si el ciudadano pregunta algo fuera de los trámites, indícale amablemente
que solo puedes ayudar con trámites de la Registraduría.`

// historyLimit caps how many prior turns are sent with each completion.
const historyLimit = 12

// completer is the slice of the any-llm-go provider surface this
// responder needs. The real providers satisfy it.
type completer interface {
	Completion(ctx context.Context, params anyllmlib.CompletionParams) (*anyllmlib.ChatCompletion, error)
}

// Compile-time assertion that LLMResponder implements Responder.
var _ Responder = (*LLMResponder)(nil)

// LLMResponder answers with a chat completion. The reply text comes from
// the model; intent, procedure and suggestions come from the rule router
// applied to the same utterance.
type LLMResponder struct {
	backend completer
	model   string
	router  *intent.Router
}

// NewLLMResponder creates an LLMResponder for the named provider.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". Without an API
// key option the provider reads its usual environment variable.
func NewLLMResponder(providerName, model string, router *intent.Router, opts ...anyllmlib.Option) (*LLMResponder, error) {
	if model == "" {
		return nil, fmt.Errorf("assist: model must not be empty")
	}
	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("assist: create %q backend: %w", providerName, err)
	}
	return &LLMResponder{backend: backend, model: model, router: router}, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Respond implements Responder.
func (l *LLMResponder) Respond(ctx context.Context, q Query) (Reply, error) {
	messages := []anyllmlib.Message{
		{Role: anyllmlib.RoleSystem, Content: systemPrompt},
	}
	history := q.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, t := range history {
		role := "user"
		if t.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, anyllmlib.Message{Role: role, Content: t.Text})
	}
	userText := q.Text
	if q.ActiveProcedure != "" {
		userText = fmt.Sprintf("[Trámite en curso: %s]\n%s", q.ActiveProcedure, q.Text)
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: userText})

	resp, err := l.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:    l.model,
		Messages: messages,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("assist: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("assist: empty choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return Reply{}, fmt.Errorf("assist: empty completion text")
	}

	reply := Reply{Text: text, Source: "llm"}
	if l.router != nil {
		result := l.router.Route(q.Text, q.ActiveProcedure)
		reply.Intent = string(result.Intent)
		reply.ProcedureID = result.ProcedureID
		reply.Suggestions = result.Suggestions
	}
	return reply, nil
}
