package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"smartdesk/internal/config"
	"smartdesk/internal/core"
	"smartdesk/internal/logger"
	"smartdesk/internal/secrets"
)

// LLM wraps the chat-completion backends. The local Ollama daemon is tried
// first, then the OpenAI-compatible endpoint.
type LLM struct {
	backends []chatBackend
	cfg      config.LLMConfig
	log      zerolog.Logger
}

type chatBackend struct {
	name  string
	model model.BaseChatModel
}

// NewLLM builds the configured backends. At least one must be available.
func NewLLM(ctx context.Context, cfg config.LLMConfig, sec *secrets.Store) (*LLM, error) {
	l := &LLM{cfg: cfg, log: logger.With("llm")}

	if cfg.Ollama.Enabled {
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		l.backends = append(l.backends, chatBackend{name: "ollama", model: m})
	}

	if apiKey, ok := sec.Get("OPENAI_API_KEY"); ok {
		maxTokens := cfg.MaxTokens
		temperature := float32(cfg.Temperature)
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		l.backends = append(l.backends, chatBackend{name: "openai", model: m})
	}

	if len(l.backends) == 0 {
		return nil, fmt.Errorf("no LLM backend configured: enable ollama or set OPENAI_API_KEY")
	}
	return l, nil
}

// Complete produces a persona-flavored reply given recent conversation
// context.
func (l *LLM) Complete(ctx context.Context, persona core.Persona, history []core.Message, text string) (string, error) {
	msgs := []*schema.Message{schema.SystemMessage(personaPrompt(persona))}
	for _, m := range history {
		switch m.Role {
		case core.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Text))
		case core.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Text, nil))
		}
	}
	msgs = append(msgs, schema.UserMessage(text))
	return l.generate(ctx, msgs)
}

// Summarize condenses long-form text into an actionable summary.
func (l *LLM) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following text in a concise, actionable way for productivity:\n\n%s\n\nSummary:",
		text)
	return l.generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
}

// AnalyzeDocument answers a question about extracted file content.
func (l *LLM) AnalyzeDocument(ctx context.Context, persona core.Persona, fileName, content, question string) (string, error) {
	prompt := fmt.Sprintf(`The user has uploaded a file named '%s' with the following content:
%s

The user is asking: %q

Provide a focused, well-structured analysis that directly answers their question. Use bullet points where it helps readability, highlight the most relevant details, and be specific and quantitative when possible.`,
		fileName, content, question)

	msgs := []*schema.Message{
		schema.SystemMessage(personaPrompt(persona)),
		schema.UserMessage(prompt),
	}
	return l.generate(ctx, msgs)
}

// generate tries each backend in order, with per-call timeout and bounded
// retries. All backends failing maps to ErrProviderUnavailable.
func (l *LLM) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	var lastErr error
	for _, b := range l.backends {
		var out *schema.Message
		err := withRetry(ctx, l.cfg.MaxRetries, func(ctx context.Context) error {
			callCtx, cancel := callTimeout(ctx, l.cfg.Timeout())
			defer cancel()

			var genErr error
			out, genErr = b.model.Generate(callCtx, msgs)
			return genErr
		})
		if err == nil {
			return strings.TrimSpace(out.Content), nil
		}
		l.log.Warn().Str("backend", b.name).Err(err).Msg("chat backend failed")
		lastErr = err
	}
	return "", fmt.Errorf("%w: all chat backends failed: %v", core.ErrProviderUnavailable, lastErr)
}

func personaPrompt(p core.Persona) string {
	return fmt.Sprintf(`You are %s, %s.

You provide clear, well-structured, and actionable responses. Always aim to be:
- Direct and relevant
- Well-organized with clear sections
- Specific with concrete examples
- Professional yet friendly`, p.Name, p.Personality)
}
