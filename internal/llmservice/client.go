package llmservice

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

// NewGenerator builds the configured generator. An openai provider without an
// API key yields the mock generator: an unconfigured model is not a failure.
// Errors from a configured provider are returned, never replaced by the mock.
func NewGenerator(cfg config.LLMConfig, apiKey string, logger zerolog.Logger) (Generator, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case models.LLMMock:
		logger.Info().Msg("Using mock language model")
		return NewMock(), nil
	case models.LLMOpenAI:
		if apiKey == "" {
			logger.Warn().Msg("No OpenAI API key configured, using mock language model")
			return NewMock(), nil
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case models.LLMOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.ModelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: initializing %s client: %v", models.ErrConfiguration, cfg.Provider, err)
	}

	logger.Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.ModelName).
		Dur("timeout", cfg.Timeout).
		Msg("Language model configured")

	return NewLangChain(llm, cfg.Provider, cfg.ModelName,
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
	), nil
}
