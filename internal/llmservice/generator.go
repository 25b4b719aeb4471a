package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"

	"rag-chatbot/internal/models"
)

const defaultRetryInterval = 500 * time.Millisecond

// statusCodeRe finds the HTTP status langchaingo's openai client puts in its
// error messages ("API returned unexpected status code: 401").
var statusCodeRe = regexp.MustCompile(`status code: (\d{3})`)

// Generator answers a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Model is the model name reported with answers.
	Model() string
	Kind() string
}

// LangChain calls a langchaingo model with a per-call timeout, retrying
// failed calls with exponential backoff until the timeout expires or
// maxRetries is reached.
type LangChain struct {
	llm           llms.Model
	kind          string
	model         string
	temperature   float64
	maxTokens     int
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
}

// Option configures a LangChain generator.
type Option func(*LangChain)

func WithTemperature(t float64) Option { return func(g *LangChain) { g.temperature = t } }

func WithMaxTokens(n int) Option { return func(g *LangChain) { g.maxTokens = n } }

func WithTimeout(d time.Duration) Option { return func(g *LangChain) { g.timeout = d } }

func WithMaxRetries(n int) Option { return func(g *LangChain) { g.maxRetries = n } }

// WithRetryInterval sets the first backoff delay.
func WithRetryInterval(d time.Duration) Option { return func(g *LangChain) { g.retryInterval = d } }

// NewLangChain wraps llm. kind and model are reported by Kind and Model.
func NewLangChain(llm llms.Model, kind, model string, opts ...Option) *LangChain {
	g := &LangChain{
		llm:           llm,
		kind:          kind,
		model:         model,
		timeout:       30 * time.Second,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *LangChain) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	callOpts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(g.maxTokens))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryInterval
	// the context deadline bounds the total time instead
	b.MaxElapsedTime = 0

	var answer string
	err := backoff.Retry(func() error {
		out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, callOpts...)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		answer = out
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(g.maxRetries, 0))), ctx))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w: %s model %s did not answer within %s",
				models.ErrGeneration, models.ErrTimeout, g.kind, g.model, g.timeout)
		}
		return "", fmt.Errorf("%w: %s model %s: %v", models.ErrGeneration, g.kind, g.model, err)
	}
	return answer, nil
}

func (g *LangChain) Model() string { return g.model }

func (g *LangChain) Kind() string { return g.kind }

// retryable reports whether err may succeed on another attempt. Client errors
// other than 429 are final.
func retryable(err error) bool {
	m := statusCodeRe.FindStringSubmatch(err.Error())
	if m == nil {
		return true
	}
	code, _ := strconv.Atoi(m[1])
	if code == http.StatusTooManyRequests {
		return true
	}
	return code < http.StatusBadRequest || code >= http.StatusInternalServerError
}
