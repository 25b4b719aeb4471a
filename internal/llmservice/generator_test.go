package llmservice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/llmservice"
	"rag-chatbot/internal/models"
)

// flakyModel fails the first failures calls and then answers.
type flakyModel struct {
	failures int
	calls    atomic.Int32
	prompts  []string
}

func (f *flakyModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	n := int(f.calls.Add(1))
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, t.Text)
			}
		}
	}
	if n <= f.failures {
		return nil, errors.New("429 too many requests")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "grounded answer"}}}, nil
}

func (f *flakyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

var _ = Describe("LangChain generator", func() {
	ctx := context.Background()

	It("returns the model answer for the prompt", func() {
		model := &flakyModel{}
		gen := llmservice.NewLangChain(model, models.LLMOpenAI, "gpt-4o-mini")
		answer, err := gen.Generate(ctx, "Question: what is RAG?")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("grounded answer"))
		Expect(model.prompts).To(ConsistOf("Question: what is RAG?"))
		Expect(gen.Model()).To(Equal("gpt-4o-mini"))
		Expect(gen.Kind()).To(Equal(models.LLMOpenAI))
	})

	It("retries transient failures", func() {
		model := &flakyModel{failures: 2}
		gen := llmservice.NewLangChain(model, models.LLMOpenAI, "gpt-4o-mini",
			llmservice.WithMaxRetries(2),
			llmservice.WithRetryInterval(time.Millisecond),
		)
		answer, err := gen.Generate(ctx, "q")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("grounded answer"))
		Expect(model.calls.Load()).To(BeEquivalentTo(3))
	})

	It("surfaces the error once retries are exhausted", func() {
		model := &flakyModel{failures: 10}
		gen := llmservice.NewLangChain(model, models.LLMOpenAI, "gpt-4o-mini",
			llmservice.WithMaxRetries(1),
			llmservice.WithRetryInterval(time.Millisecond),
		)
		_, err := gen.Generate(ctx, "q")
		Expect(err).To(MatchError(models.ErrGeneration))
		Expect(err).NotTo(MatchError(models.ErrTimeout))
		Expect(err.Error()).To(ContainSubstring("429"))
		Expect(model.calls.Load()).To(BeEquivalentTo(2))
	})

	Context("against an OpenAI compatible server", func() {
		var (
			requests atomic.Int32
			handler  http.HandlerFunc
			server   *httptest.Server
		)

		BeforeEach(func() {
			requests.Store(0)
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				handler(w, r)
			}))
			DeferCleanup(server.Close)
		})

		newGenerator := func(timeout time.Duration) llmservice.Generator {
			cfg := config.Default().LLM
			cfg.Provider = models.LLMOpenAI
			cfg.BaseURL = server.URL
			cfg.Timeout = timeout
			cfg.MaxRetries = 1
			gen, err := llmservice.NewGenerator(cfg, "sk-test", zerolog.Nop())
			Expect(err).NotTo(HaveOccurred())
			return gen
		}

		It("returns the completion", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(chatCompletion("RAG grounds answers in documents."))
			}
			answer, err := newGenerator(5*time.Second).Generate(ctx, "q")
			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(Equal("RAG grounds answers in documents."))
		})

		It("surfaces server errors as generation errors instead of mocking", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			}
			answer, err := newGenerator(5*time.Second).Generate(ctx, "q")
			Expect(err).To(MatchError(models.ErrGeneration))
			Expect(answer).To(BeEmpty())
			Expect(answer).NotTo(Equal(models.MockAnswer))
			Expect(requests.Load()).To(BeNumerically(">=", 2))
		})

		It("does not retry a rejected API key", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
			}
			_, err := newGenerator(5*time.Second).Generate(ctx, "q")
			Expect(err).To(MatchError(models.ErrGeneration))
			Expect(err.Error()).To(ContainSubstring("401"))
			Expect(requests.Load()).To(BeEquivalentTo(1))
		})

		It("retries rate limited requests", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if requests.Load() == 1 {
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
					return
				}
				_ = json.NewEncoder(w).Encode(chatCompletion("second try"))
			}
			answer, err := newGenerator(5*time.Second).Generate(ctx, "q")
			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(Equal("second try"))
			Expect(requests.Load()).To(BeEquivalentTo(2))
		})

		It("reports a timeout when the model is too slow", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			}
			start := time.Now()
			_, err := newGenerator(150*time.Millisecond).Generate(ctx, "q")
			Expect(err).To(MatchError(models.ErrGeneration))
			Expect(err).To(MatchError(models.ErrTimeout))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})
	})
})

var _ = Describe("NewGenerator", func() {
	var (
		logs *bytes.Buffer
		cfg  config.LLMConfig
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		cfg = config.Default().LLM
	})

	It("uses the mock model when asked to", func() {
		gen, err := llmservice.NewGenerator(cfg, "", zerolog.New(logs))
		Expect(err).NotTo(HaveOccurred())
		Expect(gen.Kind()).To(Equal(models.LLMMock))
	})

	It("uses the mock model when openai has no key", func() {
		cfg.Provider = models.LLMOpenAI
		gen, err := llmservice.NewGenerator(cfg, "", zerolog.New(logs))
		Expect(err).NotTo(HaveOccurred())
		Expect(gen.Kind()).To(Equal(models.LLMMock))
		Expect(logs.String()).To(ContainSubstring("No OpenAI API key"))

		for _, q := range []string{"What is RAG?", "", "Tell me a joke"} {
			answer, err := gen.Generate(context.Background(), q)
			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(Equal(models.MockAnswer))
		}
	})

	It("builds an ollama generator without credentials", func() {
		cfg.Provider = models.LLMOllama
		cfg.ModelName = "llama3"
		gen, err := llmservice.NewGenerator(cfg, "", zerolog.New(logs))
		Expect(err).NotTo(HaveOccurred())
		Expect(gen.Kind()).To(Equal(models.LLMOllama))
		Expect(gen.Model()).To(Equal("llama3"))
	})

	It("rejects unknown providers", func() {
		cfg.Provider = "bard"
		_, err := llmservice.NewGenerator(cfg, "", zerolog.New(logs))
		Expect(err).To(MatchError(models.ErrConfiguration))
	})
})

var _ = Describe("MockModel", func() {
	It("answers every prompt with the mock answer", func() {
		out, err := llmservice.MockModel{}.Call(context.Background(), "anything")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(models.MockAnswer))
	})

	It("respects cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := llmservice.NewMock().Generate(ctx, "anything")
		Expect(err).To(MatchError(models.ErrGeneration))
	})
})
