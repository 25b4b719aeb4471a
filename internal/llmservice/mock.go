package llmservice

import (
	"context"

	"github.com/tmc/langchaingo/llms"

	"rag-chatbot/internal/models"
)

// MockModel is a langchaingo model that always replies with
// models.MockAnswer, whatever the prompt.
type MockModel struct{}

var _ llms.Model = MockModel{}

func (MockModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: models.MockAnswer, StopReason: "stop"}},
	}, nil
}

func (m MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// NewMock returns a generator backed by MockModel.
func NewMock() *LangChain {
	return NewLangChain(MockModel{}, models.LLMMock, models.LLMMock)
}
