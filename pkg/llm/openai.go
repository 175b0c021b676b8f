// Package llm provides chat and embedding clients for rag.Service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const (
	DefaultOpenAIChatModel      = "gpt-4.1-nano"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-large"
)

// OpenAIClient talks to the OpenAI API (or any compatible endpoint).
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, rag.Errorf(rag.ErrConfiguration, "openai", "missing API key")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultOpenAIChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultOpenAIEmbeddingModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(oc),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
	}, nil
}

func (c *OpenAIClient) Model() string { return c.embeddingModel }

func (c *OpenAIClient) ChatModel() string { return c.chatModel }

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", classifyOpenAI("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", rag.Errorf(rag.ErrProvider, "openai", "chat: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		t = normalizeWhitespace(t)
		if t == "" {
			return nil, rag.Errorf(rag.ErrValidation, "openai", "embed: text %d is empty", i)
		}
		input[i] = t
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: input,
	})
	if err != nil {
		return nil, classifyOpenAI("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, rag.Errorf(rag.ErrProvider, "openai", "embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, rag.Errorf(rag.ErrProvider, "openai", "embed: index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = v
	}
	return out, nil
}

// classifyOpenAI maps auth failures to ErrConfiguration and everything else
// to ErrProvider.
func classifyOpenAI(what string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403) {
		return rag.Wrap(rag.ErrConfiguration, "openai", fmt.Errorf("%s: %w", what, err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && (reqErr.HTTPStatusCode == 401 || reqErr.HTTPStatusCode == 403) {
		return rag.Wrap(rag.ErrConfiguration, "openai", fmt.Errorf("%s: %w", what, err))
	}
	return rag.Wrap(rag.ErrProvider, "openai", fmt.Errorf("%s: %w", what, err))
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	_ rag.EmbeddingsClient = (*OpenAIClient)(nil)
	_ rag.ChatClient       = (*OpenAIClient)(nil)
)
