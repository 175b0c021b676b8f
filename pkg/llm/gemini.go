package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const (
	DefaultGeminiChatModel      = "gemini-2.5-flash"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
)

type GeminiClient struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	dimension      int32
}

type GeminiConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	// Dimension trunca o embedding; 0 usa o tamanho nativo do modelo.
	Dimension int32
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, rag.Errorf(rag.ErrConfiguration, "gemini", "missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultGeminiChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultGeminiEmbeddingModel
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, rag.Wrap(rag.ErrConfiguration, "gemini", fmt.Errorf("create genai client: %w", err))
	}

	return &GeminiClient{
		client:         c,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		dimension:      cfg.Dimension,
	}, nil
}

func (g *GeminiClient) Model() string { return g.embeddingModel }

func (g *GeminiClient) ChatModel() string { return g.chatModel }

func (g *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var cfg *genai.EmbedContentConfig
	if g.dimension > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(g.dimension)}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		clean := normalizeWhitespace(text)
		if clean == "" {
			return nil, rag.Errorf(rag.ErrValidation, "gemini", "embed: text %d is empty", i)
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(clean), cfg)
		if err != nil {
			return nil, rag.Wrap(rag.ErrProvider, "gemini", fmt.Errorf("embed: %w", err))
		}
		if len(resp.Embeddings) == 0 {
			return nil, rag.Errorf(rag.ErrProvider, "gemini", "embed: no embeddings returned")
		}

		values := resp.Embeddings[0].Values
		v := make([]float32, len(values))
		for j, x := range values {
			v[j] = float32(x)
		}
		out[i] = v
	}
	return out, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, genai.Text(prompt), nil)
	if err != nil {
		return "", rag.Wrap(rag.ErrProvider, "gemini", fmt.Errorf("generateContent: %w", err))
	}
	if resp == nil {
		return "", rag.Errorf(rag.ErrProvider, "gemini", "empty response")
	}
	return strings.TrimSpace(resp.Text()), nil
}

var (
	_ rag.EmbeddingsClient = (*GeminiClient)(nil)
	_ rag.ChatClient       = (*GeminiClient)(nil)
)
