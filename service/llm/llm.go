package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bot-rag-backend/config"
	"bot-rag-backend/service/vectorstore"
	"bot-rag-backend/utils"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultEmbeddingBatchSize = 10

var ErrEmptyCompletion = errors.New("model returned no choices")

// Embedder 文本向量化
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer 根据系统提示词和用户输入生成回复
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(cfg config.ModelConfig, httpClient *http.Client) (*OpenAIEmbedder, error) {
	if httpClient == nil {
		httpClient = utils.DefaultHTTPClient()
	}

	client, err := openai.New(
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder client: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(defaultEmbeddingBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %v", err)
	}

	return &OpenAIEmbedder{
		embedder:   embedder,
		dimensions: cfg.EmbeddingDimensions,
	}, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.checkDimensions(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for _, vector := range vectors {
		if err := e.checkDimensions(vector); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// dimensions 为 0 时不校验
func (e *OpenAIEmbedder) checkDimensions(vector []float32) error {
	if e.dimensions > 0 && len(vector) != e.dimensions {
		return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), e.dimensions)
	}
	return nil
}

type OpenAICompleter struct {
	llm         llms.Model
	temperature float64
}

var _ Completer = (*OpenAICompleter)(nil)

func NewOpenAICompleter(cfg config.ModelConfig, httpClient *http.Client) (*OpenAICompleter, error) {
	if httpClient == nil {
		httpClient = utils.DefaultHTTPClient()
	}

	client, err := openai.New(
		openai.WithModel(cfg.ChatModel),
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %v", err)
	}

	return &OpenAICompleter{
		llm:         client,
		temperature: cfg.Temperature,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Content, nil
}
