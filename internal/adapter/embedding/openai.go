package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ragcore/internal/port"
)

var _ port.Embedder = (*OpenAIEmbedder)(nil)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	DefaultOllamaModel   = "nomic-embed-text"
	maxBatch             = 100
)

// Model dimensions for well-known embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// OpenAIConfig configures an embedder talking to an OpenAI-compatible
// /embeddings endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// Dimension overrides the model's default vector size. For
	// text-embedding-3-* models it is also sent to the API.
	Dimension int

	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	shorten   bool
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for model %s", cfg.Model)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatch {
		cfg.BatchSize = maxBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = modelDimensions[cfg.Model]
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("unknown dimension for model %s: set embedding.dimension", cfg.Model)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: dimension,
		batchSize: cfg.BatchSize,
		shorten:   strings.HasPrefix(cfg.Model, "text-embedding-3-") && cfg.Dimension > 0,
	}, nil
}

// NewOpenAICompatibleEmbedder reads the API key from the named environment
// variable. An empty model selects text-embedding-3-small.
func NewOpenAICompatibleEmbedder(apiKeyEnv string, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	cfg.APIKey = os.Getenv(apiKeyEnv)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return NewOpenAIEmbedder(cfg)
}

// NewOllamaEmbedder talks to Ollama's OpenAI-compatible endpoint, which needs
// no key. An empty model selects nomic-embed-text.
func NewOllamaEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	cfg.APIKey = "ollama"
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return NewOpenAIEmbedder(cfg)
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.shorten {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(embeddings) {
			return nil, fmt.Errorf("embedding response has out-of-range index %d", data.Index)
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		embeddings[data.Index] = vec
	}
	for i, vec := range embeddings {
		if vec == nil {
			return nil, fmt.Errorf("embedding response is missing input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
