package memory

import (
	"context"
	"hash/fnv"
	"math"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theapemachine/longbow-go/pkg/utils"
)

// OpenAIEmbedder generates embeddings through the OpenAI API, requesting the
// store's fixed dimension so the result slots straight into the wire format.
type OpenAIEmbedder struct {
	api   openai.Client
	Model string
	dim   int
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithOpenAIModel overrides the embedding model.
func WithOpenAIModel(model string) OpenAIEmbedderOption {
	return func(embedder *OpenAIEmbedder) { embedder.Model = model }
}

// WithOpenAIAPIKey overrides the API key taken from OPENAI_API_KEY.
func WithOpenAIAPIKey(apiKey string) OpenAIEmbedderOption {
	return func(embedder *OpenAIEmbedder) {
		embedder.api = openai.NewClient(option.WithAPIKey(apiKey))
	}
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{
		api:   openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
		Model: string(openai.EmbeddingModelTextEmbedding3Small),
		dim:   EmbeddingDim,
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(e.Model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{strings.TrimSpace(text)}},
		Dimensions: openai.Int(int64(e.dim)),
	})
	if err != nil {
		return nil, err
	}

	return utils.ConvertToFloat32(resp.Data[0].Embedding), nil
}

// Dimensions returns the embedding vector size.
func (e *OpenAIEmbedder) Dimensions() int { return e.dim }

// MockEmbedder is a deterministic offline embedder: each token is hashed
// into a bucket and the vector L2-normalized, so texts sharing words score
// higher under cosine similarity. Good enough for tests and local use,
// useless for real semantics.
type MockEmbedder struct {
	dim int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

// Embed produces the bag-of-tokens vector for text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		hasher.Write([]byte(token))
		vector[int(hasher.Sum32())%e.dim]++
	}

	var norm float64
	for _, component := range vector {
		norm += float64(component) * float64(component)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector, nil
}

// Dimensions returns the embedding vector size.
func (e *MockEmbedder) Dimensions() int { return e.dim }
