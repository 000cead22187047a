package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// SetupGenkit initializes a plugin-free Genkit instance for registering
// mock models and embedders.
func SetupGenkit(ctx context.Context) *genkit.Genkit {
	return genkit.Init(ctx)
}

// MockEmbedder provides deterministic embedding vectors for testing.
//
// By default it derives a vector from content using SHA-256, so the same
// text always embeds to the same point. Explicit mappings can be added
// for precise cosine similarity control.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
}

// NewMockEmbedder creates a mock embedder with the given vector dimensions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given content string.
// Use this to control exact cosine similarity between test inputs.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// RegisterEmbedder registers the mock as a Genkit embedder named
// "mock/test-embedder".
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := documentText(doc)

		e.mu.Lock()
		vec, ok := e.vectors[text]
		e.mu.Unlock()
		if !ok {
			vec = deterministicVector(text, e.dim)
		}

		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// documentText concatenates the text parts of a document.
func documentText(doc *ai.Document) string {
	var text string
	for _, part := range doc.Content {
		if part.IsText() {
			text += part.Text
		}
	}
	return text
}

// deterministicVector derives a unit-normalized vector from content.
// The SHA-256 digest seeds each component, so equal content always
// embeds to the same point.
func deterministicVector(content string, dim int) []float32 {
	digest := sha256.Sum256([]byte(content))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		seed := binary.BigEndian.Uint32(digest[(i*4)%28:]) + uint32(i)
		component := float64(seed%2000)/1000.0 - 1.0
		vec[i] = float32(component)
		norm += component * component
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1.0
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
