package ai

import "context"

// Embedder turns text into vectors. Every vector an Embedder returns has
// the same length, the dimension of the model behind it.
// Implementations are safe for concurrent use.
type Embedder interface {
	// EmbedText embeds a single text, typically a query.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds texts in one request. The result is aligned with
	// texts: result[i] is the vector of texts[i].
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator answers a message from retrieved context.
// Implementations are safe for concurrent use.
type Generator interface {
	// Generate answers message using contextText as its only source of
	// facts. contextText is empty when nothing was retrieved.
	Generate(ctx context.Context, contextText, message string) (string, error)
}

// AIProvider owns an Embedder and a Generator built from one Config.
type AIProvider interface {
	Embedder() Embedder
	Generator() Generator

	// Close releases the provider. Neither service may be used afterwards.
	Close() error
}
