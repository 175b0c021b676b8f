package rag

import "context"

// EmbeddingsClient turns texts into vectors, one per input, in order.
type EmbeddingsClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// ChatClient sends a fully assembled prompt to the model.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DocumentLoader fetches the content behind a Source.
type DocumentLoader interface {
	Load(ctx context.Context, src Source) ([]Document, error)
}

// Searcher returns the topK segments closest to vec, best first.
type Searcher interface {
	Search(ctx context.Context, vec []float32, topK int) ([]ScoredSegment, error)
}

// IndexStore persists vector indexes under a name.
type IndexStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, name string, idx *VectorIndex) error
	Open(ctx context.Context, name string) (Searcher, error)
}

// ModelReporter is implemented by searchers that know which embedding model
// built them.
type ModelReporter interface {
	EmbeddingModel() string
}

// IndexLister is implemented by stores that can enumerate what they hold.
type IndexLister interface {
	List(ctx context.Context) ([]IndexInfo, error)
}
