// Package embedding provides local text embedding generation using
// all-MiniLM-L6-v2 via ONNX Runtime.
package embedding

// PoolingStrategy defines how to pool token embeddings into sentence embeddings.
type PoolingStrategy string

const (
	// PoolingNone means the model already outputs sentence embeddings directly.
	PoolingNone PoolingStrategy = "none"
	// PoolingMean averages all token embeddings (weighted by attention mask).
	PoolingMean PoolingStrategy = "mean"
	// PoolingCLS uses only the [CLS] token embedding.
	PoolingCLS PoolingStrategy = "cls"
)

// ONNXConfig describes ONNX-specific model configuration.
type ONNXConfig struct {
	// InputNames are the ONNX input tensor names in order.
	InputNames []string
	// OutputNames are the ONNX output tensor names.
	OutputNames []string
	// Pooling specifies how to convert token embeddings to sentence embeddings.
	Pooling PoolingStrategy
	// HiddenSize is the embedding dimension (used for pooling calculations).
	HiddenSize int
}

// EmbeddingModel represents a loaded text embedding model.
//
// Implementations are safe for concurrent use: calls into the underlying
// inference session are serialized internally.
type EmbeddingModel interface {
	// Name returns the human-readable model name (e.g., "all-MiniLM-L6-v2").
	Name() string

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Embed generates an embedding for a single text.
	Embed(text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector per
	// input in the same order.
	EmbedBatch(texts []string) ([][]float32, error)

	// Close releases model resources.
	Close() error
}
