package embedding

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// EmbeddingDim is the dimension of embeddings produced by all-MiniLM-L6-v2.
const EmbeddingDim = 384

// ModelName is the human-readable name of the served model.
const ModelName = "all-MiniLM-L6-v2"

// MaxSequenceLength is the maximum token sequence length for the model.
const MaxSequenceLength = 512

// EncodeBatchSize is the number of texts submitted to the ONNX session in
// one inference call. Larger inputs are split into chunks of this size
// under a single lock acquisition.
const EncodeBatchSize = 32

// ModelFileName is the ONNX graph file expected inside a model directory.
const ModelFileName = "model.onnx"

// TokenizerFileName is the tokenizer definition expected inside a model
// directory.
const TokenizerFileName = "tokenizer.json"

// miniLMONNXConfig defines the ONNX configuration for MiniLM. The exported
// graph outputs last_hidden_state, so sentence embeddings are produced by
// mean pooling over the attention mask. No L2 normalization is applied.
var miniLMONNXConfig = ONNXConfig{
	InputNames:  []string{"input_ids", "attention_mask", "token_type_ids"},
	OutputNames: []string{"last_hidden_state"},
	Pooling:     PoolingMean,
	HiddenSize:  EmbeddingDim,
}

// miniLMModel is the ONNX-based embedding model implementation.
type miniLMModel struct {
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
	config  ONNXConfig
}

// Compile-time check that miniLMModel implements EmbeddingModel
var _ EmbeddingModel = (*miniLMModel)(nil)

// ortInitMu guards ONNX Runtime environment initialization. The environment
// is created once and lives for the remainder of the process.
var ortInitMu sync.Mutex

// LoadModel loads the MiniLM model from a directory containing model.onnx
// (or onnx/model.onnx) and tokenizer.json. libPath optionally points at the
// ONNX Runtime shared library; when empty, well-known install locations are
// probed.
func LoadModel(dir string, libPath string) (EmbeddingModel, error) {
	modelPath, err := findModelFile(dir)
	if err != nil {
		return nil, err
	}

	tokenizerPath := filepath.Join(dir, TokenizerFileName)
	f, err := os.Open(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("open tokenizer: %w", err)
	}
	defer f.Close()

	if err := initONNXRuntime(libPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	config := miniLMONNXConfig
	session, err := ort.NewDynamicAdvancedSession(modelPath, config.InputNames, config.OutputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &miniLMModel{
		tk:      tk,
		session: session,
		config:  config,
	}, nil
}

// findModelFile locates the ONNX graph inside a model directory. Hub
// snapshots place it under an onnx/ subdirectory; local exports typically
// keep it at the top level.
func findModelFile(dir string) (string, error) {
	candidates := []string{
		filepath.Join(dir, ModelFileName),
		filepath.Join(dir, "onnx", ModelFileName),
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s found under %s", ModelFileName, dir)
}

// initONNXRuntime initializes the shared ONNX Runtime environment once per
// process.
func initONNXRuntime(libPath string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		libPath = probeONNXRuntimeLib()
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize ONNX runtime: %w", err)
	}
	return nil
}

// probeONNXRuntimeLib checks well-known install locations for the ONNX
// Runtime shared library. Returns empty when nothing is found, leaving the
// loader default in place.
func probeONNXRuntimeLib() string {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
		}
	default:
		candidates = []string{
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/opt/onnxruntime/lib/libonnxruntime.so",
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Name returns the human-readable model name.
func (m *miniLMModel) Name() string {
	return ModelName
}

// Dimensions returns the embedding vector size.
func (m *miniLMModel) Dimensions() int {
	return EmbeddingDim
}

// Embed generates an embedding for a single text.
// Returns a 384-dimensional float32 vector.
func (m *miniLMModel) Embed(text string) ([]float32, error) {
	results, err := m.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return make([]float32, EmbeddingDim), nil
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts, one 384-dimensional
// vector per input in the same order.
//
// The ONNX session is not safe for concurrent use; a single mutex
// serializes the whole call, including the chunked inference runs. Callers
// block until the lock is available.
func (m *miniLMModel) EmbedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += EncodeBatchSize {
		end := start + EncodeBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := m.computeBatch(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("compute batch embeddings: %w", err)
		}
		results = append(results, chunk...)
	}
	return results, nil
}

// computeBatch runs inference on one chunk of texts. Must be called with
// the lock held.
func (m *miniLMModel) computeBatch(sentences []string) ([][]float32, error) {
	inputBatch := make([]tokenizer.EncodeInput, len(sentences))
	for i, sent := range sentences {
		inputBatch[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(sent))
	}

	encodings, err := m.tk.EncodeBatch(inputBatch, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	batchSize := len(encodings)
	hiddenSize := m.config.HiddenSize

	// The tokenizer may not pad uniformly, so find the longest sequence
	// and cap it at the model limit.
	seqLength := 0
	for _, enc := range encodings {
		if len(enc.Ids) > seqLength {
			seqLength = len(enc.Ids)
		}
	}
	if seqLength > MaxSequenceLength {
		seqLength = MaxSequenceLength
	}

	inputShape := ort.NewShape(int64(batchSize), int64(seqLength))

	// Input buffers are zero-filled, so shorter sequences are padded
	// implicitly.
	inputIdsData := make([]int64, batchSize*seqLength)
	attentionMaskData := make([]int64, batchSize*seqLength)
	tokenTypeIdsData := make([]int64, batchSize*seqLength)

	for b := 0; b < batchSize; b++ {
		fillRow(inputIdsData, b, seqLength, encodings[b].Ids)
		fillRow(attentionMaskData, b, seqLength, encodings[b].AttentionMask)
		fillRow(tokenTypeIdsData, b, seqLength, encodings[b].TypeIds)
	}

	inputIdsTensor, err := ort.NewTensor(inputShape, inputIdsData)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer inputIdsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(inputShape, attentionMaskData)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIdsTensor, err := ort.NewTensor(inputShape, tokenTypeIdsData)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIdsTensor.Destroy()

	var outputShape ort.Shape
	switch m.config.Pooling {
	case PoolingMean, PoolingCLS:
		// Token-level output: [batch, seq_len, hidden]
		outputShape = ort.NewShape(int64(batchSize), int64(seqLength), int64(hiddenSize))
	default:
		// Direct sentence embedding output: [batch, hidden]
		outputShape = ort.NewShape(int64(batchSize), int64(hiddenSize))
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	inputTensors := []ort.Value{inputIdsTensor, attentionMaskTensor, tokenTypeIdsTensor}
	outputTensors := []ort.Value{outputTensor}

	if err := m.session.Run(inputTensors, outputTensors); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	flatOutput := outputTensor.GetData()

	switch m.config.Pooling {
	case PoolingMean:
		return meanPooling(flatOutput, attentionMaskData, batchSize, seqLength, hiddenSize), nil
	case PoolingCLS:
		return clsPooling(flatOutput, batchSize, seqLength, hiddenSize), nil
	case PoolingNone:
		expectedSize := batchSize * hiddenSize
		if len(flatOutput) != expectedSize {
			return nil, fmt.Errorf("unexpected output size: got %d, expected %d", len(flatOutput), expectedSize)
		}
		results := make([][]float32, batchSize)
		for i := 0; i < batchSize; i++ {
			start := i * hiddenSize
			results[i] = make([]float32, hiddenSize)
			copy(results[i], flatOutput[start:start+hiddenSize])
		}
		return results, nil
	default:
		return nil, fmt.Errorf("unknown pooling strategy: %s", m.config.Pooling)
	}
}

// fillRow copies one encoding row into a flat [batch, seq] buffer,
// truncating to seqLength. Remaining positions stay zero (padding).
func fillRow(dst []int64, row, seqLength int, src []int) {
	copyLen := len(src)
	if copyLen > seqLength {
		copyLen = seqLength
	}
	for i := 0; i < copyLen; i++ {
		dst[row*seqLength+i] = int64(src[i])
	}
}

// Close releases model resources. The shared ONNX Runtime environment is
// left alive for the remainder of the process.
func (m *miniLMModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
		m.session = nil
	}
	return nil
}
