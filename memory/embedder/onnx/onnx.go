//go:build onnx

// Package onnx embeds text with a local sentence-transformer model via
// ONNX Runtime. The default target is all-MiniLM-L6-v2 (384 dims),
// which runs offline and is plenty for ranking NPC memories.
//
// Built behind the onnx build tag so the base library does not require
// the ONNX Runtime shared library to be installed.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// Standard BERT special token ids.
const (
	tokenUNK = 100
	tokenCLS = 101
	tokenSEP = 102
)

// maxSequence is the model's input length; longer texts are truncated.
const maxSequence = 128

// Config configures the embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file. Required.
	ModelPath string

	// TokenizerPath is the path to the HuggingFace tokenizer.json
	// holding the WordPiece vocabulary. Required.
	TokenizerPath string

	// LibraryPath overrides the ONNX Runtime shared library location.
	// Defaults to $ONNXRUNTIME_LIB, then the loader's default search.
	LibraryPath string

	// Dimensions is the embedding size. Default: 384.
	Dimensions int
}

// Embedder runs sentence embedding through an ONNX session.
type Embedder struct {
	session *ort.DynamicAdvancedSession
	vocab   *wordPieceVocab
	dims    int
}

// New creates the embedder, loading the tokenizer vocabulary and
// opening the inference session.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx: TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}

	lib := cfg.LibraryPath
	if lib == "" {
		lib = os.Getenv("ONNXRUNTIME_LIB")
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: open session: %w", err)
	}

	return &Embedder{session: session, vocab: vocab, dims: cfg.Dimensions}, nil
}

// Embed converts text to a unit-length embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := e.vocab.encode(text)
	if len(ids) > maxSequence-2 {
		ids = ids[:maxSequence-2]
	}

	inputIDs := make([]int64, maxSequence)
	attention := make([]int64, maxSequence)
	tokenTypes := make([]int64, maxSequence)

	inputIDs[0] = tokenCLS
	attention[0] = 1
	for i, id := range ids {
		inputIDs[i+1] = id
		attention[i+1] = 1
	}
	inputIDs[len(ids)+1] = tokenSEP
	attention[len(ids)+1] = 1

	shape := ort.NewShape(1, int64(maxSequence))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attention)
	if err != nil {
		return nil, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typesTensor, err := ort.NewTensor(shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected output tensor type")
	}
	return e.pool(hidden, attention)
}

// pool mean-pools the attended hidden states into one vector and
// normalizes it to unit length.
func (e *Embedder) pool(hidden *ort.Tensor[float32], attention []int64) ([]float32, error) {
	data := hidden.GetData()
	shape := hidden.GetShape()

	vec := make([]float32, e.dims)
	switch len(shape) {
	case 2: // already pooled: [1, dims]
		if len(data) < e.dims {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), e.dims)
		}
		copy(vec, data[:e.dims])
	case 3: // [1, seq, dims]
		seqLen, hiddenSize := int(shape[1]), int(shape[2])
		if hiddenSize != e.dims {
			return nil, fmt.Errorf("onnx: hidden size %d, want %d", hiddenSize, e.dims)
		}
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attention[i] == 0 {
				continue
			}
			attended++
			row := data[i*hiddenSize : (i+1)*hiddenSize]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("onnx: no attended tokens")
		}
		for j := range vec {
			vec[j] /= attended
		}
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close releases the inference session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// wordPieceVocab is a minimal BERT WordPiece tokenizer, enough to feed
// MiniLM-class models.
type wordPieceVocab struct {
	ids map[string]int
}

func loadVocab(path string) (*wordPieceVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary in %s", path)
	}
	return &wordPieceVocab{ids: doc.Model.Vocab}, nil
}

// encode lowercases, strips surrounding punctuation, and maps each
// word to WordPiece ids, falling back to [UNK].
func (v *wordPieceVocab) encode(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := v.ids[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, v.pieces(word)...)
	}
	return out
}

// pieces greedily matches the longest known prefix, then continues
// with "##"-prefixed continuations.
func (v *wordPieceVocab) pieces(word string) []int64 {
	var out []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := v.ids[piece]; ok {
				out = append(out, int64(id))
				start = end
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokenUNK)
			start++
		}
	}
	return out
}
