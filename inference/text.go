package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"golang.org/x/xerrors"

	"github.com/Tutortoise/deepfake-detector/detections"
	ort "github.com/yalue/onnxruntime_go"
)

// Tokenizer turns text into model token ids, special tokens included.
type Tokenizer interface {
	Encode(text string) ([]int64, error)
}

// HFTokenizer wraps a Hugging Face tokenizer.json. The underlying tokenizer
// is not safe for concurrent use.
type HFTokenizer struct {
	mu sync.Mutex
	tk *tokenizer.Tokenizer
}

func LoadTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, xerrors.Errorf("load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

func (t *HFTokenizer) Encode(text string) ([]int64, error) {
	t.mu.Lock()
	en, err := t.tk.EncodeSingle(text, true)
	t.mu.Unlock()
	if err != nil {
		return nil, xerrors.Errorf("tokenize: %w", err)
	}

	ids := en.GetIds()
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out, nil
}

// Truncate shortens ids to maxLen, keeping the trailing end-of-sequence token.
func Truncate(ids []int64, maxLen int) []int64 {
	if len(ids) <= maxLen || maxLen <= 0 {
		return ids
	}
	if maxLen == 1 {
		return ids[:1]
	}
	out := make([]int64, maxLen)
	copy(out, ids[:maxLen-1])
	out[maxLen-1] = ids[len(ids)-1]
	return out
}

// fillSequence writes ids into the fixed-length id and mask buffers, padding
// the remainder with padID and a zero mask.
func fillSequence(ids []int64, padID int64, idsBuf, maskBuf []int64) error {
	if len(idsBuf) != len(maskBuf) {
		return fmt.Errorf("id buffer has %d slots, mask buffer %d", len(idsBuf), len(maskBuf))
	}
	if len(ids) > len(idsBuf) {
		return fmt.Errorf("sequence of %d tokens exceeds buffer of %d", len(ids), len(idsBuf))
	}

	for i := range idsBuf {
		if i < len(ids) {
			idsBuf[i] = ids[i]
			maskBuf[i] = 1
			continue
		}
		idsBuf[i] = padID
		maskBuf[i] = 0
	}
	return nil
}

// SequenceClassifier runs a binary ONNX text classifier from a session pool.
type SequenceClassifier struct {
	pool      *ModelSessionPool
	tokenizer Tokenizer
	padID     int64
	seqLen    int
}

func NewSequenceClassifier(pool *ModelSessionPool, tok Tokenizer, padID int64) *SequenceClassifier {
	return &SequenceClassifier{
		pool:      pool,
		tokenizer: tok,
		padID:     padID,
		seqLen:    detections.MaxTokens,
	}
}

// Probabilities returns the softmax over the model's classes.
func (c *SequenceClassifier) Probabilities(ctx context.Context, text string) ([]float32, error) {
	ids, err := c.tokenizer.Encode(text)
	if err != nil {
		return nil, err
	}
	ids = Truncate(ids, c.seqLen)

	session, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, xerrors.Errorf("acquire session: %w", err)
	}

	idsTensor, ok1 := session.Inputs[0].(*ort.Tensor[int64])
	maskTensor, ok2 := session.Inputs[1].(*ort.Tensor[int64])
	if !ok1 || !ok2 {
		c.pool.Release(session)
		return nil, fmt.Errorf("unexpected text input tensor types")
	}

	if err := fillSequence(ids, c.padID, idsTensor.GetData(), maskTensor.GetData()); err != nil {
		c.pool.Release(session)
		return nil, err
	}

	if err := session.Run(); err != nil {
		c.pool.Discard(session)
		return nil, xerrors.Errorf("model inference: %w", err)
	}

	output, ok := session.Outputs[0].(*ort.Tensor[float32])
	if !ok {
		c.pool.Release(session)
		return nil, fmt.Errorf("unexpected output tensor type %T", session.Outputs[0])
	}
	probs := detections.Softmax(output.GetData())
	c.pool.Release(session)

	return probs, nil
}
