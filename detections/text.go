package detections

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Tutortoise/deepfake-detector/models"
)

// SequenceClassifier returns the class probabilities of a binary text classifier.
type SequenceClassifier interface {
	Probabilities(ctx context.Context, text string) ([]float32, error)
}

type TextOptions struct {
	// FakeIndex is the class index holding the AI-generated probability.
	FakeIndex int
	// Normalize feeds CleanText output to the model instead of the raw text.
	Normalize bool
	// MaxLength is the largest accepted input in characters.
	MaxLength int
}

func DefaultTextOptions() TextOptions {
	return TextOptions{
		FakeIndex: 1,
		MaxLength: MaxTextLength,
	}
}

type TextDetector struct {
	classifier SequenceClassifier
	opts       TextOptions
}

// NewTextDetector accepts a nil classifier; Predict then reports the model as unavailable.
func NewTextDetector(classifier SequenceClassifier, opts TextOptions) *TextDetector {
	if opts.MaxLength <= 0 {
		opts.MaxLength = MaxTextLength
	}
	if opts.FakeIndex < 0 {
		opts.FakeIndex = 1
	}
	return &TextDetector{
		classifier: classifier,
		opts:       opts,
	}
}

func (d *TextDetector) Available() bool {
	return d != nil && d.classifier != nil
}

// AdjustTextScore applies the length heuristic to the raw fake probability.
// Texts over LongTextWords words get a fixed bonus before renormalizing.
func AdjustTextScore(fakeProb float64, words int) float64 {
	bonus := 0.0
	if words > LongTextWords {
		bonus = LongTextBonus
	}
	return math.Min((fakeProb+bonus)/TextScoreNormalize, 1.0)
}

func (d *TextDetector) Predict(ctx context.Context, text string) (models.TextResult, error) {
	if !d.Available() {
		return models.TextResult{}, ErrModelUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return models.TextResult{}, NewError(KindInputMissing, MsgNoText, nil)
	}
	if utf8.RuneCountInString(text) > d.opts.MaxLength {
		return models.TextResult{}, NewError(KindInputTooLarge, MsgTextTooLong, nil)
	}

	input := text
	if d.opts.Normalize {
		input = CleanText(text)
	}

	probs, err := d.classifier.Probabilities(ctx, input)
	if err != nil {
		return models.TextResult{}, NewError(KindInference, "model inference", err)
	}
	if d.opts.FakeIndex >= len(probs) {
		return models.TextResult{}, NewError(KindInference,
			fmt.Sprintf("model returned %d classes, fake class index is %d", len(probs), d.opts.FakeIndex), nil)
	}

	words := WordCount(text)
	score := clamp01(AdjustTextScore(float64(probs[d.opts.FakeIndex]), words))

	return models.TextResult{
		DetectionResult: Finalize(models.DetectionResult{
			Score:   score,
			Label:   textLabel(score),
			Details: fmt.Sprintf(MsgTextDetails, words),
		}),
		WordCount: words,
	}, nil
}
