package detections

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Tutortoise/deepfake-detector/models"
)

// ImageClassifier runs a single forward pass of an image classification model.
type ImageClassifier interface {
	Classify(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Prediction, error)
}

// authenticLabels are the model classes whose confidence measures how real an image is.
var authenticLabels = map[string]bool{
	"human":     true,
	"real":      true,
	"authentic": true,
}

// AILikelihood maps the top class and its confidence to the probability the
// input is AI-generated. The model's positive class is not guaranteed to be
// the AI one, so authentic classes are inverted.
func AILikelihood(label string, confidence float64) float64 {
	if authenticLabels[strings.ToLower(strings.TrimSpace(label))] {
		return clamp01(1.0 - confidence)
	}
	return clamp01(confidence)
}

type ImageDetector struct {
	classifier ImageClassifier
	fetcher    Fetcher
}

// NewImageDetector accepts a nil classifier; Predict then reports the model as unavailable.
func NewImageDetector(classifier ImageClassifier, fetcher Fetcher) *ImageDetector {
	return &ImageDetector{
		classifier: classifier,
		fetcher:    fetcher,
	}
}

func (d *ImageDetector) Available() bool {
	return d != nil && d.classifier != nil
}

func (d *ImageDetector) Predict(ctx context.Context, src Source) (models.DetectionResult, error) {
	if !d.Available() {
		return models.DetectionResult{}, ErrModelUnavailable
	}
	if src.Empty() {
		return models.DetectionResult{}, NewError(KindInputMissing, MsgNoFileOrURL, nil)
	}

	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: RequestID(ctx)}

	decodeStart := time.Now()
	img, err := src.load(ctx, d.fetcher)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return models.DetectionResult{}, NewError(KindSourceUnreadable, "could not read image "+src.describe(), err)
	}

	result, err := d.classify(ctx, img, timings)
	if err != nil {
		return models.DetectionResult{}, err
	}

	timings.Total = time.Since(startTotal)
	logTimings(timings)
	return result, nil
}

func (d *ImageDetector) classify(ctx context.Context, img image.Image, timings *models.ProcessingTimings) (models.DetectionResult, error) {
	preds, err := d.classifier.Classify(ctx, img, timings)
	if err != nil {
		return models.DetectionResult{}, NewError(KindInference, "model inference", err)
	}
	if len(preds) == 0 {
		return models.DetectionResult{}, NewError(KindInference, "model returned no predictions", nil)
	}

	postStart := time.Now()
	sorted := make([]models.Prediction, len(preds))
	copy(sorted, preds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	top := sorted[0]

	score := AILikelihood(top.Label, float64(top.Score))
	result := Finalize(models.DetectionResult{
		Score:   score,
		Label:   mediaLabel(score),
		Details: fmt.Sprintf(MsgImageDetails, top.Label, float64(top.Score)*100),
	})
	timings.Postprocess = time.Since(postStart)

	return result, nil
}

func logTimings(t *models.ProcessingTimings) {
	slog.Debug("image processing times",
		slog.String("request_id", t.RequestID),
		slog.Duration("decode", t.ImageDecode),
		slog.Duration("resize", t.Resize),
		slog.Duration("preprocess", t.Preprocess),
		slog.Duration("inference", t.Inference),
		slog.Duration("postprocess", t.Postprocess),
		slog.Duration("total", t.Total),
	)
}
