package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"

	"golang.org/x/xerrors"

	"github.com/Tutortoise/deepfake-detector/detections"
	"github.com/Tutortoise/deepfake-detector/models"
	ort "github.com/yalue/onnxruntime_go"
)

// ImageClassifier runs an ONNX image classification model from a session pool.
type ImageClassifier struct {
	pool   *ModelSessionPool
	labels []string
}

func NewImageClassifier(pool *ModelSessionPool, labels []string) *ImageClassifier {
	return &ImageClassifier{
		pool:   pool,
		labels: labels,
	}
}

// Classify returns predictions sorted by descending confidence. Failed runs
// are retried with a linear delay.
func (c *ImageClassifier) Classify(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Prediction, error) {
	var lastErr error

	for attempt := 1; attempt <= detections.RetryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			preds, err := c.classifyOnce(ctx, img, timings)
			if err == nil {
				return preds, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err

			if attempt < detections.RetryAttempts {
				time.Sleep(time.Duration(attempt) * detections.RetryDelayMs * time.Millisecond)
				continue
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unknown error")
}

func (c *ImageClassifier) classifyOnce(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Prediction, error) {
	resizeStart := time.Now()
	resized := detections.ResizeImage(img)
	timings.Resize = time.Since(resizeStart)

	session, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, xerrors.Errorf("acquire session: %w", err)
	}

	input, ok := session.Inputs[0].(*ort.Tensor[float32])
	if !ok {
		c.pool.Release(session)
		return nil, fmt.Errorf("unexpected input tensor type %T", session.Inputs[0])
	}

	prepStart := time.Now()
	if err := detections.ToTensor(resized, input.GetData()); err != nil {
		c.pool.Release(session)
		return nil, xerrors.Errorf("prepare input buffer: %w", err)
	}
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := session.Run(); err != nil {
		c.pool.Discard(session)
		return nil, xerrors.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	output, ok := session.Outputs[0].(*ort.Tensor[float32])
	if !ok {
		c.pool.Release(session)
		return nil, fmt.Errorf("unexpected output tensor type %T", session.Outputs[0])
	}
	probs := detections.Softmax(output.GetData())
	c.pool.Release(session)

	return labelPredictions(probs, c.labels), nil
}

// labelPredictions pairs probabilities with class names, highest first.
func labelPredictions(probs []float32, labels []string) []models.Prediction {
	preds := make([]models.Prediction, len(probs))
	for i, p := range probs {
		label := fmt.Sprintf("class_%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		preds[i] = models.Prediction{Label: label, Score: p}
	}

	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Score > preds[j].Score
	})
	return preds
}
