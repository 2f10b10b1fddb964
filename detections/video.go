package detections

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/Tutortoise/deepfake-detector/models"
)

// FrameReader walks a video sequentially.
type FrameReader interface {
	// Next advances to the following frame and reports false at end of stream.
	Next() bool
	// Frame decodes the current frame.
	Frame() (image.Image, error)
	Close() error
}

// VideoOpener opens a video file for sequential reading.
type VideoOpener func(path string) (FrameReader, error)

type VideoDetector struct {
	images    *ImageDetector
	open      VideoOpener
	workers   int
	stride    int
	maxFrames int
}

// NewVideoDetector samples every FrameStride-th frame, at most MaxVideoFrames
// of them, and classifies up to workers frames concurrently.
func NewVideoDetector(images *ImageDetector, open VideoOpener, workers int) *VideoDetector {
	if workers <= 0 {
		workers = 1
	}
	return &VideoDetector{
		images:    images,
		open:      open,
		workers:   workers,
		stride:    FrameStride,
		maxFrames: MaxVideoFrames,
	}
}

func (d *VideoDetector) Available() bool {
	return d != nil && d.open != nil && d.images.Available()
}

func (d *VideoDetector) Process(ctx context.Context, path string) (models.VideoResult, error) {
	if !d.Available() {
		return models.VideoResult{}, ErrModelUnavailable
	}

	reader, err := d.open(path)
	if err != nil {
		return models.VideoResult{}, NewError(KindVideoUnopenable, MsgVideoUnopenable, err)
	}
	defer reader.Close()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		fake     int
		failed   int
		analyzed int
	)
	sem := make(chan struct{}, d.workers)

	recordFailure := func(frame int, err error) {
		slog.Warn("frame classification failed",
			slog.String("request_id", RequestID(ctx)),
			slog.Int("frame", frame),
			slog.Any("error", err),
		)
		mu.Lock()
		failed++
		mu.Unlock()
	}

sampling:
	for idx := 0; analyzed < d.maxFrames && reader.Next(); idx++ {
		if idx%d.stride != 0 {
			continue
		}

		img, err := reader.Frame()
		analyzed++
		if err != nil {
			recordFailure(idx, err)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break sampling
		}

		wg.Add(1)
		go func(frame int, img image.Image) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := d.images.Predict(ctx, FromImage(img))
			if err != nil {
				recordFailure(frame, err)
				return
			}
			if IsFake(result.Score) {
				mu.Lock()
				fake++
				mu.Unlock()
			}
		}(idx, img)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return models.VideoResult{}, NewError(KindInference, "video analysis cancelled", err)
	}

	score := 0.0
	if analyzed > 0 {
		score = float64(fake) / float64(analyzed)
	}

	return models.VideoResult{
		DetectionResult: Finalize(models.DetectionResult{
			Score:   score,
			Label:   mediaLabel(score),
			Details: fmt.Sprintf(MsgVideoDetails, fake, analyzed),
		}),
		FramesAnalyzed:     analyzed,
		FakeFramesDetected: fake,
		FramesFailed:       failed,
	}, nil
}
