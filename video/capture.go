package video

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/Tutortoise/deepfake-detector/detections"
)

// Capture reads frames from a video file through OpenCV.
type Capture struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// Open satisfies detections.VideoOpener.
func Open(path string) (detections.FrameReader, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video %s is not readable", path)
	}

	slog.Debug("video opened",
		slog.String("path", path),
		slog.Float64("frame_count", capture.Get(gocv.VideoCaptureFrameCount)),
		slog.Float64("fps", capture.Get(gocv.VideoCaptureFPS)),
		slog.String("openCV", gocv.Version()),
	)

	return &Capture{
		capture: capture,
		mat:     gocv.NewMat(),
	}, nil
}

func (c *Capture) Next() bool {
	return c.capture.Read(&c.mat) && !c.mat.Empty()
}

// Frame converts the current BGR frame; the returned image does not alias the
// reused frame buffer.
func (c *Capture) Frame() (image.Image, error) {
	if c.mat.Empty() {
		return nil, fmt.Errorf("no frame decoded")
	}
	return c.mat.ToImage()
}

func (c *Capture) Close() error {
	c.mat.Close()
	return c.capture.Close()
}
