package detections

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// CleanText removes everything except ASCII letters, digits and whitespace and lowercases the rest.
func CleanText(text string) string {
	return strings.ToLower(nonAlphanumeric.ReplaceAllString(text, ""))
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ResizeImage scales img to the model input resolution.
func ResizeImage(img image.Image) *image.NRGBA {
	return imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
}

// DropAlpha makes every pixel opaque and keeps its stored colour. Opaque
// images are returned as is; others are copied.
func DropAlpha(img *image.NRGBA) *image.NRGBA {
	if img.Opaque() {
		return img
	}
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// ToTensor writes pic into dst as normalized CHW float32 planes. pic must
// already be InputWidth x InputHeight.
func ToTensor(pic image.Image, dst []float32) error {
	b := pic.Bounds()
	if b.Dx() != InputWidth || b.Dy() != InputHeight {
		return fmt.Errorf("unexpected image size %dx%d, want %dx%d", b.Dx(), b.Dy(), InputWidth, InputHeight)
	}
	channelSize := InputWidth * InputHeight
	if len(dst) < channelSize*3 {
		return fmt.Errorf("tensor buffer too small: got %d, want %d", len(dst), channelSize*3)
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > InputHeight {
		numWorkers = InputHeight
	}
	rowsPerWorker := InputHeight / numWorkers
	nrgba, _ := pic.(*image.NRGBA)

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = InputHeight
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				offset := y * InputWidth
				for x := 0; x < InputWidth; x++ {
					i := offset + x
					var r, g, bl uint8
					if nrgba != nil {
						p := nrgba.PixOffset(b.Min.X+x, b.Min.Y+y)
						r, g, bl = nrgba.Pix[p], nrgba.Pix[p+1], nrgba.Pix[p+2]
					} else {
						c := color.NRGBAModel.Convert(pic.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
						r, g, bl = c.R, c.G, c.B
					}
					dst[i] = normalize(r)
					dst[channelSize+i] = normalize(g)
					dst[channelSize*2+i] = normalize(bl)
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
	return nil
}

func normalize(c uint8) float32 {
	return (float32(c)/255.0 - ImageMean) / ImageStd
}

// Softmax converts raw logits to probabilities.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}
