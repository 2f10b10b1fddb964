package detections

import (
	"bytes"
	"context"
	"errors"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Source is exactly one of a local path, a remote URL, encoded bytes or a decoded image.
type Source struct {
	Path  string
	URL   string
	Data  []byte
	Image image.Image
}

func FromBytes(data []byte) Source { return Source{Data: data} }

func FromImage(img image.Image) Source { return Source{Image: img} }

func (s Source) Empty() bool {
	return s.Path == "" && s.URL == "" && len(s.Data) == 0 && s.Image == nil
}

func (s Source) describe() string {
	switch {
	case s.URL != "":
		return s.URL
	case s.Path != "":
		return s.Path
	case len(s.Data) > 0:
		return "upload"
	default:
		return "frame"
	}
}

var errEmptySource = errors.New("empty image source")

// load resolves the source to an NRGBA image.
func (s Source) load(ctx context.Context, fetcher Fetcher) (*image.NRGBA, error) {
	var (
		img image.Image
		err error
	)

	switch {
	case s.Image != nil:
		img = s.Image
	case len(s.Data) > 0:
		img, err = imaging.Decode(bytes.NewReader(s.Data), imaging.AutoOrientation(true))
	case s.URL != "":
		if fetcher == nil {
			return nil, errors.New("no fetcher configured for remote images")
		}
		var data []byte
		data, err = fetcher.Fetch(ctx, s.URL)
		if err == nil {
			img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		}
	case s.Path != "":
		img, err = imaging.Open(s.Path, imaging.AutoOrientation(true))
	default:
		err = errEmptySource
	}
	if err != nil {
		return nil, err
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = imaging.Clone(img)
	}
	return DropAlpha(nrgba), nil
}
