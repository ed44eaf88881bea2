package input

import (
	"fmt"
	"sync"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/preprocess"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ImageScheme is the locator scheme for single image file sources, eg
// image:///data/test.jpg?width=640&height=640
const ImageScheme = "image"

func init() {
	registry.Register(ImageScheme, func(loc *detpipe.Locator) (Source, error) {
		return NewImageSource(loc)
	})
}

// ImageSource reads one image file and yields it as a single frame, after
// which the source is exhausted
type ImageSource struct {
	frame     *detpipe.Frame
	delivered bool
	closeOnce sync.Once
}

// NewImageSource decodes the image named by the locator path and scales it
// to the target dimensions
func NewImageSource(loc *detpipe.Locator) (*ImageSource, error) {

	width, height, err := targetDims(loc)

	if err != nil {
		return nil, err
	}

	img := gocv.IMRead(loc.Path, gocv.IMReadColor)

	if img.Empty() {
		return nil, fmt.Errorf("could not read image file %s", loc.Path)
	}

	defer img.Close()

	resizer := preprocess.NewResizer(img.Cols(), img.Rows(), width, height)

	scaled := gocv.NewMat()
	defer scaled.Close()

	resizer.Resize(img, &scaled)

	frame, err := detpipe.FrameFromMat(scaled)

	if err != nil {
		return nil, fmt.Errorf("error converting image %s: %w", loc.Path, err)
	}

	logrus.WithFields(logrus.Fields{
		"file":   loc.Path,
		"native": fmt.Sprintf("%dx%d", resizer.SrcWidth(), resizer.SrcHeight()),
		"target": fmt.Sprintf("%dx%d", width, height),
	}).Info("image source opened")

	return &ImageSource{frame: frame}, nil
}

// Read yields the image exactly once
func (s *ImageSource) Read() (*detpipe.Frame, error) {

	if s.delivered {
		return nil, ErrEndOfStream
	}

	s.delivered = true

	return s.frame, nil
}

// Close releases the decoded frame
func (s *ImageSource) Close() error {

	s.closeOnce.Do(func() {
		s.frame = nil
	})

	return nil
}
