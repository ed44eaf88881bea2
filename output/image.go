package output

import (
	"fmt"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"gocv.io/x/gocv"
)

// ImageScheme is the locator scheme for single image file sinks, eg
// image:///data/out.jpg.  Each written frame overwrites the file, so after
// a run it holds the last annotated frame
const ImageScheme = "image"

func init() {
	registry.Register(ImageScheme, func(loc *detpipe.Locator) (Sink, error) {
		return NewImageSink(loc)
	})
}

// ImageSink writes each annotated frame to one image file
type ImageSink struct {
	path string
}

// NewImageSink creates a sink writing to the file named by the locator path
func NewImageSink(loc *detpipe.Locator) (*ImageSink, error) {

	if loc.Path == "" {
		return nil, fmt.Errorf("image locator %s has no file path", loc)
	}

	return &ImageSink{path: loc.Path}, nil
}

// Write draws the detections on the frame and saves it
func (s *ImageSink) Write(frame *detpipe.Frame, detections result.DetectResult) error {

	img, err := annotate(frame, detections)

	if err != nil {
		return err
	}

	defer img.Close()

	if ok := gocv.IMWrite(s.path, img); !ok {
		return fmt.Errorf("could not write image file %s", s.path)
	}

	return nil
}

// Close is a no-op, the image file is complete after every Write
func (s *ImageSink) Close() error {
	return nil
}
