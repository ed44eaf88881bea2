package output

import (
	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/edgecv/go-detpipe/render"
	"gocv.io/x/gocv"
)

// Sink consumes frames together with the detections found on them.  Sinks
// that produce imagery draw the detections onto the frame before writing,
// record style sinks store them as data instead
type Sink interface {
	// Write delivers the next frame and its detections
	Write(frame *detpipe.Frame, detections result.DetectResult) error
	// Close flushes and releases the sink.  Safe to call more than once
	Close() error
}

// registry holds all compiled in sink backends, populated by the init
// functions of the backend files in this package
var registry = detpipe.NewRegistry[Sink]()

// Open constructs the sink backend matching the locator scheme
func Open(rawLocator string) (Sink, error) {
	return registry.Open(rawLocator)
}

// Schemes returns the registered sink schemes
func Schemes() []string {
	return registry.Schemes()
}

// annotate converts the frame to a BGR Mat and draws the detection boxes
// onto it.  The caller owns the returned Mat and must Close it
func annotate(frame *detpipe.Frame, detections result.DetectResult) (gocv.Mat, error) {

	img, err := frame.ToMat()

	if err != nil {
		return gocv.Mat{}, err
	}

	render.DetectionBoxes(&img, detections.Boxes, detpipe.COCOLabels,
		render.DefaultFont(), 2)

	return img, nil
}
