package detpipe

import "github.com/edgecv/go-detpipe/postprocess/result"

// Model is a loaded detection model.  Infer runs one frame through the
// inference runtime and decodes the raw output tensors into detection
// results.  Implementations validate their tensor counts and shapes once at
// load time so that Infer never has to re-check them per frame
type Model interface {
	// Infer runs inference on a single frame and returns the decoded,
	// suppressed detections for it
	Infer(frame *Frame) (result.DetectResult, error)
	// InputWidth and InputHeight are the fixed model input dimensions
	InputWidth() int
	InputHeight() int
	// Close releases the runtime resources held by the model
	Close() error
}
