package input

import (
	"errors"

	"github.com/edgecv/go-detpipe"
)

// ErrEndOfStream is returned by Read when a finite source has yielded its
// last frame.  It marks normal exhaustion, not a failure
var ErrEndOfStream = errors.New("end of stream")

// Source produces a lazy sequence of fixed dimension RGB frames.  A file
// backed image source yields exactly one frame and then ends, streaming
// sources run until externally stopped
type Source interface {
	// Read pulls the next frame.  Returns ErrEndOfStream when the source
	// is exhausted
	Read() (*detpipe.Frame, error)
	// Close releases the source resources.  Safe to call more than once
	Close() error
}

// registry holds all compiled in source backends, populated by the init
// functions of the backend files in this package
var registry = detpipe.NewRegistry[Source]()

// Open constructs the source backend matching the locator scheme
func Open(rawLocator string) (Source, error) {
	return registry.Open(rawLocator)
}

// Schemes returns the registered source schemes
func Schemes() []string {
	return registry.Schemes()
}

// targetDims reads track width/height query parameters shared by every
// source backend.  Sources scale their native frames to these dimensions so
// the model receives its fixed input size without a separate resize stage
func targetDims(loc *detpipe.Locator) (width, height int, err error) {

	width, err = loc.QueryInt("width", 640)

	if err != nil {
		return 0, 0, err
	}

	height, err = loc.QueryInt("height", 640)

	if err != nil {
		return 0, 0, err
	}

	return width, height, nil
}
