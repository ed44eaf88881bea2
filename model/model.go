package model

import (
	"fmt"

	"github.com/edgecv/go-detpipe"
)

// Config are the run parameters shared by all model backends.  Thresholds
// are deliberately not part of the model locator, they belong to the run,
// not to the model file
type Config struct {
	// BoxThreshold is the minimum confidence for a detection to be kept,
	// in (0,1]
	BoxThreshold float32
	// NMSThreshold is the IoU threshold for non-maximum suppression,
	// in (0,1]
	NMSThreshold float32
}

// DefaultConfig returns the standard run parameters, confidence 0.5 and
// NMS IoU 0.45
func DefaultConfig() Config {
	return Config{
		BoxThreshold: 0.5,
		NMSThreshold: 0.45,
	}
}

// validate rejects out of range thresholds before any backend is constructed
func (c Config) validate() error {

	if c.BoxThreshold <= 0 || c.BoxThreshold > 1 {
		return fmt.Errorf("confidence threshold %f out of range (0,1]", c.BoxThreshold)
	}

	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("NMS threshold %f out of range (0,1]", c.NMSThreshold)
	}

	return nil
}

// NewRegistry returns the model backend registry with all compiled in model
// backends registered, their factories bound to the given run configuration
func NewRegistry(cfg Config) *detpipe.Registry[detpipe.Model] {

	r := detpipe.NewRegistry[detpipe.Model]()

	r.Register(YOLOScheme, func(loc *detpipe.Locator) (detpipe.Model, error) {
		return newONNXYOLO(loc, cfg)
	})

	return r
}
