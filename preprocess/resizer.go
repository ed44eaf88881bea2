package preprocess

import (
	"image"

	"gocv.io/x/gocv"
)

// Resizer defines the struct used for scaling source frames to the fixed
// input dimensions the pipeline runs at.  Frames are stretched to the
// destination size, matching what a caps negotiated scaling element in a
// streaming pipeline would produce
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// passThrough is true when source and destination dimensions match and
	// no scaling is needed
	passThrough bool
	// scale factors between source and destination
	scaleX float32
	scaleY float32
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions for input tensor size
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {

	return &Resizer{
		srcWidth:    srcWidth,
		srcHeight:   srcHeight,
		destWidth:   destWidth,
		destHeight:  destHeight,
		passThrough: srcWidth == destWidth && srcHeight == destHeight,
		scaleX:      float32(destWidth) / float32(srcWidth),
		scaleY:      float32(destHeight) / float32(srcHeight),
	}
}

// Resize scales the source Mat into dest at the destination dimensions.
// When the source already has the destination size the data is copied
// unscaled
func (r *Resizer) Resize(src gocv.Mat, dest *gocv.Mat) {

	if r.passThrough {
		src.CopyTo(dest)
		return
	}

	gocv.Resize(src, dest, image.Pt(r.destWidth, r.destHeight),
		0, 0, gocv.InterpolationArea)
}

// PassThrough reports whether the resizer is a no-op for its source size
func (r *Resizer) PassThrough() bool {
	return r.passThrough
}

// ScaleX returns the horizontal scale factor from source to destination
func (r *Resizer) ScaleX() float32 {
	return r.scaleX
}

// ScaleY returns the vertical scale factor from source to destination
func (r *Resizer) ScaleY() float32 {
	return r.scaleY
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

// DestWidth returns the width scaled to
func (r *Resizer) DestWidth() int {
	return r.destWidth
}

// DestHeight returns the height scaled to
func (r *Resizer) DestHeight() int {
	return r.destHeight
}
