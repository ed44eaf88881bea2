package detpipe

import (
	"fmt"

	"gocv.io/x/gocv"
)

// RGBChannels is the number of channels in a pipeline frame, all sources
// produce RGB regardless of their native pixel format
const RGBChannels = 3

// FrameLayout defines the memory layout of a frames pixel buffer
type FrameLayout int

const (
	// LayoutPlanar is channel major ordering (CHW), all R values followed
	// by all G values followed by all B values
	LayoutPlanar FrameLayout = iota
	// LayoutInterleaved is pixel major ordering (HWC), RGBRGBRGB...
	LayoutInterleaved
)

// String returns a readable name of the frame layout
func (l FrameLayout) String() string {
	switch l {
	case LayoutPlanar:
		return "planar"
	case LayoutInterleaved:
		return "interleaved"
	default:
		return fmt.Sprintf("unknown layout %d", int(l))
	}
}

// Frame is a fixed shape RGB pixel buffer.  A frame is exclusively owned by
// whichever pipeline stage currently holds it and is handed off, never
// shared, between decode, inference and rendering
type Frame struct {
	// Data is the raw pixel buffer, always Width*Height*RGBChannels bytes
	Data []byte
	// Width and Height are the frame dimensions in pixels
	Width  int
	Height int
	// Layout is the pixel buffer memory layout
	Layout FrameLayout
	// Index is the position of the frame in the source stream
	Index uint64
	// TimestampMS is the source timestamp in milliseconds, zero when the
	// source has no timing information
	TimestampMS uint64
}

// NewFrame wraps a raw pixel buffer into a Frame.  The buffer length must
// match the declared shape exactly or an error is returned
func NewFrame(data []byte, width, height int, layout FrameLayout) (*Frame, error) {

	want := RGBChannels * width * height

	if len(data) != want {
		return nil, fmt.Errorf("frame buffer length mismatch: expected %d bytes for %dx%d %s, got %d",
			want, width, height, layout, len(data))
	}

	return &Frame{
		Data:   data,
		Width:  width,
		Height: height,
		Layout: layout,
	}, nil
}

// Interleaved returns the frame pixel data in interleaved (HWC) order,
// converting from planar order when required.  Conversion allocates a new
// buffer, the frames own data is left untouched
func (f *Frame) Interleaved() []byte {

	if f.Layout == LayoutInterleaved {
		return f.Data
	}

	plane := f.Width * f.Height
	out := make([]byte, len(f.Data))

	for i := 0; i < plane; i++ {
		out[i*RGBChannels] = f.Data[i]
		out[i*RGBChannels+1] = f.Data[plane+i]
		out[i*RGBChannels+2] = f.Data[2*plane+i]
	}

	return out
}

// Planar returns the frame pixel data in planar (CHW) order, converting from
// interleaved order when required
func (f *Frame) Planar() []byte {

	if f.Layout == LayoutPlanar {
		return f.Data
	}

	plane := f.Width * f.Height
	out := make([]byte, len(f.Data))

	for i := 0; i < plane; i++ {
		out[i] = f.Data[i*RGBChannels]
		out[plane+i] = f.Data[i*RGBChannels+1]
		out[2*plane+i] = f.Data[i*RGBChannels+2]
	}

	return out
}

// ToMat converts the frame into a gocv Mat in BGR channel order for use with
// the render and output packages.  The caller owns the returned Mat and must
// Close it
func (f *Frame) ToMat() (gocv.Mat, error) {

	rgb, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3,
		f.Interleaved())

	if err != nil {
		return gocv.Mat{}, fmt.Errorf("error creating Mat from frame: %w", err)
	}

	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorBGRToRGB)

	return bgr, nil
}

// FrameFromMat converts a BGR gocv Mat into an interleaved RGB Frame.  The
// Mat data is copied so the Mat may be closed after conversion
func FrameFromMat(mat gocv.Mat) (*Frame, error) {

	if mat.Empty() {
		return nil, fmt.Errorf("cannot create frame from empty Mat")
	}

	rgb := gocv.NewMat()

	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	if !rgb.IsContinuous() {
		cont := rgb.Clone()
		rgb.Close()
		rgb = cont
	}

	defer rgb.Close()

	data := make([]byte, rgb.Total()*rgb.Channels())
	copy(data, rgb.ToBytes())

	return NewFrame(data, mat.Cols(), mat.Rows(), LayoutInterleaved)
}
