package input

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/preprocess"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CameraScheme is the locator scheme for capture devices, eg
// camera:///dev/video0?width=640&height=640&fps=30&rotate=180 or camera://0
const CameraScheme = "camera"

func init() {
	registry.Register(CameraScheme, func(loc *detpipe.Locator) (Source, error) {
		return NewCameraSource(loc)
	})
}

// CameraSource reads frames from a capture device.  The device handle and
// the stream buffers that depend on it live in the one struct and are torn
// down in dependency order, stream buffers before the device
type CameraSource struct {
	capture *gocv.VideoCapture
	resizer *preprocess.Resizer
	native  gocv.Mat
	rotated gocv.Mat
	scaled  gocv.Mat
	// rotate is the gocv rotation to apply, nil when rotate=0
	rotate    *gocv.RotateFlag
	index     uint64
	closeOnce sync.Once
	closeErr  error
}

// NewCameraSource opens the device named by the locator path, either a
// numeric device index or a device file path.  Recognized query parameters:
// width, height, fps and rotate (0, 90, 180 or 270 degrees clockwise)
func NewCameraSource(loc *detpipe.Locator) (*CameraSource, error) {

	width, height, err := targetDims(loc)

	if err != nil {
		return nil, err
	}

	fps, err := loc.QueryInt("fps", 0)

	if err != nil {
		return nil, err
	}

	rotate, err := rotationFlag(loc)

	if err != nil {
		return nil, err
	}

	var capture *gocv.VideoCapture

	if deviceID, convErr := strconv.Atoi(loc.Path); convErr == nil {
		capture, err = gocv.VideoCaptureDevice(deviceID)
	} else {
		capture, err = gocv.OpenVideoCapture(loc.Path)
	}

	if err != nil {
		return nil, fmt.Errorf("error opening capture device %s: %w", loc.Path, err)
	}

	// ask the device for the target format directly, it may negotiate to
	// something else which the resizer then covers
	capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(height))

	if fps > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	srcWidth := int(capture.Get(gocv.VideoCaptureFrameWidth))
	srcHeight := int(capture.Get(gocv.VideoCaptureFrameHeight))

	if srcWidth <= 0 || srcHeight <= 0 {
		capture.Close()
		return nil, fmt.Errorf("capture device %s reports invalid dimensions %dx%d",
			loc.Path, srcWidth, srcHeight)
	}

	// a quarter turn swaps the dimensions the resizer sees
	if rotate != nil && (*rotate == gocv.Rotate90Clockwise || *rotate == gocv.Rotate90CounterClockwise) {
		srcWidth, srcHeight = srcHeight, srcWidth
	}

	logrus.WithFields(logrus.Fields{
		"device":     loc.Path,
		"negotiated": fmt.Sprintf("%dx%d", srcWidth, srcHeight),
		"target":     fmt.Sprintf("%dx%d", width, height),
	}).Info("camera source opened")

	return &CameraSource{
		capture: capture,
		resizer: preprocess.NewResizer(srcWidth, srcHeight, width, height),
		native:  gocv.NewMat(),
		rotated: gocv.NewMat(),
		scaled:  gocv.NewMat(),
		rotate:  rotate,
	}, nil
}

// rotationFlag maps the rotate query parameter to a gocv rotation
func rotationFlag(loc *detpipe.Locator) (*gocv.RotateFlag, error) {

	deg, err := loc.QueryInt("rotate", 0)

	if err != nil {
		return nil, err
	}

	var flag gocv.RotateFlag

	switch deg {
	case 0:
		return nil, nil
	case 90:
		flag = gocv.Rotate90Clockwise
	case 180:
		flag = gocv.Rotate180Clockwise
	case 270:
		flag = gocv.Rotate90CounterClockwise
	default:
		return nil, fmt.Errorf("rotate=%d unsupported, must be 0, 90, 180 or 270", deg)
	}

	return &flag, nil
}

// Read captures, optionally rotates and scales the next frame
func (s *CameraSource) Read() (*detpipe.Frame, error) {

	if ok := s.capture.Read(&s.native); !ok || s.native.Empty() {
		return nil, ErrEndOfStream
	}

	src := s.native

	if s.rotate != nil {
		gocv.Rotate(s.native, &s.rotated, *s.rotate)
		src = s.rotated
	}

	s.resizer.Resize(src, &s.scaled)

	frame, err := detpipe.FrameFromMat(s.scaled)

	if err != nil {
		return nil, fmt.Errorf("error converting camera frame: %w", err)
	}

	frame.Index = s.index
	s.index++

	return frame, nil
}

// Close releases the stream buffers and then the device
func (s *CameraSource) Close() error {

	s.closeOnce.Do(func() {
		s.native.Close()
		s.rotated.Close()
		s.scaled.Close()
		s.closeErr = s.capture.Close()
	})

	return s.closeErr
}
