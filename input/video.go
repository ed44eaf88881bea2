package input

import (
	"fmt"
	"sync"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/preprocess"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// VideoScheme is the locator scheme for video file sources, eg
// video:///data/clip.mp4?width=640&height=640
const VideoScheme = "video"

func init() {
	registry.Register(VideoScheme, func(loc *detpipe.Locator) (Source, error) {
		return NewVideoSource(loc)
	})
}

// VideoSource reads frames from a video file through gocv until the
// container is exhausted
type VideoSource struct {
	capture *gocv.VideoCapture
	resizer *preprocess.Resizer
	// native and scaled are working Mats reused across Read calls
	native gocv.Mat
	scaled gocv.Mat
	index  uint64
	// fps from the container, used to derive frame timestamps
	fps       float64
	closeOnce sync.Once
	closeErr  error
}

// NewVideoSource opens the video file named by the locator path
func NewVideoSource(loc *detpipe.Locator) (*VideoSource, error) {

	width, height, err := targetDims(loc)

	if err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(loc.Path)

	if err != nil {
		return nil, fmt.Errorf("error opening video file %s: %w", loc.Path, err)
	}

	srcWidth := int(capture.Get(gocv.VideoCaptureFrameWidth))
	srcHeight := int(capture.Get(gocv.VideoCaptureFrameHeight))
	fps := capture.Get(gocv.VideoCaptureFPS)

	if srcWidth <= 0 || srcHeight <= 0 {
		capture.Close()
		return nil, fmt.Errorf("video file %s reports invalid dimensions %dx%d",
			loc.Path, srcWidth, srcHeight)
	}

	logrus.WithFields(logrus.Fields{
		"file":   loc.Path,
		"native": fmt.Sprintf("%dx%d", srcWidth, srcHeight),
		"target": fmt.Sprintf("%dx%d", width, height),
		"fps":    fps,
	}).Info("video source opened")

	return &VideoSource{
		capture: capture,
		resizer: preprocess.NewResizer(srcWidth, srcHeight, width, height),
		native:  gocv.NewMat(),
		scaled:  gocv.NewMat(),
		fps:     fps,
	}, nil
}

// Read pulls and scales the next frame from the container
func (s *VideoSource) Read() (*detpipe.Frame, error) {

	if ok := s.capture.Read(&s.native); !ok || s.native.Empty() {
		return nil, ErrEndOfStream
	}

	s.resizer.Resize(s.native, &s.scaled)

	frame, err := detpipe.FrameFromMat(s.scaled)

	if err != nil {
		return nil, fmt.Errorf("error converting video frame: %w", err)
	}

	frame.Index = s.index

	if s.fps > 0 {
		frame.TimestampMS = uint64(float64(s.index) * 1000.0 / s.fps)
	}

	s.index++

	return frame, nil
}

// Close releases the capture and working buffers
func (s *VideoSource) Close() error {

	s.closeOnce.Do(func() {
		s.native.Close()
		s.scaled.Close()
		s.closeErr = s.capture.Close()
	})

	return s.closeErr
}
