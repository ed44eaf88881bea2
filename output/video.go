package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// VideoScheme is the locator scheme for video file sinks, eg
// video:///data/out.mp4?fps=30
const VideoScheme = "video"

func init() {
	registry.Register(VideoScheme, func(loc *detpipe.Locator) (Sink, error) {
		return NewVideoSink(loc)
	})
}

// VideoSink encodes annotated frames into a video file.  The writer is
// opened on the first frame so the container dimensions always match the
// frames actually produced
type VideoSink struct {
	path      string
	fps       float64
	writer    *gocv.VideoWriter
	closeOnce sync.Once
	closeErr  error
}

// NewVideoSink creates a sink writing to the file named by the locator
// path.  The fps query parameter sets the playback frame rate, default 30
func NewVideoSink(loc *detpipe.Locator) (*VideoSink, error) {

	if loc.Path == "" {
		return nil, fmt.Errorf("video locator %s has no file path", loc)
	}

	fps, err := loc.QueryFloat("fps", 30)

	if err != nil {
		return nil, err
	}

	if fps <= 0 {
		return nil, fmt.Errorf("video locator %s has non-positive fps", loc)
	}

	return &VideoSink{path: loc.Path, fps: fps}, nil
}

// fourCC picks the codec from the file extension
func fourCC(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "mp4v"
	case ".webm":
		return "VP80"
	default:
		return "MJPG"
	}
}

// Write draws the detections on the frame and appends it to the video
func (s *VideoSink) Write(frame *detpipe.Frame, detections result.DetectResult) error {

	img, err := annotate(frame, detections)

	if err != nil {
		return err
	}

	defer img.Close()

	if s.writer == nil {
		s.writer, err = gocv.VideoWriterFile(s.path, fourCC(s.path), s.fps,
			frame.Width, frame.Height, true)

		if err != nil {
			return fmt.Errorf("error opening video file %s: %w", s.path, err)
		}

		logrus.WithFields(logrus.Fields{
			"file": s.path,
			"fps":  s.fps,
			"size": fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		}).Info("video sink opened")
	}

	if err := s.writer.Write(img); err != nil {
		return fmt.Errorf("error writing video frame to %s: %w", s.path, err)
	}

	return nil
}

// Close finalizes the video file trailer.  A sink closed before any frame
// was written leaves no file behind
func (s *VideoSink) Close() error {

	s.closeOnce.Do(func() {
		if s.writer != nil {
			s.closeErr = s.writer.Close()
		}
	})

	return s.closeErr
}
