package input

import (
	"fmt"
	"sync"

	"github.com/edgecv/go-detpipe"
	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstScheme is the locator scheme for GStreamer pipeline sources.  The
// pipeline query parameter holds the launch description of the producing
// half of the pipeline, the source appends scaling, RGB conversion and an
// appsink itself, eg
//
//	gst://?pipeline=rtspsrc location=rtsp://cam/stream ! rtph264depay ! avdec_h264&width=640&height=640
const GstScheme = "gst"

func init() {
	registry.Register(GstScheme, func(loc *detpipe.Locator) (Source, error) {
		return NewGstSource(loc)
	})
}

// gstInit guards the process wide GStreamer initialization
var gstInit sync.Once

// GstSource pulls RGB frames from an appsink terminated GStreamer pipeline.
// The pipeline is effectively infinite for live producers and ends with the
// stream for file based ones
type GstSource struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	width    int
	height   int
	index    uint64
	closeOnce sync.Once
}

// NewGstSource builds and starts the pipeline described by the locator
func NewGstSource(loc *detpipe.Locator) (*GstSource, error) {

	width, height, err := targetDims(loc)

	if err != nil {
		return nil, err
	}

	desc := loc.Query("pipeline")

	if desc == "" {
		return nil, fmt.Errorf("gst locator %s is missing the pipeline query parameter", loc)
	}

	gstInit.Do(func() {
		gst.Init(nil)
	})

	// the caps filter locks the appsink input to RGB at the target size so
	// every sample maps directly onto a Frame
	launch := fmt.Sprintf(
		"%s ! videoconvert ! videoscale ! video/x-raw,format=RGB,width=%d,height=%d ! appsink name=framesink sync=false max-buffers=2 drop=false",
		desc, width, height)

	pipeline, err := gst.NewPipelineFromString(launch)

	if err != nil {
		return nil, fmt.Errorf("error building gstreamer pipeline %q: %w", desc, err)
	}

	element, err := pipeline.GetElementByName("framesink")

	if err != nil {
		return nil, fmt.Errorf("error locating appsink in pipeline: %w", err)
	}

	sink := app.SinkFromElement(element)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("error starting gstreamer pipeline: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pipeline": desc,
		"target":   fmt.Sprintf("%dx%d", width, height),
	}).Info("gstreamer source opened")

	return &GstSource{
		pipeline: pipeline,
		sink:     sink,
		width:    width,
		height:   height,
	}, nil
}

// Read blocks until the next sample arrives, copies it out of the GStreamer
// buffer and wraps it as a frame
func (s *GstSource) Read() (*detpipe.Frame, error) {

	if s.sink.IsEOS() {
		return nil, ErrEndOfStream
	}

	sample := s.sink.PullSample()

	if sample == nil {
		// a nil sample with no EOS means the pipeline went away under us
		if s.sink.IsEOS() {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("gstreamer pipeline stopped producing samples")
	}

	buffer := sample.GetBuffer()

	if buffer == nil {
		return nil, fmt.Errorf("gstreamer sample carries no buffer")
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	raw := mapInfo.Bytes()

	// copy out, GStreamer reuses the buffer after Unmap
	data := make([]byte, len(raw))
	copy(data, raw)

	frame, err := detpipe.NewFrame(data, s.width, s.height, detpipe.LayoutInterleaved)

	if err != nil {
		return nil, fmt.Errorf("gstreamer sample does not match negotiated caps: %w", err)
	}

	frame.Index = s.index
	s.index++

	return frame, nil
}

// Close stops the pipeline
func (s *GstSource) Close() error {

	s.closeOnce.Do(func() {
		s.pipeline.SetState(gst.StateNull)
	})

	return nil
}
