package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstScheme is the locator scheme for GStreamer encoded video file sinks,
// eg gstout:///data/out.mp4?fps=30.  The encoder chain is picked from the
// file extension, frames are fed through an appsrc at the head of the
// pipeline
const GstScheme = "gstout"

// RTSPScheme is the locator scheme for RTSP push sinks, eg
// gstrtsp://media.local/live?port=8554&fps=30&proto=tcp.  Frames are
// encoded and pushed to an RTSP server with rtspclientsink
const RTSPScheme = "gstrtsp"

func init() {
	registry.Register(GstScheme, func(loc *detpipe.Locator) (Sink, error) {
		return NewGstSink(loc)
	})
	registry.Register(RTSPScheme, func(loc *detpipe.Locator) (Sink, error) {
		return NewRTSPSink(loc)
	})
}

// gstInit guards the process wide GStreamer initialization
var gstInit sync.Once

// eosTimeout bounds how long Close waits for the pipeline to confirm end
// of stream before tearing it down regardless
const eosTimeout = 5 * time.Second

// appsrcCore drives the appsrc end shared by the encoded file and RTSP
// push sinks.  The pipeline is built on the first frame so the caps match
// the frames actually produced
type appsrcCore struct {
	fps       int
	live      bool
	pipeline  *gst.Pipeline
	src       *app.Source
	frames    uint64
	closeOnce sync.Once
}

// open builds and starts a pipeline whose head is an RGB appsrc named
// framesrc, with the given downstream element chain
func (c *appsrcCore) open(width, height int, tail string) error {

	gstInit.Do(func() {
		gst.Init(nil)
	})

	srcOpts := "format=time"

	if c.live {
		srcOpts = "format=time is-live=true"
	}

	launch := fmt.Sprintf(
		"appsrc name=framesrc %s caps=video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1 ! videoconvert ! video/x-raw,format=I420 ! %s",
		srcOpts, width, height, c.fps, tail)

	pipeline, err := gst.NewPipelineFromString(launch)

	if err != nil {
		return fmt.Errorf("error building gstreamer output pipeline: %w", err)
	}

	element, err := pipeline.GetElementByName("framesrc")

	if err != nil {
		return fmt.Errorf("error locating appsrc in pipeline: %w", err)
	}

	src := app.SrcFromElement(element)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("error starting gstreamer output pipeline: %w", err)
	}

	c.pipeline = pipeline
	c.src = src

	return nil
}

// push annotates the frame and feeds it into the appsrc with its stream
// timestamps
func (c *appsrcCore) push(frame *detpipe.Frame, detections result.DetectResult) error {

	img, err := annotate(frame, detections)

	if err != nil {
		return err
	}

	annotated, err := detpipe.FrameFromMat(img)
	img.Close()

	if err != nil {
		return err
	}

	buffer := gst.NewBufferFromBytes(annotated.Interleaved())

	frameDur := time.Second / time.Duration(c.fps)
	buffer.SetPresentationTimestamp(time.Duration(c.frames) * frameDur)
	buffer.SetDuration(frameDur)
	c.frames++

	if ret := c.src.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("error pushing frame into gstreamer pipeline: %v", ret)
	}

	return nil
}

// stop tears the pipeline down.  With waitEOS set it signals end of stream
// first and waits for the pipeline to confirm it on the bus, so muxers get
// to write their trailer before the state drops to null
func (c *appsrcCore) stop(waitEOS bool) {

	c.closeOnce.Do(func() {

		if c.pipeline == nil {
			return
		}

		if waitEOS {
			c.src.EndStream()
			c.awaitEOS()
		}

		c.pipeline.SetState(gst.StateNull)

		logrus.WithField("frames", c.frames).Info("gstreamer sink closed")
	})
}

// awaitEOS polls the pipeline bus until the end of stream is confirmed, an
// error message arrives or the timeout expires
func (c *appsrcCore) awaitEOS() {

	bus := c.pipeline.GetPipelineBus()
	deadline := time.Now().Add(eosTimeout)

	for time.Now().Before(deadline) {

		msg := bus.TimedPop(100 * time.Millisecond)

		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return
		case gst.MessageError:
			logrus.WithField("error", msg.ParseError()).
				Warn("gstreamer pipeline error during shutdown")
			return
		}
	}

	logrus.WithField("timeout", eosTimeout).
		Warn("gstreamer pipeline did not confirm end of stream")
}

// GstSink encodes annotated frames into a video file through a GStreamer
// pipeline
type GstSink struct {
	appsrcCore
	path string
}

// NewGstSink creates a sink encoding to the file named by the locator path.
// The fps query parameter sets the stream frame rate, default 30
func NewGstSink(loc *detpipe.Locator) (*GstSink, error) {

	if loc.Path == "" {
		return nil, fmt.Errorf("gstout locator %s has no file path", loc)
	}

	fps, err := loc.QueryInt("fps", 30)

	if err != nil {
		return nil, err
	}

	if fps <= 0 {
		return nil, fmt.Errorf("gstout locator %s has non-positive fps", loc)
	}

	return &GstSink{
		appsrcCore: appsrcCore{fps: fps},
		path:       loc.Path,
	}, nil
}

// encoderChain picks the encode and mux elements from the file extension
func encoderChain(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mkv":
		return "x264enc speed-preset=fast ! h264parse ! matroskamux"
	case ".avi":
		return "x264enc ! avimux"
	case ".webm":
		return "vp8enc ! webmmux"
	default:
		return "x264enc speed-preset=fast tune=zerolatency ! h264parse ! mp4mux"
	}
}

// Write draws the detections on the frame and pushes it into the encoder
func (s *GstSink) Write(frame *detpipe.Frame, detections result.DetectResult) error {

	if s.pipeline == nil {

		tail := fmt.Sprintf("%s ! filesink location=%s",
			encoderChain(s.path), s.path)

		if err := s.open(frame.Width, frame.Height, tail); err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"file": s.path,
			"fps":  s.fps,
			"size": fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		}).Info("gstreamer sink opened")
	}

	return s.push(frame, detections)
}

// Close signals end of stream and waits for the muxer to write its trailer
// before stopping the pipeline
func (s *GstSink) Close() error {
	s.stop(true)
	return nil
}

// RTSPSink pushes annotated frames to an RTSP server as a live H.264
// stream.  The locator host and path name the mount point, eg
// gstrtsp://media.local/live pushes to rtsp://media.local:8554/live
type RTSPSink struct {
	appsrcCore
	location string
	proto    string
}

// NewRTSPSink creates an RTSP push sink.  Recognized query parameters:
// port (default 8554), fps (default 30) and proto (udp or tcp, default udp)
func NewRTSPSink(loc *detpipe.Locator) (*RTSPSink, error) {

	fps, err := loc.QueryInt("fps", 30)

	if err != nil {
		return nil, err
	}

	if fps <= 0 {
		return nil, fmt.Errorf("gstrtsp locator %s has non-positive fps", loc)
	}

	port, err := loc.QueryInt("port", 8554)

	if err != nil {
		return nil, err
	}

	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("gstrtsp locator %s has invalid port %d", loc, port)
	}

	proto := loc.Query("proto")

	switch proto {
	case "":
		proto = "udp"
	case "udp", "tcp":
	default:
		return nil, fmt.Errorf("gstrtsp locator %s proto must be udp or tcp", loc)
	}

	host, mount := splitMount(loc.Path)

	return &RTSPSink{
		appsrcCore: appsrcCore{fps: fps, live: true},
		location:   fmt.Sprintf("rtsp://%s:%d%s", host, port, mount),
		proto:      proto,
	}, nil
}

// splitMount splits the joined host and path component of an RTSP locator
// into the server host and the stream mount point
func splitMount(path string) (host, mount string) {

	host, mount, found := strings.Cut(path, "/")

	if host == "" {
		host = "0.0.0.0"
	}

	if !found || mount == "" {
		return host, "/stream"
	}

	return host, "/" + mount
}

// Write draws the detections on the frame and pushes it to the RTSP server
func (s *RTSPSink) Write(frame *detpipe.Frame, detections result.DetectResult) error {

	if s.pipeline == nil {

		tail := fmt.Sprintf(
			"x264enc speed-preset=fast tune=zerolatency ! rtspclientsink protocols=%s latency=0 location=%s",
			s.proto, s.location)

		if err := s.open(frame.Width, frame.Height, tail); err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"location": s.location,
			"proto":    s.proto,
			"fps":      s.fps,
			"size":     fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		}).Info("rtsp sink opened")
	}

	return s.push(frame, detections)
}

// Close stops the live push.  There is no trailer to wait for, the stream
// simply ends
func (s *RTSPSink) Close() error {
	s.stop(false)
	return nil
}
