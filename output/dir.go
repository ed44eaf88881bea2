package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
)

// DirScheme is the locator scheme for directory archive sinks, eg
// folder:///data/archive?record=name&always&scale=0.5
//
// Frames are filed under <root>/YYYY/MM/DD with a timestamped unique name.
// By default only frames with detections are saved, with the detections
// drawn on.  The record query parameter switches to record mode: the frame
// is saved untouched and the detections are written to a sidecar text file,
// labelled by class name (record=name) or numeric class id (record=id).
// The always flag saves every frame, the scale parameter downscales saved
// images
const DirScheme = "folder"

func init() {
	registry.Register(DirScheme, func(loc *detpipe.Locator) (Sink, error) {
		return NewDirSink(loc)
	})
}

// recordMode selects how detections are persisted alongside a frame
type recordMode int

const (
	// recordDraw paints detections onto the saved image
	recordDraw recordMode = iota
	// recordID writes a sidecar file keyed by numeric class id
	recordID
	// recordName writes a sidecar file keyed by class name
	recordName
)

// DirSink archives frames into a date layered directory tree
type DirSink struct {
	root   string
	mode   recordMode
	always bool
	scale  float64

	// counter disambiguates frames saved within the same second.  Guarded
	// by mu, the sink may be shared between workers later
	mu      sync.Mutex
	counter uint16
}

// NewDirSink creates a sink archiving into the directory named by the
// locator path
func NewDirSink(loc *detpipe.Locator) (*DirSink, error) {

	if loc.Path == "" {
		return nil, fmt.Errorf("folder locator %s has no directory path", loc)
	}

	mode := recordDraw

	if loc.HasQuery("record") {
		if loc.Query("record") == "id" {
			mode = recordID
		} else {
			mode = recordName
		}
	}

	scale, err := loc.QueryFloat("scale", 1)

	if err != nil {
		return nil, err
	}

	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("folder locator %s scale must be in (0,1]", loc)
	}

	return &DirSink{
		root:   loc.Path,
		mode:   mode,
		always: loc.HasQuery("always"),
		scale:  scale,
	}, nil
}

// nextID increments the wrapping frame counter
func (s *DirSink) nextID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

// framePath creates the date directory for now and returns the image path
// inside it
func (s *DirSink) framePath() (string, error) {

	now := time.Now().UTC()

	dir := filepath.Join(s.root,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
	)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating archive directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s-%04X-%s.jpg",
		now.Format("15-04-05"), s.nextID(), uuid.NewString()[:8])

	return filepath.Join(dir, name), nil
}

// Write archives the frame if it has detections or the sink saves always
func (s *DirSink) Write(frame *detpipe.Frame, detections result.DetectResult) error {

	if detections.Empty() && !s.always {
		return nil
	}

	path, err := s.framePath()

	if err != nil {
		return err
	}

	var img image.Image

	if s.mode == recordDraw {
		img, err = s.annotatedImage(frame, detections)
	} else {
		img = frameImage(frame)
	}

	if err != nil {
		return err
	}

	if err := s.saveJPEG(path, img); err != nil {
		return err
	}

	if s.mode != recordDraw {
		return s.writeRecord(path, detections)
	}

	return nil
}

// annotatedImage draws the detections and converts the result back into a
// Go image
func (s *DirSink) annotatedImage(frame *detpipe.Frame,
	detections result.DetectResult) (image.Image, error) {

	mat, err := annotate(frame, detections)

	if err != nil {
		return nil, err
	}

	defer mat.Close()

	img, err := mat.ToImage()

	if err != nil {
		return nil, fmt.Errorf("error converting annotated frame: %w", err)
	}

	return img, nil
}

// frameImage wraps the raw frame pixels as an RGBA image without drawing
func frameImage(frame *detpipe.Frame) image.Image {

	src := frame.Interleaved()
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))

	for i := 0; i < frame.Width*frame.Height; i++ {
		img.Pix[i*4+0] = src[i*3+0]
		img.Pix[i*4+1] = src[i*3+1]
		img.Pix[i*4+2] = src[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}

	return img
}

// saveJPEG downscales the image when scale is below one and encodes it
func (s *DirSink) saveJPEG(path string, img image.Image) error {

	if s.scale < 1 {
		bounds := img.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0,
			int(float64(bounds.Dx())*s.scale),
			int(float64(bounds.Dy())*s.scale)))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds,
			xdraw.Src, nil)
		img = dst
	}

	f, err := os.Create(path)

	if err != nil {
		return fmt.Errorf("error creating archive file %s: %w", path, err)
	}

	if err := jpeg.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("error encoding archive file %s: %w", path, err)
	}

	return f.Close()
}

// writeRecord stores the detections in a sidecar text file next to the
// image, one detection per line
func (s *DirSink) writeRecord(imagePath string, detections result.DetectResult) error {

	var b strings.Builder

	for _, det := range detections.Boxes {

		label := fmt.Sprintf("%d", det.Class)

		if s.mode == recordName {
			label = detpipe.ClassName(detpipe.COCOLabels, det.Class)
		}

		fmt.Fprintf(&b, "%s %.4f %.4f %.4f %.4f %.4f\n",
			label, det.Score, det.Box[0], det.Box[1], det.Box[2], det.Box[3])
	}

	path := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("error writing record file %s: %w", path, err)
	}

	return nil
}

// Close is a no-op, every archived frame is complete when written
func (s *DirSink) Close() error {
	return nil
}
