package model

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// YOLOScheme is the locator scheme for anchor free YOLO models run on the
// ONNX Runtime, eg yolo:///models/det.onnx?width=640&height=640&classes=80
const YOLOScheme = "yolo"

var (
	ortInit    sync.Once
	ortInitErr error
)

// initRuntime loads the ONNX Runtime shared library once per process
func initRuntime(libPath string) error {

	ortInit.Do(func() {

		if libPath == "" {
			libPath = defaultSharedLibPath()
		}

		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()

		if ortInitErr == nil {
			logrus.WithField("lib", libPath).Debug("onnxruntime environment initialized")
		}
	})

	return ortInitErr
}

// defaultSharedLibPath returns the ONNX Runtime shared library path for the
// current platform, overridable with the ONNXRUNTIME_SHARED_LIBRARY_PATH
// environment variable or the lib locator query parameter
func defaultSharedLibPath() string {

	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}

	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// ONNXYOLO runs an anchor free YOLO detection model through the ONNX Runtime
// and decodes its raw output with the postprocess package.  All tensor
// counts and shapes are validated when the model is loaded, Infer assumes
// they hold
type ONNXYOLO struct {
	session *ort.AdvancedSession
	// input is the preallocated NCHW float32 input tensor, refilled per frame
	input *ort.Tensor[float32]
	// outputs are preallocated in the order the model declares them
	outputs []*ort.Tensor[float32]
	// processor decodes and suppresses the raw outputs
	processor *postprocess.YOLO
	width     int
	height    int
	closeOnce sync.Once
}

// newONNXYOLO loads the model named by the locator path.  Recognized query
// parameters: width, height (input dimensions, default 640), classes
// (default 80) and lib (ONNX Runtime shared library path)
func newONNXYOLO(loc *detpipe.Locator, cfg Config) (detpipe.Model, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := initRuntime(loc.Query("lib")); err != nil {
		return nil, fmt.Errorf("error initializing onnxruntime: %w", err)
	}

	width, err := loc.QueryInt("width", 640)

	if err != nil {
		return nil, err
	}

	height, err := loc.QueryInt("height", 640)

	if err != nil {
		return nil, err
	}

	classes, err := loc.QueryInt("classes", 80)

	if err != nil {
		return nil, err
	}

	params := postprocess.YOLOCOCOParams()
	params.BoxThreshold = cfg.BoxThreshold
	params.NMSThreshold = cfg.NMSThreshold
	params.ObjectClassNum = classes
	params.InputWidth = float32(width)
	params.InputHeight = float32(height)
	params.Heads = headTable(width, height)

	processor := postprocess.NewYOLO(params)

	m := &ONNXYOLO{
		processor: processor,
		width:     width,
		height:    height,
	}

	if err := m.load(loc.Path, processor.OutputCount()); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"model":   loc.Path,
		"input":   fmt.Sprintf("%dx%d", width, height),
		"classes": classes,
		"outputs": processor.OutputCount(),
	}).Info("model loaded")

	return m, nil
}

// headTable derives the three standard detection head resolutions from the
// input dimensions, strides 8, 16 and 32
func headTable(width, height int) []postprocess.HeadSpec {

	strides := []int{8, 16, 32}
	heads := make([]postprocess.HeadSpec, len(strides))

	for i, s := range strides {
		heads[i] = postprocess.HeadSpec{
			Rows:   height / s,
			Cols:   width / s,
			Stride: float32(s),
		}
	}

	return heads
}

// load creates the ONNX session with preallocated input and output tensors.
// The input/output counts and output shapes reported by the runtime are
// checked against what the head table needs, a mismatch fails the load so
// per frame inference never re-validates
func (m *ONNXYOLO) load(path string, wantOutputs int) error {

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model file %s: %w", path, err)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(path)

	if err != nil {
		return fmt.Errorf("error reading model metadata from %s: %w", path, err)
	}

	if len(inputInfo) != 1 {
		return fmt.Errorf("model %s: expected 1 input tensor, model declares %d",
			path, len(inputInfo))
	}

	if len(outputInfo) != wantOutputs {
		return fmt.Errorf("model %s: expected %d output tensors (2 per head), model declares %d",
			path, wantOutputs, len(outputInfo))
	}

	for _, info := range outputInfo {
		for _, d := range info.Dimensions {
			if d <= 0 {
				return fmt.Errorf("model %s: output %s has dynamic dimension, fixed shapes required",
					path, info.Name)
			}
		}
	}

	if err := validateHeadShapes(m.processor.Params.Heads,
		m.processor.Params.ObjectClassNum, outputInfo); err != nil {
		return fmt.Errorf("model %s: %w", path, err)
	}

	inputShape := ort.NewShape(1, detpipe.RGBChannels, int64(m.height), int64(m.width))

	m.input, err = ort.NewTensor(inputShape,
		make([]float32, detpipe.RGBChannels*m.width*m.height))

	if err != nil {
		return fmt.Errorf("error creating input tensor: %w", err)
	}

	outputNames := make([]string, len(outputInfo))
	outputValues := make([]ort.ArbitraryTensor, len(outputInfo))
	m.outputs = make([]*ort.Tensor[float32], len(outputInfo))

	for i, info := range outputInfo {

		outputNames[i] = info.Name

		t, err := ort.NewEmptyTensor[float32](info.Dimensions)

		if err != nil {
			m.releaseTensors()
			return fmt.Errorf("error creating output tensor %s: %w", info.Name, err)
		}

		m.outputs[i] = t
		outputValues[i] = t
	}

	m.session, err = ort.NewAdvancedSession(path,
		[]string{inputInfo[0].Name}, outputNames,
		[]ort.ArbitraryTensor{m.input}, outputValues, nil)

	if err != nil {
		m.releaseTensors()
		return fmt.Errorf("error creating onnx session for %s: %w", path, err)
	}

	return nil
}

// validateHeadShapes checks the declared element count of every output
// tensor pair against the head table: a head of N spatial cells needs one
// 4*N regression tensor and one classes*N classification tensor, in either
// order.  A model passing the count check but carrying the wrong shapes
// would otherwise load cleanly and then skip every head on every frame
func validateHeadShapes(heads []postprocess.HeadSpec, classes int,
	outputInfo []ort.InputOutputInfo) error {

	for i, head := range heads {

		spatial := int64(head.Rows * head.Cols)
		regWant := 4 * spatial
		clsWant := int64(classes) * spatial

		a := elementCount(outputInfo[i*2].Dimensions)
		b := elementCount(outputInfo[i*2+1].Dimensions)

		if (a == regWant && b == clsWant) || (a == clsWant && b == regWant) {
			continue
		}

		return fmt.Errorf("head %d (%dx%d): outputs %q (%d elements) and %q (%d elements) "+
			"match neither %d regression nor %d classification elements",
			i, head.Cols, head.Rows,
			outputInfo[i*2].Name, a, outputInfo[i*2+1].Name, b,
			regWant, clsWant)
	}

	return nil
}

// elementCount multiplies out a declared tensor shape
func elementCount(dims ort.Shape) int64 {

	n := int64(1)

	for _, d := range dims {
		n *= d
	}

	return n
}

// Infer runs one frame through the model and returns the decoded detections
func (m *ONNXYOLO) Infer(frame *detpipe.Frame) (result.DetectResult, error) {

	if frame.Width != m.width || frame.Height != m.height {
		return result.DetectResult{}, fmt.Errorf(
			"frame size %dx%d does not match model input %dx%d",
			frame.Width, frame.Height, m.width, m.height)
	}

	// fill the input tensor with normalized planar pixel data
	data := m.input.GetData()
	planar := frame.Planar()

	for i, b := range planar {
		data[i] = float32(b) / 255.0
	}

	if err := m.session.Run(); err != nil {
		return result.DetectResult{}, fmt.Errorf("inference failed: %w", err)
	}

	// borrow the output buffers for the duration of the decode
	outputs := &detpipe.Outputs{
		Tensors: make([]detpipe.Tensor, len(m.outputs)),
	}

	for i, t := range m.outputs {
		outputs.Tensors[i] = detpipe.Tensor{Data: t.GetData()}
	}

	return m.processor.DetectObjects(outputs), nil
}

// InputWidth returns the fixed model input width in pixels
func (m *ONNXYOLO) InputWidth() int {
	return m.width
}

// InputHeight returns the fixed model input height in pixels
func (m *ONNXYOLO) InputHeight() int {
	return m.height
}

// Close destroys the session and its tensors
func (m *ONNXYOLO) Close() error {

	m.closeOnce.Do(func() {
		if m.session != nil {
			m.session.Destroy()
		}
		m.releaseTensors()
	})

	return nil
}

func (m *ONNXYOLO) releaseTensors() {

	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}

	for _, t := range m.outputs {
		if t != nil {
			t.Destroy()
		}
	}

	m.outputs = nil
}
