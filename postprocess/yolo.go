package postprocess

import (
	"fmt"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/sirupsen/logrus"
)

// HeadSpec describes one detection head of an anchor free multi scale
// detector.  Each head predicts at its own grid resolution, the stride
// converts grid cell units back to input pixels
type HeadSpec struct {
	// Rows and Cols are the spatial grid resolution of the head
	Rows int
	Cols int
	// Stride is the ratio between model input resolution and the head grid
	Stride float32
}

// YOLO defines the struct for anchor free YOLO model inference post
// processing.  It decodes the raw regression and classification tensors of
// every head and runs class aware non-maximum suppression over the combined
// candidates
type YOLO struct {
	// Params are the Model configuration parameters
	Params YOLOParams
	// idGen is a counter that increments and provides the next number
	// for each detection result ID
	idGen *result.IDGenerator
}

// YOLOParams defines the struct containing the YOLO parameters to use
// for post processing operations
type YOLOParams struct {
	// BoxThreshold is the minimum probability score required for a bounding
	// box region to be considered for processing.  The comparison is strict,
	// a score exactly equal to the threshold is excluded
	BoxThreshold float32
	// NMSThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes for both to be kept
	NMSThreshold float32
	// ObjectClassNum is the number of different object classes the Model has
	// been trained with
	ObjectClassNum int
	// MaxObjectNumber is the maximum number of objects detected that can be
	// returned
	MaxObjectNumber int
	// InputWidth and InputHeight are the model input dimensions in pixels,
	// decoded boxes are normalized against them
	InputWidth  float32
	InputHeight float32
	// Heads is the fixed head table of the model, ordered to match the
	// pairing of output tensors (two tensors per head)
	Heads []HeadSpec
}

// YOLOCOCOParams returns an instance of YOLOParams configured with default
// values for a Model trained on the COCO dataset featuring:
// - Object Classes: 80
// - Box Threshold: 0.5
// - NMS Threshold: 0.45
// - Maximum Object Number: 64
// - Input Size: 640x640 with heads at 80x80, 40x40 and 20x20
func YOLOCOCOParams() YOLOParams {
	return YOLOParams{
		BoxThreshold:    0.5,
		NMSThreshold:    0.45,
		ObjectClassNum:  80,
		MaxObjectNumber: 64,
		InputWidth:      640,
		InputHeight:     640,
		Heads: []HeadSpec{
			{Rows: 80, Cols: 80, Stride: 8},
			{Rows: 40, Cols: 40, Stride: 16},
			{Rows: 20, Cols: 20, Stride: 32},
		},
	}
}

// NewYOLO returns an instance of the YOLO post processor
func NewYOLO(p YOLOParams) *YOLO {
	return &YOLO{
		Params: p,
		idGen:  result.NewIDGenerator(),
	}
}

// OutputCount returns the number of output tensors the head table requires,
// two per head.  Model loaders validate this against the count reported by
// the inference runtime before the first frame is processed
func (y *YOLO) OutputCount() int {
	return len(y.Params.Heads) * 2
}

// DetectObjects takes the raw inference outputs, decodes every head and runs
// suppression, returning detections ordered by descending score.  It is
// deterministic and performs no I/O.
//
// An individual head whose tensors cannot be matched is skipped with a log
// entry and the remaining heads still contribute, but an output collection
// shorter than the head table is a model mismatch the loader should have
// caught, so it panics
func (y *YOLO) DetectObjects(outputs *detpipe.Outputs) result.DetectResult {

	if outputs.Count() < y.OutputCount() {
		panic(fmt.Sprintf("model outputs %d tensors, head table needs %d: "+
			"loader validation was skipped", outputs.Count(), y.OutputCount()))
	}

	candidates := make([]result.DetectBox, 0)

	for headIdx, head := range y.Params.Heads {

		reg, cls, ok := y.matchHeadTensors(headIdx, head, outputs)

		if !ok {
			// degrade to partial results from the remaining heads
			continue
		}

		candidates = y.decodeHead(head, reg, cls, candidates)
	}

	kept := Suppress(candidates, y.Params.NMSThreshold)

	if len(kept) > y.Params.MaxObjectNumber {
		kept = kept[:y.Params.MaxObjectNumber]
	}

	for i := range kept {
		kept[i].ID = y.idGen.GetNext()
	}

	return result.DetectResult{Boxes: kept}
}

// matchHeadTensors resolves which of the head's two output tensors is the
// regression output and which the classification output.  Runtimes do not
// guarantee a stable order, so the tensors are identified by their element
// counts: 4*N for regression and ObjectClassNum*N for classification for a
// head of N spatial cells.  When neither assignment fits the head is
// unusable and gets skipped
func (y *YOLO) matchHeadTensors(headIdx int, head HeadSpec,
	outputs *detpipe.Outputs) (reg []float32, cls []float32, ok bool) {

	spatial := head.Rows * head.Cols
	regExpected := 4 * spatial
	clsExpected := y.Params.ObjectClassNum * spatial

	t1, err1 := outputs.Get(headIdx * 2)
	t2, err2 := outputs.Get(headIdx*2 + 1)

	if err1 != nil || err2 != nil {
		logrus.WithField("head", headIdx).Warn("missing output tensors, skipping head")
		return nil, nil, false
	}

	switch {
	case t1.Len() == regExpected && t2.Len() == clsExpected:
		return t1.Data, t2.Data, true

	case t1.Len() == clsExpected && t2.Len() == regExpected:
		return t2.Data, t1.Data, true

	default:
		logrus.WithFields(logrus.Fields{
			"head":         headIdx,
			"tensor1":      t1.Len(),
			"tensor2":      t2.Len(),
			"expected_reg": regExpected,
			"expected_cls": clsExpected,
		}).Warn("output tensor sizes match neither regression nor classification, skipping head")
		return nil, nil, false
	}
}

// decodeHead produces a candidate for every grid cell of one head whose best
// class score exceeds the box threshold.  The regression tensor holds the
// four box offsets channel major (cx, cy, cw, ch planes), the classification
// tensor holds one logit plane per class.
//
// Boxes are decoded anchor free from the cell center, scaled by the head
// stride and clamped to the model input.  Out of range boxes are clamped and
// kept rather than rejected (see DESIGN.md), only boxes left with no area
// after clamping are dropped
func (y *YOLO) decodeHead(head HeadSpec, reg, cls []float32,
	items []result.DetectBox) []result.DetectBox {

	spatial := head.Rows * head.Cols

	for row := 0; row < head.Rows; row++ {
		for col := 0; col < head.Cols; col++ {

			idx := row*head.Cols + col

			// best class by raw logit, sigmoid is monotonic so the argmax
			// carries over.  First class reaching the maximum wins
			maxLogit := cls[idx]
			classID := 0

			for c := 1; c < y.Params.ObjectClassNum; c++ {
				if logit := cls[c*spatial+idx]; logit > maxLogit {
					maxLogit = logit
					classID = c
				}
			}

			score := sigmoid(maxLogit)

			if score <= y.Params.BoxThreshold {
				continue
			}

			cx := reg[idx]
			cy := reg[spatial+idx]
			cw := reg[2*spatial+idx]
			ch := reg[3*spatial+idx]

			gridX := float32(col) + 0.5
			gridY := float32(row) + 0.5

			xMin := clamp((gridX-cx)*head.Stride, 0, y.Params.InputWidth)
			yMin := clamp((gridY-cy)*head.Stride, 0, y.Params.InputHeight)
			xMax := clamp((gridX+cw)*head.Stride, 0, y.Params.InputWidth)
			yMax := clamp((gridY+ch)*head.Stride, 0, y.Params.InputHeight)

			if xMin >= xMax || yMin >= yMax {
				// clamping collapsed the box
				continue
			}

			items = append(items, result.DetectBox{
				Class: classID,
				Score: score,
				Box: [4]float32{
					xMin / y.Params.InputWidth,
					yMin / y.Params.InputHeight,
					xMax / y.Params.InputWidth,
					yMax / y.Params.InputHeight,
				},
			})
		}
	}

	return items
}
