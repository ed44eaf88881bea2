package postprocess

import (
	"strings"
	"testing"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
)

// twoHeadParams is a small synthetic model used throughout these tests:
// two heads of 2x2 and 1x1 cells with strides 8 and 16 on a 16x16 input
// and 2 object classes
func twoHeadParams() YOLOParams {
	return YOLOParams{
		BoxThreshold:    0.5,
		NMSThreshold:    0.45,
		ObjectClassNum:  2,
		MaxObjectNumber: 64,
		InputWidth:      16,
		InputHeight:     16,
		Heads: []HeadSpec{
			{Rows: 2, Cols: 2, Stride: 8},
			{Rows: 1, Cols: 1, Stride: 16},
		},
	}
}

const quiet = float32(-10.0) // sigmoid(-10) ~ 0.000045, well under threshold

// twoHeadOutputs builds raw tensors where exactly one cell per head exceeds
// the 0.5 box threshold:
//
// head 0, cell (row 0, col 1): class 1 logit 2.0, box offsets
// cx=0.5 cy=0.25 cw=0.25 ch=0.5 decoding to pixels [8, 2, 14, 8],
// normalized [0.5, 0.125, 0.875, 0.5]
//
// head 1, cell (0, 0): class 0 logit 1.0, offsets 0.25 each decoding to
// pixels [4, 4, 12, 12], normalized [0.25, 0.25, 0.75, 0.75]
func twoHeadOutputs() *detpipe.Outputs {

	// head 0: spatial 4, reg 16 elements, cls 8 elements
	reg0 := make([]float32, 16)
	reg0[1] = 0.5    // cx plane, cell 1
	reg0[4+1] = 0.25 // cy plane
	reg0[8+1] = 0.25 // cw plane
	reg0[12+1] = 0.5 // ch plane

	cls0 := []float32{
		quiet, quiet, quiet, quiet, // class 0 plane
		quiet, 2.0, quiet, quiet, // class 1 plane, cell 1 hot
	}

	// head 1: spatial 1, reg 4 elements, cls 2 elements
	reg1 := []float32{0.25, 0.25, 0.25, 0.25}
	cls1 := []float32{1.0, quiet}

	return &detpipe.Outputs{Tensors: []detpipe.Tensor{
		{Name: "reg_8", Data: reg0},
		{Name: "cls_8", Data: cls0},
		{Name: "reg_16", Data: reg1},
		{Name: "cls_16", Data: cls1},
	}}
}

func TestDetectObjectsEndToEnd(t *testing.T) {

	y := NewYOLO(twoHeadParams())
	res := y.DetectObjects(twoHeadOutputs())

	if res.Count() != 2 {
		t.Fatalf("expected 2 detections, got %d", res.Count())
	}

	// ordered by descending score: head 0 box first, sigmoid(2.0) > sigmoid(1.0)
	first := res.Boxes[0]
	second := res.Boxes[1]

	if first.Class != 1 {
		t.Errorf("first detection: expected class 1, got %d", first.Class)
	}

	if !almostEqual(first.Score, 0.8807971, 1e-5) {
		t.Errorf("first detection: expected score 0.880797, got %f", first.Score)
	}

	wantFirst := [4]float32{0.5, 0.125, 0.875, 0.5}

	for i := range wantFirst {
		if !almostEqual(first.Box[i], wantFirst[i], 1e-6) {
			t.Errorf("first detection box[%d]: expected %f, got %f",
				i, wantFirst[i], first.Box[i])
		}
	}

	if second.Class != 0 {
		t.Errorf("second detection: expected class 0, got %d", second.Class)
	}

	if !almostEqual(second.Score, 0.7310586, 1e-5) {
		t.Errorf("second detection: expected score 0.731059, got %f", second.Score)
	}

	wantSecond := [4]float32{0.25, 0.25, 0.75, 0.75}

	for i := range wantSecond {
		if !almostEqual(second.Box[i], wantSecond[i], 1e-6) {
			t.Errorf("second detection box[%d]: expected %f, got %f",
				i, wantSecond[i], second.Box[i])
		}
	}

	// detection IDs are assigned and unique
	if first.ID == 0 || second.ID == 0 || first.ID == second.ID {
		t.Errorf("expected unique non zero IDs, got %d and %d", first.ID, second.ID)
	}
}

func TestDetectObjectsSwappedTensorOrder(t *testing.T) {

	// swap the reg/cls pair of head 1, the decoder must identify tensors by
	// element count, not position
	outputs := twoHeadOutputs()
	outputs.Tensors[2], outputs.Tensors[3] = outputs.Tensors[3], outputs.Tensors[2]

	y := NewYOLO(twoHeadParams())
	res := y.DetectObjects(outputs)

	if res.Count() != 2 {
		t.Fatalf("expected 2 detections with swapped tensors, got %d", res.Count())
	}
}

func TestDetectObjectsSkipsBadHead(t *testing.T) {

	// corrupt head 0 so neither tensor length matches, head 1 must still
	// contribute
	outputs := twoHeadOutputs()
	outputs.Tensors[0] = detpipe.Tensor{Name: "reg_8", Data: make([]float32, 7)}

	y := NewYOLO(twoHeadParams())
	res := y.DetectObjects(outputs)

	if res.Count() != 1 {
		t.Fatalf("expected 1 detection from surviving head, got %d", res.Count())
	}

	if res.Boxes[0].Class != 0 {
		t.Errorf("expected head 1 detection of class 0, got class %d", res.Boxes[0].Class)
	}
}

func TestDetectObjectsScoreThresholdStrict(t *testing.T) {

	// a candidate whose score equals the threshold exactly must be excluded.
	// sigmoid(0) == 0.5, set the box threshold to 0.5
	params := twoHeadParams()
	outputs := twoHeadOutputs()

	// head 1 class 0 logit 0.0 -> score exactly 0.5
	outputs.Tensors[3] = detpipe.Tensor{Name: "cls_16", Data: []float32{0.0, quiet}}

	y := NewYOLO(params)
	res := y.DetectObjects(outputs)

	if res.Count() != 1 {
		t.Fatalf("score equal to threshold must be excluded, got %d detections", res.Count())
	}
}

func TestDetectObjectsCoordinateInvariant(t *testing.T) {

	// push the head 0 box offsets far out of range, the decoded box is
	// clamped to the input and must still satisfy the coordinate invariant
	outputs := twoHeadOutputs()
	reg0 := outputs.Tensors[0].Data
	reg0[1] = 5.0   // cx, pushes x_min to -28 before clamping
	reg0[8+1] = 9.0 // cw, pushes x_max to 84 before clamping

	y := NewYOLO(twoHeadParams())
	res := y.DetectObjects(outputs)

	for _, d := range res.Boxes {
		if d.Box[0] < 0 || d.Box[1] < 0 || d.Box[2] > 1 || d.Box[3] > 1 {
			t.Errorf("box outside unit range: %v", d.Box)
		}
		if d.Box[0] > d.Box[2] || d.Box[1] > d.Box[3] {
			t.Errorf("box min exceeds max: %v", d.Box)
		}
	}
}

func TestDetectObjectsDegenerateBoxDropped(t *testing.T) {

	// offsets that collapse the whole box behind the left edge, after
	// clamping there is no area left so the candidate is dropped
	outputs := twoHeadOutputs()
	reg1 := outputs.Tensors[2].Data
	reg1[0] = 2.0  // cx: x_min = (0.5-2.0)*16 = -24 -> clamped 0
	reg1[2] = -1.0 // cw: x_max = (0.5-1.0)*16 = -8  -> clamped 0

	y := NewYOLO(twoHeadParams())
	res := y.DetectObjects(outputs)

	if res.Count() != 1 {
		t.Fatalf("degenerate box must be dropped, got %d detections", res.Count())
	}
}

func TestDetectObjectsMaxObjectNumber(t *testing.T) {

	params := twoHeadParams()
	params.MaxObjectNumber = 1

	y := NewYOLO(params)
	res := y.DetectObjects(twoHeadOutputs())

	if res.Count() != 1 {
		t.Fatalf("expected result capped at 1, got %d", res.Count())
	}

	// the cap keeps the highest scoring detection
	if res.Boxes[0].Class != 1 {
		t.Errorf("cap kept the wrong detection, class %d", res.Boxes[0].Class)
	}
}

func TestDetectObjectsPanicsOnShortOutputs(t *testing.T) {

	defer func() {
		r := recover()

		if r == nil {
			t.Fatal("expected panic for output collection shorter than head table")
		}

		if !strings.Contains(r.(string), "head table") {
			t.Errorf("unexpected panic message: %v", r)
		}
	}()

	y := NewYOLO(twoHeadParams())
	y.DetectObjects(&detpipe.Outputs{Tensors: []detpipe.Tensor{{Data: []float32{1}}}})
}

func TestDetectObjectsNoDetections(t *testing.T) {

	outputs := twoHeadOutputs()

	// silence both hot cells
	outputs.Tensors[1].Data[4+1] = quiet
	outputs.Tensors[3].Data[0] = quiet

	y := NewYOLO(twoHeadParams())
	res := y.DetectObjects(outputs)

	if !res.Empty() {
		t.Fatalf("expected no detections, got %d", res.Count())
	}

	var _ result.DetectResult = res
}
