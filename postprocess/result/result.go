package result

// DetectBox is a single detected object.  Box coordinates are normalized to
// the model input, so every component lies in [0,1] with Box[0] <= Box[2]
// and Box[1] <= Box[3]
type DetectBox struct {
	// Class is the line number in the labels file the Model was trained on
	// defining the Class of the detected object
	Class int
	// Score is the confidence score of the object detected
	Score float32
	// Box is the bounding box as [x_min, y_min, x_max, y_max] in
	// normalized coordinates
	Box [4]float32
	// ID is a unique ID assigned to the detection result
	ID int64
}

// DetectResult holds all detections surviving suppression for one frame,
// ordered by descending score.  It is created fresh per inference call and
// consumed by a single render call
type DetectResult struct {
	Boxes []DetectBox
}

// Empty reports whether the frame had no detections
func (r DetectResult) Empty() bool {
	return len(r.Boxes) == 0
}

// Count returns the number of detections
func (r DetectResult) Count() int {
	return len(r.Boxes)
}
