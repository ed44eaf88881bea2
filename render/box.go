package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"gocv.io/x/gocv"
)

// boxLabel holds the coordinates and text of a detection box label so
// labels can be painted over all boxes in a second pass
type boxLabel struct {
	// rect is the label background rectangle
	rect image.Rectangle
	// clr is the color of the label background
	clr color.RGBA
	// text is the label text
	text string
	// textPos is the starting position the text is drawn at
	textPos image.Point
}

// DetectionBoxes draws the bounding box of each detection onto the given
// image Mat. Box coordinates are normalized to the range 0 to 1 and get
// scaled to the image dimensions. Each class is assigned a color from the
// palette by modulo and labelled with its class name and confidence score.
func DetectionBoxes(img *gocv.Mat, detections []result.DetectBox,
	classNames []string, font Font, lineThickness int) {

	if lineThickness < 1 {
		lineThickness = 1
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	labels := make([]boxLabel, 0, len(detections))

	for _, det := range detections {

		useClr := classColors[det.Class%len(classColors)]

		rect := image.Rect(
			int(det.Box[0]*imgW),
			int(det.Box[1]*imgH),
			int(det.Box[2]*imgW),
			int(det.Box[3]*imgH),
		)

		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := fmt.Sprintf("%s %.2f",
			detpipe.ClassName(classNames, det.Class), det.Score)

		textSize := gocv.GetTextSize(text, font.Face, font.Scale,
			font.Thickness)

		// position the label above the box, or inside it when the box
		// touches the top edge of the image
		labelTop := rect.Min.Y - textSize.Y - font.BottomPad - font.TopPad
		if labelTop < 0 {
			labelTop = rect.Min.Y
		}

		labelRect := image.Rect(
			rect.Min.X,
			labelTop,
			rect.Min.X+textSize.X+font.LeftPad+font.RightPad,
			labelTop+textSize.Y+font.TopPad+font.BottomPad,
		)

		textPos := image.Pt(
			labelRect.Min.X+font.LeftPad,
			labelRect.Max.Y-font.BottomPad,
		)

		labels = append(labels, boxLabel{
			rect:    labelRect,
			clr:     useClr,
			text:    text,
			textPos: textPos,
		})
	}

	// draw labels after all boxes so nearby boxes don't paint over
	// label text
	for _, label := range labels {
		gocv.Rectangle(img, label.rect, label.clr, -1)
		gocv.PutTextWithParams(img, label.text, label.textPos, font.Face,
			font.Scale, font.Color, font.Thickness, font.LineType, false)
	}
}
