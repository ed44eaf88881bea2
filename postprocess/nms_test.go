package postprocess

import (
	"testing"

	"github.com/edgecv/go-detpipe/postprocess/result"
)

func box(class int, score float32, coords [4]float32) result.DetectBox {
	return result.DetectBox{Class: class, Score: score, Box: coords}
}

func TestSuppressScoreOrdering(t *testing.T) {

	candidates := []result.DetectBox{
		box(0, 0.3, [4]float32{0.0, 0.0, 0.1, 0.1}),
		box(1, 0.9, [4]float32{0.2, 0.2, 0.3, 0.3}),
		box(2, 0.6, [4]float32{0.4, 0.4, 0.5, 0.5}),
	}

	kept := Suppress(candidates, 0.45)

	if len(kept) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(kept))
	}

	for i := 1; i < len(kept); i++ {
		if kept[i].Score > kept[i-1].Score {
			t.Errorf("output not sorted by descending score at index %d: %f > %f",
				i, kept[i].Score, kept[i-1].Score)
		}
	}
}

func TestSuppressSameClassOverlap(t *testing.T) {

	// two heavily overlapping boxes of the same class, lower score loses
	candidates := []result.DetectBox{
		box(5, 0.7, [4]float32{0.10, 0.10, 0.50, 0.50}),
		box(5, 0.9, [4]float32{0.11, 0.11, 0.51, 0.51}),
	}

	kept := Suppress(candidates, 0.45)

	if len(kept) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(kept))
	}

	if kept[0].Score != 0.9 {
		t.Errorf("wrong survivor, expected score 0.9, got %f", kept[0].Score)
	}
}

func TestSuppressClassIsolation(t *testing.T) {

	// identical boxes but different classes must never suppress each other
	candidates := []result.DetectBox{
		box(0, 0.9, [4]float32{0.1, 0.1, 0.5, 0.5}),
		box(1, 0.8, [4]float32{0.1, 0.1, 0.5, 0.5}),
		box(2, 0.7, [4]float32{0.1, 0.1, 0.5, 0.5}),
	}

	kept := Suppress(candidates, 0.45)

	if len(kept) != 3 {
		t.Fatalf("expected 3 survivors across classes, got %d", len(kept))
	}
}

func TestSuppressIdempotence(t *testing.T) {

	candidates := []result.DetectBox{
		box(0, 0.9, [4]float32{0.10, 0.10, 0.50, 0.50}),
		box(0, 0.8, [4]float32{0.12, 0.12, 0.52, 0.52}),
		box(0, 0.7, [4]float32{0.60, 0.60, 0.80, 0.80}),
		box(1, 0.6, [4]float32{0.10, 0.10, 0.50, 0.50}),
	}

	first := Suppress(candidates, 0.45)
	second := Suppress(first, 0.45)

	if len(first) != len(second) {
		t.Fatalf("suppression not idempotent: first pass %d, second pass %d",
			len(first), len(second))
	}

	for i := range first {
		if first[i] != second[i] {
			t.Errorf("element %d changed on second pass: %+v vs %+v",
				i, first[i], second[i])
		}
	}
}

func TestSuppressIoUThresholdBoundary(t *testing.T) {

	// construct two same class boxes with IoU exactly 0.5: b is the left
	// half of a extended left by an equal area, overlap 0.5 of each area
	// and union 1.5x, giving 0.25/0.75... instead use nested boxes:
	// a = [0,0,1,1] area 1, b = [0,0,1,0.5] area 0.5, intersection 0.5,
	// union 1.0, IoU exactly 0.5
	a := box(0, 0.9, [4]float32{0.0, 0.0, 1.0, 1.0})
	b := box(0, 0.8, [4]float32{0.0, 0.0, 1.0, 0.5})

	if got := iou(a.Box, b.Box); got != 0.5 {
		t.Fatalf("test construction wrong, expected IoU 0.5, got %f", got)
	}

	// equal-to-threshold overlap must suppress
	kept := Suppress([]result.DetectBox{a, b}, 0.5)

	if len(kept) != 1 {
		t.Fatalf("IoU equal to threshold must suppress, got %d survivors", len(kept))
	}

	// just above the overlap the lower scoring box survives
	kept = Suppress([]result.DetectBox{a, b}, 0.50001)

	if len(kept) != 2 {
		t.Fatalf("IoU below threshold must keep both, got %d survivors", len(kept))
	}
}

func TestSuppressEmptyInput(t *testing.T) {

	kept := Suppress(nil, 0.45)

	if len(kept) != 0 {
		t.Errorf("expected empty result for empty input, got %d", len(kept))
	}
}

func TestSuppressStableTieBreak(t *testing.T) {

	// equal scores keep their original order
	first := box(0, 0.5, [4]float32{0.0, 0.0, 0.1, 0.1})
	second := box(1, 0.5, [4]float32{0.5, 0.5, 0.6, 0.6})

	kept := Suppress([]result.DetectBox{first, second}, 0.45)

	if len(kept) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(kept))
	}

	if kept[0].Class != 0 || kept[1].Class != 1 {
		t.Errorf("tie break not stable: got classes %d, %d", kept[0].Class, kept[1].Class)
	}
}
