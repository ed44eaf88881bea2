package detpipe

import (
	"bytes"
	"testing"
)

func TestNewFrameLengthValidation(t *testing.T) {

	tests := []struct {
		name    string
		size    int
		width   int
		height  int
		wantErr bool
	}{
		{"exact match", 3 * 4 * 2, 4, 2, false},
		{"too short", 3*4*2 - 1, 4, 2, true},
		{"too long", 3*4*2 + 1, 4, 2, true},
		{"empty buffer zero dims", 0, 0, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			_, err := NewFrame(make([]byte, tc.size), tc.width, tc.height,
				LayoutInterleaved)

			if tc.wantErr && err == nil {
				t.Error("expected error, got none")
			}

			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFrameLayoutConversion(t *testing.T) {

	// 2x1 frame, two pixels: (1,2,3) and (4,5,6)
	interleaved := []byte{1, 2, 3, 4, 5, 6}
	planar := []byte{1, 4, 2, 5, 3, 6}

	f, err := NewFrame(interleaved, 2, 1, LayoutInterleaved)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.Planar(); !bytes.Equal(got, planar) {
		t.Errorf("Planar(): got %v, want %v", got, planar)
	}

	// no conversion needed, the original buffer is returned as is
	if got := f.Interleaved(); !bytes.Equal(got, interleaved) {
		t.Errorf("Interleaved(): got %v, want %v", got, interleaved)
	}

	p, err := NewFrame(planar, 2, 1, LayoutPlanar)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := p.Interleaved(); !bytes.Equal(got, interleaved) {
		t.Errorf("Interleaved() from planar: got %v, want %v", got, interleaved)
	}

	if got := p.Planar(); !bytes.Equal(got, planar) {
		t.Errorf("Planar() from planar: got %v, want %v", got, planar)
	}
}

func TestFrameConversionRoundTrip(t *testing.T) {

	data := make([]byte, 3*8*4)

	for i := range data {
		data[i] = byte(i * 7)
	}

	f, err := NewFrame(data, 8, 4, LayoutInterleaved)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	planar, err := NewFrame(f.Planar(), 8, 4, LayoutPlanar)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(planar.Interleaved(), data) {
		t.Error("planar round trip did not restore the original buffer")
	}
}

func TestFrameLayoutString(t *testing.T) {

	if LayoutPlanar.String() != "planar" ||
		LayoutInterleaved.String() != "interleaved" {
		t.Errorf("layout names: got %q and %q",
			LayoutPlanar.String(), LayoutInterleaved.String())
	}
}
