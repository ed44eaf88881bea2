package detpipe

import "testing"

func TestParseLocator(t *testing.T) {

	tests := []struct {
		name       string
		raw        string
		wantErr    bool
		wantScheme string
		wantPath   string
	}{
		{
			name:       "file path",
			raw:        "video:///data/clip.mp4",
			wantScheme: "video",
			wantPath:   "/data/clip.mp4",
		},
		{
			name:       "device path",
			raw:        "camera:///dev/video0?width=1280",
			wantScheme: "camera",
			wantPath:   "/dev/video0",
		},
		{
			name:       "relative path lands in host",
			raw:        "image://out.jpg",
			wantScheme: "image",
			wantPath:   "out.jpg",
		},
		{
			name:    "missing scheme",
			raw:     "/data/clip.mp4",
			wantErr: true,
		},
		{
			name:       "query only",
			raw:        "gst://?pipeline=videotestsrc",
			wantScheme: "gst",
			wantPath:   "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			loc, err := ParseLocator(tc.raw)

			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if loc.Scheme != tc.wantScheme {
				t.Errorf("scheme: got %q, want %q", loc.Scheme, tc.wantScheme)
			}

			if loc.Path != tc.wantPath {
				t.Errorf("path: got %q, want %q", loc.Path, tc.wantPath)
			}

			if loc.String() != tc.raw {
				t.Errorf("String(): got %q, want %q", loc.String(), tc.raw)
			}
		})
	}
}

func TestLocatorQuery(t *testing.T) {

	loc, err := ParseLocator("camera:///dev/video0?width=1280&fps=7.5&rotate=90&always&bad=abc")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := loc.Query("rotate"); got != "90" {
		t.Errorf("Query(rotate): got %q, want %q", got, "90")
	}

	if loc.Query("missing") != "" {
		t.Error("Query on a missing key must return the empty string")
	}

	if !loc.HasQuery("always") {
		t.Error("HasQuery must see valueless flags")
	}

	if loc.HasQuery("never") {
		t.Error("HasQuery reported a missing key")
	}

	width, err := loc.QueryInt("width", 640)

	if err != nil || width != 1280 {
		t.Errorf("QueryInt(width): got %d, %v", width, err)
	}

	def, err := loc.QueryInt("height", 640)

	if err != nil || def != 640 {
		t.Errorf("QueryInt default: got %d, %v", def, err)
	}

	if _, err := loc.QueryInt("bad", 0); err == nil {
		t.Error("QueryInt must fail on an unparsable value")
	}

	fps, err := loc.QueryFloat("fps", 30)

	if err != nil || fps != 7.5 {
		t.Errorf("QueryFloat(fps): got %v, %v", fps, err)
	}

	if _, err := loc.QueryFloat("bad", 0); err == nil {
		t.Error("QueryFloat must fail on an unparsable value")
	}
}
