package detpipe

import (
	"errors"
	"testing"
)

func TestRegistryOpen(t *testing.T) {

	r := NewRegistry[string]()

	r.Register("mem", func(loc *Locator) (string, error) {
		return "mem:" + loc.Path, nil
	})
	r.Register("disk", func(loc *Locator) (string, error) {
		return "disk:" + loc.Path, nil
	})

	got, err := r.Open("mem://buffer1")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "mem:buffer1" {
		t.Errorf("Open: got %q, want %q", got, "mem:buffer1")
	}
}

func TestRegistryUnknownScheme(t *testing.T) {

	r := NewRegistry[string]()

	r.Register("mem", func(loc *Locator) (string, error) {
		return "", nil
	})

	_, err := r.Open("tape://reel7")

	if !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

func TestRegistryFactoryErrorPropagates(t *testing.T) {

	sentinel := errors.New("device busy")

	r := NewRegistry[string]()

	r.Register("mem", func(loc *Locator) (string, error) {
		return "", sentinel
	})

	_, err := r.Open("mem://buffer1")

	// the backend's own error must come through uncloaked so callers can
	// inspect it
	if !errors.Is(err, sentinel) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestRegistryDuplicateSchemePanics(t *testing.T) {

	r := NewRegistry[string]()

	factory := func(loc *Locator) (string, error) { return "", nil }

	r.Register("mem", factory)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate scheme registration")
		}
	}()

	r.Register("mem", factory)
}

func TestRegistrySchemesSorted(t *testing.T) {

	r := NewRegistry[int]()

	factory := func(loc *Locator) (int, error) { return 0, nil }

	r.Register("video", factory)
	r.Register("camera", factory)
	r.Register("image", factory)

	got := r.Schemes()
	want := []string{"camera", "image", "video"}

	if len(got) != len(want) {
		t.Fatalf("schemes: got %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("schemes[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryMalformedLocator(t *testing.T) {

	r := NewRegistry[string]()

	if _, err := r.Open("no-scheme-here"); err == nil {
		t.Error("expected error for locator without scheme")
	}
}
