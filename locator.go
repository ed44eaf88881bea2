package detpipe

import (
	"fmt"
	"net/url"
	"strconv"
)

// Locator is a parsed URI style endpoint description, for example
// video:///data/clip.mp4 or camera:///dev/video0?width=1280&height=720.
// The scheme selects a backend, the path and query configure it.  Locators
// are used only while constructing a backend and are not retained by the
// running pipeline
type Locator struct {
	// Scheme is the backend selector, eg "image", "video", "camera"
	Scheme string
	// Path is the authority and path component joined, typically a file
	// or device path
	Path string
	// query holds the raw query parameters
	query url.Values
	// raw is the original locator string for error reporting
	raw string
}

// ParseLocator parses a raw locator string.  The scheme component is
// mandatory as it is the only way a backend can be selected
func ParseLocator(raw string) (*Locator, error) {

	u, err := url.Parse(raw)

	if err != nil {
		return nil, fmt.Errorf("malformed locator %q: %w", raw, err)
	}

	if u.Scheme == "" {
		return nil, fmt.Errorf("locator %q has no scheme", raw)
	}

	return &Locator{
		Scheme: u.Scheme,
		Path:   u.Host + u.Path,
		query:  u.Query(),
		raw:    raw,
	}, nil
}

// String returns the original locator string
func (l *Locator) String() string {
	return l.raw
}

// Query returns the raw string value of a query parameter, or the empty
// string when absent
func (l *Locator) Query(key string) string {
	return l.query.Get(key)
}

// HasQuery reports whether a query parameter is present, with or without
// a value
func (l *Locator) HasQuery(key string) bool {
	_, ok := l.query[key]
	return ok
}

// QueryInt returns an integer query parameter, falling back to def when the
// parameter is absent.  A present but unparsable value is an error
func (l *Locator) QueryInt(key string, def int) (int, error) {

	s := l.query.Get(key)

	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)

	if err != nil {
		return 0, fmt.Errorf("locator %q: query parameter %s=%q is not an integer", l.raw, key, s)
	}

	return v, nil
}

// QueryFloat returns a float query parameter, falling back to def when the
// parameter is absent
func (l *Locator) QueryFloat(key string, def float64) (float64, error) {

	s := l.query.Get(key)

	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(s, 64)

	if err != nil {
		return 0, fmt.Errorf("locator %q: query parameter %s=%q is not a number", l.raw, key, s)
	}

	return v, nil
}
