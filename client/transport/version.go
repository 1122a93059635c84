package transport

import (
	"fmt"
	"strings"
)

// Version is an HTTP protocol version.
type Version int

const (
	HTTP11 Version = iota + 1
	HTTP2
)

func (v Version) String() string {
	switch v {
	case HTTP11:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion accepts the common spellings of the supported versions,
// e.g. "1.1", "HTTP/1.1", "2", "HTTP/2" and "h2".
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1.1", "http/1.1", "http11", "http1":
		return HTTP11, nil
	case "2", "2.0", "http/2", "http/2.0", "http2", "h2":
		return HTTP2, nil
	}

	return 0, fmt.Errorf("unknown http version %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}

	*v = parsed
	return nil
}
