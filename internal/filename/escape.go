// Package filename builds and parses the on-disk core filename
// (spec.md §3, §4.4): "core.<comm>.<uid>.<boot-id>.<pid>.<timestamp-µs>".
package filename

import (
	"fmt"
	"strconv"
	"strings"
)

// escapeSet is exactly the three characters original_source's
// filename_escape(s) macro escapes: xescape(s, "./ ").
const escapeSet = "./ "

// Escape replaces each of '.', '/' and space in s with a \xHH sequence,
// producing a single path-segment-safe string.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(escapeSet, c) >= 0 {
			fmt.Fprintf(&b, "\\x%02x", c)
			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}

// Unescape reverses Escape, recovering the original component.
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			v, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid escape sequence at offset %d: %w", i, err)
			}

			b.WriteByte(byte(v))
			i += 3
			continue
		}

		b.WriteByte(s[i])
	}

	return b.String(), nil
}

// Components holds the pieces encoded into a stored core filename.
type Components struct {
	Comm        string
	UID         string
	BootID      string
	PID         string
	TimestampUS string
}

// Build renders a core filename per spec.md §3/§4.4. TimestampUS must
// already be in microseconds (see ToMicroseconds).
func Build(c Components) string {
	return strings.Join([]string{
		"core",
		Escape(c.Comm),
		Escape(c.UID),
		c.BootID,
		Escape(c.PID),
		Escape(c.TimestampUS),
	}, ".")
}

// Parse decodes a core filename (optionally carrying a compressor suffix,
// which the caller is responsible for stripping first) back into its
// Components.
func Parse(name string) (Components, error) {
	parts := strings.SplitN(name, ".", 6)
	if len(parts) != 6 || parts[0] != "core" {
		return Components{}, fmt.Errorf("not a coredump filename: %q", name)
	}

	var c Components

	var err error

	if c.Comm, err = Unescape(parts[1]); err != nil {
		return Components{}, err
	}

	if c.UID, err = Unescape(parts[2]); err != nil {
		return Components{}, err
	}

	c.BootID = parts[3]

	if c.PID, err = Unescape(parts[4]); err != nil {
		return Components{}, err
	}

	if c.TimestampUS, err = Unescape(parts[5]); err != nil {
		return Components{}, err
	}

	return c, nil
}

// ToMicroseconds appends "000000" to a millisecond-or-second context
// timestamp string, "preserving historical naming" per spec.md §4.4.
func ToMicroseconds(timestamp string) string {
	return timestamp + "000000"
}
