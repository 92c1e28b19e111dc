// Package trace defines the stack-trace generator collaborator
// interface (spec.md §1: "given a file descriptor to an ELF core and an
// executable path, returns a textual backtrace or a typed failure").
// It is explicitly out of scope for this repo; this package only holds
// the contract the Collector calls through and a disabled stub.
package trace

import "errors"

// ErrUnavailable is returned by Generator implementations that have no
// debug information available for the crash.
var ErrUnavailable = errors.New("no stack trace available")

// Generator produces a textual backtrace from an open core file
// descriptor and the crashing executable's path.
type Generator interface {
	Generate(coreFD int, exe string) (string, error)
}

// None is a Generator that always reports unavailability, used when no
// ELF-reading collaborator was wired in (spec.md §4.2 step 6: "If an
// ELF-reading collaborator is available").
type None struct{}

func (None) Generate(int, string) (string, error) {
	return "", ErrUnavailable
}
