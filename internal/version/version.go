// Package version holds the build-time version string reported by both
// binaries' --version flags, mirroring shared/version in the teacher.
package version

// Version is overridden at build time via -ldflags.
var Version = "0.0.0~git"
