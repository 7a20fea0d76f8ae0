// Package version reports the build version of the binary, set through
// -ldflags or read from the embedded VCS information.
package version
