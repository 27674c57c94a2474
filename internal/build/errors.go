package build

import "errors"

// Domain errors for the build package.
var (
	// ErrNoFiles is returned when a pattern matches no device file.
	ErrNoFiles = errors.New("build: no device files matched")

	// ErrOutputCollision is returned when two device files would be
	// generated into the same output file.
	ErrOutputCollision = errors.New("build: output file collision")
)
