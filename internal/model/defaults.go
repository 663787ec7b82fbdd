package model

import "time"

// Shared defaults used by the pipeline, the CLI, and tests.
const (
	DefaultBufferCapacity = 50
	DefaultTickInterval   = 500 * time.Millisecond
	DefaultReadTimeout    = 400 * time.Millisecond
	DefaultSkin           = "default"
)
