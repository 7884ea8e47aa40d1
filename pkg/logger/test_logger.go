package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a logger that discards all output, for use in tests.
func NewTestLogger() Logger {
	zlog := zerolog.New(io.Discard)
	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}
}
