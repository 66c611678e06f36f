// Package kfmt provides the console output path for the kernel. Output
// produced before a sink is attached is buffered in a small ring buffer and
// replayed once SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// an output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. If set
	// to nil, the output is redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w and copies any data
// accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently active output sink. If no sink has been
// attached yet, the early ring buffer is returned instead so that callers can
// always obtain a usable io.Writer.
func GetOutputSink() io.Writer {
	if outputSink != nil {
		return outputSink
	}
	return &earlyPrintBuffer
}

// Printf formats its arguments using the standard fmt verbs and writes the
// result to the active output sink.
func Printf(format string, args ...interface{}) {
	Fprintf(GetOutputSink(), format, args...)
}

// Fprintf formats its arguments and writes the result to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}
