package label

import "errors"

// Sentinel errors surfaced across subsystem boundaries. Recoverable
// extraction failures never appear here; they select a fallback arm of
// Extraction instead.
var (
	// ErrPageOutOfRange reports a render request beyond the document's pages.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrNotMonochrome reports a codec input that is not strictly 1-bit.
	ErrNotMonochrome = errors.New("canvas is not monochrome")
	// ErrNoPrinter reports a print request with no destination configured.
	ErrNoPrinter = errors.New("no printer specified")
	// ErrDispatch reports a print submission the spooler rejected.
	ErrDispatch = errors.New("print dispatch failed")
)
