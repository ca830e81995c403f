package server

import "errors"

// ErrEngineRequired indicates New was called without an engine.
var ErrEngineRequired = errors.New("engine is required")

// Client-facing error messages.
const (
	msgDocumentsRequired = "Documents array required"
	msgMessageRequired   = "Message string required"
	msgProcessFailed     = "Failed to process request"
	msgInitializeFailed  = "Failed to initialize documents"
	msgNoFile            = "No file uploaded"
	msgOnlyPDF           = "Only PDF files are supported"
	msgUploadFailed      = "Failed to process PDF"
	msgUploadTooLarge    = "File too large"
)
