package reembed

import "errors"

var (
	ErrInvalidMaxAttempts = errors.New("reembed: attempts must be greater than 0")
	ErrStoreRequired      = errors.New("reembed: index store required")
	ErrEmbedderRequired   = errors.New("reembed: embedder required")
)
