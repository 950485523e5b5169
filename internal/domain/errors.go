package domain

import "errors"

// Error kinds shared by the engine. Callers match them with errors.Is; the
// wrapped message names the feature, threshold or record that failed.
var (
	// ErrValidation marks malformed or out-of-domain input.
	ErrValidation = errors.New("validation error")

	// ErrSchemaMismatch marks a feature set that cannot satisfy a model's expectations.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrModelUnavailable is returned when no model artifact is loaded.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrCompute marks a computation that is undefined for its input.
	ErrCompute = errors.New("compute error")
)
