package query

import "errors"

var (
	// ErrMissingField is returned when a variant is decoded without one of its required fields.
	ErrMissingField = errors.New("missing required field")

	// ErrUnrecognizedFilterShape is returned when a filter's type or key set matches no variant.
	ErrUnrecognizedFilterShape = errors.New("unrecognized filter shape")

	// ErrUnrecognizedStepShape is returned when a step's type matches no variant.
	ErrUnrecognizedStepShape = errors.New("unrecognized step shape")

	// ErrAmbiguousStart is returned when a start sets more than one of ids, prefix and term.
	ErrAmbiguousStart = errors.New("start must set at most one of ids, prefix, term")

	// ErrInvalidValue is returned for out-of-range field values such as negative limits.
	ErrInvalidValue = errors.New("invalid value")
)
