package bimpm

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfig is returned for a non-positive output dimension or an unknown strategy name.
	ErrInvalidConfig = errors.New("invalid layer configuration")
	// ErrInvalidShape is returned for malformed shape descriptors and ragged or empty tensors.
	ErrInvalidShape = errors.New("invalid shape")
	// ErrShapeMismatch is returned when the two inputs, or an input and the built weights, disagree in shape.
	ErrShapeMismatch = errors.New("shape mismatch")
)
