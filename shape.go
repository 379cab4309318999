package bimpm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Batch is the placeholder used in the batch position of a Shape whose batch size is not yet known.
const Batch = -1

// A Shape describes the dimensions of a tensor, outermost first.
// Inputs of the layer are (batch, seq_len, width), outputs are (batch, output_dim).
type Shape []int

// ShapeOf returns the shape of a (batch, seq_len, width) tensor.
// It fails for empty or ragged tensors.
func ShapeOf(t [][][]Unit) (Shape, error) {
	if len(t) == 0 || len(t[0]) == 0 || len(t[0][0]) == 0 {
		return nil, errors.Wrap(ErrInvalidShape, "empty tensor")
	}
	seqLen, width := len(t[0]), len(t[0][0])
	for b := range t {
		if len(t[b]) != seqLen {
			return nil, errors.Wrapf(ErrInvalidShape, "ragged tensor: batch %d has %d steps, want %d", b, len(t[b]), seqLen)
		}
		for i := range t[b] {
			if len(t[b][i]) != width {
				return nil, errors.Wrapf(ErrInvalidShape, "ragged tensor: step [%d][%d] has width %d, want %d", b, i, len(t[b][i]), width)
			}
		}
	}
	return Shape{len(t), seqLen, width}, nil
}

// Validate checks that s has the given rank, that its batch entry is either Batch or positive,
// and that every other entry is positive.
func (s Shape) Validate(rank int) error {
	if len(s) != rank {
		return errors.Wrapf(ErrInvalidShape, "%v has rank %d, want %d", s, len(s), rank)
	}
	if s[0] != Batch && s[0] <= 0 {
		return errors.Wrapf(ErrInvalidShape, "%v has batch size %d", s, s[0])
	}
	for i := 1; i < len(s); i++ {
		if s[i] <= 0 {
			return errors.Wrapf(ErrInvalidShape, "%v has non-positive dimension %d", s, i)
		}
	}
	return nil
}

// Equal reports whether s and o have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	dims := make([]string, len(s))
	for i, d := range s {
		if d == Batch {
			dims[i] = "?"
			continue
		}
		dims[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

// checkPair validates a pair of input shapes and requires them to agree on every dimension.
// A Batch placeholder matches any batch size.
func checkPair(left, right Shape) error {
	if err := left.Validate(3); err != nil {
		return errors.Wrap(err, "left input")
	}
	if err := right.Validate(3); err != nil {
		return errors.Wrap(err, "right input")
	}
	if left[0] != Batch && right[0] != Batch && left[0] != right[0] {
		return errors.Wrapf(ErrShapeMismatch, "batch sizes differ: left %v, right %v", left, right)
	}
	if left[1] != right[1] {
		return errors.Wrapf(ErrShapeMismatch, "sequence lengths differ: left %v, right %v", left, right)
	}
	if left[2] != right[2] {
		return errors.Wrapf(ErrShapeMismatch, "embedding widths differ: left %v, right %v", left, right)
	}
	return nil
}
