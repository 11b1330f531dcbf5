// Package extract validates a sandbox results slot and maps it to the
// public data point contract.
package extract

import (
	"errors"
	"fmt"
	"math"

	"github.com/tbuliHe/visualizer/pkg/models"
)

// DefaultMaxPoints is the largest series accepted when no limit is given.
const DefaultMaxPoints = 10_000

// ErrMalformed indicates a populated results slot with an invalid shape.
var ErrMalformed = errors.New("malformed results")

// ValidationError locates the first problem found in the slot. Index is -1
// when the problem concerns the slot as a whole.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

// Error returns a message naming the offending element, if any.
func (e *ValidationError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %s", ErrMalformed.Error(), e.Message)
	case e.Field == "":
		return fmt.Sprintf("%s: element %d: %s", ErrMalformed.Error(), e.Index, e.Message)
	default:
		return fmt.Sprintf("%s: element %d: %s %s", ErrMalformed.Error(), e.Index, e.Field, e.Message)
	}
}

// Is matches ErrMalformed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrMalformed
}

// Series converts slot into data points, preserving order. The slot must
// be a non-empty sequence of at most maxPoints records, each with finite
// numeric x and y. Keys other than x and y are ignored. maxPoints <= 0
// selects DefaultMaxPoints.
func Series(slot any, maxPoints int) ([]models.DataPoint, error) {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	seq, ok := slot.([]any)
	if !ok {
		return nil, &ValidationError{Index: -1, Message: fmt.Sprintf("expected an array, got %s", describe(slot))}
	}
	if len(seq) == 0 {
		return nil, &ValidationError{Index: -1, Message: "array is empty"}
	}
	if len(seq) > maxPoints {
		return nil, &ValidationError{Index: -1, Message: fmt.Sprintf("more than %d points", maxPoints)}
	}

	out := make([]models.DataPoint, len(seq))
	for i, item := range seq {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, &ValidationError{Index: i, Message: fmt.Sprintf("expected an {x, y} object, got %s", describe(item))}
		}
		x, err := coordinate(rec, "x")
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "x", Message: err.Error()}
		}
		y, err := coordinate(rec, "y")
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "y", Message: err.Error()}
		}
		out[i] = models.DataPoint{X: x, Y: y}
	}
	return out, nil
}

func coordinate(rec map[string]any, key string) (float64, error) {
	v, ok := rec[key]
	if !ok {
		return 0, errors.New("is missing")
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("is not a number (%s)", describe(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("is not finite (%v)", f)
	}
	return f, nil
}

// toFloat accepts integer and float representations only.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", truncate(x, 32))
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
