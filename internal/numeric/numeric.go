// Package numeric is the math namespace injected into every sandbox.
//
// Functions here are runtime-neutral: they work on float64 scalars and
// []float64 sequences. The sandbox runtimes bind them under the `math`
// global and handle elementwise application over arrays.
package numeric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MaxElements caps the length of any sequence generated by Range or
// Linspace so a bad step cannot exhaust memory.
const MaxElements = 100_000

var (
	// ErrInvalidRange is returned when range/linspace arguments cannot
	// produce a finite sequence.
	ErrInvalidRange = errors.New("invalid range")

	// ErrTooManyElements is returned when a sequence would exceed MaxElements.
	ErrTooManyElements = fmt.Errorf("sequence exceeds %d elements", MaxElements)
)

// Constants exposed on math. Both the lowercase and the JavaScript-style
// uppercase spellings are accepted.
var Constants = map[string]float64{
	"pi":      math.Pi,
	"PI":      math.Pi,
	"e":       math.E,
	"E":       math.E,
	"tau":     2 * math.Pi,
	"phi":     math.Phi,
	"LN2":     math.Ln2,
	"LN10":    math.Ln10,
	"LOG2E":   math.Log2E,
	"LOG10E":  math.Log10E,
	"SQRT2":   math.Sqrt2,
	"SQRT1_2": 1 / math.Sqrt2,
}

// Unary functions, applied elementwise when given an array.
var Unary = map[string]func(float64) float64{
	"abs":    math.Abs,
	"sign":   sign,
	"sqrt":   math.Sqrt,
	"cbrt":   math.Cbrt,
	"square": func(x float64) float64 { return x * x },
	"cube":   func(x float64) float64 { return x * x * x },
	"exp":    math.Exp,
	"expm1":  math.Expm1,
	"log1p":  math.Log1p,
	"log2":   math.Log2,
	"log10":  math.Log10,
	"sin":    math.Sin,
	"cos":    math.Cos,
	"tan":    math.Tan,
	"sec":    func(x float64) float64 { return 1 / math.Cos(x) },
	"csc":    func(x float64) float64 { return 1 / math.Sin(x) },
	"cot":    func(x float64) float64 { return 1 / math.Tan(x) },
	"asin":   math.Asin,
	"acos":   math.Acos,
	"atan":   math.Atan,
	"sinh":   math.Sinh,
	"cosh":   math.Cosh,
	"tanh":   math.Tanh,
	"floor":  math.Floor,
	"ceil":   math.Ceil,
	"round":  math.Round,
	"fix":    math.Trunc,
	"trunc":  math.Trunc,
}

// Binary functions, applied elementwise with scalar broadcasting.
var Binary = map[string]func(a, b float64) float64{
	"pow":         math.Pow,
	"dotPow":      math.Pow,
	"atan2":       math.Atan2,
	"mod":         mod,
	"add":         func(a, b float64) float64 { return a + b },
	"subtract":    func(a, b float64) float64 { return a - b },
	"multiply":    func(a, b float64) float64 { return a * b },
	"dotMultiply": func(a, b float64) float64 { return a * b },
	"divide":      func(a, b float64) float64 { return a / b },
	"dotDivide":   func(a, b float64) float64 { return a / b },
	"hypot":       math.Hypot,
}

// Reduce functions fold every number passed to them, arrays flattened, into
// one value: math.max(1, 2, 3), math.max([1, 2, 3]) and math.sum(ys) all
// work. mean, min and max of nothing are NaN.
var Reduce = map[string]func([]float64) float64{
	"sum":  floats.Sum,
	"prod": floats.Prod,
	"mean": nonEmpty(func(xs []float64) float64 { return floats.Sum(xs) / float64(len(xs)) }),
	"min":  nonEmpty(floats.Min),
	"max":  nonEmpty(floats.Max),
}

// Log is the natural logarithm, or the logarithm in the given base.
func Log(x float64, base ...float64) float64 {
	if len(base) == 0 {
		return math.Log(x)
	}
	return math.Log(x) / math.Log(base[0])
}

// NthRoot returns the real root of x of degree n. Odd roots of negative
// numbers are negative, as in mathjs, instead of NaN.
func NthRoot(x, n float64) float64 {
	if x < 0 && n == math.Trunc(n) && math.Mod(math.Abs(n), 2) == 1 {
		return -math.Pow(-x, 1/n)
	}
	return math.Pow(x, 1/n)
}

// Range returns start, start+step, ... up to but excluding end, matching
// the mathjs range semantics the generated code is written against.
func Range(start, end, step float64) ([]float64, error) {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsNaN(step) ||
		math.IsInf(start, 0) || math.IsInf(end, 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: non-finite argument", ErrInvalidRange)
	}
	if step == 0 {
		return nil, fmt.Errorf("%w: step must not be zero", ErrInvalidRange)
	}
	if (end-start)/step <= 0 {
		return []float64{}, nil
	}
	n := int(math.Ceil((end - start) / step))
	if n > MaxElements {
		return nil, ErrTooManyElements
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := start + float64(i)*step
		if (step > 0 && v >= end) || (step < 0 && v <= end) {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// Linspace returns n evenly spaced values from start to end inclusive.
func Linspace(start, end float64, n int) ([]float64, error) {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return nil, fmt.Errorf("%w: non-finite argument", ErrInvalidRange)
	}
	switch {
	case n < 0:
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidRange, n)
	case n == 0:
		return []float64{}, nil
	case n == 1:
		return []float64{start}, nil
	case n > MaxElements:
		return nil, ErrTooManyElements
	}
	return floats.Span(make([]float64, n), start, end), nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return x
	}
}

// mod follows mathjs: the result has the sign of the divisor.
func mod(a, b float64) float64 {
	if b == 0 {
		return a
	}
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func nonEmpty(f func([]float64) float64) func([]float64) float64 {
	return func(xs []float64) float64 {
		if len(xs) == 0 {
			return math.NaN()
		}
		return f(xs)
	}
}
