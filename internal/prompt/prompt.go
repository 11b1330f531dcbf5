// Package prompt assembles completion requests from function descriptions.
//
// The instruction text is the only lever that keeps generated code inside
// the shape the sandbox expects: a single `results` assignment built from
// the injected `math` namespace. It is a hint to the model, not a security
// boundary; the sandbox allow-list is.
package prompt

import (
	"github.com/tbuliHe/visualizer/internal/sandbox"
	"github.com/tbuliHe/visualizer/pkg/models"
)

const javascriptInstructions = `You are a math expert that converts fuzzy function descriptions into JavaScript code.
Return ONLY valid JavaScript code that generates data points for plotting. The code must:
1. Use only the provided 'math' object for calculations (it is already available; do not import or require anything)
2. Store the output by assigning to the existing 'results' variable (write "results = ...", NEVER "const results", "let results" or "var results")
3. Handle regular, parametric, and polar functions
4. Produce an array of {x, y} objects with finite numeric x and y
5. Default x range should be [-10, 10] with 200 points unless the description implies otherwise
6. Analyze function behavior to adjust the range appropriately
7. Ensure reasonable y-axis scaling relative to the x-axis

Available on 'math': pi/PI, e/E, tau, phi, LN2, LN10, SQRT2, abs, sign, sqrt, cbrt, square, cube, nthRoot(x, n),
exp, expm1, log(x, base?), log1p, log2, log10, sin, cos, tan, sec, csc, cot, asin, acos, atan, atan2, sinh, cosh, tanh,
floor, ceil, round, fix, pow, mod, hypot, add, subtract, multiply, divide, dotMultiply, dotDivide, dotPow,
sum, prod, mean, min, max (over numbers or arrays), range(start, end, step) (end exclusive),
linspace(start, end, n) (inclusive), map(array, fn). Elementwise functions accept arrays. Arrays support toArray().

Example:
// Define the function
const func = (x) => x * math.log(math.abs(x));
// Generate x values with appropriate range and density
const xMin = -10, xMax = 10;
const numPoints = 200;
const xValues = math.range(xMin, xMax, (xMax - xMin) / numPoints).toArray();
// Calculate y values
const yValues = xValues.map(func);
// Create data points
results = xValues.map((x, i) => ({ x, y: yValues[i] }));`

const luaInstructions = `You are a math expert that converts fuzzy function descriptions into Lua code.
Return ONLY valid Lua code that generates data points for plotting. The code must:
1. Use only the provided 'math' table for calculations (it is already available; do not require anything)
2. Store the output by assigning to the existing global 'results' (write "results = ...", NEVER "local results")
3. Handle regular, parametric, and polar functions
4. Produce an array-like table of {x = ..., y = ...} tables with finite numeric x and y
5. Default x range should be [-10, 10] with 200 points unless the description implies otherwise
6. Analyze function behavior to adjust the range appropriately
7. Ensure reasonable y-axis scaling relative to the x-axis

Available on 'math': pi, e, tau, huge, abs, sign, sqrt, cbrt, square, cube, nthRoot(x, n), exp, log(x, base?), log2,
log10, sin, cos, tan, asin, acos, atan, atan2, sinh, cosh, tanh, floor, ceil, round, fmod, modf, rad, deg, pow, mod,
hypot, sum, prod, mean, min, max (over numbers or tables), range(start, end, step) (end exclusive),
linspace(start, end, n) (inclusive), map(table, fn). math.random, math.randomseed, math.frexp and math.ldexp do not exist.
Index 'results' from 1 with no gaps (results[1], results[2], ...); a results[0] entry makes the output invalid.

Example:
-- Define the function
local function f(x) return x * math.log(math.abs(x)) end
-- Generate x values with appropriate range and density
local xs = math.linspace(-10, 10, 200)
-- Create data points
results = {}
for i, x in ipairs(xs) do
  results[i] = { x = x, y = f(x) }
end`

// Builder produces completion requests for one sandbox language.
type Builder struct {
	Model    string
	Sampling models.SamplingParams
	Language sandbox.Language
}

// Instructions returns the fixed system prompt for the builder's language.
func (b *Builder) Instructions() string {
	if b.Language == sandbox.LanguageLua {
		return luaInstructions
	}
	return javascriptInstructions
}

// Build returns the completion request for a description. It has no side
// effects; only the user message varies between calls.
func (b *Builder) Build(description string) models.CompletionRequest {
	sampling := b.Sampling
	if sampling.Stop != nil {
		sampling.Stop = append([]string(nil), sampling.Stop...)
	}
	return models.CompletionRequest{
		Model: b.Model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: b.Instructions()},
			{Role: "user", Content: description},
		},
		Sampling: sampling,
		Stream:   false,
	}
}
