package sandbox_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbuliHe/visualizer/internal/extract"
	"github.com/tbuliHe/visualizer/internal/sandbox"
)

func newExecutor(t *testing.T, lang sandbox.Language, timeout time.Duration) sandbox.Executor {
	t.Helper()
	exec, err := sandbox.New(sandbox.Config{Language: lang, Timeout: timeout, MaxResultLength: 50})
	require.NoError(t, err)
	require.Equal(t, lang, exec.Language())
	return exec
}

func num(t *testing.T, v any) float64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		t.Fatalf("value %v (%T) is not a number", v, v)
		return 0
	}
}

// points flattens an exported results slot into x/y pairs.
func points(t *testing.T, v any) [][2]float64 {
	t.Helper()
	seq, ok := v.([]any)
	require.True(t, ok, "slot is %T", v)
	out := make([][2]float64, len(seq))
	for i, item := range seq {
		rec, ok := item.(map[string]any)
		require.True(t, ok, "element %d is %T", i, item)
		out[i] = [2]float64{num(t, rec["x"]), num(t, rec["y"])}
	}
	return out
}

func TestParseLanguage(t *testing.T) {
	for in, want := range map[string]sandbox.Language{
		"":           sandbox.LanguageJavaScript,
		"JavaScript": sandbox.LanguageJavaScript,
		"js":         sandbox.LanguageJavaScript,
		" lua ":      sandbox.LanguageLua,
	} {
		got, err := sandbox.ParseLanguage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := sandbox.ParseLanguage("python")
	assert.ErrorIs(t, err, sandbox.ErrUnsupportedLanguage)

	_, err = sandbox.New(sandbox.Config{Language: "cobol"})
	assert.ErrorIs(t, err, sandbox.ErrUnsupportedLanguage)
}

// ── JavaScript ──────────────────────────────────────────────

func TestJavaScript_RoundTrip(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	res, err := exec.Execute(context.Background(), `results = [{x:0,y:0},{x:1,y:1}]`)
	require.NoError(t, err)

	assert.Equal(t, [][2]float64{{0, 0}, {1, 1}}, points(t, res.Value))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, sandbox.LanguageJavaScript, res.Language)
}

func TestJavaScript_MathNamespace(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	src := `
const xs = math.range(-2, 3, 1).toArray();
const ys = math.dotPow(xs, 2);
results = xs.map((x, i) => ({ x, y: ys[i] }));
`
	res, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{-2, 4}, {-1, 1}, {0, 0}, {1, 1}, {2, 4}}, points(t, res.Value))
}

func TestJavaScript_MathjsIdioms(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	src := `
const xs = math.range(0, 3, 1).map((x) => x * math.PI).toArray();
const ys = math.map(xs, (x) => math.square(x / math.PI)).toArray();
const cubes = math.cube([1, 2]).toArray();
results = [
  { x: xs[1], y: ys[2] },
  { x: math.E, y: math.nthRoot(-27, 3) },
  { x: math.nthRoot(16), y: math.sum(ys) },
  { x: math.max(1, 7, 3), y: math.min([4, -2, 9]) },
  { x: cubes[1], y: math.sum(cubes, 1) },
];
`
	res, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)

	got := points(t, res.Value)
	require.Len(t, got, 5)
	assert.InDelta(t, math.Pi, got[0][0], 1e-12)
	assert.InDelta(t, 4.0, got[0][1], 1e-12)
	assert.InDelta(t, math.E, got[1][0], 1e-12)
	assert.InDelta(t, -3.0, got[1][1], 1e-12)
	assert.InDelta(t, 4.0, got[2][0], 1e-12)
	assert.InDelta(t, 5.0, got[2][1], 1e-12)
	assert.Equal(t, [2]float64{7, -2}, got[3])
	assert.Equal(t, [2]float64{8, 10}, got[4])
}

func TestJavaScript_ElementwiseAndMap(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	src := `
const s = math.sin([0, math.pi / 2]);
const doubled = math.map(math.linspace(0, 1, 3), (v) => v * 2);
results = [{ x: doubled[2], y: s[1] }, { x: math.log(8, 2), y: math.abs(-4) }];
`
	res, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)

	got := points(t, res.Value)
	require.Len(t, got, 2)
	assert.InDelta(t, 2.0, got[0][0], 1e-12)
	assert.InDelta(t, 1.0, got[0][1], 1e-12)
	assert.InDelta(t, 3.0, got[1][0], 1e-12)
	assert.Equal(t, 4.0, got[1][1])
}

func TestJavaScript_InfiniteLoopTimesOut(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, 200*time.Millisecond)

	start := time.Now()
	_, err := exec.Execute(context.Background(), `while (true) {}`)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, sandbox.ErrTimeout)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestJavaScript_ParentCancellationAborts(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := exec.Execute(ctx, `for (;;) {}`)
	assert.ErrorIs(t, err, sandbox.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestJavaScript_RuntimeFailures(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	programs := map[string]string{
		"syntax error":    `results = [`,
		"thrown":          `throw new Error("boom")`,
		"require":         `const fs = require("fs"); results = [{x:0,y:0}]`,
		"process":         `process.exit(1)`,
		"timers":          `setTimeout(() => {}, 0)`,
		"bad range":       `results = math.range(0, 1, 0)`,
		"runaway recurse": `const f = (n) => f(n + 1); f(0)`,
	}
	for name, src := range programs {
		t.Run(name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), src)
			require.Error(t, err)
			assert.ErrorIs(t, err, sandbox.ErrRuntime)

			var execErr *sandbox.ExecutionError
			require.True(t, errors.As(err, &execErr))
			assert.NotEmpty(t, execErr.Message)
		})
	}
}

func TestJavaScript_NoResult(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	for _, src := range []string{`const a = 1;`, `results = []`, `results = null`, `delete globalThis.results`} {
		_, err := exec.Execute(context.Background(), src)
		assert.ErrorIs(t, err, sandbox.ErrNoResult, src)
	}
}

func TestJavaScript_LexicalResultsIsRead(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	res, err := exec.Execute(context.Background(), `let results = [{x: 2, y: 3}]`)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{2, 3}}, points(t, res.Value))
}

func TestJavaScript_ContextsAreNotReused(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	_, err := exec.Execute(context.Background(), `
globalThis.marker = 42;
math.sin = null;
results = [{x: 1, y: 1}];
`)
	require.NoError(t, err)

	res, err := exec.Execute(context.Background(), `
const sawResults = results !== null ? 1 : 0;
const sawMarker = typeof marker !== "undefined" ? 1 : 0;
const sawTamper = typeof math.sin !== "function" ? 1 : 0;
results = [{x: sawResults, y: sawMarker}, {x: sawTamper, y: 0}];
`)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 0}, {0, 0}}, points(t, res.Value))
}

func TestJavaScript_ConsoleCaptured(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	res, err := exec.Execute(context.Background(), `console.log("points:", 2); results = [{x:0,y:0}]`)
	require.NoError(t, err)
	require.Len(t, res.Console, 1)
	assert.Equal(t, "points: 2", res.Console[0].Line)
	assert.Equal(t, "log", res.Console[0].Stream)
}

func TestJavaScript_OversizedSlotIsTruncated(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	res, err := exec.Execute(context.Background(), `results = Array.from({length: 1000}, (_, i) => ({x: i, y: i}))`)
	require.NoError(t, err)
	seq, ok := res.Value.([]any)
	require.True(t, ok)
	assert.Len(t, seq, 51)
}

func TestJavaScript_NonDataValuesAreMarked(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageJavaScript, time.Second)

	res, err := exec.Execute(context.Background(), `results = "not an array"`)
	require.NoError(t, err)
	assert.Equal(t, "not an array", res.Value)

	res, err = exec.Execute(context.Background(), `results = [{x: () => 1, y: NaN}]`)
	require.NoError(t, err)
	rec := res.Value.([]any)[0].(map[string]any)
	assert.Equal(t, "Function", rec["x"])
}

// ── Lua ─────────────────────────────────────────────────────

func TestLua_RoundTrip(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, time.Second)

	res, err := exec.Execute(context.Background(), `results = {{x = 0, y = 0}, {x = 1, y = 1}}`)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 0}, {1, 1}}, points(t, res.Value))
}

func TestLua_MathNamespace(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, time.Second)

	src := `
local xs = math.linspace(-2, 2, 5)
local ys = math.pow(xs, 2)
results = {}
for i, x in ipairs(xs) do
  results[i] = { x = x, y = ys[i] }
end
print("generated", #results)
`
	res, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{-2, 4}, {-1, 1}, {0, 0}, {1, 1}, {2, 4}}, points(t, res.Value))
	require.Len(t, res.Console, 1)
	assert.Equal(t, "generated\t5", res.Console[0].Line)
}

func TestLua_StandardMathEntries(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, time.Second)

	src := `
local whole, frac = math.modf(3.25)
local big = 0
if math.huge > 1e308 then big = 1 end
results = {
  { x = math.deg(math.pi), y = math.rad(180) },
  { x = math.fmod(-7, 3), y = math.mod(-7, 3) },
  { x = whole, y = frac },
  { x = big, y = math.max(2, 9, 4) },
  { x = math.sum({1, 2, 3}), y = math.nthRoot(-8, 3) },
}
`
	res, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)

	got := points(t, res.Value)
	require.Len(t, got, 5)
	assert.InDelta(t, 180.0, got[0][0], 1e-12)
	assert.InDelta(t, math.Pi, got[0][1], 1e-12)
	assert.Equal(t, [2]float64{-1, 2}, got[1])
	assert.Equal(t, [2]float64{3, 0.25}, got[2])
	assert.Equal(t, [2]float64{1, 9}, got[3])
	assert.Equal(t, 6.0, got[4][0])
	assert.InDelta(t, -2.0, got[4][1], 1e-12)
}

func TestLua_NonSequenceTablesAreMarked(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, time.Second)

	programs := map[string]string{
		"zero based": `results = {}
for i = 0, 2 do results[i] = { x = i, y = i * i } end`,
		"hole":  `results = { { x = 1, y = 1 }, [3] = { x = 3, y = 9 } }`,
		"mixed": `results = { { x = 1, y = 1 }, n = 1 }`,
	}
	for name, src := range programs {
		t.Run(name, func(t *testing.T) {
			res, err := exec.Execute(context.Background(), src)
			require.NoError(t, err)

			_, isSeq := res.Value.([]any)
			assert.False(t, isSeq, "exported %v", res.Value)

			_, err = extract.Series(res.Value, 50)
			assert.ErrorIs(t, err, extract.ErrMalformed)
		})
	}
}

func TestLua_InfiniteLoopTimesOut(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, 200*time.Millisecond)

	start := time.Now()
	_, err := exec.Execute(context.Background(), `while true do end`)

	assert.ErrorIs(t, err, sandbox.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLua_RemovedCapabilities(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, time.Second)

	for _, src := range []string{
		`os.exit(1)`,
		`io.write("x")`,
		`require("os")`,
		`dofile("/etc/passwd")`,
		`loadstring("return 1")()`,
		`results = math.range(0, 1, 0)`,
		`results = {{x = 1, y = 1}`,
	} {
		_, err := exec.Execute(context.Background(), src)
		assert.ErrorIs(t, err, sandbox.ErrRuntime, src)
	}
}

func TestLua_NoResultAndIsolation(t *testing.T) {
	exec := newExecutor(t, sandbox.LanguageLua, time.Second)

	_, err := exec.Execute(context.Background(), `local results = {{x = 1, y = 1}}`)
	assert.ErrorIs(t, err, sandbox.ErrNoResult)

	_, err = exec.Execute(context.Background(), `marker = 1; results = {{x = 1, y = 1}}`)
	require.NoError(t, err)

	res, err := exec.Execute(context.Background(), `
local seen = 0
if marker ~= nil or results ~= nil then seen = 1 end
results = {{x = seen, y = 0}}
`)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 0}}, points(t, res.Value))
}

func TestExecutionError_Is(t *testing.T) {
	err := &sandbox.ExecutionError{Kind: sandbox.ErrNoResult, Message: "results was never assigned"}

	assert.True(t, errors.Is(err, sandbox.ErrNoResult))
	assert.False(t, errors.Is(err, sandbox.ErrTimeout))
	assert.Equal(t, "execution produced no result: results was never assigned", err.Error())
}
