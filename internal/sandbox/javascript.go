package sandbox

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/tbuliHe/visualizer/internal/numeric"
)

// javascriptPrelude runs before generated code. Callback-taking helpers are
// defined in JavaScript so exceptions and interrupts stay inside the VM.
// Plain arrays stand in for mathjs matrices, so every array answers
// toArray and valueOf.
const javascriptPrelude = `
Object.defineProperty(Array.prototype, "toArray", {
  value: function () { return this; },
  writable: true,
  configurable: true,
});
math.map = function (a, f) { return Array.prototype.map.call(a, f); };
`

// javascriptExecutor runs generated JavaScript on goja. A goja runtime has
// no module loader, timers, file or network access; only ECMAScript
// intrinsics exist besides the bindings installed here.
type javascriptExecutor struct {
	cfg Config
}

func (e *javascriptExecutor) Language() Language { return LanguageJavaScript }

// Execute runs source in a new goja runtime under the configured ceiling.
func (e *javascriptExecutor) Execute(ctx context.Context, source string) (*Result, error) {
	runID := uuid.New().String()
	console := NewConsole(e.cfg.MaxConsoleLines)

	vm := goja.New()
	vm.SetMaxCallStackSize(e.cfg.MaxCallStackSize)
	if err := installJavaScript(vm, console); err != nil {
		return nil, &ExecutionError{Kind: ErrRuntime, RunID: runID, Message: "build context: " + err.Error(), Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(runCtx, func() {
		vm.Interrupt(runCtx.Err())
	})
	defer stop()

	start := time.Now()
	value, err := e.run(vm, source)
	return conclude(runCtx, LanguageJavaScript, runID, console, start, value, err)
}

func (e *javascriptExecutor) run(vm *goja.Runtime, source string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, recovered(r)
		}
	}()

	if _, err := vm.RunString(source); err != nil {
		return nil, err
	}
	// Evaluated as a script so a top-level `let results` is found as well.
	slot, err := vm.RunString(`typeof ` + resultsBinding + ` === "undefined" ? null : ` + resultsBinding)
	if err != nil {
		return nil, err
	}
	return exportJS(slot, e.cfg.MaxResultLength, 0), nil
}

// installJavaScript binds the allow-listed capabilities into vm.
func installJavaScript(vm *goja.Runtime, console *Console) error {
	var errs []error
	set := func(obj *goja.Object, name string, v any) {
		if err := obj.Set(name, v); err != nil {
			errs = append(errs, err)
		}
	}

	m := vm.NewObject()
	for name, c := range numeric.Constants {
		set(m, name, c)
	}
	for name, f := range numeric.Unary {
		f := f
		set(m, name, func(call goja.FunctionCall) goja.Value {
			return jsMap1(vm, call.Argument(0), f, 0)
		})
	}
	for name, f := range numeric.Binary {
		f := f
		set(m, name, func(call goja.FunctionCall) goja.Value {
			return jsMap2(vm, call.Argument(0), call.Argument(1), f, 0)
		})
	}
	for name, f := range numeric.Reduce {
		f := f
		set(m, name, func(call goja.FunctionCall) goja.Value {
			var xs []float64
			for _, a := range call.Arguments {
				xs = jsFlatten(vm, a, xs, 0)
			}
			return vm.ToValue(f(xs))
		})
	}
	set(m, "nthRoot", func(call goja.FunctionCall) goja.Value {
		root := 2.0
		if len(call.Arguments) > 1 {
			root = jsNumber(call.Argument(1))
		}
		return jsMap1(vm, call.Argument(0), func(x float64) float64 { return numeric.NthRoot(x, root) }, 0)
	})
	set(m, "log", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 1 {
			base := jsNumber(call.Argument(1))
			return jsMap1(vm, call.Argument(0), func(x float64) float64 { return numeric.Log(x, base) }, 0)
		}
		return jsMap1(vm, call.Argument(0), func(x float64) float64 { return numeric.Log(x) }, 0)
	})
	set(m, "range", func(call goja.FunctionCall) goja.Value {
		step := 1.0
		if len(call.Arguments) > 2 {
			step = jsNumber(call.Argument(2))
		}
		xs, err := numeric.Range(jsNumber(call.Argument(0)), jsNumber(call.Argument(1)), step)
		if err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		return jsArray(vm, xs)
	})
	set(m, "linspace", func(call goja.FunctionCall) goja.Value {
		n := int64(100)
		if len(call.Arguments) > 2 {
			n = call.Argument(2).ToInteger()
		}
		if n > numeric.MaxElements {
			panic(vm.NewTypeError("%s", numeric.ErrTooManyElements.Error()))
		}
		xs, err := numeric.Linspace(jsNumber(call.Argument(0)), jsNumber(call.Argument(1)), int(n))
		if err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		return jsArray(vm, xs)
	})

	c := vm.NewObject()
	set(c, "log", jsConsole(console, "log"))
	set(c, "error", jsConsole(console, "error"))

	if err := vm.Set("math", m); err != nil {
		errs = append(errs, err)
	}
	if err := vm.Set("console", c); err != nil {
		errs = append(errs, err)
	}
	if err := vm.Set(resultsBinding, goja.Null()); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	_, err := vm.RunString(javascriptPrelude)
	return err
}

func jsConsole(console *Console, stream string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		console.Write(stream, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func jsArray(vm *goja.Runtime, xs []float64) goja.Value {
	items := make([]any, len(xs))
	for i, x := range xs {
		items[i] = x
	}
	return vm.NewArray(items...)
}

func jsNumber(v goja.Value) float64 {
	if v == nil {
		return math.NaN()
	}
	return v.ToFloat()
}

// jsElements returns the elements of v when v is an array.
func jsElements(vm *goja.Runtime, v goja.Value, depth int) ([]goja.Value, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		return nil, false
	}
	if depth >= maxNesting {
		panic(vm.NewTypeError("array nesting deeper than %d", maxNesting))
	}
	n := obj.Get("length").ToInteger()
	if n > numeric.MaxElements {
		panic(vm.NewTypeError("%s", numeric.ErrTooManyElements.Error()))
	}
	items := make([]goja.Value, n)
	for i := range items {
		items[i] = obj.Get(strconv.Itoa(i))
	}
	return items, true
}

// jsFlatten appends every number in v, descending into nested arrays.
func jsFlatten(vm *goja.Runtime, v goja.Value, dst []float64, depth int) []float64 {
	items, ok := jsElements(vm, v, depth)
	if !ok {
		return append(dst, jsNumber(v))
	}
	if len(dst)+len(items) > numeric.MaxElements {
		panic(vm.NewTypeError("%s", numeric.ErrTooManyElements.Error()))
	}
	for _, item := range items {
		dst = jsFlatten(vm, item, dst, depth+1)
	}
	return dst
}

func jsMap1(vm *goja.Runtime, v goja.Value, f func(float64) float64, depth int) goja.Value {
	items, ok := jsElements(vm, v, depth)
	if !ok {
		return vm.ToValue(f(jsNumber(v)))
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = jsMap1(vm, item, f, depth+1)
	}
	return vm.NewArray(out...)
}

func jsMap2(vm *goja.Runtime, a, b goja.Value, f func(float64, float64) float64, depth int) goja.Value {
	as, aArr := jsElements(vm, a, depth)
	bs, bArr := jsElements(vm, b, depth)

	var out []any
	switch {
	case aArr && bArr:
		if len(as) != len(bs) {
			panic(vm.NewTypeError("dimension mismatch (%d != %d)", len(as), len(bs)))
		}
		out = make([]any, len(as))
		for i := range as {
			out[i] = jsMap2(vm, as[i], bs[i], f, depth+1)
		}
	case aArr:
		out = make([]any, len(as))
		for i := range as {
			out[i] = jsMap2(vm, as[i], b, f, depth+1)
		}
	case bArr:
		out = make([]any, len(bs))
		for i := range bs {
			out[i] = jsMap2(vm, a, bs[i], f, depth+1)
		}
	default:
		return vm.ToValue(f(jsNumber(a), jsNumber(b)))
	}
	return vm.NewArray(out...)
}

// exportJS converts the results slot to plain Go values. Arrays are read up
// to limit+1 elements so an oversized slot is visible without copying it.
func exportJS(v goja.Value, limit, depth int) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if depth >= maxNesting {
		return obj.ClassName()
	}

	switch obj.ClassName() {
	case "Array":
		n := obj.Get("length").ToInteger()
		if n > int64(limit)+1 {
			n = int64(limit) + 1
		}
		out := make([]any, n)
		for i := range out {
			out[i] = exportJS(obj.Get(strconv.Itoa(i)), limit, depth+1)
		}
		return out
	case "Object":
		keys := obj.Keys()
		if len(keys) > limit {
			keys = keys[:limit]
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = exportJS(obj.Get(k), limit, depth+1)
		}
		return out
	default:
		// Functions, dates, maps and the like are not data.
		return obj.ClassName()
	}
}
