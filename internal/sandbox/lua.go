package sandbox

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/tbuliHe/visualizer/internal/numeric"
)

// luaRemovedGlobals are base-library entries that load code or reach
// outside the state. They are cleared after the base library is opened.
var luaRemovedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring",
	"require", "module",
	"collectgarbage", "getfenv", "setfenv", "newproxy", "_printregs",
}

// luaUnary are entries of Lua's own math library kept alongside the shared
// namespace, since Lua-trained code reaches for them.
var luaUnary = map[string]func(float64) float64{
	"rad": func(d float64) float64 { return d * math.Pi / 180 },
	"deg": func(r float64) float64 { return r * 180 / math.Pi },
}

// nonSequence is exported in place of a table that is neither a 1-based
// sequence nor a record, so validation rejects it instead of reading a
// truncated array part.
const nonSequence = "table with non-sequence keys"

// luaExecutor runs generated Lua on gopher-lua. Only the base, table and
// string libraries are opened; io, os, package, debug and channel are not.
type luaExecutor struct {
	cfg Config
}

func (e *luaExecutor) Language() Language { return LanguageLua }

// Execute runs source in a new Lua state under the configured ceiling.
func (e *luaExecutor) Execute(ctx context.Context, source string) (*Result, error) {
	runID := uuid.New().String()
	console := NewConsole(e.cfg.MaxConsoleLines)

	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: e.cfg.MaxCallStackSize,
	})
	defer L.Close()

	if err := installLua(L, console); err != nil {
		return nil, &ExecutionError{Kind: ErrRuntime, RunID: runID, Message: "build context: " + err.Error(), Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	L.SetContext(runCtx)

	start := time.Now()
	value, err := e.run(L, source)
	return conclude(runCtx, LanguageLua, runID, console, start, value, err)
}

func (e *luaExecutor) run(L *lua.LState, source string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, recovered(r)
		}
	}()

	if err := L.DoString(source); err != nil {
		return nil, err
	}
	return exportLua(L.GetGlobal(resultsBinding), e.cfg.MaxResultLength, 0), nil
}

// installLua opens the allow-listed libraries and binds math, print and
// the results slot.
func installLua(L *lua.LState, console *Console) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open %q: %w", lib.name, err)
		}
	}
	for _, name := range luaRemovedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	m := L.NewTable()
	for name, c := range numeric.Constants {
		m.RawSetString(name, lua.LNumber(c))
	}
	for name, f := range numeric.Unary {
		f := f
		m.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			L.Push(luaMap1(L, L.Get(1), f, 0))
			return 1
		}))
	}
	for name, f := range numeric.Binary {
		f := f
		m.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			L.Push(luaMap2(L, L.Get(1), L.Get(2), f, 0))
			return 1
		}))
	}
	for name, f := range luaUnary {
		f := f
		m.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			L.Push(luaMap1(L, L.Get(1), f, 0))
			return 1
		}))
	}
	for name, f := range numeric.Reduce {
		f := f
		m.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			var xs []float64
			for i := 1; i <= L.GetTop(); i++ {
				xs = luaFlatten(L, L.Get(i), xs, 0)
			}
			L.Push(lua.LNumber(f(xs)))
			return 1
		}))
	}
	m.RawSetString("huge", lua.LNumber(math.Inf(1)))
	m.RawSetString("fmod", L.NewFunction(func(L *lua.LState) int {
		L.Push(luaMap2(L, L.Get(1), L.Get(2), math.Mod, 0))
		return 1
	}))
	m.RawSetString("modf", L.NewFunction(func(L *lua.LState) int {
		whole, frac := math.Modf(float64(L.CheckNumber(1)))
		L.Push(lua.LNumber(whole))
		L.Push(lua.LNumber(frac))
		return 2
	}))
	m.RawSetString("nthRoot", L.NewFunction(func(L *lua.LState) int {
		root := float64(L.OptNumber(2, 2))
		L.Push(luaMap1(L, L.Get(1), func(x float64) float64 { return numeric.NthRoot(x, root) }, 0))
		return 1
	}))
	m.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		if L.GetTop() > 1 {
			base := float64(L.CheckNumber(2))
			L.Push(luaMap1(L, L.Get(1), func(x float64) float64 { return numeric.Log(x, base) }, 0))
			return 1
		}
		L.Push(luaMap1(L, L.Get(1), func(x float64) float64 { return numeric.Log(x) }, 0))
		return 1
	}))
	m.RawSetString("range", L.NewFunction(func(L *lua.LState) int {
		xs, err := numeric.Range(float64(L.CheckNumber(1)), float64(L.CheckNumber(2)), float64(L.OptNumber(3, 1)))
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		L.Push(luaArray(L, xs))
		return 1
	}))
	m.RawSetString("linspace", L.NewFunction(func(L *lua.LState) int {
		n := int(L.OptInt(3, 100))
		if n > numeric.MaxElements {
			L.RaiseError("%s", numeric.ErrTooManyElements.Error())
		}
		xs, err := numeric.Linspace(float64(L.CheckNumber(1)), float64(L.CheckNumber(2)), n)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		L.Push(luaArray(L, xs))
		return 1
	}))
	m.RawSetString("map", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		fn := L.CheckFunction(2)
		n := tbl.Len()
		if n > numeric.MaxElements {
			L.RaiseError("%s", numeric.ErrTooManyElements.Error())
		}
		out := L.CreateTable(n, 0)
		for i := 1; i <= n; i++ {
			L.Push(fn)
			L.Push(tbl.RawGetInt(i))
			L.Push(lua.LNumber(i))
			L.Call(2, 1)
			out.RawSetInt(i, L.Get(-1))
			L.Pop(1)
		}
		L.Push(out)
		return 1
	}))
	L.SetGlobal("math", m)

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		console.Write("log", strings.Join(parts, "\t"))
		return 0
	}))
	L.SetGlobal(resultsBinding, lua.LNil)
	return nil
}

func luaArray(L *lua.LState, xs []float64) *lua.LTable {
	t := L.CreateTable(len(xs), 0)
	for i, x := range xs {
		t.RawSetInt(i+1, lua.LNumber(x))
	}
	return t
}

// luaElements returns the array part of v when v is a table.
func luaElements(L *lua.LState, v lua.LValue, depth int) ([]lua.LValue, bool) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, false
	}
	if depth >= maxNesting {
		L.RaiseError("table nesting deeper than %d", maxNesting)
	}
	n := t.Len()
	if n > numeric.MaxElements {
		L.RaiseError("%s", numeric.ErrTooManyElements.Error())
	}
	items := make([]lua.LValue, n)
	for i := range items {
		items[i] = t.RawGetInt(i + 1)
	}
	return items, true
}

// luaFlatten appends every number in v, descending into nested tables.
func luaFlatten(L *lua.LState, v lua.LValue, dst []float64, depth int) []float64 {
	items, ok := luaElements(L, v, depth)
	if !ok {
		return append(dst, luaNumber(L, v))
	}
	if len(dst)+len(items) > numeric.MaxElements {
		L.RaiseError("%s", numeric.ErrTooManyElements.Error())
	}
	for _, item := range items {
		dst = luaFlatten(L, item, dst, depth+1)
	}
	return dst
}

func luaNumber(L *lua.LState, v lua.LValue) float64 {
	n, ok := v.(lua.LNumber)
	if !ok {
		L.RaiseError("number or table expected, got %s", v.Type().String())
	}
	return float64(n)
}

func luaMap1(L *lua.LState, v lua.LValue, f func(float64) float64, depth int) lua.LValue {
	items, ok := luaElements(L, v, depth)
	if !ok {
		return lua.LNumber(f(luaNumber(L, v)))
	}
	out := L.CreateTable(len(items), 0)
	for i, item := range items {
		out.RawSetInt(i+1, luaMap1(L, item, f, depth+1))
	}
	return out
}

func luaMap2(L *lua.LState, a, b lua.LValue, f func(float64, float64) float64, depth int) lua.LValue {
	as, aArr := luaElements(L, a, depth)
	bs, bArr := luaElements(L, b, depth)

	switch {
	case aArr && bArr:
		if len(as) != len(bs) {
			L.RaiseError("dimension mismatch (%d != %d)", len(as), len(bs))
		}
		out := L.CreateTable(len(as), 0)
		for i := range as {
			out.RawSetInt(i+1, luaMap2(L, as[i], bs[i], f, depth+1))
		}
		return out
	case aArr:
		out := L.CreateTable(len(as), 0)
		for i := range as {
			out.RawSetInt(i+1, luaMap2(L, as[i], b, f, depth+1))
		}
		return out
	case bArr:
		out := L.CreateTable(len(bs), 0)
		for i := range bs {
			out.RawSetInt(i+1, luaMap2(L, a, bs[i], f, depth+1))
		}
		return out
	default:
		return lua.LNumber(f(luaNumber(L, a), luaNumber(L, b)))
	}
}

// exportLua converts the results slot to plain Go values.
func exportLua(v lua.LValue, limit, depth int) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LNumber:
		return float64(x)
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if depth >= maxNesting {
			return "table"
		}
		return exportLuaTable(x, limit, depth)
	default:
		return v.Type().String()
	}
}

// exportLuaTable exports a table whose keys are exactly 1..n as a sequence
// and a table with only string keys as a record. 0-based, holey or mixed
// tables become nonSequence; an empty table is an empty sequence.
func exportLuaTable(t *lua.LTable, limit, depth int) any {
	var ints, strs, maxKey int
	valid := true
	t.ForEach(func(k, _ lua.LValue) {
		switch key := k.(type) {
		case lua.LString:
			strs++
		case lua.LNumber:
			i := int(key)
			if float64(i) != float64(key) || i < 1 {
				valid = false
				return
			}
			ints++
			if i > maxKey {
				maxKey = i
			}
		default:
			valid = false
		}
	})

	switch {
	case !valid, ints > 0 && (strs > 0 || maxKey != ints):
		return nonSequence
	case ints > 0:
		n := ints
		if n > limit+1 {
			n = limit + 1
		}
		out := make([]any, n)
		for i := range out {
			out[i] = exportLua(t.RawGetInt(i+1), limit, depth+1)
		}
		return out
	case strs > 0:
		out := make(map[string]any, strs)
		t.ForEach(func(k, val lua.LValue) {
			if len(out) < limit {
				out[string(k.(lua.LString))] = exportLua(val, limit, depth+1)
			}
		})
		return out
	default:
		return []any{}
	}
}
