package hooks

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultLuaTimeout bounds a single Lua filter invocation
const DefaultLuaTimeout = 100 * time.Millisecond

// LuaFilter runs a Lua script as a text filter.
//
// The script must define a global function `filter(value, hook)` returning
// the replacement string. Only the base, string, table and math libraries
// are available, and the base functions that reach the file system
// (dofile, loadfile) are removed.
//
// Example:
//
//	function filter(value, hook)
//	  return "Posted by " .. value
//	end
type LuaFilter struct {
	hook    string
	script  string
	timeout time.Duration
}

// LuaFilterConfig configures a Lua filter
type LuaFilterConfig struct {
	// Hook is the hook name passed to the script as its second argument
	Hook string

	// Script is the Lua source defining `filter`
	Script string

	// Timeout bounds each invocation (default: DefaultLuaTimeout)
	Timeout time.Duration
}

// NewLuaFilter compiles and validates a Lua filter
func NewLuaFilter(cfg LuaFilterConfig) (*LuaFilter, error) {
	if cfg.Script == "" {
		return nil, fmt.Errorf("script is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultLuaTimeout
	}

	// Validate that the script has a filter function
	L, err := newLuaState()
	if err != nil {
		return nil, err
	}
	defer L.Close()

	if err := L.DoString(cfg.Script); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	if L.GetGlobal("filter").Type() != lua.LTFunction {
		return nil, fmt.Errorf("script must define a 'filter' function")
	}

	return &LuaFilter{
		hook:    cfg.Hook,
		script:  cfg.Script,
		timeout: timeout,
	}, nil
}

// Filter implements Filter.
// Each call gets its own Lua state, so a LuaFilter is safe for concurrent use.
func (f *LuaFilter) Filter(value string) (string, error) {
	L, err := newLuaState()
	if err != nil {
		return "", err
	}
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(f.script); err != nil {
		return "", fmt.Errorf("failed to load script: %w", err)
	}

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("filter"),
		NRet:    1,
		Protect: true,
	}, lua.LString(value), lua.LString(f.hook)); err != nil {
		return "", fmt.Errorf("filter failed: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	s, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("filter must return a string, got %s", ret.Type())
	}
	return string(s), nil
}

func newLuaState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open lua library %s: %w", lib.name, err)
		}
	}

	for _, name := range sandboxRemoved {
		L.SetGlobal(name, lua.LNil)
	}

	return L, nil
}

// sandboxRemoved are base library globals that read files
var sandboxRemoved = []string{"dofile", "loadfile"}
