package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed builtin.cue
var builtinSource string

var (
	builtinOnce  sync.Once
	builtinTable *Table
	builtinErr   error
)

// Builtin returns the embedded table covering the generic record types.
// The table is compiled once and must be treated as read-only.
func Builtin() (*Table, error) {
	builtinOnce.Do(func() {
		builtinTable, builtinErr = CompileString("builtin.cue", builtinSource)
		if builtinErr == nil {
			builtinErr = builtinTable.Validate()
		}
	})
	return builtinTable, builtinErr
}

// CompileString compiles CUE source text into a table. The result is not
// validated; callers overlaying it on another table validate the merge.
func CompileString(filename, src string) (*Table, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadDir compiles the CUE package in dir and overlays it on the builtin
// table. Record layouts and policy lists declared in dir replace the
// builtin ones for the same record type.
func LoadDir(dir string) (*Table, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	base, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("builtin schema: %w", err)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("schema directory %s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := ctx.BuildInstance(inst)
	user, err := Compile(v)
	if err != nil {
		return nil, err
	}

	t := base.Merge(user)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Overlay compiles src and overlays it on the builtin table.
func Overlay(filename, src string) (*Table, error) {
	base, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("builtin schema: %w", err)
	}
	user, err := CompileString(filename, src)
	if err != nil {
		return nil, err
	}
	t := base.Merge(user)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
