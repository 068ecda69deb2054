package compiler

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/procura/internal/extract"
)

//go:embed layouts/*.cue
var builtin embed.FS

// Defaults compiles the layouts shipped with the binary.
func Defaults() ([]extract.Layout, error) {
	names, err := fs.Glob(builtin, "layouts/*.cue")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	ctx := cuecontext.New()
	var out []extract.Layout
	for _, name := range names {
		src, err := builtin.ReadFile(name)
		if err != nil {
			return nil, err
		}
		v := ctx.CompileBytes(src, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		layouts, err := compileAll(v)
		if err != nil {
			return nil, err
		}
		out = append(out, layouts...)
	}
	return sortLayouts(out), nil
}

// LoadDir compiles every layout of the CUE package in dir.
func LoadDir(dir string) ([]extract.Layout, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("layouts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("layouts directory: not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	layouts, err := compileAll(value)
	if err != nil {
		return nil, err
	}
	return sortLayouts(layouts), nil
}

// Load returns the built-in layouts, with those compiled from dir replacing
// built-ins of the same variant. An empty dir means built-ins only.
func Load(dir string) ([]extract.Layout, error) {
	layouts, err := Defaults()
	if err != nil {
		return nil, fmt.Errorf("built-in layouts: %w", err)
	}
	if dir == "" {
		return layouts, nil
	}
	overrides, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}

	byVariant := make(map[string]extract.Layout, len(layouts)+len(overrides))
	for _, l := range layouts {
		byVariant[l.Variant] = l
	}
	for _, l := range overrides {
		byVariant[l.Variant] = l
	}
	merged := make([]extract.Layout, 0, len(byVariant))
	for _, l := range byVariant {
		merged = append(merged, l)
	}
	return sortLayouts(merged), nil
}

// compileAll compiles every field of the top-level "layout" struct. All
// errors are collected.
func compileAll(v cue.Value) ([]extract.Layout, error) {
	layoutsVal := v.LookupPath(cue.ParsePath("layout"))
	if !layoutsVal.Exists() {
		return nil, &CompileError{Field: "layout", Message: "no layout definitions", Pos: v.Pos()}
	}
	iter, err := layoutsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var (
		out  []extract.Layout
		errs []error
	)
	for iter.Next() {
		l, err := CompileLayout(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, l)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func sortLayouts(ls []extract.Layout) []extract.Layout {
	sort.Slice(ls, func(i, j int) bool { return ls[i].Variant < ls[j].Variant })
	return ls
}
