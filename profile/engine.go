package profile

import (
	"fmt"
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"gopkg.in/yaml.v3"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
)

// Engine holds loaded profile trees in declaration order. Load, then
// Compile, then Match; Match against an uncompiled engine fails.
type Engine struct {
	Profiles []*Profile
}

func New() *Engine {
	return &Engine{}
}

type document struct {
	Profiles []*Profile `yaml:"profiles"`
}

func (e *Engine) LoadString(s string) error {
	return e.LoadReader(strings.NewReader(s))
}

// LoadReader appends every profile from a YAML stream, honouring
// multiple documents in one stream.
func (e *Engine) LoadReader(r io.Reader) error {
	decoder := yaml.NewDecoder(r)

	for {
		d := document{}

		if err := decoder.Decode(&d); err != nil {
			if err == io.EOF {
				return nil
			}

			return fmt.Errorf("profile decode: %w", err)
		}

		e.Profiles = append(e.Profiles, d.Profiles...)
	}
}

// LoadFS loads every yaml file in a file system, in lexical order so
// profile precedence is stable across runs.
func (e *Engine) LoadFS(f fs.FS) error {
	return fs.WalkDir(f, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		file, err := f.Open(path)
		if err != nil {
			return fmt.Errorf("profile open: %s: %w", path, err)
		}
		defer file.Close()

		if err := e.LoadReader(file); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		return nil
	})
}

// Compile compiles every filter in every loaded tree and records
// parentage for setting inheritance. An absent filter matches
// unconditionally.
func (e *Engine) Compile() error {
	for _, p := range e.Profiles {
		if err := compileProfile(p, nil); err != nil {
			return err
		}
	}

	return nil
}

func compileProfile(p *Profile, parent *Profile) error {
	p.parent = parent

	filter := p.Filter
	if filter == "" {
		filter = "true"
	}

	compiled, err := expr.Compile(filter, expr.Env(Input{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("filter compilation: %s: %w", p.Description, err)
	}

	p.compiled = compiled

	for _, c := range p.Profiles {
		if err := compileProfile(c, p); err != nil {
			return fmt.Errorf("%s: %w", p.Description, err)
		}
	}

	return nil
}

// Match returns the most specific matching profile, or nil when nothing
// applies to the device.
func (e *Engine) Match(i Input) (*Profile, error) {
	for _, p := range e.Profiles {
		if p.compiled == nil {
			return nil, fmt.Errorf("profile not compiled: %s", p.Description)
		}

		if mp, err := p.match(i); err != nil {
			return nil, err
		} else if mp != nil {
			return mp, nil
		}
	}

	return nil, nil
}

func run(program *vm.Program, i Input) (bool, error) {
	out, err := expr.Run(program, i)
	if err != nil {
		return false, err
	}

	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, wanted bool", out)
	}

	return b, nil
}
