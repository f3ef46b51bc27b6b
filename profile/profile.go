// Package profile selects per device configuration from declarative
// YAML documents. Each profile carries an expression filter evaluated
// against what enumeration discovered about the device; the first
// matching profile wins, with nested profiles refining their parent and
// inheriting any setting they do not override.
package profile

import (
	"fmt"
	"github.com/antonmedv/expr/vm"
)

// InputProduct is the basic cluster identity of the device under
// consideration.
type InputProduct struct {
	Manufacturer string
	Model        string
	Version      string
}

type InputNode struct {
	ManufacturerCode uint16
}

type InputEndpoint struct {
	ID         uint8
	DeviceID   uint16
	InClusters []uint16
}

// Input is the expression environment a filter runs against.
type Input struct {
	Product  InputProduct
	Node     InputNode
	Endpoint InputEndpoint
}

// Profile is one node of a selection tree. A profile only applies when
// its own filter matches; a matching child is always preferred over the
// profile itself.
type Profile struct {
	Description string              `yaml:"description"`
	Filter      string              `yaml:"filter"`
	Settings    map[string]Settings `yaml:"settings"`
	Profiles    []*Profile          `yaml:"profiles"`

	parent   *Profile
	compiled *vm.Program
}

func (p *Profile) match(i Input) (*Profile, error) {
	matched, err := p.matches(i)
	if err != nil {
		return nil, err
	}

	if !matched {
		return nil, nil
	}

	for _, c := range p.Profiles {
		if mp, err := c.match(i); err != nil {
			return nil, err
		} else if mp != nil {
			return mp, nil
		}
	}

	return p, nil
}

func (p *Profile) matches(i Input) (bool, error) {
	out, err := run(p.compiled, i)
	if err != nil {
		return false, fmt.Errorf("filter evaluation: %s: %w", p.Description, err)
	}

	return out, nil
}

// StringSetting walks up the tree until a profile provides the value,
// falling back to def at the root.
func (p *Profile) StringSetting(ns string, key string, def string) string {
	if s, nsOk := p.Settings[ns]; nsOk {
		if v, valOk := s.String(key); valOk {
			return v
		}
	}

	if p.parent != nil {
		return p.parent.StringSetting(ns, key, def)
	}

	return def
}

func (p *Profile) IntSetting(ns string, key string, def int) int {
	if s, nsOk := p.Settings[ns]; nsOk {
		if v, valOk := s.Int(key); valOk {
			return v
		}
	}

	if p.parent != nil {
		return p.parent.IntSetting(ns, key, def)
	}

	return def
}

func (p *Profile) FloatSetting(ns string, key string, def float64) float64 {
	if s, nsOk := p.Settings[ns]; nsOk {
		if v, valOk := s.Float(key); valOk {
			return v
		}
	}

	if p.parent != nil {
		return p.parent.FloatSetting(ns, key, def)
	}

	return def
}

func (p *Profile) BooleanSetting(ns string, key string, def bool) bool {
	if s, nsOk := p.Settings[ns]; nsOk {
		if v, valOk := s.Boolean(key); valOk {
			return v
		}
	}

	if p.parent != nil {
		return p.parent.BooleanSetting(ns, key, def)
	}

	return def
}
