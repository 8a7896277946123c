package scenario

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/nvandessel/cellgraph/internal/locator"
	"gopkg.in/yaml.v3"
)

// Scenario is a named list of steps.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Place     *PlaceStep     `yaml:"place,omitempty"`
	Remove    *Target        `yaml:"remove,omitempty"`
	Reconnect *ReconnectStep `yaml:"reconnect,omitempty"`
	Solid     *SolidStep     `yaml:"solid,omitempty"`
	Save      *struct{}      `yaml:"save,omitempty"`
	Unload    *ChunkStep     `yaml:"unload,omitempty"`
	Load      *ChunkStep     `yaml:"load,omitempty"`
	Reopen    *struct{}      `yaml:"reopen,omitempty"`
	Expect    *Expect        `yaml:"expect,omitempty"`
}

// Vec is a block position written as [x, y, z].
type Vec []int

// Pos converts v to a block position.
func (v Vec) Pos() (locator.BlockPos, error) {
	if len(v) != 3 {
		return locator.BlockPos{}, fmt.Errorf("position %v: want [x, y, z]", []int(v))
	}
	return locator.Pos(v[0], v[1], v[2]), nil
}

// Target names a cell by position and face. In YAML it is either a
// mapping {pos: [x, y, z], face: up} or a bare [x, y, z] for the top face.
type Target struct {
	Pos  Vec    `yaml:"pos"`
	Face string `yaml:"face,omitempty"`
}

// UnmarshalYAML accepts both target forms.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		t.Face = ""
		return node.Decode(&t.Pos)
	}
	type plain Target
	return node.Decode((*plain)(t))
}

// Resolve returns the target's position and face.
func (t Target) Resolve() (locator.BlockPos, locator.Direction, error) {
	pos, err := t.Pos.Pos()
	if err != nil {
		return locator.BlockPos{}, 0, err
	}
	face, err := parseFace(t.Face)
	return pos, face, err
}

// PlaceStep places a block, a part or a solid.
type PlaceStep struct {
	Kind       string   `yaml:"kind"`
	Pos        Vec      `yaml:"pos"`
	Face       string   `yaml:"face,omitempty"`
	Cell       string   `yaml:"cell,omitempty"`
	Modes      []string `yaml:"modes,omitempty"`
	Directions []string `yaml:"directions,omitempty"`
}

// ReconnectStep replaces a cell's direction restriction and reconnects it.
type ReconnectStep struct {
	Pos        Vec      `yaml:"pos"`
	Face       string   `yaml:"face,omitempty"`
	Directions []string `yaml:"directions,omitempty"`
}

// Target returns the reconnected cell.
func (s *ReconnectStep) Target() Target { return Target{Pos: s.Pos, Face: s.Face} }

// SolidStep places a plain block without cells.
type SolidStep struct {
	Pos Vec `yaml:"pos"`
}

// ChunkStep names a chunk column as [x, z].
type ChunkStep struct {
	Chunk []int `yaml:"chunk"`
}

// Expect lists checks against the current topology. Unset fields are not
// checked.
type Expect struct {
	Graphs *int `yaml:"graphs,omitempty"`
	Cells  *int `yaml:"cells,omitempty"`
	// Sizes are compared as a sorted multiset.
	Sizes []int `yaml:"sizes,omitempty"`
	// Connected lists groups of cells that must share a graph.
	Connected [][]Target `yaml:"connected,omitempty"`
	// Separated lists pairs of cells that must be in different graphs.
	Separated [][]Target `yaml:"separated,omitempty"`
}

// Action names the step's action.
func (s Step) Action() string {
	names := s.actions()
	if len(names) != 1 {
		return "invalid"
	}
	return names[0]
}

func (s Step) actions() []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(s.Place != nil, "place")
	add(s.Remove != nil, "remove")
	add(s.Reconnect != nil, "reconnect")
	add(s.Solid != nil, "solid")
	add(s.Save != nil, "save")
	add(s.Unload != nil, "unload")
	add(s.Load != nil, "load")
	add(s.Reopen != nil, "reopen")
	add(s.Expect != nil, "expect")
	return names
}

// Validate checks that every step holds exactly one action.
func (sc *Scenario) Validate() error {
	var errs []error
	for i, s := range sc.Steps {
		switch names := s.actions(); len(names) {
		case 1:
		case 0:
			errs = append(errs, fmt.Errorf("step %d: no action", i))
		default:
			errs = append(errs, fmt.Errorf("step %d: several actions %v", i, names))
		}
	}
	return errors.Join(errs...)
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads a scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

func parseFace(s string) (locator.Direction, error) {
	if s == "" {
		return locator.Up, nil
	}
	return locator.ParseDirection(s)
}

func parseDirections(names []string) ([]locator.Direction, error) {
	out := make([]locator.Direction, 0, len(names))
	for _, n := range names {
		d, err := locator.ParseDirection(n)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func parseModes(names []string) (locator.ModeMask, error) {
	var modes []locator.Mode
	for _, n := range names {
		m, err := locator.ParseMode(n)
		if err != nil {
			return 0, err
		}
		modes = append(modes, m)
	}
	return locator.Modes(modes...), nil
}
