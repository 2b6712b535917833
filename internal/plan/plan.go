// plan.go: call plans, a YAML description of a sequence of bridge operations.
//
// What this file does
// -------------------
// A call plan drives the bridge without a script interpreter. Each step names
// one bridge export (open, symbol, call, malloc, ...), gives its arguments as
// YAML values, and may bind the result to a name or check it:
//
//	name: abs via libc
//	steps:
//	  - op: open
//	    args: [libc.so.6]
//	    bind: libc
//	  - op: symbol
//	    args: [$libc, abs]
//	    bind: abs
//	  - op: call
//	    args: [$abs, int, [int], -42]
//	    expect: 42
//
// Argument conventions
// --------------------
//   - Scalars map to null, bool, int, num and str values. Hex literals
//     (0x10) are integers.
//   - "$name" refers to a bound result; "$$" escapes a leading dollar.
//   - Sequences map to arrays.
//   - A mapping with an "fn" key builds a Go-side function usable as a
//     callback target; see reducers.go for the available functions.
//
// Errors
// ------
// Plan decoding failures come back as yaml.v3 errors. Step failures come back
// as *StepError carrying the step's line and column in the plan source, which
// Render turns into a caret snippet.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is a decoded call plan.
type Plan struct {
	Name   string `yaml:"name"`
	Config string `yaml:"config"` // optional path to a bridge config file
	Steps  []Step `yaml:"steps"`

	Source []byte `yaml:"-"`
	Path   string `yaml:"-"`
}

// Step is one bridge operation.
type Step struct {
	Op          string      `yaml:"op"`
	Args        []yaml.Node `yaml:"args"`
	Bind        string      `yaml:"bind"`
	Expect      yaml.Node   `yaml:"expect"`      // zero Kind when absent
	ExpectError string      `yaml:"expectError"` // error kind name, e.g. ArityError

	Line, Col int `yaml:"-"`
}

// UnmarshalYAML decodes a step and records where it starts.
func (s *Step) UnmarshalYAML(n *yaml.Node) error {
	type raw Step
	if err := n.Decode((*raw)(s)); err != nil {
		return err
	}
	s.Line, s.Col = n.Line, n.Column
	if s.Op == "" {
		return fmt.Errorf("line %d: step without op", n.Line)
	}
	return nil
}

// Parse decodes plan source.
func Parse(src []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(src, &p); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	p.Source = src
	return &p, nil
}

// Load reads and decodes the plan at path.
func Load(path string) (*Plan, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	p.Path = path
	return p, nil
}
