package plan

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var lineRE = regexp.MustCompile(`^\s*(?:([A-Za-z_][A-Za-z0-9_]*)\s*=\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*(.*)$`)

// ParseLine reads the one-line form of a step used by the REPL:
//
//	[name =] op [arg, arg, ...]
//
// The arguments are a YAML flow sequence without the brackets, so
//
//	n = call $abs, int, [int], -5
//
// is the step {op: call, args: [$abs, int, [int], -5], bind: n}.
func ParseLine(line string) (Step, error) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return Step{}, fmt.Errorf("cannot parse %q: want [name =] op args", strings.TrimSpace(line))
	}
	s := Step{Bind: m[1], Op: m[2], Line: 1, Col: 1}
	rest := strings.TrimSpace(m[3])
	if rest == "" {
		return s, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte("["+rest+"]"), &doc); err != nil {
		return Step{}, fmt.Errorf("arguments: %w", err)
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.SequenceNode {
		return Step{}, fmt.Errorf("arguments: expected a comma separated list")
	}
	for _, c := range doc.Content[0].Content {
		s.Args = append(s.Args, *c)
	}
	return s, nil
}
