package plan

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daios-ai/dynffi"
)

// value converts an argument node into a bridge value.
func (r *Runner) value(n *yaml.Node) (dynffi.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return r.value(n.Alias)
	case yaml.ScalarNode:
		return r.scalar(n)
	case yaml.SequenceNode:
		xs := make([]dynffi.Value, len(n.Content))
		for i, c := range n.Content {
			v, err := r.value(c)
			if err != nil {
				return dynffi.Null, err
			}
			xs[i] = v
		}
		return dynffi.Arr(xs), nil
	case yaml.MappingNode:
		return r.function(n)
	}
	return dynffi.Null, fmt.Errorf("line %d: unsupported value", n.Line)
}

func (r *Runner) scalar(n *yaml.Node) (dynffi.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return dynffi.Null, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return dynffi.Null, err
		}
		return dynffi.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return dynffi.Int(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return dynffi.Null, fmt.Errorf("line %d: integer %s out of range", n.Line, n.Value)
		}
		return dynffi.Uint(u), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return dynffi.Null, err
		}
		return dynffi.Num(f), nil
	}

	s := n.Value
	switch {
	case strings.HasPrefix(s, "$$"):
		return dynffi.Str(s[1:]), nil
	case strings.HasPrefix(s, "$") && len(s) > 1:
		v, ok := r.vars[s[1:]]
		if !ok {
			return dynffi.Null, fmt.Errorf("line %d: %s is not bound", n.Line, s)
		}
		return v, nil
	}
	return dynffi.Str(s), nil
}
