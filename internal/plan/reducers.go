package plan

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daios-ai/dynffi"
)

// Functions a plan can hand to createCallback. Each is written as a mapping
// with an fn key:
//
//	{fn: add}                 sum of the arguments
//	{fn: sub}                 first argument minus the rest
//	{fn: mul}                 product of the arguments
//	{fn: first}               the first argument, or null
//	{fn: zero}                always 0
//	{fn: const, value: 7}     always value
//	{fn: upper}               first argument upper-cased
//	{fn: fail, message: m}    always fails with m
//	{fn: compare, type: T}    qsort-style comparator over two T pointers
type fnSpec struct {
	Fn      string    `yaml:"fn"`
	Value   yaml.Node `yaml:"value"`
	Message string    `yaml:"message"`
	Type    string    `yaml:"type"`
}

func (r *Runner) function(n *yaml.Node) (dynffi.Value, error) {
	var spec fnSpec
	if err := n.Decode(&spec); err != nil {
		return dynffi.Null, err
	}
	switch spec.Fn {
	case "add":
		return dynffi.NewFunc("add", -1, func(args []dynffi.Value) (dynffi.Value, error) {
			return fold(args, 0, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
		}), nil
	case "mul":
		return dynffi.NewFunc("mul", -1, func(args []dynffi.Value) (dynffi.Value, error) {
			return fold(args, 1, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
		}), nil
	case "sub":
		return dynffi.NewFunc("sub", -1, func(args []dynffi.Value) (dynffi.Value, error) {
			if len(args) == 0 {
				return dynffi.Int(0), nil
			}
			rest, err := fold(args[1:], 0, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
			if err != nil {
				return dynffi.Null, err
			}
			return fold([]dynffi.Value{args[0], negate(rest)}, 0, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
		}), nil
	case "first":
		return dynffi.NewFunc("first", -1, func(args []dynffi.Value) (dynffi.Value, error) {
			if len(args) == 0 {
				return dynffi.Null, nil
			}
			return args[0], nil
		}), nil
	case "zero":
		return dynffi.NewFunc("zero", -1, func([]dynffi.Value) (dynffi.Value, error) { return dynffi.Int(0), nil }), nil
	case "const":
		if spec.Value.Kind == 0 {
			return dynffi.Null, fmt.Errorf("line %d: const needs a value", n.Line)
		}
		v, err := r.value(&spec.Value)
		if err != nil {
			return dynffi.Null, err
		}
		return dynffi.NewFunc("const", -1, func([]dynffi.Value) (dynffi.Value, error) { return v, nil }), nil
	case "upper":
		return dynffi.NewFunc("upper", -1, func(args []dynffi.Value) (dynffi.Value, error) {
			if len(args) == 0 || args[0].Tag != dynffi.VTStr {
				return dynffi.Null, errors.New("upper: expected a string")
			}
			return dynffi.Str(strings.ToUpper(args[0].Data.(string))), nil
		}), nil
	case "fail":
		msg := spec.Message
		if msg == "" {
			msg = "fail"
		}
		return dynffi.NewFunc("fail", -1, func([]dynffi.Value) (dynffi.Value, error) { return dynffi.Null, errors.New(msg) }), nil
	case "compare":
		typ := spec.Type
		if typ == "" {
			typ = "int32"
		}
		if _, err := dynffi.ResolveType(typ); err != nil {
			return dynffi.Null, err
		}
		return dynffi.NewFunc("compare", 2, func(args []dynffi.Value) (dynffi.Value, error) {
			return r.compare(typ, args[0], args[1])
		}), nil
	case "":
		return dynffi.Null, fmt.Errorf("line %d: mapping without fn", n.Line)
	}
	return dynffi.Null, fmt.Errorf("line %d: unknown fn %q", n.Line, spec.Fn)
}

// compare loads one typ element through each pointer and orders them.
func (r *Runner) compare(typ string, pa, pb dynffi.Value) (dynffi.Value, error) {
	load := func(p dynffi.Value) (float64, error) {
		a, ok := p.AsAddress()
		if !ok {
			return 0, fmt.Errorf("compare: expected a pointer, got %s", p.Tag)
		}
		xs, err := r.b.ReadArray(a, typ, 1)
		if err != nil {
			return 0, err
		}
		f, ok := xs[0].AsFloat()
		if !ok {
			return 0, fmt.Errorf("compare: %s is not numeric", typ)
		}
		return f, nil
	}
	x, err := load(pa)
	if err != nil {
		return dynffi.Null, err
	}
	y, err := load(pb)
	if err != nil {
		return dynffi.Null, err
	}
	switch {
	case x < y:
		return dynffi.Int(-1), nil
	case x > y:
		return dynffi.Int(1), nil
	}
	return dynffi.Int(0), nil
}

// fold combines args as integers, or as floats once a num shows up.
func fold(args []dynffi.Value, unit int64, fi func(a, b int64) int64, ff func(a, b float64) float64) (dynffi.Value, error) {
	acc := unit
	var facc float64
	useFloat := false
	for i, a := range args {
		if a.Tag == dynffi.VTNum && !useFloat {
			useFloat = true
			facc = float64(acc)
		}
		if useFloat {
			f, ok := a.AsFloat()
			if !ok {
				return dynffi.Null, fmt.Errorf("argument %d: expected a number, got %s", i, a.Tag)
			}
			facc = ff(facc, f)
			continue
		}
		n, ok := a.AsInt()
		if !ok {
			return dynffi.Null, fmt.Errorf("argument %d: expected a number, got %s", i, a.Tag)
		}
		acc = fi(acc, n)
	}
	if useFloat {
		return dynffi.Num(facc), nil
	}
	return dynffi.Int(acc), nil
}

func negate(v dynffi.Value) dynffi.Value {
	if v.Tag == dynffi.VTNum {
		return dynffi.Num(-v.Data.(float64))
	}
	n, _ := v.AsInt()
	return dynffi.Int(-n)
}
