package dynffi

import "fmt"

// Engine is the script engine seen from the native side. Apply must be safe
// to call while another Apply of the same engine is already on the stack: a
// callback dispatch re-enters the engine on the thread that made the native
// call.
type Engine interface {
	Apply(fn Value, args []Value) (Value, error)
}

// Func is a callable script value implemented in Go. Arity < 0 marks a
// variadic function.
type Func struct {
	Name  string
	Arity int
	Doc   string
	Impl  func(args []Value) (Value, error)
}

// FunVal wraps f as a VTFun value.
func FunVal(f *Func) Value { return Value{Tag: VTFun, Data: f} }

// NewFunc is shorthand for FunVal(&Func{...}).
func NewFunc(name string, arity int, impl func(args []Value) (Value, error)) Value {
	return FunVal(&Func{Name: name, Arity: arity, Impl: impl})
}

// FuncEngine applies *Func values directly. It is the engine used by the
// CLI and the call-plan host; embedders with their own interpreter supply
// their own Engine.
type FuncEngine struct{}

func (FuncEngine) Apply(fn Value, args []Value) (Value, error) {
	if fn.Tag != VTFun {
		return Null, fmt.Errorf("apply: not a function: %s", fn.Tag)
	}
	f := fn.Data.(*Func)
	if f.Arity >= 0 && len(args) != f.Arity {
		return Null, fmt.Errorf("%s: expected %d arguments, got %d", f.Name, f.Arity, len(args))
	}
	return f.Impl(args)
}
