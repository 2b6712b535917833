package plan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/daios-ai/dynffi"
)

// Runner executes steps against one bridge. Bindings persist across Run and
// Step calls, so a REPL can keep feeding it lines.
type Runner struct {
	b       *dynffi.Bridge
	engine  dynffi.Engine
	exports map[string]dynffi.Value
	vars    map[string]dynffi.Value
	log     *slog.Logger
	out     io.Writer
}

// NewRunner returns a runner over b. print steps write to out.
func NewRunner(b *dynffi.Bridge, log *slog.Logger, out io.Writer) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		b:       b,
		engine:  dynffi.FuncEngine{},
		exports: b.Exports(),
		vars:    map[string]dynffi.Value{},
		log:     log,
		out:     out,
	}
}

// Result summarizes a completed run.
type Result struct {
	Steps int
	Last  dynffi.Value
}

// Run executes p's steps in order and stops at the first failure, which is
// returned as a *StepError.
func (r *Runner) Run(ctx context.Context, p *Plan) (Result, error) {
	res := Result{Last: dynffi.Null}
	for i, s := range p.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		v, err := r.Step(s)
		if err != nil {
			return res, &StepError{Index: i, Op: s.Op, Line: s.Line, Col: s.Col, Err: err}
		}
		r.log.Debug("step done", "index", i+1, "op", s.Op, "result", v.String())
		res.Steps++
		res.Last = v
	}
	return res, nil
}

// Step executes one step, checks its expectations and binds its result.
func (r *Runner) Step(s Step) (dynffi.Value, error) {
	args := make([]dynffi.Value, len(s.Args))
	for i := range s.Args {
		v, err := r.value(&s.Args[i])
		if err != nil {
			return dynffi.Null, err
		}
		args[i] = v
	}

	v, err := r.apply(s.Op, args)
	if s.ExpectError != "" {
		switch {
		case err == nil:
			return dynffi.Null, fmt.Errorf("expected %s, got %s", s.ExpectError, v)
		case dynffi.KindOf(err).String() != s.ExpectError:
			return dynffi.Null, fmt.Errorf("expected %s, got %w", s.ExpectError, err)
		}
		r.log.Debug("expected failure", "op", s.Op, "error", err)
		return dynffi.Null, nil
	}
	if err != nil {
		return dynffi.Null, err
	}

	if s.Expect.Kind != 0 {
		want, err := r.value(&s.Expect)
		if err != nil {
			return dynffi.Null, err
		}
		if !want.Equal(v) {
			return dynffi.Null, fmt.Errorf("expected %s, got %s", want, v)
		}
	}
	if s.Bind != "" {
		r.vars[s.Bind] = v
	}
	return v, nil
}

func (r *Runner) apply(op string, args []dynffi.Value) (dynffi.Value, error) {
	switch op {
	case "let":
		if len(args) != 1 {
			return dynffi.Null, fmt.Errorf("let: expected 1 argument, got %d", len(args))
		}
		return args[0], nil
	case "print":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(r.out, strings.Join(parts, " "))
		return dynffi.Null, nil
	}
	fn, ok := r.exports[op]
	if !ok {
		return dynffi.Null, fmt.Errorf("unknown op %q", op)
	}
	return r.engine.Apply(fn, args)
}

// Set binds name for later $name references.
func (r *Runner) Set(name string, v dynffi.Value) { r.vars[name] = v }

// Get returns the value bound to name.
func (r *Runner) Get(name string) (dynffi.Value, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Names lists the bound names, sorted.
func (r *Runner) Names() []string {
	out := make([]string, 0, len(r.vars))
	for k := range r.vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ops lists every op a step may name.
func (r *Runner) Ops() []string {
	out := []string{"let", "print"}
	for k := range r.exports {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
