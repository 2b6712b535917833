package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/daios-ai/dynffi"
	"github.com/daios-ai/dynffi/internal/plan"
)

const (
	appName     = "dynffi"
	historyFile = ".dynffi_history"
	promptMain  = "ffi> "
	promptCont  = "...  "
)

var (
	banner   = fmt.Sprintf("dynffi %s REPL\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands.", dynffi.Version)
	helpText = `
Steps are written as:  [name =] op arg, arg, ...
  lib = open libc.so.6
  abs = symbol $lib, abs
  call $abs, int, [int], -5

REPL commands:
  :help          Show this text
  :ops           List the available ops
  :types         List the native type names
  :vars          List bound names
  :dump <name>   Show the Go value bound to name
  :quit          Exit the REPL
`
)

// dumper shows the raw Go shape of a value, not its String form.
var dumper = spew.ConfigState{Indent: "  ", DisableMethods: true, DisablePointerAddresses: true}

func red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }
func blue(s string) string  { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "types":
		os.Exit(cmdTypes())
	case "exports":
		os.Exit(cmdExports())
	case "version":
		fmt.Println(dynffi.Version)
		return
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`dynffi %s (built %s)

Usage:
  %s run [--config f] [--log-level l] <plan.yaml>   Run a call plan.
  %s repl [--config f] [--log-level l]              Start the REPL.
  %s types                                          List native type names.
  %s exports                                        List the script-facing operations.
  %s version                                        Print the compiled version

`, dynffi.Version, dynffi.BuildDate, appName, appName, appName, appName, appName)
}

// -----------------------------------------------------------------------------
// shared setup
// -----------------------------------------------------------------------------

type options struct {
	config   string
	logLevel string
}

func parseFlags(name string, args []string) (*flag.FlagSet, options, error) {
	var o options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&o.config, "config", "", "bridge config file (YAML)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error; overrides the config")
	err := fs.Parse(args)
	return fs, o, err
}

// newBridge loads the config and builds a bridge logging to stderr.
func newBridge(o options) (*dynffi.Bridge, *slog.Logger, error) {
	cfg := dynffi.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = dynffi.LoadConfig(o.config); err != nil {
			return nil, nil, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	lvl, err := dynffi.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	cfg.Logger = log
	b, err := dynffi.NewBridge(nil, cfg)
	if err != nil {
		return nil, nil, err
	}
	return b, log, nil
}

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

func cmdRun(args []string) int {
	fs, o, err := parseFlags("run", args)
	if err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s run [--config f] [--log-level l] <plan.yaml>\n", appName)
		return 2
	}
	file := fs.Arg(0)

	p, err := plan.Load(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot load %s: %v\n", appName, file, err)
		return 1
	}
	if o.config == "" && p.Config != "" {
		o.config = p.Config
		if !filepath.IsAbs(o.config) {
			o.config = filepath.Join(filepath.Dir(file), o.config)
		}
	}

	b, log, err := newBridge(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := plan.NewRunner(b, log, os.Stdout)
	res, err := r.Run(ctx, p)
	if err != nil {
		var se *plan.StepError
		if errors.As(err, &se) {
			fmt.Fprint(os.Stderr, red(se.Render(string(p.Source), file)))
		} else {
			fmt.Fprintln(os.Stderr, red(err.Error()))
		}
		return 1
	}
	name := p.Name
	if name == "" {
		name = file
	}
	fmt.Println(green(fmt.Sprintf("ok  %s  (%d steps)", name, res.Steps)))
	return 0
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(args []string) int {
	_, o, err := parseFlags("repl", args)
	if err != nil {
		return 2
	}
	b, log, err := newBridge(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer b.Close()
	r := plan.NewRunner(b, log, os.Stdout)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return batch(r, os.Stdin, os.Stdout)
	}

	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		_ = b.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, ok := readBalanced(ln)
		if !ok {
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(line, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if command(r, trimmed, os.Stdout) {
				return 0
			}
			continue
		}
		v, err := eval(r, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			continue
		}
		fmt.Println(blue(v.String()))
	}
	return 0
}

// batch runs piped input line by line and stops at the first error.
func batch(r *plan.Runner, in io.Reader, out io.Writer) int {
	sc := bufio.NewScanner(in)
	var pending strings.Builder
	for sc.Scan() {
		if pending.Len() > 0 {
			pending.WriteByte('\n')
		}
		pending.WriteString(sc.Text())
		line := pending.String()
		if depth(line) > 0 {
			continue
		}
		pending.Reset()

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		case strings.HasPrefix(trimmed, ":"):
			if command(r, trimmed, out) {
				return 0
			}
			continue
		}
		v, err := eval(r, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintln(out, v.String())
	}
	return 0
}

func eval(r *plan.Runner, line string) (dynffi.Value, error) {
	s, err := plan.ParseLine(strings.ReplaceAll(line, "\n", " "))
	if err != nil {
		return dynffi.Null, err
	}
	return r.Step(s)
}

// command runs a ':' command and reports whether the REPL should exit.
func command(r *plan.Runner, cmd string, out io.Writer) bool {
	fields := strings.Fields(cmd)
	switch strings.ToLower(fields[0]) {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Fprint(out, helpText)
	case ":ops":
		fmt.Fprintln(out, strings.Join(r.Ops(), " "))
	case ":types":
		fmt.Fprintln(out, strings.Join(dynffi.TypeNames(), " "))
	case ":vars":
		for _, n := range r.Names() {
			v, _ := r.Get(n)
			fmt.Fprintf(out, "%s = %s\n", n, v)
		}
	case ":dump":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: :dump <name>")
			break
		}
		v, ok := r.Get(fields[1])
		if !ok {
			fmt.Fprintf(out, "%s is not bound\n", fields[1])
			break
		}
		fmt.Fprint(out, dumper.Sdump(v))
	default:
		fmt.Fprintln(out, "unknown command. Type :help for a list.")
	}
	return false
}

// readBalanced keeps prompting while brackets are open.
func readBalanced(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C drops the pending input
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if depth(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

// depth counts unclosed [ and { outside double-quoted strings.
func depth(s string) int {
	d := 0
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[', '{':
			d++
		case ']', '}':
			d--
		}
	}
	return d
}

// -----------------------------------------------------------------------------
// types, exports
// -----------------------------------------------------------------------------

func cmdTypes() int {
	for _, n := range dynffi.TypeNames() {
		d, _ := dynffi.ResolveType(n)
		alias := ""
		if d.Name != n {
			alias = " -> " + d.Name
		}
		fmt.Printf("%-10s %2d bytes  %s%s\n", n, d.Size, d.Class, alias)
	}
	return 0
}

func cmdExports() int {
	b, err := dynffi.NewBridge(nil, dynffi.DefaultConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer b.Close()
	ex := b.Exports()
	for _, name := range b.ExportNames() {
		f := ex[name].Data.(*dynffi.Func)
		fmt.Printf("%-16s %s\n", name, f.Doc)
	}
	return 0
}
