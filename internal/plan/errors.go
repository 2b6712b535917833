package plan

import (
	"fmt"
	"strings"
)

// StepError is a failed step, positioned in the plan source.
type StepError struct {
	Index     int // 0-based step index
	Op        string
	Line, Col int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) at %d:%d: %v", e.Index+1, e.Op, e.Line, e.Col, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Render formats e as a caret snippet against src. name labels the source
// in the header and may be empty.
func (e *StepError) Render(src, name string) string {
	return caretSnippet(src, "STEP ERROR", name, e.Line, e.Col, fmt.Sprintf("%s: %v", e.Op, e.Err))
}

// caretSnippet shows the offending line with one line of context on each
// side and a caret under col. Coordinates are 1-based and clamped.
func caretSnippet(src, header, name string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	line = max(line, 1)
	col = max(col, 1)
	if line > len(lines) {
		line = len(lines)
	}

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", header, name, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	}
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
