package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mitchellh/go-wordwrap"
)

var (
	blue   = color.New(color.FgBlue)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
)

// consoleReporter prints agent progress lines as they happen.
type consoleReporter struct {
	out io.Writer
}

func (r consoleReporter) ToolCalled(name string, args map[string]any) {
	fmt.Fprintf(r.out, "Calling tool %s with kwargs %s\n", name, formatArgs(args))
}

func (r consoleReporter) ToolCompleted(name string, latency time.Duration) {
	fmt.Fprintf(r.out, "Tool %s completed in %.2f seconds\n\n", name, latency.Seconds())
}

func (r consoleReporter) Completed(elapsed time.Duration) {
	yellow.Fprintf(r.out, "Completed handling user message in %.2f seconds\n\n", elapsed.Seconds())
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

// wrap refills text into lines of at most width columns. Runs of whitespace,
// newlines included, collapse to one space; words longer than width stay whole.
func wrap(text string, width int) string {
	return wordwrap.WrapString(strings.Join(strings.Fields(text), " "), uint(width))
}
