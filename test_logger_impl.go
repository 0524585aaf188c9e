package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/fatih/color"
)

// ConsoleTestLogger reports test progress as it happens.
type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

var (
	failedColor  = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgYellow)
	passedColor  = color.New(color.FgGreen)
	groupColor   = color.New(color.Bold)
)

func (c *ConsoleTestLogger) HandleEvent(e testtree.Event) {
	switch e.Kind {
	case testtree.EventGroupStarted:
		groupColor.Fprintf(c.Out, "%s%s\n", indent(e.Suite.Path()), e.Suite.Name())
	case testtree.EventGroupFinished:
		if e.Err != nil {
			failedColor.Fprintf(c.Out, "%s  SUITE FAILED: %s\n", indent(e.Suite.Path()), e.Err)
		}
	case testtree.EventTestFinished:
		c.testFinished(e.Test)
	}
}

func (c *ConsoleTestLogger) testFinished(test *testtree.Test) {
	prefix := indent(test.Path())
	duration := test.EndedAt().Sub(test.StartedAt()).Round(time.Millisecond)
	switch test.Status() {
	case testtree.StatusSucceeded:
		passedColor.Fprintf(c.Out, "%s✓ %s", prefix, test.Name())
		fmt.Fprintf(c.Out, " (%s)\n", duration)
	case testtree.StatusFailed:
		failedColor.Fprintf(c.Out, "%s✗ %s\n", prefix, test.Name())
		for _, err := range test.Errors() {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(c.Out, "%s    %s\n", prefix, line)
			}
		}
	default:
		skippedColor.Fprintf(c.Out, "%s- %s (%s)\n", prefix, test.Name(), test.Status())
	}

	failed := test.Status() == testtree.StatusFailed
	debugOutput := test.Log()
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(c.Out, prefix+"    DEBUG ")
	}
}

// indent is two spaces per level below the root, whose path is empty.
func indent(path string) string {
	if path == "" {
		return ""
	}
	return strings.Repeat("  ", strings.Count(path, ".")+1)
}
