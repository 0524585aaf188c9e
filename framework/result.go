package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Results struct {
	OnlyMode bool
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID TestID
	Status string
	Errors []error
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// CountByStatus returns the number of tests that ended with each status.
func (r Results) CountByStatus() map[string]int {
	ret := make(map[string]int)
	for _, t := range r.Tests {
		ret[t.Status]++
	}
	return ret
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// Plus returns a new TestID with one more path element.
func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

// PrintResults writes a summary table of the run followed by the list of failures.
func PrintResults(out io.Writer, results Results, statuses []string) {
	counts := results.CountByStatus()

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Status", "Tests"})
	for _, s := range statuses {
		tw.AppendRow(table.Row{s, counts[s]})
	}
	tw.AppendFooter(table.Row{"total", len(results.Tests)})
	tw.Render()

	if results.OK() {
		fmt.Fprintln(out, "All tests passed")
		return
	}
	fmt.Fprintf(out, "FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		fmt.Fprintf(out, "  * %s\n", f.TestID)
	}
}
