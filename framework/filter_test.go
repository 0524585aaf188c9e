package framework

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexFilters(t *testing.T) {
	var f RegexFilters
	assert.True(t, f.AsFilter(TestID{Path: []string{"anything"}}))

	require.NoError(t, f.MustMatch.Set("^kick-off"))
	require.NoError(t, f.MustNotMatch.Set("POST"))

	assert.True(t, f.AsFilter(TestID{Path: []string{"kick-off", "GET"}}))
	assert.False(t, f.AsFilter(TestID{Path: []string{"kick-off", "POST"}}))
	assert.False(t, f.AsFilter(TestID{Path: []string{"status", "GET"}}))

	assert.Error(t, f.MustMatch.Set("("))
	assert.Equal(t, `"^kick-off"`, f.MustMatch.String())
}

func TestPrintFilterDescription(t *testing.T) {
	var buf bytes.Buffer
	PrintFilterDescription(&buf, RegexFilters{})
	assert.Empty(t, buf.String())

	var f RegexFilters
	require.NoError(t, f.MustNotMatch.Set("download"))
	PrintFilterDescription(&buf, f)
	assert.Contains(t, buf.String(), `skip any matching "download"`)
}

func TestCapturingLogger(t *testing.T) {
	var l CapturingLogger
	LoggerWithPrefix(&l, "[client] ").Printf("GET %s", "/metadata")
	l.Printf("done")

	out := l.Output()
	require.Len(t, out, 2)
	assert.Equal(t, "[client] GET /metadata", out[0].Message)

	var buf bytes.Buffer
	out.Dump(&buf, "  DEBUG ")
	assert.Contains(t, buf.String(), "  DEBUG [")
	assert.Contains(t, buf.String(), "] done\n")
}

func TestLoggerToAll(t *testing.T) {
	var a, b CapturingLogger
	LoggerToAll(&a, &b).Printf("status %d", 202)
	require.Len(t, a.Output(), 1)
	require.Len(t, b.Output(), 1)
	assert.Equal(t, "status 202", a.Output()[0].Message)
	assert.Equal(t, "status 202", b.Output()[0].Message)
}

func TestPrintResults(t *testing.T) {
	results := Results{
		Tests: []TestResult{
			{TestID: TestID{Path: []string{"a"}}, Status: "succeeded"},
			{TestID: TestID{Path: []string{"b", "c"}}, Status: "failed"},
		},
	}
	results.Failures = results.Tests[1:]

	var buf bytes.Buffer
	PrintResults(&buf, results, []string{"succeeded", "failed"})
	assert.Contains(t, buf.String(), "FAILED TESTS (1)")
	assert.Contains(t, buf.String(), "* b/c")
	assert.False(t, results.OK())
	assert.Equal(t, 1, results.CountByStatus()["failed"])
}
