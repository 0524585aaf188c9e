package testtree

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	events []string
}

func (r *eventRecorder) HandleEvent(e Event) {
	switch {
	case e.Suite != nil:
		r.events = append(r.events, e.Kind.String()+":"+e.Suite.Name())
	case e.Test != nil:
		r.events = append(r.events, e.Kind.String()+":"+e.Test.Name())
	case e.Kind == EventRunStarted:
		r.events = append(r.events, fmt.Sprintf("start:%t", e.OnlyMode))
	default:
		r.events = append(r.events, e.Kind.String())
	}
}

func run(t *testing.T, tree *Tree, opts RunOptions) framework.Results {
	results, err := Run(context.Background(), tree, opts)
	require.NoError(t, err)
	return results
}

func TestHookOrderForPassingTest(t *testing.T) {
	var calls []string
	hook := func(name string) Hook {
		return func(h *HookContext) error {
			calls = append(calls, name)
			return nil
		}
	}
	b := NewBuilder("root")
	var test *Test
	b.Suite(NodeOptions{Name: "suite"}, func(b *Builder) {
		b.Before(hook("before"))
		b.BeforeEach(hook("beforeEach"))
		b.AfterEach(hook("afterEach"))
		b.After(hook("after"))
		test = b.Test(NodeOptions{Name: "test"}, func(t *T) {
			calls = append(calls, "body")
			t.After(func() error {
				calls = append(calls, "test.after")
				return nil
			})
		})
	})
	tree, err := b.Build()
	require.NoError(t, err)

	rec := &eventRecorder{}
	results := run(t, tree, RunOptions{Listeners: []Listener{rec}})

	assert.Equal(t, []string{"before", "beforeEach", "body", "test.after", "afterEach", "after"}, calls)
	assert.Equal(t, []string{
		"start:false", "groupStart:root", "groupStart:suite", "testStart:test", "testEnd:test",
		"groupEnd:suite", "groupEnd:root", "end",
	}, rec.events)
	assert.Equal(t, StatusSucceeded, test.Status())
	assert.False(t, test.StartedAt().IsZero())
	assert.False(t, test.EndedAt().Before(test.StartedAt()))
	assert.True(t, results.OK())
}

func TestStatuses(t *testing.T) {
	b := NewBuilder("root")
	tests := map[string]*Test{}
	add := func(opts NodeOptions, body Body) {
		tests[opts.Name] = b.Test(opts, body)
	}
	add(NodeOptions{Name: "succeeds"}, func(t *T) {})
	add(NodeOptions{Name: "not implemented"}, nil)
	add(NodeOptions{Name: "explicit skip", Skip: true}, func(t *T) { panic("should not run") })
	add(NodeOptions{Name: "errorf"}, func(t *T) { assert.Equal(t, 1, 2) })
	add(NodeOptions{Name: "require"}, func(t *T) { require.Fail(t, "nope") })
	add(NodeOptions{Name: "fail with error"}, func(t *T) { t.Fail(errors.New("boom")) })
	add(NodeOptions{Name: "panics"}, func(t *T) { panic("oops") })
	add(NodeOptions{Name: "not supported error"}, func(t *T) { t.Fail(framework.NotSupported("no groups")) })
	add(NodeOptions{Name: "set not supported"}, func(t *T) {
		t.SetNotSupported("no patient endpoint")
		t.Debug("still running")
	})
	add(NodeOptions{Name: "set status"}, func(t *T) { t.SetStatus(StatusSkipped) })
	add(NodeOptions{Name: "skip from body"}, func(t *T) { t.Skip("later") })
	tree, err := b.Build()
	require.NoError(t, err)

	results := run(t, tree, RunOptions{})

	expected := map[string]Status{
		"succeeds":            StatusSucceeded,
		"not implemented":     StatusNotImplemented,
		"explicit skip":       StatusSkipped,
		"errorf":              StatusFailed,
		"require":             StatusFailed,
		"fail with error":     StatusFailed,
		"panics":              StatusFailed,
		"not supported error": StatusNotSupported,
		"set not supported":   StatusNotSupported,
		"set status":          StatusSkipped,
		"skip from body":      StatusSkipped,
	}
	for name, status := range expected {
		assert.Equal(t, status, tests[name].Status(), name)
	}
	assert.Len(t, results.Tests, len(expected))
	assert.Len(t, results.Failures, 4)

	var logged []string
	for _, m := range tests["set not supported"].Log() {
		logged = append(logged, m.Message)
	}
	assert.Equal(t, []string{"not supported: no patient endpoint", "still running"}, logged)
	require.NotEmpty(t, tests["fail with error"].Errors())
	assert.EqualError(t, tests["fail with error"].Errors()[0], "boom")
}

func TestPrerequisite(t *testing.T) {
	var reached []string
	b := NewBuilder("root")
	met := b.Test(NodeOptions{Name: "met"}, func(t *T) {
		t.Prerequisite(
			Condition{Assertion: true, Message: "a"},
			Condition{Assertion: func() bool { return true }, Message: "b"},
			Condition{Assertion: "value", Message: "c"},
		)
		reached = append(reached, "met")
	})
	unmet := b.Test(NodeOptions{Name: "unmet"}, func(t *T) {
		t.Prerequisite(
			Condition{Assertion: 1, Message: "a"},
			Condition{Assertion: func() bool { return false }, Message: "group export is not configured"},
			Condition{Assertion: nil, Message: "never checked"},
		)
		reached = append(reached, "unmet")
	})
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{})

	assert.Equal(t, []string{"met"}, reached)
	assert.Equal(t, StatusSucceeded, met.Status())
	assert.Equal(t, StatusNotSupported, unmet.Status())
	require.Len(t, unmet.Errors(), 1)
	assert.EqualError(t, unmet.Errors()[0], "group export is not configured")
}

func TestBeforeEachFailureSkipsBody(t *testing.T) {
	var calls []string
	b := NewBuilder("root")
	var test *Test
	b.Suite(NodeOptions{Name: "suite"}, func(b *Builder) {
		b.BeforeEach(func(h *HookContext) error { return errors.New("cannot prepare") })
		b.AfterEach(func(h *HookContext) error {
			calls = append(calls, "afterEach")
			return nil
		})
		test = b.Test(NodeOptions{Name: "test"}, func(t *T) { calls = append(calls, "body") })
	})
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{})

	assert.Equal(t, StatusFailed, test.Status())
	assert.Equal(t, []string{"afterEach"}, calls)
	require.Len(t, test.Errors(), 1)
	assert.Contains(t, test.Errors()[0].Error(), `"beforeEach" hook of "suite"`)
	assert.Contains(t, test.Errors()[0].Error(), "cannot prepare")
}

func TestAfterHookFailuresDoNotChangeStatus(t *testing.T) {
	b := NewBuilder("root")
	var test *Test
	b.Suite(NodeOptions{Name: "suite"}, func(b *Builder) {
		b.AfterEach(func(h *HookContext) error { panic("afterEach exploded") })
		test = b.Test(NodeOptions{Name: "test"}, func(t *T) {
			t.After(func() error { return errors.New("cleanup failed") })
		})
	})
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{})

	assert.Equal(t, StatusSucceeded, test.Status())
	var messages []string
	for _, m := range test.Log() {
		messages = append(messages, m.Message)
	}
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "cleanup failed")
	assert.Contains(t, messages[1], "afterEach exploded")
}

func TestAfterEachNotRunForSkippedOrNotImplemented(t *testing.T) {
	count := 0
	b := NewBuilder("root")
	b.Suite(NodeOptions{Name: "suite"}, func(b *Builder) {
		b.AfterEach(func(h *HookContext) error {
			count++
			return nil
		})
		b.Test(NodeOptions{Name: "skipped", Skip: true}, noop)
		b.Test(NodeOptions{Name: "todo"}, nil)
		b.Test(NodeOptions{Name: "runs"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{})
	assert.Equal(t, 1, count)
}

func TestBeforeFailureSkipsSubtreeButRunsAfter(t *testing.T) {
	afterCalled := false
	b := NewBuilder("root")
	var inside, outside *Test
	b.Suite(NodeOptions{Name: "broken"}, func(b *Builder) {
		b.Before(func(h *HookContext) error { return errors.New("no server") })
		b.After(func(h *HookContext) error {
			afterCalled = true
			return nil
		})
		inside = b.Test(NodeOptions{Name: "inside"}, noop)
	})
	outside = b.Test(NodeOptions{Name: "outside"}, noop)
	tree, err := b.Build()
	require.NoError(t, err)

	var groupErr error
	listener := ListenerFunc(func(e Event) {
		if e.Kind == EventGroupFinished && e.Suite.Name() == "broken" {
			groupErr = e.Err
		}
	})
	run(t, tree, RunOptions{Listeners: []Listener{listener}})

	assert.True(t, afterCalled)
	assert.Equal(t, StatusPending, inside.Status())
	assert.Equal(t, StatusSucceeded, outside.Status())
	require.Error(t, groupErr)
	assert.Contains(t, groupErr.Error(), "no server")
}

func TestBail(t *testing.T) {
	var calls []string
	b := NewBuilder("root")
	var later, cousin *Test
	b.Suite(NodeOptions{Name: "outer"}, func(b *Builder) {
		b.After(func(h *HookContext) error {
			calls = append(calls, "outer.after")
			return nil
		})
		b.Suite(NodeOptions{Name: "inner"}, func(b *Builder) {
			b.After(func(h *HookContext) error {
				calls = append(calls, "inner.after")
				return nil
			})
			b.Test(NodeOptions{Name: "fails"}, func(t *T) { t.Fail(errors.New("bad")) })
			later = b.Test(NodeOptions{Name: "later"}, noop)
		})
		cousin = b.Test(NodeOptions{Name: "cousin"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)

	rec := &eventRecorder{}
	results := run(t, tree, RunOptions{Bail: true, Listeners: []Listener{rec}})

	assert.Equal(t, []string{"inner.after", "outer.after"}, calls)
	assert.Equal(t, StatusPending, later.Status())
	assert.Equal(t, StatusPending, cousin.Status())
	assert.Len(t, results.Tests, 1)
	assert.Equal(t, []string{
		"start:false", "groupStart:root", "groupStart:outer", "groupStart:inner", "testStart:fails",
		"testEnd:fails", "groupEnd:inner", "groupEnd:outer", "groupEnd:root", "end",
	}, rec.events)
}

func TestNotSupportedDoesNotBail(t *testing.T) {
	b := NewBuilder("root")
	b.Test(NodeOptions{Name: "n/a"}, func(t *T) { t.NotSupported("nope") })
	second := b.Test(NodeOptions{Name: "second"}, noop)
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{Bail: true})
	assert.Equal(t, StatusSucceeded, second.Status())
}

func TestOnlyMode(t *testing.T) {
	b := NewBuilder("root")
	var focusedChild, focusedTest, other *Test
	b.Suite(NodeOptions{Name: "focused", Only: true}, func(b *Builder) {
		focusedChild = b.Test(NodeOptions{Name: "child"}, noop)
	})
	b.Suite(NodeOptions{Name: "unfocused"}, func(b *Builder) {
		focusedTest = b.Test(NodeOptions{Name: "focused test", Only: true}, noop)
		other = b.Test(NodeOptions{Name: "other"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)

	rec := &eventRecorder{}
	results := run(t, tree, RunOptions{Listeners: []Listener{rec}})

	assert.True(t, results.OnlyMode)
	assert.Equal(t, "start:true", rec.events[0])
	assert.Equal(t, StatusSucceeded, focusedChild.Status())
	assert.Equal(t, StatusSucceeded, focusedTest.Status())
	assert.Equal(t, StatusSkipped, other.Status())
}

func TestVersionGating(t *testing.T) {
	b := NewBuilder("root")
	newer := b.Test(NodeOptions{Name: "newer", MinVersion: "2"}, func(t *T) { t.Fail(errors.New("should not run")) })
	older := b.Test(NodeOptions{Name: "older", MaxVersion: "0.9"}, nil)
	inRange := b.Test(NodeOptions{Name: "in range", MinVersion: "1.0", MaxVersion: "1.0"}, noop)
	var nested *Test
	b.Suite(NodeOptions{Name: "v2 suite", MinVersion: "2.0"}, func(b *Builder) {
		nested = b.Test(NodeOptions{Name: "nested"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{APIVersion: framework.MustParseVersion("1.0")})

	assert.Equal(t, StatusSkipped, newer.Status())
	assert.Equal(t, StatusSkipped, older.Status())
	assert.Equal(t, StatusSucceeded, inRange.Status())
	assert.Equal(t, StatusSkipped, nested.Status())
}

func TestFilter(t *testing.T) {
	var filters framework.RegexFilters
	require.NoError(t, filters.MustMatch.Set("^kick-off/"))
	b := NewBuilder("root")
	var included, excluded *Test
	b.Suite(NodeOptions{Name: "kick-off"}, func(b *Builder) {
		included = b.Test(NodeOptions{Name: "GET"}, noop)
	})
	b.Suite(NodeOptions{Name: "status"}, func(b *Builder) {
		excluded = b.Test(NodeOptions{Name: "poll"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)

	run(t, tree, RunOptions{Filter: filters.AsFilter})
	assert.Equal(t, StatusSucceeded, included.Status())
	assert.Equal(t, StatusSkipped, excluded.Status())
}

func TestRunSubtree(t *testing.T) {
	var calls []string
	b := NewBuilder("root")
	b.Test(NodeOptions{Name: "A"}, func(t *T) { calls = append(calls, "A") })
	b.Suite(NodeOptions{Name: "group"}, func(b *Builder) {
		b.Before(func(h *HookContext) error {
			calls = append(calls, "group.before")
			return nil
		})
		b.Test(NodeOptions{Name: "B"}, func(t *T) { calls = append(calls, "B") })
		b.Test(NodeOptions{Name: "C"}, func(t *T) { calls = append(calls, "C") })
	})
	tree, err := b.Build()
	require.NoError(t, err)

	results := run(t, tree, RunOptions{Path: "1.1"})
	assert.Equal(t, []string{"group.before", "C"}, calls)
	assert.Len(t, results.Tests, 1)

	_, err = Run(context.Background(), tree, RunOptions{Path: "5"})
	assert.Error(t, err)
}

func TestSharedStateAcrossTests(t *testing.T) {
	b := NewBuilder("root")
	b.Suite(NodeOptions{Name: "scenario"}, func(b *Builder) {
		b.Before(func(h *HookContext) error {
			h.Shared.Set("jobs", 0)
			return nil
		})
		b.Test(NodeOptions{Name: "start"}, func(t *T) {
			t.Shared().Set("job", "/status/1")
		})
		b.Test(NodeOptions{Name: "continue"}, func(t *T) {
			v, ok := t.Shared().Get("job")
			require.True(t, ok)
			assert.Equal(t, "/status/1", v)
			assert.Equal(t, "config", t.Config())
		})
	})
	tree, err := b.Build()
	require.NoError(t, err)

	results := run(t, tree, RunOptions{Config: "config"})
	assert.True(t, results.OK())
}

func TestRunCanBeRepeated(t *testing.T) {
	tree := buildABC(t)
	run(t, tree, RunOptions{})
	results := run(t, tree, RunOptions{})
	assert.Len(t, results.Tests, 3)
	for _, test := range tree.Tests() {
		assert.Equal(t, StatusSucceeded, test.Status())
	}
}
