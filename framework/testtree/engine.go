package testtree

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
)

// RunOptions controls a run of a Tree.
type RunOptions struct {
	// Config is passed unchanged to every hook and body.
	Config interface{}

	// APIVersion, if defined, excludes nodes whose version bounds do not contain it.
	APIVersion framework.Version

	// Filter, if set, skips tests whose TestID it rejects.
	Filter framework.Filter

	// Bail stops the run from starting any further test once a test has failed.
	Bail bool

	// Path, if not empty, restricts the run to the subtree at that path. The hooks of
	// the suites enclosing the subtree still run.
	Path string

	Listeners []Listener

	// Logger receives messages that do not belong to any single test, such as suite
	// hook failures.
	Logger framework.Logger
}

type runner struct {
	ctx      context.Context
	tree     *Tree
	opts     RunOptions
	shared   *Shared
	results  framework.Results
	canceled bool
}

// Run walks the tree depth-first, one test at a time, and returns the results. It returns
// an error only if opts.Path does not address a node.
func Run(ctx context.Context, tree *Tree, opts RunOptions) (framework.Results, error) {
	if opts.Path != "" {
		if _, ok := tree.Resolve(opts.Path); !ok {
			return framework.Results{}, fmt.Errorf("no test or suite at path %q", opts.Path)
		}
	}
	if opts.Logger == nil {
		opts.Logger = framework.NullLogger()
	}
	r := &runner{
		ctx:    ctx,
		tree:   tree,
		opts:   opts,
		shared: newShared(),
	}
	r.results.OnlyMode = tree.OnlyMode
	for _, t := range tree.Tests() {
		t.reset()
	}

	r.emit(Event{Kind: EventRunStarted, OnlyMode: tree.OnlyMode})
	r.runSuite(tree.Root)
	results := r.results
	r.emit(Event{Kind: EventRunFinished, Results: &results})
	return results, nil
}

func (r *runner) emit(e Event) {
	for _, l := range r.opts.Listeners {
		l.HandleEvent(e)
	}
}

func (r *runner) stopped() bool {
	return r.canceled || r.ctx.Err() != nil
}

func (r *runner) onRoute(path string) bool {
	target := r.opts.Path
	if target == "" || path == "" {
		return true
	}
	return strings.HasPrefix(target+".", path+".") || strings.HasPrefix(path+".", target+".")
}

func (r *runner) runSuite(s *Suite) {
	r.emit(Event{Kind: EventGroupStarted, Suite: s})

	var beforeErr error
	if s.hooks.Before != nil {
		beforeErr = r.callHook("before", s, nil, s.hooks.Before)
	}
	if beforeErr == nil {
		for _, child := range s.children {
			if r.stopped() {
				break
			}
			if !r.onRoute(child.Info().path) {
				continue
			}
			switch n := child.(type) {
			case *Suite:
				r.runSuite(n)
			case *Test:
				r.runTest(s, n)
			}
		}
	}
	if s.hooks.After != nil {
		_ = r.callHook("after", s, nil, s.hooks.After)
	}

	r.emit(Event{Kind: EventGroupFinished, Suite: s, Err: beforeErr})
}

func (r *runner) runTest(parent *Suite, test *Test) {
	r.emit(Event{Kind: EventTestStarted, Test: test})
	test.startedAt = time.Now()

	status, errs := r.executeTest(parent, test)

	test.finish(status, errs)
	result := framework.TestResult{TestID: test.testID, Status: string(status), Errors: errs}
	r.results.Tests = append(r.results.Tests, result)
	if status == StatusFailed {
		r.results.Failures = append(r.results.Failures, result)
	}
	r.emit(Event{Kind: EventTestFinished, Test: test})

	if status == StatusFailed && r.opts.Bail {
		r.opts.Logger.Printf("Bailing out after failure of %s", test.testID)
		r.canceled = true
	}
}

func (r *runner) skipReason(test *Test) string {
	if r.tree.OnlyMode && !test.only {
		return "not selected by only"
	}
	for n := &test.NodeInfo; n != nil; n = parentInfo(n) {
		if !n.AllowsVersion(r.opts.APIVersion) {
			return fmt.Sprintf("API version %s is outside the range of %q", r.opts.APIVersion, n.name)
		}
	}
	if r.opts.Filter != nil && !r.opts.Filter(test.testID) {
		return "excluded by filter parameters"
	}
	for n := &test.NodeInfo; n != nil; n = parentInfo(n) {
		if n.skip {
			return fmt.Sprintf("%q is marked skip", n.name)
		}
	}
	return ""
}

func parentInfo(n *NodeInfo) *NodeInfo {
	if n.parent == nil {
		return nil
	}
	return &n.parent.NodeInfo
}

func (r *runner) executeTest(parent *Suite, test *Test) (Status, []error) {
	logger := test.logger()
	if reason := r.skipReason(test); reason != "" {
		logger.Printf("Skipped: %s", reason)
		return StatusSkipped, nil
	}
	if test.body == nil {
		logger.Printf("Not implemented")
		return StatusNotImplemented, nil
	}

	t := newT(r.ctx, test, r.opts.Config, r.shared)
	var status Status
	if parent.hooks.BeforeEach != nil {
		if err := r.callHook("beforeEach", parent, test, parent.hooks.BeforeEach); err != nil {
			t.errors = append(t.errors, err)
			status = StatusFailed
		}
	}
	if status == StatusPending {
		status = r.runBody(t)
	}

	if t.after != nil {
		if err := runProtected(t.after); err != nil {
			logger.Printf("ERROR: after hook of %q failed: %s", test.name, err)
		}
	}
	if parent.hooks.AfterEach != nil && status != StatusSkipped && status != StatusNotImplemented {
		_ = r.callHook("afterEach", parent, test, parent.hooks.AfterEach)
	}
	return status, t.errors
}

func (r *runner) runBody(t *T) (status Status) {
	defer func() {
		if rec := recover(); rec != nil {
			status = t.classifyPanic(rec)
		}
	}()
	t.test.body(t)
	return t.outcome()
}

func (t *T) outcome() Status {
	if t.failed {
		return StatusFailed
	}
	if t.requested.IsTerminal() {
		return t.requested
	}
	return StatusSucceeded
}

func (t *T) classifyPanic(rec interface{}) Status {
	switch v := rec.(type) {
	case failNowSignal:
		if len(t.errors) == 0 {
			t.Errorf("test failed with no failure message")
		}
		return StatusFailed
	case skipSignal:
		t.Debug("Skipped: %s", v.reason)
		return StatusSkipped
	case abortSignal:
		t.errors = append(t.errors, v.err)
		if framework.KindOf(v.err) == framework.KindNotSupported && !t.failed {
			t.Debug("Not supported: %s", v.err)
			return StatusNotSupported
		}
		t.failed = true
		t.Debug("ERROR: %s", v.err)
		return StatusFailed
	default:
		t.Errorf("unexpected panic in test: %+v\n%s", rec, string(debug.Stack()))
		return StatusFailed
	}
}

func (r *runner) callHook(name string, s *Suite, test *Test, hook Hook) error {
	logger := r.opts.Logger
	if test != nil {
		logger = test.logger()
	}
	hc := &HookContext{
		Context: r.ctx,
		Config:  r.opts.Config,
		Shared:  r.shared,
		Suite:   s,
		Test:    test,
		Logger:  logger,
	}
	err := runProtected(func() error { return hook(hc) })
	if err == nil {
		return nil
	}
	suiteName := s.name
	if suiteName == "" {
		suiteName = "root"
	}
	err = fmt.Errorf("%q hook of %q: %w", name, suiteName, err)
	logger.Printf("ERROR: %s", err)
	return err
}

func runProtected(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected panic: %+v\n%s", rec, string(debug.Stack()))
		}
	}()
	return fn()
}
