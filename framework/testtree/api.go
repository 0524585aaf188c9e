package testtree

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
)

// T is given to a running test body. It can be passed to the testify assert and require
// packages as if it were a *testing.T: Errorf records a failure, FailNow records a failure
// and ends the body.
type T struct {
	ctx       context.Context
	test      *Test
	config    interface{}
	shared    *Shared
	failed    bool
	errors    []error
	requested Status
	after     func() error
}

// Condition is one prerequisite of a test. Assertion is either a value, whose truthiness
// is checked, or a func() bool.
type Condition struct {
	Assertion interface{}
	Message   string
}

// Shared is a per-run store threaded through every hook and body. It lets a multi-step
// scenario pass state between sibling tests.
type Shared struct {
	values map[string]interface{}
	lock   sync.Mutex
}

func newShared() *Shared {
	return &Shared{values: make(map[string]interface{})}
}

func (s *Shared) Get(key string) (interface{}, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Shared) Set(key string, value interface{}) {
	s.lock.Lock()
	s.values[key] = value
	s.lock.Unlock()
}

// HookContext is passed to suite hooks. Test is nil for Before and After.
type HookContext struct {
	Context context.Context
	Config  interface{}
	Shared  *Shared
	Suite   *Suite
	Test    *Test
	Logger  framework.Logger
}

type failNowSignal struct{}

type abortSignal struct {
	err error
}

type skipSignal struct {
	reason string
}

func newT(ctx context.Context, test *Test, config interface{}, shared *Shared) *T {
	return &T{ctx: ctx, test: test, config: config, shared: shared}
}

// Context returns the run's context. Blocking operations in the body should honor it.
func (t *T) Context() context.Context { return t.ctx }

// Config returns the opaque configuration the run was started with.
func (t *T) Config() interface{} { return t.config }

func (t *T) Shared() *Shared { return t.shared }

func (t *T) ID() framework.TestID { return t.test.testID }

func (t *T) Name() string { return t.test.name }

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.failed = true
	err := fmt.Errorf(format, args...)
	t.errors = append(t.errors, err)
	t.Debug("ERROR: %s", err)
}

// FailNow is called by assertions when a test should fail and immediately exit. The methods in
// the require package call FailNow.
func (t *T) FailNow() {
	panic(failNowSignal{})
}

// Fail ends the body with err. If err is of kind framework.KindNotSupported the test ends
// "not-supported", otherwise it ends "failed".
func (t *T) Fail(err error) {
	if err == nil {
		err = errors.New("test failed with no failure message")
	}
	panic(abortSignal{err: err})
}

// NotSupported ends the body, marking the test "not-supported".
func (t *T) NotSupported(format string, args ...interface{}) {
	t.Fail(framework.NotSupported(format, args...))
}

// Skip ends the body, marking the test "skipped".
func (t *T) Skip(reason string) {
	panic(skipSignal{reason: reason})
}

// SetStatus requests the status the test should end with if the body completes without
// failing.
func (t *T) SetStatus(status Status) {
	t.requested = status
}

// SetNotSupported marks the test "not-supported" without ending the body.
func (t *T) SetNotSupported(message ...string) {
	t.requested = StatusNotSupported
	if len(message) > 0 {
		t.Debug("not supported: %s", message[0])
	} else {
		t.Debug("not supported")
	}
}

// Prerequisite checks each condition in order and ends the body as "not-supported" with
// the message of the first one that does not hold.
func (t *T) Prerequisite(conditions ...Condition) {
	for _, c := range conditions {
		if !truthy(c.Assertion) {
			msg := c.Message
			if msg == "" {
				msg = "prerequisite not met"
			}
			t.Fail(framework.NotSupported("%s", msg))
		}
	}
}

// After registers a function to run once the body has returned. Only the last registered
// function is kept.
func (t *T) After(fn func() error) {
	t.after = fn
}

// Debug writes to the test's console log.
func (t *T) Debug(format string, args ...interface{}) {
	t.test.log.Printf(format, args...)
}

func (t *T) DebugLogger() framework.Logger {
	return t.test.logger()
}

func truthy(v interface{}) bool {
	switch a := v.(type) {
	case nil:
		return false
	case bool:
		return a
	case func() bool:
		return a()
	case string:
		return a != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}
