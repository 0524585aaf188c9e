package testtree

import "github.com/bulk-data-tools/bulk-export-contract-tests/framework"

type EventKind int

const (
	EventRunStarted EventKind = iota
	EventGroupStarted
	EventTestStarted
	EventTestFinished
	EventGroupFinished
	EventRunFinished
)

func (k EventKind) String() string {
	switch k {
	case EventRunStarted:
		return "start"
	case EventGroupStarted:
		return "groupStart"
	case EventTestStarted:
		return "testStart"
	case EventTestFinished:
		return "testEnd"
	case EventGroupFinished:
		return "groupEnd"
	case EventRunFinished:
		return "end"
	}
	return "unknown"
}

// Event is a lifecycle notification. Which fields are set depends on Kind:
// OnlyMode for EventRunStarted, Suite for group events (the root included), Test for
// test events, Results for EventRunFinished. Err is set on EventGroupFinished if the suite's Before hook failed.
type Event struct {
	Kind     EventKind
	OnlyMode bool
	Suite    *Suite
	Test     *Test
	Err      error
	Results  *framework.Results
}

// Listener receives lifecycle events synchronously, in traversal order.
type Listener interface {
	HandleEvent(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }
