package testtree

// Status is the outcome of a Test.
type Status string

const (
	// StatusPending is the state of a test that has not finished in the current run.
	StatusPending        Status = ""
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusSkipped        Status = "skipped"
	StatusNotImplemented Status = "not-implemented"
	StatusNotSupported   Status = "not-supported"
)

// TerminalStatuses lists every status a finished test can have.
var TerminalStatuses = []Status{
	StatusSucceeded,
	StatusFailed,
	StatusNotSupported,
	StatusNotImplemented,
	StatusSkipped,
}

func (s Status) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	if s == StatusPending {
		return "pending"
	}
	return string(s)
}
