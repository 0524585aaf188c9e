package bulkclient

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

var (
	// ErrNoKickOff means an operation needed a prior kick-off.
	ErrNoKickOff = errors.New("no export has been started; call KickOff first")

	// ErrNoContentLocation means the kick-off response had no Content-Location header.
	ErrNoContentLocation = errors.New("the kick-off response did not include a Content-Location header")

	// ErrUnknownParameter means a kick-off parameter has no mapping to a Parameters entry.
	ErrUnknownParameter = errors.New("unknown kick-off parameter")

	// ErrMissingCapabilityStatement means the server did not provide a usable
	// CapabilityStatement.
	ErrMissingCapabilityStatement = errors.New("missing capability statement")
)

// HTTPError describes a response with a status of 400 or more.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func newHTTPError(r *Result) *HTTPError {
	e := &HTTPError{
		StatusCode: r.Response.StatusCode,
		Status:     r.Response.Status,
		Body:       describeBody(r.Body, r.RawBody),
	}
	if r.Request != nil {
		e.Method = r.Request.Method
		e.URL = r.Request.URL.String()
	}
	return e
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s returned %s", e.Method, e.URL, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// describeBody renders the diagnostics of an OperationOutcome, or the raw body otherwise.
func describeBody(body ldvalue.Value, raw []byte) string {
	if body.GetByKey("resourceType").StringValue() == "OperationOutcome" {
		var parts []string
		issues := body.GetByKey("issue")
		for i := 0; i < issues.Count(); i++ {
			issue := issues.GetByIndex(i)
			text := issue.GetByKey("diagnostics").StringValue()
			if text == "" {
				text = issue.GetByKey("details").GetByKey("text").StringValue()
			}
			if text == "" {
				text = issue.GetByKey("code").StringValue()
			}
			parts = append(parts, text)
		}
		if len(parts) > 0 {
			return "OperationOutcome: " + strings.Join(parts, "; ")
		}
	}
	if len(raw) == 0 {
		return ""
	}
	return truncate(raw)
}

// StatusOf returns the HTTP status of an error returned in Result.Err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
