package bulkclient

import (
	"context"
	"net/http"
)

// CancelIfStarted cancels the export started by kickOff, if it was accepted with a
// Content-Location. Otherwise it does nothing and returns nil, so it can be called
// unconditionally during cleanup.
func (c *Client) CancelIfStarted(ctx context.Context, kickOff *Result, label string) (*Result, error) {
	if kickOff == nil || kickOff.StatusCode() != http.StatusAccepted || kickOff.Header("Content-Location") == "" {
		return nil, nil
	}
	return c.Cancel(ctx, kickOff, label)
}

// Cancel sends DELETE to the status URL of kickOff, or of the last kick-off if kickOff is
// nil. It is an error if there is no such kick-off or it had no Content-Location.
func (c *Client) Cancel(ctx context.Context, kickOff *Result, label string) (*Result, error) {
	if kickOff == nil {
		kickOff = c.kickOffResult
	}
	statusURL, err := c.statusURL(kickOff)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, RequestOptions{
		Method: http.MethodDelete,
		URL:    statusURL,
		Label:  firstNonEmpty(label, "cancel"),
	})
}
