package bulkclient

import (
	"context"
	"fmt"
	"net/http"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// CapabilityStatement fetches {baseURL}/metadata without authorization. The outcome,
// including a failure, is remembered for the lifetime of the client. The error wraps
// ErrMissingCapabilityStatement if the server did not return a CapabilityStatement.
func (c *Client) CapabilityStatement(ctx context.Context) (ldvalue.Value, *Result, error) {
	c.capabilityOnce.Do(func() {
		c.capability = ldvalue.Null()
		u, err := c.config.ResolveURL("metadata")
		if err != nil {
			c.capabilityErr = err
			return
		}
		header := http.Header{}
		header.Set("Accept", "application/fhir+json")
		res, err := c.Request(ctx, RequestOptions{URL: u, Header: header, SkipAuth: true, Label: "metadata"})
		c.capabilityResult = res
		switch {
		case err != nil:
			c.capabilityErr = err
		case res.Err != nil:
			c.capabilityErr = fmt.Errorf("%w: %s", ErrMissingCapabilityStatement, res.Err)
		case res.Body.GetByKey("resourceType").StringValue() != "CapabilityStatement":
			c.capabilityErr = fmt.Errorf("%w: the metadata response is not a CapabilityStatement", ErrMissingCapabilityStatement)
		default:
			c.capability = res.Body
		}
	})
	return c.capability, c.capabilityResult, c.capabilityErr
}

// SupportsOperation reports whether a CapabilityStatement declares an operation with the
// given name, such as "export", on the server or on any resource.
func SupportsOperation(cs ldvalue.Value, name string) bool {
	rest := cs.GetByKey("rest")
	for i := 0; i < rest.Count(); i++ {
		r := rest.GetByIndex(i)
		if hasOperation(r.GetByKey("operation"), name) {
			return true
		}
		resources := r.GetByKey("resource")
		for j := 0; j < resources.Count(); j++ {
			if hasOperation(resources.GetByIndex(j).GetByKey("operation"), name) {
				return true
			}
		}
	}
	return false
}

func hasOperation(ops ldvalue.Value, name string) bool {
	for i := 0; i < ops.Count(); i++ {
		if ops.GetByIndex(i).GetByKey("name").StringValue() == name {
			return true
		}
	}
	return false
}
