package bulkclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// ExportScope selects the kind of export endpoint.
type ExportScope string

const (
	// ScopeAny selects the first configured endpoint of system, patient, group.
	ScopeAny     ExportScope = ""
	ScopeSystem  ExportScope = "system"
	ScopePatient ExportScope = "patient"
	ScopeGroup   ExportScope = "group"
)

// Params are kick-off parameters. Values may be a string, a []string, a bool, or a
// time.Time.
type Params map[string]interface{}

// KickOffOptions controls a kick-off request.
type KickOffOptions struct {
	Scope ExportScope

	// Method is GET (the default) or POST.
	Method string
	Params Params

	// Header values replace the defaults. An empty value removes a default header.
	Header http.Header

	SkipAuth bool
	Label    string
}

// EndpointURL returns the absolute export URL for a scope. The error has the kind
// framework.KindNotSupported if no endpoint of that kind is configured.
func (c *Client) EndpointURL(scope ExportScope) (string, error) {
	e := c.config.Endpoints
	var ref string
	switch scope {
	case ScopeSystem:
		ref = e.System
	case ScopePatient:
		ref = e.Patient
	case ScopeGroup:
		ref = e.Group
	case ScopeAny:
		ref = firstNonEmpty(e.System, e.Patient, e.Group)
		if ref == "" {
			return "", framework.NotSupported("no export endpoint is configured")
		}
	default:
		return "", fmt.Errorf("unknown export scope %q", scope)
	}
	if ref == "" {
		return "", framework.NotSupported("%s-level export is not configured", scope)
	}
	return c.config.ResolveURL(ref)
}

// KickOff starts an export. The request and response are remembered for the status,
// download, and cancel operations. Redirects are never followed.
func (c *Client) KickOff(ctx context.Context, opts KickOffOptions) (*Result, error) {
	endpoint, err := c.EndpointURL(opts.Scope)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Accept", "application/fhir+json")
	header.Set("Prefer", "respond-async")

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body []byte
	switch method {
	case http.MethodPost:
		params, err := BuildParameters(opts.Params)
		if err != nil {
			return nil, err
		}
		body = []byte(params.JSONString())
		header.Set("Content-Type", "application/fhir+json")
	case http.MethodGet:
		if len(opts.Params) > 0 {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, err
			}
			query := u.Query()
			if err := addQueryValues(query, opts.Params); err != nil {
				return nil, err
			}
			u.RawQuery = query.Encode()
			endpoint = u.String()
		}
	default:
		return nil, fmt.Errorf("unsupported kick-off method %q", opts.Method)
	}

	for k, vs := range opts.Header {
		if len(vs) == 0 || (len(vs) == 1 && vs[0] == "") {
			header.Del(k)
			continue
		}
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	res, err := c.Request(ctx, RequestOptions{
		Method:   method,
		URL:      endpoint,
		Header:   header,
		Body:     body,
		SkipAuth: opts.SkipAuth,
		Label:    firstNonEmpty(opts.Label, "kick-off"),
	})
	if err != nil {
		return nil, err
	}
	c.kickOffResult = res
	c.statusResult = nil
	if s := res.StatusCode(); s == http.StatusUnauthorized || s == http.StatusForbidden {
		c.addAuthHints(res)
	}
	return res, nil
}

// KickOffResult returns the response of the last kick-off, or nil.
func (c *Client) KickOffResult() *Result { return c.kickOffResult }

// BuildParameters converts kick-off parameters to a FHIR Parameters resource. Entries
// appear in key order. Any key without a known mapping is an error wrapping
// ErrUnknownParameter.
func BuildParameters(params Params) (ldvalue.Value, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := ldvalue.ArrayBuild()
	for _, name := range keys {
		values, err := paramValues(name, params[name])
		if err != nil {
			return ldvalue.Null(), err
		}
		var valueKey string
		switch name {
		case "_since":
			if len(values) != 1 {
				return ldvalue.Null(), fmt.Errorf("_since takes exactly one value, got %d", len(values))
			}
			valueKey = "valueInstant"
		case "_outputFormat":
			if len(values) != 1 {
				return ldvalue.Null(), fmt.Errorf("_outputFormat takes exactly one value, got %d", len(values))
			}
			valueKey = "valueString"
		case "patient":
			for _, id := range values {
				if !strings.HasPrefix(id, "Patient/") {
					id = "Patient/" + id
				}
				entries.Add(ldvalue.ObjectBuild().
					Set("name", ldvalue.String(name)).
					Set("valueReference", ldvalue.ObjectBuild().Set("reference", ldvalue.String(id)).Build()).
					Build())
			}
			continue
		case "_type", "_elements", "_typeFilter", "includeAssociatedData":
			valueKey = "valueString"
		default:
			return ldvalue.Null(), fmt.Errorf("%w %q", ErrUnknownParameter, name)
		}
		for _, v := range values {
			entries.Add(ldvalue.ObjectBuild().
				Set("name", ldvalue.String(name)).
				Set(valueKey, ldvalue.String(v)).
				Build())
		}
	}
	return ldvalue.ObjectBuild().
		Set("resourceType", ldvalue.String("Parameters")).
		Set("parameter", entries.Build()).
		Build(), nil
}

// addQueryValues appends params to q, keeping whatever q already holds.
func addQueryValues(q url.Values, params Params) error {
	for name, v := range params {
		values, err := paramValues(name, v)
		if err != nil {
			return err
		}
		for _, s := range values {
			q.Add(name, s)
		}
	}
	return nil
}

func paramValues(name string, v interface{}) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	case bool:
		return []string{strconv.FormatBool(x)}, nil
	case time.Time:
		return []string{x.UTC().Format(time.RFC3339)}, nil
	default:
		return nil, fmt.Errorf("kick-off parameter %q has unsupported value type %T", name, v)
	}
}
