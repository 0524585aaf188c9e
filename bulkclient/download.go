package bulkclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// DownloadOptions controls a file download.
type DownloadOptions struct {
	SkipAuth bool
	Header   http.Header
	Label    string
}

// DownloadFileAt downloads the output file at index in the manifest of the current
// export, starting and completing the export first if necessary.
func (c *Client) DownloadFileAt(ctx context.Context, index int, skipAuth bool) (*Result, error) {
	res, err := c.GetExportResponse(ctx)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(res)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.Output) {
		return nil, fmt.Errorf("the manifest has %d output files, no file at index %d", len(m.Output), index)
	}
	return c.DownloadFile(ctx, m.Output[index].URL, DownloadOptions{SkipAuth: skipAuth})
}

// DownloadFile downloads one file. Relative URLs are resolved against the base URL.
func (c *Client) DownloadFile(ctx context.Context, fileURL string, opts DownloadOptions) (*Result, error) {
	u, err := c.config.ResolveURL(fileURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Accept", "application/fhir+ndjson")
	for k, vs := range opts.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return c.Request(ctx, RequestOptions{
		URL:             u,
		Header:          header,
		SkipAuth:        opts.SkipAuth,
		FollowRedirects: true,
		Label:           firstNonEmpty(opts.Label, "download"),
	})
}

// ParseNDJSON parses newline-delimited JSON. Blank lines are ignored; every other line
// must be a JSON object.
func ParseNDJSON(data []byte) ([]ldvalue.Value, error) {
	var ret []ldvalue.Value
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), len(data)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, fmt.Errorf("line %d is not valid JSON", line)
		}
		v := ldvalue.Parse(text)
		if v.Type() != ldvalue.ObjectType {
			return nil, fmt.Errorf("line %d is not a JSON object", line)
		}
		ret = append(ret, v)
	}
	return ret, scanner.Err()
}
