package bulkclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	pollBaseDelay = 2000 * time.Millisecond
	pollStepDelay = 1000 * time.Millisecond
	pollMaxDelay  = 10000 * time.Millisecond

	// Retry-After values below this are raised to it.
	minRetryAfterDelay = time.Second
)

// Manifest is the body of a completed status response.
type Manifest struct {
	TransactionTime     string          `json:"transactionTime"`
	Request             string          `json:"request"`
	RequiresAccessToken bool            `json:"requiresAccessToken"`
	Output              []ManifestEntry `json:"output"`
	Error               []ManifestEntry `json:"error"`
	Deleted             []ManifestEntry `json:"deleted,omitempty"`
}

// ManifestEntry describes one output file.
type ManifestEntry struct {
	Type  string              `json:"type"`
	URL   string              `json:"url"`
	Count ldvalue.OptionalInt `json:"count"`
}

// ParseManifest decodes a manifest from a completed status response.
func ParseManifest(res *Result) (*Manifest, error) {
	if res == nil || res.Response == nil {
		return nil, errors.New("no status response")
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("expected a completed status response (200), got %d", res.StatusCode())
	}
	var m Manifest
	if err := json.Unmarshal(res.RawBody, &m); err != nil {
		return nil, fmt.Errorf("malformed export manifest: %w", err)
	}
	return &m, nil
}

// PollDelay is the wait before the next status request. A Retry-After header, given
// either in seconds or as an HTTP date, wins but is never shorter than one second;
// otherwise the delay is min(2000+1000*attempt, 10000) milliseconds.
func PollDelay(attempt int, retryAfter string, now time.Time) time.Duration {
	if retryAfter = strings.TrimSpace(retryAfter); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return atLeast(time.Duration(secs)*time.Second, minRetryAfterDelay)
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			return atLeast(t.Sub(now), minRetryAfterDelay)
		}
	}
	if attempt < 0 {
		attempt = 0
	}
	d := pollBaseDelay + time.Duration(attempt)*pollStepDelay
	if d > pollMaxDelay {
		return pollMaxDelay
	}
	return d
}

func atLeast(d, min time.Duration) time.Duration {
	if d < min {
		return min
	}
	return d
}

func (c *Client) statusURL(kickOff *Result) (string, error) {
	if kickOff == nil {
		return "", ErrNoKickOff
	}
	loc := kickOff.Header("Content-Location")
	if loc == "" {
		return "", ErrNoContentLocation
	}
	target, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("invalid Content-Location %q: %w", loc, err)
	}
	if kickOff.Request != nil {
		target = kickOff.Request.URL.ResolveReference(target)
	}
	return target.String(), nil
}

// Status requests the status URL of the last kick-off once.
func (c *Client) Status(ctx context.Context) (*Result, error) {
	statusURL, err := c.statusURL(c.kickOffResult)
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, statusURL)
}

func (c *Client) poll(ctx context.Context, statusURL string) (*Result, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	return c.Request(ctx, RequestOptions{URL: statusURL, Header: header, Label: "status"})
}

// WaitForExport polls the status of the last kick-off for as long as the server answers
// 202, and returns the first other response, which is remembered as the final status.
// There is no overall deadline other than ctx.
func (c *Client) WaitForExport(ctx context.Context, attempt int) (*Result, error) {
	statusURL, err := c.statusURL(c.kickOffResult)
	if err != nil {
		return nil, err
	}
	for {
		res, err := c.poll(ctx, statusURL)
		if err != nil {
			return nil, err
		}
		if res.StatusCode() != http.StatusAccepted {
			c.statusResult = res
			return res, nil
		}
		if err := c.pause(ctx, res, attempt); err != nil {
			return res, err
		}
		attempt++
	}
}

// GetExportManifest polls starting from a response the caller already has, such as a
// kick-off or status response, until the export completes, and returns the manifest.
// Any final status other than 200 is an error.
func (c *Client) GetExportManifest(ctx context.Context, prior *Result, attempt int) (*Manifest, *Result, error) {
	if prior == nil {
		return nil, nil, errors.New("no response to poll from")
	}
	res := prior
	statusURL := ""
	for res.StatusCode() == http.StatusAccepted {
		if statusURL == "" {
			if res.Header("Content-Location") != "" {
				u, err := c.statusURL(res)
				if err != nil {
					return nil, res, err
				}
				statusURL = u
			} else if res.Request != nil {
				statusURL = res.Request.URL.String()
			} else {
				return nil, res, ErrNoContentLocation
			}
		}
		if err := c.pause(ctx, res, attempt); err != nil {
			return nil, res, err
		}
		attempt++
		next, err := c.poll(ctx, statusURL)
		if err != nil {
			return nil, res, err
		}
		res = next
	}
	if res.StatusCode() != http.StatusOK {
		if res.Err != nil {
			return nil, res, fmt.Errorf("export failed: %w", res.Err)
		}
		return nil, res, fmt.Errorf("export failed: unexpected status %d", res.StatusCode())
	}
	c.statusResult = res
	m, err := ParseManifest(res)
	return m, res, err
}

func (c *Client) pause(ctx context.Context, res *Result, attempt int) error {
	if progress := res.Header("X-Progress"); progress != "" {
		c.logger.Printf("status: export in progress (%s)", progress)
	}
	delay := PollDelay(attempt, res.Header("Retry-After"), c.now())
	c.logger.Printf("status: checking again in %s", delay)
	return c.sleep(ctx, delay)
}

// GetExportResponse returns the final status response of the current export, kicking one
// off with default options and waiting for it as needed.
func (c *Client) GetExportResponse(ctx context.Context) (*Result, error) {
	if c.kickOffResult == nil {
		if _, err := c.KickOff(ctx, KickOffOptions{}); err != nil {
			return nil, err
		}
	}
	if c.statusResult == nil {
		if _, err := c.WaitForExport(ctx, 0); err != nil {
			return nil, err
		}
	}
	return c.statusResult, nil
}

// StatusResult returns the final status response of the current export, or nil.
func (c *Client) StatusResult() *Result { return c.statusResult }

// Manifest returns the manifest of the completed current export.
func (c *Client) Manifest() (*Manifest, error) {
	if c.statusResult == nil {
		return nil, errors.New("the export has not completed; call WaitForExport first")
	}
	return ParseManifest(c.statusResult)
}
