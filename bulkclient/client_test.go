package bulkclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestParsesJSONAndSetsHeaders(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(
		httphelpers.HandlerWithJSONResponse(map[string]interface{}{"resourceType": "Patient", "id": "p1"}, nil))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		cfg := baseConfig(server.URL)
		cfg.CustomHeaders = map[string]string{"X-Custom": "yes"}
		c, logger, _ := newTestClient(cfg)

		res, err := c.Request(context.Background(), RequestOptions{
			URL:    server.URL + "/Patient/p1",
			Header: http.Header{"Accept": {"application/fhir+json"}},
			Label:  "read",
		})
		require.NoError(t, err)
		require.NoError(t, res.Err)
		assert.Equal(t, 200, res.StatusCode())
		assert.Equal(t, "p1", res.Body.GetByKey("id").StringValue())

		r := <-requestsCh
		assert.Equal(t, "yes", r.Request.Header.Get("X-Custom"))
		assert.Equal(t, "application/fhir+json", r.Request.Header.Get("Accept"))
		assert.Equal(t, "", r.Request.Header.Get("Authorization"))
		assert.Contains(t, logText(logger), "read: >> GET "+server.URL+"/Patient/p1")
	})
}

func TestRequestErrorStatusIsData(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(400, http.Header{"Content-Type": {"application/fhir+json"}},
		[]byte(`{"resourceType":"OperationOutcome","issue":[{"severity":"error","diagnostics":"nope"}]}`))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c, _, _ := newTestClient(baseConfig(server.URL))
		res, err := c.Request(context.Background(), RequestOptions{URL: server.URL})
		require.NoError(t, err)
		require.Error(t, res.Err)
		assert.Equal(t, 400, StatusOf(res.Err))
		assert.Contains(t, res.Err.Error(), "OperationOutcome: nope")
	})
}

func TestRequestDoesNotFollowRedirectsUnlessAsked(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/from", httphelpers.HandlerWithResponse(302, http.Header{"Location": {"/to"}}, nil))
	mux.Handle("/to", httphelpers.HandlerWithStatus(200))
	httphelpers.WithServer(mux, func(server *httptest.Server) {
		c, _, _ := newTestClient(baseConfig(server.URL))

		res, err := c.Request(context.Background(), RequestOptions{URL: server.URL + "/from"})
		require.NoError(t, err)
		assert.Equal(t, 302, res.StatusCode())

		res, err = c.Request(context.Background(), RequestOptions{URL: server.URL + "/from", FollowRedirects: true})
		require.NoError(t, err)
		assert.Equal(t, 200, res.StatusCode())
	})
}

func TestRequestTransportFailureIsData(t *testing.T) {
	c, _, _ := newTestClient(baseConfig("http://127.0.0.1:1"))
	res, err := c.Request(context.Background(), RequestOptions{URL: "http://127.0.0.1:1/x"})
	require.NoError(t, err)
	assert.Error(t, res.Err)
	assert.Equal(t, 0, res.StatusCode())
}

func TestRequestWithMalformedURLIsMisuse(t *testing.T) {
	c, _, _ := newTestClient(baseConfig("http://localhost"))
	_, err := c.Request(context.Background(), RequestOptions{URL: "http://[::1"})
	assert.Error(t, err)
}

func TestUnauthorizedResponseRetriesOnceWithNewToken(t *testing.T) {
	tokenHandler, tokenRequests := httphelpers.RecordingHandler(
		httphelpers.HandlerWithJSONResponse(map[string]interface{}{"access_token": "tok", "expires_in": 300}, nil))
	apiHandler, apiRequests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(401))
	mux := http.NewServeMux()
	mux.Handle("/token", tokenHandler)
	mux.Handle("/", apiHandler)
	httphelpers.WithServer(mux, func(server *httptest.Server) {
		cfg := baseConfig(server.URL)
		cfg.Authentication = config.AuthConfig{
			Type:          config.AuthClientCredentials,
			ClientID:      "client",
			ClientSecret:  "secret",
			TokenEndpoint: server.URL + "/token",
			Scope:         "system/*.read",
		}
		c, logger, _ := newTestClient(cfg)

		res, err := c.Request(context.Background(), RequestOptions{URL: server.URL + "/data"})
		require.NoError(t, err)
		assert.Equal(t, 401, res.StatusCode())
		assert.Len(t, apiRequests, 2)
		assert.Len(t, tokenRequests, 2)

		first := <-apiRequests
		assert.Equal(t, "Bearer tok", first.Request.Header.Get("Authorization"))
		assert.NotContains(t, logText(logger), "Bearer tok")
		assert.Contains(t, logText(logger), "Authorization: Bearer ***")
	})
}

func TestTokenIsReusedUntilInvalidated(t *testing.T) {
	tokenHandler, tokenRequests := httphelpers.RecordingHandler(
		httphelpers.HandlerWithJSONResponse(map[string]interface{}{"access_token": "tok", "expires_in": 300}, nil))
	mux := http.NewServeMux()
	mux.Handle("/token", tokenHandler)
	mux.Handle("/", httphelpers.HandlerWithStatus(200))
	httphelpers.WithServer(mux, func(server *httptest.Server) {
		cfg := baseConfig(server.URL)
		cfg.Authentication = config.AuthConfig{
			Type:          config.AuthClientCredentials,
			ClientID:      "client",
			ClientSecret:  "secret",
			TokenEndpoint: server.URL + "/token",
		}
		c, _, _ := newTestClient(cfg)
		for i := 0; i < 3; i++ {
			res, err := c.Request(context.Background(), RequestOptions{URL: server.URL + "/data"})
			require.NoError(t, err)
			require.NoError(t, res.Err)
		}
		assert.Len(t, tokenRequests, 1)

		c.InvalidateToken()
		_, err := c.Request(context.Background(), RequestOptions{URL: server.URL + "/data"})
		require.NoError(t, err)
		assert.Len(t, tokenRequests, 2)
	})
}

func TestRequestReportsAuthorizationFailureAsData(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/token", httphelpers.HandlerWithStatus(500))
	apiHandler, apiRequests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	mux.Handle("/", apiHandler)
	httphelpers.WithServer(mux, func(server *httptest.Server) {
		cfg := baseConfig(server.URL)
		cfg.Authentication = config.AuthConfig{
			Type:          config.AuthClientCredentials,
			ClientID:      "client",
			ClientSecret:  "secret",
			TokenEndpoint: server.URL + "/token",
		}
		c, _, _ := newTestClient(cfg)
		res, err := c.Request(context.Background(), RequestOptions{URL: server.URL + "/data"})
		require.NoError(t, err)
		require.Error(t, res.Err)
		assert.Equal(t, 500, StatusOf(res.Err))
		assert.Len(t, apiRequests, 0)
	})
}
