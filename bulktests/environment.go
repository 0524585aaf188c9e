package bulktests

import (
	"net/http"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/stretchr/testify/require"
)

// Environment is the configuration every test body receives.
type Environment struct {
	Config        *config.NormalizedConfig
	ClientOptions []bulkclient.Option
}

func requireEnv(t *testtree.T) *Environment {
	return envFrom(t.Config())
}

func envFrom(c interface{}) *Environment {
	if env, ok := c.(*Environment); ok {
		return env
	}
	panic("bulktests.Environment was not included in the run configuration!" +
		" This is a basic mistake in the initialization logic.")
}

func newClient(t *testtree.T) *bulkclient.Client {
	env := requireEnv(t)
	return bulkclient.New(env.Config, t.DebugLogger(), env.ClientOptions...)
}

// newHookClient returns a client for a suite hook. It logs to the hook's logger and,
// if capture is not nil, also to capture.
func newHookClient(h *testtree.HookContext, capture *framework.CapturingLogger) *bulkclient.Client {
	env := envFrom(h.Config)
	logger := h.Logger
	if capture != nil {
		logger = framework.LoggerToAll(h.Logger, capture)
	}
	return bulkclient.New(env.Config, logger, env.ClientOptions...)
}

// requireOK ends the body if a client operation could not be attempted. Errors of kind
// framework.KindNotSupported end it as not-supported.
func requireOK(t *testtree.T, err error) {
	if err != nil {
		t.Fail(err)
	}
}

func requireStatus(t *testtree.T, res *bulkclient.Result, statuses ...int) {
	for _, s := range statuses {
		if res.StatusCode() == s {
			return
		}
	}
	if res.Err != nil && res.Response == nil {
		require.NoError(t, res.Err)
	}
	require.Failf(t, "unexpected HTTP status", "expected one of %v, got %d (%s)",
		statuses, res.StatusCode(), string(res.RawBody))
}

func requireRejected(t *testtree.T, res *bulkclient.Result) {
	if res.Response == nil {
		require.NoError(t, res.Err)
	}
	require.True(t, res.StatusCode() >= 400 && res.StatusCode() < 500,
		"expected a 4xx response, got %d", res.StatusCode())
}

// startExport kicks off an export that must be accepted, and cancels it when the body is
// done.
func startExport(t *testtree.T, client *bulkclient.Client, opts bulkclient.KickOffOptions) *bulkclient.Result {
	res, err := client.KickOff(t.Context(), opts)
	requireOK(t, err)
	t.After(func() error {
		_, err := client.CancelIfStarted(t.Context(), res, "cleanup")
		return err
	})
	requireStatus(t, res, http.StatusAccepted)
	require.NotEqual(t, "", res.Header("Content-Location"), "the kick-off response must include Content-Location")
	return res
}

func fastestType(t *testtree.T) string {
	return requireEnv(t).Config.FastestResource
}
