package bulktests

import (
	"net/http"
	"strings"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"
)

func DoKickOffTests(b *testtree.Builder) {
	for _, scope := range []bulkclient.ExportScope{bulkclient.ScopeSystem, bulkclient.ScopePatient, bulkclient.ScopeGroup} {
		scope := scope
		b.Suite(testtree.NodeOptions{Name: string(scope) + "-level export"}, func(b *testtree.Builder) {
			b.BeforeEach(func(h *testtree.HookContext) error {
				h.Logger.Printf("kick-off scope: %s", scope)
				return nil
			})
			doScopedKickOffTests(b, scope)
		})
	}

	b.Test(testtree.NodeOptions{
		Name:        "kick-off with an unknown resource type is rejected",
		Description: "_type naming a resource type that does not exist gives a 4xx response",
	}, func(t *testtree.T) {
		client := newClient(t)
		res := kickOffExpectingRejection(t, client, bulkclient.KickOffOptions{
			Params: bulkclient.Params{"_type": "NotARealResourceType"},
		})
		requireRejected(t, res)
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off with an invalid _outputFormat is rejected",
		Description: "an _outputFormat other than NDJSON gives a 4xx response",
	}, func(t *testtree.T) {
		client := newClient(t)
		res := kickOffExpectingRejection(t, client, bulkclient.KickOffOptions{
			Params: bulkclient.Params{"_outputFormat": "application/xml"},
		})
		requireRejected(t, res)
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off with an invalid _since is rejected",
		Description: "a _since value that is not an instant gives a 4xx response",
	}, func(t *testtree.T) {
		client := newClient(t)
		res := kickOffExpectingRejection(t, client, bulkclient.KickOffOptions{
			Params: bulkclient.Params{"_since": "not-a-date"},
		})
		requireRejected(t, res)
	})
}

func doScopedKickOffTests(b *testtree.Builder, scope bulkclient.ExportScope) {
	b.Test(testtree.NodeOptions{
		Name:        "GET kick-off is accepted",
		Description: "the server answers 202 with a Content-Location header",
	}, func(t *testtree.T) {
		startExport(t, newClient(t), bulkclient.KickOffOptions{
			Scope:  scope,
			Params: bulkclient.Params{"_type": fastestType(t)},
		})
	})

	b.Test(testtree.NodeOptions{
		Name:        "POST kick-off is accepted",
		Description: "a Parameters body is accepted like the equivalent query",
	}, func(t *testtree.T) {
		startExport(t, newClient(t), bulkclient.KickOffOptions{
			Scope:  scope,
			Method: http.MethodPost,
			Params: bulkclient.Params{"_type": fastestType(t)},
		})
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off with _since is accepted",
		Description: "a _since instant restricts the export without error",
	}, func(t *testtree.T) {
		env := requireEnv(t)
		name := env.Config.SinceParam
		if name == "" {
			name = "_since"
		}
		startExport(t, newClient(t), bulkclient.KickOffOptions{
			Scope:  scope,
			Params: bulkclient.Params{"_type": fastestType(t), name: "2020-01-01T00:00:00Z"},
		})
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off with _elements is accepted",
		Description: "the _elements parameter added in version 2 is accepted",
		MinVersion:  "2.0.0",
	}, func(t *testtree.T) {
		startExport(t, newClient(t), bulkclient.KickOffOptions{
			Scope:  scope,
			Method: http.MethodPost,
			Params: bulkclient.Params{"_type": fastestType(t), "_elements": "id"},
		})
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off without Prefer: respond-async is rejected",
		Description: "the server requires asynchronous processing to be requested",
	}, func(t *testtree.T) {
		client := newClient(t)
		res := kickOffExpectingRejection(t, client, bulkclient.KickOffOptions{
			Scope:  scope,
			Params: bulkclient.Params{"_type": fastestType(t)},
			Header: http.Header{"Prefer": {""}},
		})
		requireRejected(t, res)
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off with an unsupported Accept header is rejected",
		Description: "the server only accepts application/fhir+json for kick-off",
	}, func(t *testtree.T) {
		client := newClient(t)
		res := kickOffExpectingRejection(t, client, bulkclient.KickOffOptions{
			Scope:  scope,
			Params: bulkclient.Params{"_type": fastestType(t)},
			Header: http.Header{"Accept": {"text/html"}},
		})
		requireRejected(t, res)
	})

	if scope != bulkclient.ScopeSystem {
		b.Test(testtree.NodeOptions{
			Name:        "kick-off with a patient parameter is accepted",
			Description: "POST kick-off may restrict the export to specific patients",
		}, func(t *testtree.T) {
			env := requireEnv(t)
			t.Prerequisite(testtree.Condition{Assertion: len(env.Config.PatientIDs) > 0, Message: "no patientIds are configured"})
			startExport(t, newClient(t), bulkclient.KickOffOptions{
				Scope:  scope,
				Method: http.MethodPost,
				Params: bulkclient.Params{"_type": fastestType(t), "patient": env.Config.PatientIDs},
			})
		})
	}
}

// kickOffExpectingRejection sends a kick-off that should fail, canceling the export if the
// server accepted it anyway.
func kickOffExpectingRejection(t *testtree.T, client *bulkclient.Client, opts bulkclient.KickOffOptions) *bulkclient.Result {
	res, err := client.KickOff(t.Context(), opts)
	requireOK(t, err)
	t.After(func() error {
		_, err := client.CancelIfStarted(t.Context(), res, "cleanup")
		return err
	})
	if res.StatusCode() == http.StatusAccepted {
		t.Debug("the server accepted the export (Content-Location: %s)", strings.TrimSpace(res.Header("Content-Location")))
	}
	return res
}
