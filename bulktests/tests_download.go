package bulktests

import (
	"errors"
	"fmt"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sharedExportKey = "download.export"

// completedExport is an export started once for every download test.
type completedExport struct {
	client   *bulkclient.Client
	kickOff  *bulkclient.Result
	manifest *bulkclient.Manifest
	log      *framework.CapturingLogger
}

// requireCompletedExport returns the shared export, first copying the exchanges that
// produced it into the test's log.
func requireCompletedExport(t *testtree.T) *completedExport {
	v, ok := t.Shared().Get(sharedExportKey)
	if !ok {
		t.Fail(errors.New("the shared export was not started"))
	}
	export := v.(*completedExport)
	for _, m := range export.log.Output() {
		t.Debug("shared export: %s", m.Message)
	}
	return export
}

func DoDownloadTests(b *testtree.Builder) {
	b.Before(func(h *testtree.HookContext) error {
		setupLog := &framework.CapturingLogger{}
		client := newHookClient(h, setupLog)
		kickOff, err := client.KickOff(h.Context, bulkclient.KickOffOptions{
			Params: bulkclient.Params{"_type": envFrom(h.Config).Config.FastestResource},
		})
		if err != nil {
			return err
		}
		if kickOff.StatusCode() != 202 {
			return fmt.Errorf("kick-off was not accepted: %d", kickOff.StatusCode())
		}
		m, _, err := client.GetExportManifest(h.Context, kickOff, 0)
		if err != nil {
			_, _ = client.CancelIfStarted(h.Context, kickOff, "cleanup")
			return err
		}
		h.Shared.Set(sharedExportKey, &completedExport{client: client, kickOff: kickOff, manifest: m, log: setupLog})
		return nil
	})
	b.After(func(h *testtree.HookContext) error {
		v, ok := h.Shared.Get(sharedExportKey)
		if !ok {
			return nil
		}
		export := v.(*completedExport)
		_, err := export.client.CancelIfStarted(h.Context, export.kickOff, "cleanup")
		return err
	})

	b.Test(testtree.NodeOptions{
		Name:        "output files are NDJSON",
		Description: "every output file downloads as one resource of the listed type per line",
	}, func(t *testtree.T) {
		export := requireCompletedExport(t)
		require.NotEmpty(t, export.manifest.Output, "the export produced no files")
		client := newClient(t)
		for _, entry := range export.manifest.Output {
			res, err := client.DownloadFile(t.Context(), entry.URL, bulkclient.DownloadOptions{})
			requireOK(t, err)
			require.NoError(t, res.Err)
			resources, err := bulkclient.ParseNDJSON(res.RawBody)
			require.NoError(t, err)
			for i, r := range resources {
				assert.Equal(t, entry.Type, r.GetByKey("resourceType").StringValue(), "line %d of %s", i+1, entry.URL)
			}
			if entry.Count.IsDefined() {
				assert.Equal(t, entry.Count.IntValue(), len(resources), "count of %s", entry.URL)
			}
		}
	})

	b.Test(testtree.NodeOptions{
		Name:        "output files have an NDJSON content type",
		Description: "Content-Type is application/fhir+ndjson or application/ndjson",
	}, func(t *testtree.T) {
		export := requireCompletedExport(t)
		require.NotEmpty(t, export.manifest.Output, "the export produced no files")
		res, err := newClient(t).DownloadFile(t.Context(), export.manifest.Output[0].URL, bulkclient.DownloadOptions{})
		requireOK(t, err)
		require.NoError(t, res.Err)
		assert.Contains(t, res.Header("Content-Type"), "ndjson")
	})

	b.Test(testtree.NodeOptions{
		Name:        "output files require a token when requiresAccessToken is true",
		Description: "downloading without a bearer token is refused",
	}, func(t *testtree.T) {
		export := requireCompletedExport(t)
		t.Prerequisite(
			testtree.Condition{Assertion: export.manifest.RequiresAccessToken, Message: "the manifest does not require an access token"},
			testtree.Condition{Assertion: len(export.manifest.Output) > 0, Message: "the export produced no files"},
		)
		res, err := newClient(t).DownloadFile(t.Context(), export.manifest.Output[0].URL, bulkclient.DownloadOptions{SkipAuth: true})
		requireOK(t, err)
		require.NotNil(t, res.Response, "no response: %v", res.Err)
		assert.GreaterOrEqual(t, res.StatusCode(), 400)
	})
}
