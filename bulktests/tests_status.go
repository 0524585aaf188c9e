package bulktests

import (
	"net/http"
	"strings"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DoStatusTests(b *testtree.Builder) {
	b.Test(testtree.NodeOptions{
		Name:        "status is 202 or 200 right after kick-off",
		Description: "an in-progress export answers 202, a finished one 200",
	}, func(t *testtree.T) {
		client := newClient(t)
		startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		res, err := client.Status(t.Context())
		requireOK(t, err)
		requireStatus(t, res, http.StatusAccepted, http.StatusOK)
	})

	b.Test(testtree.NodeOptions{
		Name:        "export completes with a manifest",
		Description: "polling ends with 200 and a manifest with the required fields",
	}, func(t *testtree.T) {
		client := newClient(t)
		startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		res, err := client.WaitForExport(t.Context(), 0)
		requireOK(t, err)
		requireStatus(t, res, http.StatusOK)
		assert.Contains(t, res.Header("Content-Type"), "json")

		m, err := client.Manifest()
		require.NoError(t, err)
		assert.NotEqual(t, "", m.TransactionTime, "transactionTime is required")
		assert.NotEqual(t, "", m.Request, "request is required")
		assert.NotNil(t, m.Error, "error is required, even if empty")
		for i, entry := range m.Output {
			assert.NotEqual(t, "", entry.Type, "output[%d].type is required", i)
			assert.NotEqual(t, "", entry.URL, "output[%d].url is required", i)
		}
	})

	b.Test(testtree.NodeOptions{
		Name:        "manifest only lists the requested types",
		Description: "every output entry has a type named in _type",
	}, func(t *testtree.T) {
		client := newClient(t)
		kickOff := startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		m, _, err := client.GetExportManifest(t.Context(), kickOff, 0)
		requireOK(t, err)
		require.NotEmpty(t, m.Output, "the export produced no files")
		for _, entry := range m.Output {
			assert.Equal(t, fastestType(t), entry.Type)
		}
	})

	b.Test(testtree.NodeOptions{
		Name:        "manifest request echoes the kick-off URL",
		Description: "the request field is the URL of the kick-off that started the export",
	}, func(t *testtree.T) {
		client := newClient(t)
		kickOff := startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		m, _, err := client.GetExportManifest(t.Context(), kickOff, 0)
		requireOK(t, err)
		assert.True(t, strings.Contains(m.Request, "$export"), "unexpected request %q", m.Request)
	})
}
