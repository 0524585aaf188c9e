package bulktests

import (
	"net/http"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"
)

func DoCancellationTests(b *testtree.Builder) {
	b.Test(testtree.NodeOptions{
		Name:        "cancelling an export is accepted",
		Description: "DELETE to the status URL answers 202",
	}, func(t *testtree.T) {
		client := newClient(t)
		kickOff := startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		res, err := client.Cancel(t.Context(), kickOff, "")
		requireOK(t, err)
		requireStatus(t, res, http.StatusAccepted)
	})

	b.Test(testtree.NodeOptions{
		Name:        "status of a cancelled export is 404",
		Description: "once cancelled, the status URL no longer exists",
	}, func(t *testtree.T) {
		client := newClient(t)
		kickOff := startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		res, err := client.Cancel(t.Context(), kickOff, "")
		requireOK(t, err)
		requireStatus(t, res, http.StatusAccepted)
		status, err := client.Status(t.Context())
		requireOK(t, err)
		requireStatus(t, status, http.StatusNotFound)
	})

	b.Test(testtree.NodeOptions{
		Name:        "cancelling twice gives 404",
		Description: "a second DELETE to the status URL answers 404",
	}, func(t *testtree.T) {
		client := newClient(t)
		kickOff := startExport(t, client, bulkclient.KickOffOptions{Params: bulkclient.Params{"_type": fastestType(t)}})
		_, err := client.Cancel(t.Context(), kickOff, "")
		requireOK(t, err)
		res, err := client.Cancel(t.Context(), kickOff, "")
		requireOK(t, err)
		requireStatus(t, res, http.StatusNotFound)
	})
}
