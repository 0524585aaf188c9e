package bulktests

import (
	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const oauthURIsExtension = "http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris"

func DoCapabilityStatementTests(b *testtree.Builder) {
	b.Test(testtree.NodeOptions{
		Name:        "server provides a CapabilityStatement",
		Description: "GET {baseURL}/metadata returns a CapabilityStatement without authorization",
	}, func(t *testtree.T) {
		cs, res, err := newClient(t).CapabilityStatement(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 200, res.StatusCode())
		assert.NotEqual(t, "", cs.GetByKey("fhirVersion").StringValue(), "fhirVersion is required")
	})

	b.Test(testtree.NodeOptions{
		Name:        "CapabilityStatement declares the export operation",
		Description: "the server or one of its resources lists an operation named \"export\"",
	}, func(t *testtree.T) {
		cs, _, err := newClient(t).CapabilityStatement(t.Context())
		require.NoError(t, err)
		assert.True(t, bulkclient.SupportsOperation(cs, "export"), "no export operation is declared")
	})

	b.Test(testtree.NodeOptions{
		Name:        "CapabilityStatement declares the token endpoint",
		Description: "rest.security carries the SMART oauth-uris extension with a token URL",
	}, func(t *testtree.T) {
		env := requireEnv(t)
		t.Prerequisite(testtree.Condition{
			Assertion: env.Config.Authentication.Type != config.AuthNone,
			Message:   "the server is configured without authentication",
		})
		cs, _, err := newClient(t).CapabilityStatement(t.Context())
		require.NoError(t, err)
		token := declaredTokenURL(cs)
		require.NotEqual(t, "", token, "no token URL is declared")
		assert.Equal(t, env.Config.Authentication.TokenEndpoint, token)
	})
}

func declaredTokenURL(cs ldvalue.Value) string {
	rest := cs.GetByKey("rest")
	for i := 0; i < rest.Count(); i++ {
		exts := rest.GetByIndex(i).GetByKey("security").GetByKey("extension")
		for j := 0; j < exts.Count(); j++ {
			ext := exts.GetByIndex(j)
			if ext.GetByKey("url").StringValue() != oauthURIsExtension {
				continue
			}
			inner := ext.GetByKey("extension")
			for k := 0; k < inner.Count(); k++ {
				if e := inner.GetByIndex(k); e.GetByKey("url").StringValue() == "token" {
					return e.GetByKey("valueUri").StringValue()
				}
			}
		}
	}
	return ""
}
