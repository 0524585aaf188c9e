package bulktests

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulkclient"
	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireAuthType(t *testtree.T, types ...config.AuthType) {
	actual := requireEnv(t).Config.Authentication.Type
	t.Prerequisite(testtree.Condition{
		Assertion: func() bool {
			for _, a := range types {
				if a == actual {
					return true
				}
			}
			return false
		},
		Message: "requires authentication type " + authTypeList(types) + ", configured type is " + string(actual),
	})
}

func authTypeList(types []config.AuthType) string {
	names := make([]string, len(types))
	for i, a := range types {
		names[i] = string(a)
	}
	return strings.Join(names, " or ")
}

func DoAuthorizationTests(b *testtree.Builder) {
	b.Test(testtree.NodeOptions{
		Name:        "token endpoint issues an access token",
		Description: "a token request with the configured credentials succeeds",
	}, func(t *testtree.T) {
		requireAuthType(t, config.AuthClientCredentials, config.AuthBackendServices)
		token, res, err := newClient(t).Authorize(t.Context(), bulkclient.AuthorizeOptions{})
		requireOK(t, err)
		require.NoError(t, res.Err)
		assert.NotEqual(t, "", token)
		assert.Contains(t, []string{"bearer", "Bearer"}, res.Body.GetByKey("token_type").StringValue())
		assert.Greater(t, res.Body.GetByKey("expires_in").IntValue(), 0, "expires_in should be positive")
	})

	b.Test(testtree.NodeOptions{
		Name:        "token endpoint rejects an unknown client",
		Description: "a token request with an unregistered client ID is refused",
	}, func(t *testtree.T) {
		requireAuthType(t, config.AuthClientCredentials, config.AuthBackendServices)
		_, res, err := newClient(t).Authorize(t.Context(), bulkclient.AuthorizeOptions{
			TokenOptions: bulkclient.TokenOptions{ClientID: "unknown-" + uuid.NewString()},
		})
		requireOK(t, err)
		requireRejected(t, res)
	})

	b.Test(testtree.NodeOptions{
		Name:        "token endpoint rejects an unregistered key",
		Description: "a client assertion signed with a key the server does not know is refused",
	}, func(t *testtree.T) {
		requireAuthType(t, config.AuthBackendServices)
		pk, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		key, err := config.NewJWK(pk, "unregistered-"+uuid.NewString(), "ES384")
		require.NoError(t, err)
		_, res, err := newClient(t).Authorize(t.Context(), bulkclient.AuthorizeOptions{
			TokenOptions: bulkclient.TokenOptions{PrivateKey: key},
		})
		requireOK(t, err)
		requireRejected(t, res)
	})

	b.Test(testtree.NodeOptions{
		Name:        "token endpoint rejects the wrong audience",
		Description: "a client assertion whose aud is not the token endpoint is refused",
	}, func(t *testtree.T) {
		requireAuthType(t, config.AuthBackendServices)
		_, res, err := newClient(t).Authorize(t.Context(), bulkclient.AuthorizeOptions{
			TokenOptions: bulkclient.TokenOptions{Claims: map[string]interface{}{"aud": "https://invalid.example.org/token"}},
		})
		requireOK(t, err)
		requireRejected(t, res)
	})

	b.Test(testtree.NodeOptions{
		Name:        "token endpoint rejects a reused jti",
		Description: "a second client assertion with the same jti is refused",
		MinVersion:  "2.0.0",
	}, func(t *testtree.T) {
		requireAuthType(t, config.AuthBackendServices)
		client := newClient(t)
		opts := bulkclient.AuthorizeOptions{
			TokenOptions: bulkclient.TokenOptions{Claims: map[string]interface{}{"jti": uuid.NewString()}},
		}
		_, first, err := client.Authorize(t.Context(), opts)
		requireOK(t, err)
		require.NoError(t, first.Err)
		_, second, err := client.Authorize(t.Context(), opts)
		requireOK(t, err)
		requireRejected(t, second)
	})

	b.Test(testtree.NodeOptions{
		Name:        "kick-off requires authorization",
		Description: "a kick-off request without a bearer token is refused with 401",
	}, func(t *testtree.T) {
		requireAuthType(t, config.AuthClientCredentials, config.AuthBackendServices)
		client := newClient(t)
		res, err := client.KickOff(t.Context(), bulkclient.KickOffOptions{SkipAuth: true})
		requireOK(t, err)
		t.After(func() error {
			_, err := client.CancelIfStarted(t.Context(), res, "cleanup")
			return err
		})
		requireStatus(t, res, 401)
	})
}
