package bulktests

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"

	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) *config.JWK {
	pk, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	key, err := config.NewJWK(pk, "test-key", "ES384")
	require.NoError(t, err)
	return key
}
