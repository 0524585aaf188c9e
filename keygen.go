package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var alg, kid string
	var public bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a private JWK for backend-services authentication",
		Long: "Generate a private JWK for backend-services authentication. Put the key under\n" +
			"authentication.privateKey in the configuration, and register its public part\n" +
			"(--public) with the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := generateKey(alg, kid)
			if err != nil {
				return err
			}
			var out interface{} = key
			if public {
				out = jose.JSONWebKeySet{Keys: []jose.JSONWebKey{key.Public().JSONWebKey}}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&alg, "alg", "ES384", "signing algorithm: ES384 or RS384")
	cmd.Flags().StringVar(&kid, "kid", "", "key identifier (default: a random UUID)")
	cmd.Flags().BoolVar(&public, "public", false, "print the public key set instead of the private key")
	return cmd
}

func generateKey(alg, kid string) (*config.JWK, error) {
	if kid == "" {
		kid = uuid.NewString()
	}
	switch alg {
	case "ES384":
		pk, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			return nil, err
		}
		return config.NewJWK(pk, kid, alg)
	case "RS384":
		pk, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		return config.NewJWK(pk, kid, alg)
	}
	return nil, fmt.Errorf("unsupported algorithm %q", alg)
}
