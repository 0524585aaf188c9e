package config

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"gopkg.in/yaml.v3"
)

// JWK is a JSON Web Key as it appears in configuration files and JWKS documents. Only
// RSA and EC keys are used for signing.
type JWK struct {
	jose.JSONWebKey
}

// NewJWK describes a generated private key as a JWK.
func NewJWK(key crypto.Signer, kid, alg string) (*JWK, error) {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
	case *rsa.PrivateKey:
		if len(k.Primes) != 2 {
			return nil, errors.New("only two-prime RSA keys are supported")
		}
		k.Precompute()
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	jwk := &JWK{jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: alg, Use: "sig"}}
	if !jwk.Valid() {
		return nil, fmt.Errorf("invalid %T for a JWK", key)
	}
	return jwk, nil
}

// UnmarshalYAML decodes a JWK given as a YAML mapping with the usual JWK member names.
func (k *JWK) UnmarshalYAML(node *yaml.Node) error {
	var members map[string]interface{}
	if err := node.Decode(&members); err != nil {
		return err
	}
	data, err := json.Marshal(members)
	if err != nil {
		return err
	}
	if err := k.JSONWebKey.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid JWK: %w", err)
	}
	return nil
}

// IsPrivate reports whether the key carries private material.
func (k *JWK) IsPrivate() bool {
	_, ok := k.Key.(crypto.Signer)
	return ok
}

// Public returns a copy of the key without its private parts.
func (k *JWK) Public() JWK {
	return JWK{k.JSONWebKey.Public()}
}

// PrivateKey returns the key as a *rsa.PrivateKey or *ecdsa.PrivateKey.
func (k *JWK) PrivateKey() (crypto.Signer, error) {
	switch key := k.Key.(type) {
	case *ecdsa.PrivateKey:
		return key, nil
	case *rsa.PrivateKey:
		return key, nil
	case nil:
		return nil, fmt.Errorf("JWK %q has no key material", k.KeyID)
	case *ecdsa.PublicKey, *rsa.PublicKey:
		return nil, fmt.Errorf("JWK %q is not a private key", k.KeyID)
	}
	return nil, fmt.Errorf("unsupported JWK key type %T", k.Key)
}

// PublicKey returns the public part of the key.
func (k *JWK) PublicKey() (crypto.PublicKey, error) {
	switch key := k.Key.(type) {
	case *ecdsa.PrivateKey:
		return &key.PublicKey, nil
	case *rsa.PrivateKey:
		return &key.PublicKey, nil
	case *ecdsa.PublicKey, *rsa.PublicKey:
		return key, nil
	case nil:
		return nil, fmt.Errorf("JWK %q has no key material", k.KeyID)
	}
	return nil, fmt.Errorf("unsupported JWK key type %T", k.Key)
}
