// Package config defines the resolved configuration shared, read-only, by every test in a
// run, and loads it from a YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
)

// AuthType selects how the protocol client obtains access tokens.
type AuthType string

const (
	AuthNone              AuthType = "none"
	AuthClientCredentials AuthType = "client-credentials"
	AuthBackendServices   AuthType = "backend-services"
)

const (
	defaultRequestTimeout  = time.Second * 30
	defaultTokenExpiration = 300
)

// NormalizedConfig is the resolved configuration of a run.
type NormalizedConfig struct {
	BaseURL            string            `yaml:"baseURL"`
	APIVersion         string            `yaml:"apiVersion"`
	Endpoints          ExportEndpoints   `yaml:"endpoints"`
	Authentication     AuthConfig        `yaml:"authentication"`
	RequestTimeoutMS   int               `yaml:"requestTimeoutMs"`
	InsecureSkipVerify bool              `yaml:"insecureSkipVerify"`
	CustomHeaders      map[string]string `yaml:"customHeaders"`
	ResourceTypes      []string          `yaml:"resourceTypes"`
	FastestResource    string            `yaml:"fastestResource"`
	SinceParam         string            `yaml:"sinceParam"`
	GroupID            string            `yaml:"groupId"`
	PatientIDs         []string          `yaml:"patientIds"`
}

// ExportEndpoints are the kick-off URLs for each export scope. Relative URLs are resolved
// against BaseURL. An empty value means the server does not offer that kind of export.
type ExportEndpoints struct {
	System  string `yaml:"system"`
	Patient string `yaml:"patient"`
	Group   string `yaml:"group"`
}

// AuthConfig is the authentication block of the configuration.
type AuthConfig struct {
	Type                   AuthType               `yaml:"type"`
	ClientID               string                 `yaml:"clientId"`
	ClientSecret           string                 `yaml:"clientSecret"`
	TokenEndpoint          string                 `yaml:"tokenEndpoint"`
	Scope                  string                 `yaml:"scope"`
	PrivateKey             *JWK                   `yaml:"privateKey"`
	Algorithm              string                 `yaml:"algorithm"`
	TokenExpirationSeconds int                    `yaml:"tokenExpirationSeconds"`
	CustomTokenHeaders     map[string]interface{} `yaml:"customTokenHeaders"`
	CustomTokenClaims      map[string]interface{} `yaml:"customTokenClaims"`
}

// RequestTimeout returns the per-request timeout.
func (c *NormalizedConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// TokenExpiration returns the lifetime given to signed authentication assertions.
func (a AuthConfig) TokenExpiration() time.Duration {
	if a.TokenExpirationSeconds <= 0 {
		return defaultTokenExpiration * time.Second
	}
	return time.Duration(a.TokenExpirationSeconds) * time.Second
}

// ResolveURL resolves a possibly relative URL against BaseURL. A relative path such as
// "Patient/$export" is appended to the base path; a path starting with "/" replaces it.
func (c *NormalizedConfig) ResolveURL(ref string) (string, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if target.IsAbs() {
		return target.String(), nil
	}
	base, err := url.Parse(strings.TrimSuffix(c.BaseURL, "/") + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}

// ApplyDefaults fills in values that may be omitted from a configuration file.
func (c *NormalizedConfig) ApplyDefaults() {
	if c.Authentication.Type == "" {
		c.Authentication.Type = AuthNone
	}
	if c.Authentication.Scope == "" {
		c.Authentication.Scope = "system/*.read"
	}
	if c.FastestResource == "" {
		c.FastestResource = "Patient"
	}
}

// Validate performs basic consistency checks.
func (c *NormalizedConfig) Validate() error {
	var errs []string
	if c.BaseURL == "" {
		errs = append(errs, "baseURL is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Sprintf("baseURL %q is not an absolute URL", c.BaseURL))
	}
	if c.Endpoints == (ExportEndpoints{}) {
		errs = append(errs, "at least one export endpoint is required")
	}
	if c.APIVersion != "" {
		if _, err := framework.ParseVersion(c.APIVersion); err != nil {
			errs = append(errs, "apiVersion: "+err.Error())
		}
	}
	a := c.Authentication
	switch a.Type {
	case AuthNone:
	case AuthClientCredentials:
		if a.ClientID == "" || a.ClientSecret == "" {
			errs = append(errs, "client-credentials authentication requires clientId and clientSecret")
		}
	case AuthBackendServices:
		if a.ClientID == "" {
			errs = append(errs, "backend-services authentication requires clientId")
		}
		if a.PrivateKey == nil {
			errs = append(errs, "backend-services authentication requires privateKey")
		} else if !a.PrivateKey.IsPrivate() {
			errs = append(errs, "authentication.privateKey must be a private RSA or EC key")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown authentication type %q", a.Type))
	}
	if a.Type != AuthNone && a.TokenEndpoint == "" {
		errs = append(errs, "authentication.tokenEndpoint is required unless the type is \"none\"")
	}
	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}
