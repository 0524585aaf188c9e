package bulkclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// TokenOptions overrides parts of a client assertion. Zero fields fall back to the
// configuration. Header and Claims are merged over the configured custom header fields
// and claims, which are merged over the standard ones.
type TokenOptions struct {
	Algorithm     string
	PrivateKey    *config.JWK
	ExpiresIn     time.Duration
	ClientID      string
	TokenEndpoint string
	Header        map[string]interface{}
	Claims        map[string]interface{}
}

// CreateAuthenticationToken builds and signs a client assertion for the backend-services
// flow: iss and sub are the client ID, aud is the token endpoint, and jti is random.
func (c *Client) CreateAuthenticationToken(opts TokenOptions) (string, error) {
	a := c.config.Authentication
	key := opts.PrivateKey
	if key == nil {
		key = a.PrivateKey
	}
	if key == nil {
		return "", errors.New("no private key is configured")
	}
	if key.KeyID == "" {
		return "", errors.New("the private key has no key identifier (kid)")
	}
	alg := firstNonEmpty(opts.Algorithm, a.Algorithm, key.Algorithm)
	if alg == "" {
		return "", errors.New("no signing algorithm is configured and the key does not declare one")
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	signer, err := key.PrivateKey()
	if err != nil {
		return "", err
	}

	expiresIn := opts.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = a.TokenExpiration()
	}
	clientID := firstNonEmpty(opts.ClientID, a.ClientID)
	claims := jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": firstNonEmpty(opts.TokenEndpoint, a.TokenEndpoint),
		"exp": c.now().Add(expiresIn).Unix(),
		"jti": uuid.NewString(),
	}
	for k, v := range a.CustomTokenClaims {
		claims[k] = v
	}
	for k, v := range opts.Claims {
		claims[k] = v
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KeyID
	for k, v := range a.CustomTokenHeaders {
		token.Header[k] = v
	}
	for k, v := range opts.Header {
		token.Header[k] = v
	}
	signed, err := token.SignedString(signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign the client assertion: %w", err)
	}
	return signed, nil
}

// AuthorizeOptions controls a token request.
type AuthorizeOptions struct {
	TokenOptions

	// Scope replaces the configured scope.
	Scope string

	// Form values are set on the request form after the standard ones.
	Form url.Values

	Label string
}

// Authorize requests an access token from the token endpoint. With client-credentials the
// client authenticates with Basic auth; with backend-services it sends a signed client
// assertion. If the server answers with an error status the returned Result has Err set
// and the token is "". The error return is non-nil if authentication is "none", if the
// request could not be built, or if a successful response has no access_token.
func (c *Client) Authorize(ctx context.Context, opts AuthorizeOptions) (string, *Result, error) {
	token, res, err := c.authorize(ctx, opts)
	if token == nil {
		return "", res, err
	}
	return token.AccessToken, res, err
}

func (c *Client) authorize(ctx context.Context, opts AuthorizeOptions) (*oauth2.Token, *Result, error) {
	a := c.config.Authentication
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", firstNonEmpty(opts.Scope, a.Scope))
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")

	switch a.Type {
	case config.AuthClientCredentials:
		header.Set("Authorization", "Basic "+basicCredentials(firstNonEmpty(opts.ClientID, a.ClientID), a.ClientSecret))
	case config.AuthBackendServices:
		assertion, err := c.CreateAuthenticationToken(opts.TokenOptions)
		if err != nil {
			return nil, nil, err
		}
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", assertion)
	default:
		return nil, nil, framework.NotSupported("the server is configured without authentication")
	}
	for k, vs := range opts.Form {
		form[k] = vs
	}

	res, err := c.Request(ctx, RequestOptions{
		Method:   http.MethodPost,
		URL:      firstNonEmpty(opts.TokenEndpoint, a.TokenEndpoint),
		Header:   header,
		Body:     []byte(form.Encode()),
		SkipAuth: true,
		Label:    firstNonEmpty(opts.Label, "authorize"),
	})
	if err != nil {
		return nil, nil, err
	}
	if res.Err != nil {
		if res.StatusCode() == http.StatusNotFound {
			c.addHint(res, fmt.Sprintf("the token endpoint %s was not found; check the tokenEndpoint setting", res.Options.URL))
		}
		return nil, res, nil
	}

	accessToken := res.Body.GetByKey("access_token").StringValue()
	if accessToken == "" {
		return nil, res, errors.New("the token response did not include an access_token")
	}
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   res.Body.GetByKey("token_type").StringValue(),
	}
	if secs := res.Body.GetByKey("expires_in").IntValue(); secs > 0 {
		token.Expiry = c.now().Add(time.Duration(secs) * time.Second)
	}
	return token, res, nil
}

// AccessToken returns the cached access token, authorizing first if there is none or it
// has expired. A failed authorization is returned as an error and not cached.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.token != nil && c.token.Valid() {
		return c.token.AccessToken, nil
	}
	token, res, err := c.authorize(ctx, AuthorizeOptions{})
	if err != nil {
		return "", err
	}
	if res.Err != nil {
		return "", res.Err
	}
	c.token = token
	return token.AccessToken, nil
}

// InvalidateToken discards the cached access token.
func (c *Client) InvalidateToken() {
	c.token = nil
}

func (c *Client) addHint(res *Result, hint string) {
	res.Hints = append(res.Hints, hint)
	c.labeled(res.Options.Label).Printf("hint: %s", hint)
}

// addAuthHints explains a 401 or 403 in terms of the configured authentication.
func (c *Client) addAuthHints(res *Result) {
	a := c.config.Authentication
	switch a.Type {
	case config.AuthClientCredentials:
		c.addHint(res, fmt.Sprintf("check that client %q and its secret are registered with the server", a.ClientID))
		c.addHint(res, fmt.Sprintf("check that the client is allowed the scope %q", a.Scope))
	case config.AuthBackendServices:
		kid := ""
		if a.PrivateKey != nil {
			kid = a.PrivateKey.KeyID
		}
		c.addHint(res, fmt.Sprintf("check that client %q is registered with the public key %q", a.ClientID, kid))
		c.addHint(res, fmt.Sprintf("check that the client is allowed the scope %q", a.Scope))
	default:
		c.addHint(res, "the server requires authorization but none is configured; set authentication.type")
	}
}

func basicCredentials(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
