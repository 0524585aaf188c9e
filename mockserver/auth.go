package mockserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	maxAssertionTTL     = 5 * time.Minute
	assertionLeeway     = time.Minute
)

var assertionAlgorithms = []string{"ES256", "ES384", "ES512", "RS256", "RS384", "RS512"}

func (s *Server) serveToken(w http.ResponseWriter, req *http.Request, body []byte) {
	if req.Method != http.MethodPost {
		writeTokenError(w, http.StatusMethodNotAllowed, "invalid_request", "the token endpoint only supports POST")
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	if form.Get("grant_type") != "client_credentials" {
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be client_credentials")
		return
	}
	if form.Get("scope") == "" {
		writeTokenError(w, http.StatusBadRequest, "invalid_scope", "scope is required")
		return
	}

	if user, password, ok := req.BasicAuth(); ok {
		if s.config.ClientSecret == "" || user != s.config.ClientID || password != s.config.ClientSecret {
			writeTokenError(w, http.StatusUnauthorized, "invalid_client", "unknown client or wrong secret")
			return
		}
	} else if form.Get("client_assertion_type") == clientAssertionType {
		if err := s.verifyAssertion(form.Get("client_assertion")); err != nil {
			s.logger.Printf("rejected client assertion: %s", err)
			writeTokenError(w, http.StatusUnauthorized, "invalid_client", err.Error())
			return
		}
	} else {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "no client authentication was provided")
		return
	}

	token := uuid.NewString()
	s.lock.Lock()
	s.tokens[token] = time.Now().Add(s.config.TokenLifetime)
	s.lock.Unlock()
	writeJSON(w, http.StatusOK, "application/json", ldvalue.ObjectBuild().
		Set("access_token", ldvalue.String(token)).
		Set("token_type", ldvalue.String("bearer")).
		Set("expires_in", ldvalue.Int(int(s.config.TokenLifetime/time.Second))).
		Set("scope", ldvalue.String(form.Get("scope"))).
		Build())
}

func (s *Server) verifyAssertion(assertion string) error {
	if assertion == "" {
		return fmt.Errorf("client_assertion is required")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("the assertion header has no kid")
		}
		for _, k := range s.config.PublicKeys {
			if k.KeyID == kid {
				return k.PublicKey()
			}
		}
		return nil, fmt.Errorf("no registered key has kid %q", kid)
	},
		jwt.WithValidMethods(assertionAlgorithms),
		jwt.WithAudience(s.TokenURL()),
		jwt.WithIssuer(s.config.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(assertionLeeway),
	)
	if err != nil {
		return err
	}
	if sub, _ := claims.GetSubject(); sub != s.config.ClientID {
		return fmt.Errorf("sub must equal the client ID")
	}
	exp, _ := claims.GetExpirationTime()
	if exp != nil && time.Until(exp.Time) > maxAssertionTTL+assertionLeeway {
		return fmt.Errorf("exp must be no more than %s in the future", maxAssertionTTL)
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return fmt.Errorf("jti is required")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.usedJTIs[jti] {
		return fmt.Errorf("jti %q has already been used", jti)
	}
	s.usedJTIs[jti] = true
	return nil
}

// authorized reports whether the request carries a live token, writing a 401 if not.
func (s *Server) authorized(w http.ResponseWriter, req *http.Request) bool {
	if !s.config.RequireAuth {
		return true
	}
	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		s.lock.Lock()
		expiry, ok := s.tokens[token]
		s.lock.Unlock()
		if ok && time.Now().Before(expiry) {
			return true
		}
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="bulk-data"`)
	writeOutcome(w, http.StatusUnauthorized, "login", "a valid bearer token is required")
	return false
}

func writeTokenError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, "application/json", ldvalue.ObjectBuild().
		Set("error", ldvalue.String(code)).
		Set("error_description", ldvalue.String(description)).
		Build())
}
