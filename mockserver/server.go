// Package mockserver is an in-process bulk data export server. It implements enough of the
// kick-off, status, download, cancellation, and token endpoints for the export client and
// the contract test suite to be exercised end to end without a real server.
package mockserver

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	tokenPath      = "/auth/token"
	statusPrefix   = "/status/"
	filesPrefix    = "/files/"
	exportSuffix   = "$export"
	defaultPolls   = 2
	defaultTTL     = 5 * time.Minute
	defaultPerFile = 3
)

// Config controls the behavior of a Server.
type Config struct {
	// ClientID and ClientSecret are the only client the token endpoint accepts. If
	// ClientSecret is empty, client-credentials authentication is refused.
	ClientID     string
	ClientSecret string

	// PublicKeys verify backend-services client assertions, matched by kid.
	PublicKeys []*config.JWK

	// RequireAuth makes kick-off, status, and file requests require a bearer token.
	RequireAuth bool

	// PendingPolls is the number of 202 status responses before an export completes.
	// Zero means the default; a negative value completes immediately.
	PendingPolls int

	// RetryAfter, if set, is sent with every 202 status response.
	RetryAfter string

	// ResourceTypes are the types exported when no _type parameter is given.
	ResourceTypes []string

	// ResourcesPerFile is the number of lines in each output file.
	ResourcesPerFile int

	// TokenLifetime is the expires_in of issued tokens.
	TokenLifetime time.Duration

	// DisableGroupExport and DisablePatientExport remove those endpoints.
	DisableGroupExport   bool
	DisablePatientExport bool

	Logger framework.Logger
}

// RequestInfo describes a request received by the server.
type RequestInfo struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Server is a mock bulk data server listening on a local port.
type Server struct {
	config   Config
	server   *httptest.Server
	logger   framework.Logger
	jobs     map[string]*exportJob
	lastID   int
	tokens   map[string]time.Time
	usedJTIs map[string]bool
	requests []RequestInfo
	lock     sync.Mutex
}

// New starts a Server. Call Close when done with it.
func New(cfg Config) *Server {
	if cfg.PendingPolls == 0 {
		cfg.PendingPolls = defaultPolls
	}
	if len(cfg.ResourceTypes) == 0 {
		cfg.ResourceTypes = []string{"Patient", "Observation"}
	}
	if cfg.ResourcesPerFile <= 0 {
		cfg.ResourcesPerFile = defaultPerFile
	}
	if cfg.TokenLifetime <= 0 {
		cfg.TokenLifetime = defaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}
	s := &Server{
		config:   cfg,
		logger:   framework.LoggerWithPrefix(logger, "[mock server] "),
		jobs:     make(map[string]*exportJob),
		tokens:   make(map[string]time.Time),
		usedJTIs: make(map[string]bool),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// URL returns the base URL of the server, without a trailing slash.
func (s *Server) URL() string { return s.server.URL }

// TokenURL returns the URL of the token endpoint.
func (s *Server) TokenURL() string { return s.server.URL + tokenPath }

// Close shuts down the server.
func (s *Server) Close() { s.server.Close() }

// Requests returns every request received so far, in order.
func (s *Server) Requests() []RequestInfo {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RequestInfo(nil), s.requests...)
}

// RequestsTo returns the received requests whose path starts with prefix.
func (s *Server) RequestsTo(prefix string) []RequestInfo {
	var ret []RequestInfo
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			ret = append(ret, r)
		}
	}
	return ret
}

// RevokeTokens invalidates every access token issued so far.
func (s *Server) RevokeTokens() {
	s.lock.Lock()
	s.tokens = make(map[string]time.Time)
	s.lock.Unlock()
}

// Environment returns a client configuration pointing at this server, using
// authentication type authType.
func (s *Server) Environment(authType config.AuthType) *config.NormalizedConfig {
	cfg := &config.NormalizedConfig{
		BaseURL:    s.URL(),
		APIVersion: "2.0.0",
		Endpoints: config.ExportEndpoints{
			System: exportSuffix,
		},
		Authentication: config.AuthConfig{
			Type:          authType,
			ClientID:      s.config.ClientID,
			ClientSecret:  s.config.ClientSecret,
			TokenEndpoint: s.TokenURL(),
		},
		GroupID: "g1",
	}
	if !s.config.DisablePatientExport {
		cfg.Endpoints.Patient = "Patient/" + exportSuffix
	}
	if !s.config.DisableGroupExport {
		cfg.Endpoints.Group = "Group/g1/" + exportSuffix
	}
	cfg.ApplyDefaults()
	return cfg
}

func (s *Server) serveHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := ioutil.ReadAll(req.Body)
	s.lock.Lock()
	s.requests = append(s.requests, RequestInfo{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Header: req.Header.Clone(),
		Body:   body,
	})
	s.lock.Unlock()
	s.logger.Printf("%s %s", req.Method, req.URL)

	path := req.URL.Path
	switch {
	case path == "/metadata":
		s.serveMetadata(w, req)
	case path == tokenPath:
		s.serveToken(w, req, body)
	case strings.HasPrefix(path, statusPrefix):
		s.serveStatus(w, req, strings.TrimPrefix(path, statusPrefix))
	case strings.HasPrefix(path, filesPrefix):
		s.serveFile(w, req, strings.TrimPrefix(path, filesPrefix))
	case strings.HasSuffix(path, "/"+exportSuffix):
		scope, ok := s.exportScope(strings.TrimSuffix(path, "/"+exportSuffix))
		if !ok {
			writeOutcome(w, http.StatusNotFound, "not-found", "unknown export endpoint "+path)
			return
		}
		s.serveKickOff(w, req, scope, body)
	default:
		writeOutcome(w, http.StatusNotFound, "not-found", "unknown path "+path)
	}
}

func (s *Server) exportScope(prefix string) (string, bool) {
	switch {
	case prefix == "":
		return "system", true
	case prefix == "/Patient" && !s.config.DisablePatientExport:
		return "patient", true
	case strings.HasPrefix(prefix, "/Group/") && !s.config.DisableGroupExport:
		return "group", true
	}
	return "", false
}

func (s *Server) serveMetadata(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeOutcome(w, http.StatusMethodNotAllowed, "not-supported", "metadata only supports GET")
		return
	}
	exportOp := func(def string) ldvalue.Value {
		return ldvalue.ObjectBuild().
			Set("name", ldvalue.String("export")).
			Set("definition", ldvalue.String(def)).
			Build()
	}
	resources := ldvalue.ArrayBuild()
	if !s.config.DisablePatientExport {
		resources.Add(ldvalue.ObjectBuild().
			Set("type", ldvalue.String("Patient")).
			Set("operation", ldvalue.ArrayOf(exportOp("http://hl7.org/fhir/uv/bulkdata/OperationDefinition/patient-export"))).
			Build())
	}
	if !s.config.DisableGroupExport {
		resources.Add(ldvalue.ObjectBuild().
			Set("type", ldvalue.String("Group")).
			Set("operation", ldvalue.ArrayOf(exportOp("http://hl7.org/fhir/uv/bulkdata/OperationDefinition/group-export"))).
			Build())
	}
	security := ldvalue.ObjectBuild().
		Set("extension", ldvalue.ArrayOf(ldvalue.ObjectBuild().
			Set("url", ldvalue.String("http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris")).
			Set("extension", ldvalue.ArrayOf(ldvalue.ObjectBuild().
				Set("url", ldvalue.String("token")).
				Set("valueUri", ldvalue.String(s.TokenURL())).
				Build())).
			Build())).
		Build()
	cs := ldvalue.ObjectBuild().
		Set("resourceType", ldvalue.String("CapabilityStatement")).
		Set("status", ldvalue.String("active")).
		Set("kind", ldvalue.String("instance")).
		Set("fhirVersion", ldvalue.String("4.0.1")).
		Set("format", ldvalue.ArrayOf(ldvalue.String("json"))).
		Set("rest", ldvalue.ArrayOf(ldvalue.ObjectBuild().
			Set("mode", ldvalue.String("server")).
			Set("security", security).
			Set("operation", ldvalue.ArrayOf(exportOp("http://hl7.org/fhir/uv/bulkdata/OperationDefinition/export"))).
			Set("resource", resources.Build()).
			Build())).
		Build()
	writeJSON(w, http.StatusOK, "application/fhir+json", cs)
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v ldvalue.Value) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(v.JSONString()))
}

func writeOutcome(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, "application/fhir+json", operationOutcome("error", code, message))
}

func operationOutcome(severity, code, message string) ldvalue.Value {
	return ldvalue.ObjectBuild().
		Set("resourceType", ldvalue.String("OperationOutcome")).
		Set("issue", ldvalue.ArrayOf(ldvalue.ObjectBuild().
			Set("severity", ldvalue.String(severity)).
			Set("code", ldvalue.String(code)).
			Set("diagnostics", ldvalue.String(message)).
			Build())).
		Build()
}
