package mockserver

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

var knownResourceTypes = map[string]bool{
	"AllergyIntolerance": true,
	"Condition":          true,
	"Encounter":          true,
	"Group":              true,
	"Immunization":       true,
	"MedicationRequest":  true,
	"Observation":        true,
	"Patient":            true,
	"Procedure":          true,
}

var outputFormats = map[string]bool{
	"":                        true,
	"application/fhir+ndjson": true,
	"application/ndjson":      true,
	"ndjson":                  true,
}

type exportJob struct {
	id      string
	scope   string
	request string
	types   []string
	since   string
	polls   int
	created time.Time
}

type kickOffParams struct {
	types        []string
	since        string
	outputFormat string
	patients     []string
}

func (s *Server) serveKickOff(w http.ResponseWriter, req *http.Request, scope string, body []byte) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		writeOutcome(w, http.StatusMethodNotAllowed, "not-supported", "kick-off only supports GET and POST")
		return
	}
	if !s.authorized(w, req) {
		return
	}
	if !strings.Contains(req.Header.Get("Prefer"), "respond-async") {
		writeOutcome(w, http.StatusBadRequest, "required", "the Prefer header must be respond-async")
		return
	}
	if req.Header.Get("Accept") != "application/fhir+json" {
		writeOutcome(w, http.StatusBadRequest, "required", "the Accept header must be application/fhir+json")
		return
	}

	var params kickOffParams
	var err error
	if req.Method == http.MethodPost {
		params, err = parseParametersBody(body)
	} else {
		params, err = parseQuery(req)
	}
	if err == nil {
		err = s.validateParams(scope, &params)
	}
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	s.lock.Lock()
	s.lastID++
	job := &exportJob{
		id:      strconv.Itoa(s.lastID),
		scope:   scope,
		request: s.URL() + req.URL.RequestURI(),
		types:   params.types,
		since:   params.since,
		created: time.Now().UTC(),
	}
	s.jobs[job.id] = job
	s.lock.Unlock()

	s.logger.Printf("started %s export %s for %v", scope, job.id, job.types)
	w.Header().Set("Content-Location", s.URL()+statusPrefix+job.id)
	w.WriteHeader(http.StatusAccepted)
}

func parseQuery(req *http.Request) (kickOffParams, error) {
	var p kickOffParams
	q := req.URL.Query()
	for name, values := range q {
		switch name {
		case "_type":
			for _, v := range values {
				p.types = append(p.types, splitList(v)...)
			}
		case "_since":
			p.since = values[0]
		case "_outputFormat":
			p.outputFormat = values[0]
		case "patient":
			p.patients = append(p.patients, values...)
		case "_elements", "_typeFilter", "includeAssociatedData":
		default:
			return p, fmt.Errorf("unsupported parameter %q", name)
		}
	}
	return p, nil
}

func parseParametersBody(body []byte) (kickOffParams, error) {
	var p kickOffParams
	doc := ldvalue.Parse(body)
	if doc.GetByKey("resourceType").StringValue() != "Parameters" {
		return p, fmt.Errorf("the request body must be a Parameters resource")
	}
	entries := doc.GetByKey("parameter")
	for i := 0; i < entries.Count(); i++ {
		e := entries.GetByIndex(i)
		name := e.GetByKey("name").StringValue()
		switch name {
		case "_type":
			p.types = append(p.types, splitList(e.GetByKey("valueString").StringValue())...)
		case "_since":
			p.since = e.GetByKey("valueInstant").StringValue()
			if p.since == "" {
				return p, fmt.Errorf("_since must be a valueInstant")
			}
		case "_outputFormat":
			p.outputFormat = e.GetByKey("valueString").StringValue()
		case "patient":
			ref := e.GetByKey("valueReference").GetByKey("reference").StringValue()
			if !strings.HasPrefix(ref, "Patient/") {
				return p, fmt.Errorf("patient must be a valueReference to a Patient")
			}
			p.patients = append(p.patients, ref)
		case "_elements", "_typeFilter", "includeAssociatedData":
		default:
			return p, fmt.Errorf("unsupported parameter %q", name)
		}
	}
	return p, nil
}

func (s *Server) validateParams(scope string, p *kickOffParams) error {
	if !outputFormats[p.outputFormat] {
		return fmt.Errorf("unsupported _outputFormat %q", p.outputFormat)
	}
	if p.since != "" {
		if _, err := time.Parse(time.RFC3339, p.since); err != nil {
			return fmt.Errorf("_since %q is not a valid instant", p.since)
		}
	}
	if len(p.patients) > 0 && scope == "system" {
		return fmt.Errorf("the patient parameter is not supported for system-level export")
	}
	for _, t := range p.types {
		if !knownResourceTypes[t] {
			return fmt.Errorf("unsupported resource type %q", t)
		}
	}
	if len(p.types) == 0 {
		p.types = append([]string(nil), s.config.ResourceTypes...)
	}
	return nil
}

func splitList(s string) []string {
	var ret []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

func (s *Server) serveStatus(w http.ResponseWriter, req *http.Request, id string) {
	switch req.Method {
	case http.MethodGet:
	case http.MethodDelete:
		s.serveCancel(w, req, id)
		return
	default:
		writeOutcome(w, http.StatusMethodNotAllowed, "not-supported", "status only supports GET and DELETE")
		return
	}
	if !s.authorized(w, req) {
		return
	}
	s.lock.Lock()
	job := s.jobs[id]
	pending := job != nil && job.polls < s.config.PendingPolls
	polls := 0
	if pending {
		job.polls++
		polls = job.polls
	}
	s.lock.Unlock()

	if job == nil {
		writeOutcome(w, http.StatusNotFound, "not-found", "no export with id "+id)
		return
	}
	if pending {
		w.Header().Set("X-Progress", fmt.Sprintf("in progress (%d/%d)", polls, s.config.PendingPolls))
		if s.config.RetryAfter != "" {
			w.Header().Set("Retry-After", s.config.RetryAfter)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, "application/json", s.manifest(job))
}

func (s *Server) manifest(job *exportJob) ldvalue.Value {
	types := append([]string(nil), job.types...)
	sort.Strings(types)
	output := ldvalue.ArrayBuild()
	for _, t := range types {
		output.Add(ldvalue.ObjectBuild().
			Set("type", ldvalue.String(t)).
			Set("url", ldvalue.String(fmt.Sprintf("%s%s%s/%s.ndjson", s.URL(), filesPrefix, job.id, t))).
			Set("count", ldvalue.Int(s.config.ResourcesPerFile)).
			Build())
	}
	return ldvalue.ObjectBuild().
		Set("transactionTime", ldvalue.String(job.created.Format(time.RFC3339))).
		Set("request", ldvalue.String(job.request)).
		Set("requiresAccessToken", ldvalue.Bool(s.config.RequireAuth)).
		Set("output", output.Build()).
		Set("error", ldvalue.ArrayOf()).
		Build()
}

func (s *Server) serveCancel(w http.ResponseWriter, req *http.Request, id string) {
	if !s.authorized(w, req) {
		return
	}
	s.lock.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.lock.Unlock()
	if !ok {
		writeOutcome(w, http.StatusNotFound, "not-found", "no export with id "+id)
		return
	}
	s.logger.Printf("canceled export %s", id)
	writeJSON(w, http.StatusAccepted, "application/fhir+json",
		operationOutcome("information", "informational", "export "+id+" was canceled"))
}

func (s *Server) serveFile(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodGet {
		writeOutcome(w, http.StatusMethodNotAllowed, "not-supported", "files only support GET")
		return
	}
	if !s.authorized(w, req) {
		return
	}
	parts := strings.SplitN(strings.TrimSuffix(name, ".ndjson"), "/", 2)
	if len(parts) != 2 {
		writeOutcome(w, http.StatusNotFound, "not-found", "no such file")
		return
	}
	s.lock.Lock()
	job := s.jobs[parts[0]]
	s.lock.Unlock()
	if job == nil || !contains(job.types, parts[1]) {
		writeOutcome(w, http.StatusNotFound, "not-found", "no such file")
		return
	}
	w.Header().Set("Content-Type", "application/fhir+ndjson")
	w.WriteHeader(http.StatusOK)
	for i := 1; i <= s.config.ResourcesPerFile; i++ {
		line := ldvalue.ObjectBuild().
			Set("resourceType", ldvalue.String(parts[1])).
			Set("id", ldvalue.String(fmt.Sprintf("%s-%d", strings.ToLower(parts[1]), i))).
			Build()
		_, _ = w.Write([]byte(line.JSONString() + "\n"))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
