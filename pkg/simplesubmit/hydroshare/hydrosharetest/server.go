// Package hydrosharetest provides a recording fake of the HydroShare resource API.
package hydrosharetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Endpoint identifies one of the fake's routes
type Endpoint string

const (
	EndpointCreate          Endpoint = "create"
	EndpointScienceMetadata Endpoint = "scimeta"
	EndpointFiles           Endpoint = "files"
	EndpointAccessRules     Endpoint = "access_rules"
	EndpointFlag            Endpoint = "flag"
	EndpointCustomMetadata  Endpoint = "custom_metadata"
)

// Call is one request received by the fake
type Call struct {
	Endpoint      Endpoint
	ResourceID    string
	Authorization string
	Form          map[string]string
	FileName      string
	FileContent   string
	JSON          map[string]interface{}
}

// Server is an httptest server speaking the subset of hsapi used for submissions.
// Each endpoint answers with the status HydroShare uses on success unless
// overridden through Statuses or FlagStatuses.
type Server struct {
	*httptest.Server

	ResourceID   string
	Statuses     map[Endpoint]int
	FlagStatuses map[string]int
	Messages     map[Endpoint]string

	mu    sync.Mutex
	calls []Call
}

// NewServer starts a fake. Close it when done.
func NewServer() *Server {
	s := &Server{
		ResourceID:   "abc123",
		Statuses:     make(map[Endpoint]int),
		FlagStatuses: make(map[string]int),
		Messages:     make(map[Endpoint]string),
	}

	r := chi.NewRouter()
	r.Route("/hsapi", func(r chi.Router) {
		r.Post("/resource/", s.handleCreate)
		r.Put("/resource/accessRules/{id}/", s.handleJSON(EndpointAccessRules, http.StatusOK))
		r.Put("/resource/{id}/scimeta/elements/", s.handleJSON(EndpointScienceMetadata, http.StatusAccepted))
		r.Post("/resource/{id}/scimeta/custom/", s.handleJSON(EndpointCustomMetadata, http.StatusOK))
		r.Post("/resource/{id}/files/", s.handleFile)
		r.Post("/resource/{id}/flag/", s.handleJSON(EndpointFlag, http.StatusAccepted))
	})

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the API root to configure clients with
func (s *Server) BaseURL() string {
	return s.URL + "/hsapi"
}

// Calls returns the recorded requests in arrival order
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Endpoints returns the endpoint of each recorded request in arrival order
func (s *Server) Endpoints() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Endpoint)
	}
	return out
}

func (s *Server) record(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *Server) status(e Endpoint, fallback int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.Statuses[e]; ok {
		return code
	}
	return fallback
}

func (s *Server) fail(w http.ResponseWriter, e Endpoint, code int) {
	w.WriteHeader(code)
	io.WriteString(w, s.Messages[e])
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	call := Call{
		Endpoint:      EndpointCreate,
		Authorization: r.Header.Get("Authorization"),
		Form:          make(map[string]string),
	}
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				call.Form[k] = v[0]
			}
		}
	}
	s.record(call)

	code := s.status(EndpointCreate, http.StatusCreated)
	if code < 200 || code >= 300 {
		s.fail(w, EndpointCreate, code)
		return
	}
	render.Status(r, code)
	render.JSON(w, r, map[string]string{"resource_id": s.ResourceID})
}

func (s *Server) handleJSON(e Endpoint, success int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := Call{
			Endpoint:      e,
			ResourceID:    chi.URLParam(r, "id"),
			Authorization: r.Header.Get("Authorization"),
		}
		_ = json.NewDecoder(r.Body).Decode(&call.JSON)
		s.record(call)

		code := s.status(e, success)
		if e == EndpointFlag {
			if flag, ok := call.JSON["flag"].(string); ok {
				s.mu.Lock()
				if fc, ok := s.FlagStatuses[flag]; ok {
					code = fc
				}
				s.mu.Unlock()
			}
		}
		if code != success {
			s.fail(w, e, code)
			return
		}
		render.Status(r, code)
		render.JSON(w, r, map[string]string{"resource_id": call.ResourceID})
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	call := Call{
		Endpoint:      EndpointFiles,
		ResourceID:    chi.URLParam(r, "id"),
		Authorization: r.Header.Get("Authorization"),
	}
	if f, header, err := r.FormFile("file"); err == nil {
		data, _ := io.ReadAll(f)
		f.Close()
		call.FileName = header.Filename
		call.FileContent = string(data)
	}
	s.record(call)

	code := s.status(EndpointFiles, http.StatusCreated)
	if code < 200 || code >= 300 {
		s.fail(w, EndpointFiles, code)
		return
	}
	render.Status(r, code)
	render.JSON(w, r, map[string]string{"resource_id": call.ResourceID, "file_name": call.FileName})
}
