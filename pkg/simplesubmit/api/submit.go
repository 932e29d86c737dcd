package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
)

const maxSubmitMemory = 64 << 20

// SubmitResponse is the outcome of a pipeline run
type SubmitResponse struct {
	State       simplesubmit.State   `json:"state"`
	ResourceID  string               `json:"resource_id,omitempty"`
	ResourceURL string               `json:"resource_url,omitempty"`
	Orphaned    bool                 `json:"orphaned"`
	Error       string               `json:"error,omitempty"`
	Events      []simplesubmit.Event `json:"events"`
}

// Submit runs the pipeline on a multipart form: a "draft" JSON field, any number
// of "files" parts and an optional "thumbnail" part. Without a token the draft is
// saved and a login is started instead.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contribution := simplesubmit.ContributionType(chi.URLParam(r, "type"))

	if err := r.ParseMultipartForm(maxSubmitMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var draft simplesubmit.Draft
	if err := json.Unmarshal([]byte(r.FormValue("draft")), &draft); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid draft")
		return
	}

	identity, err := h.authSession(r).Identity(ctx)
	if err != nil {
		h.logger.Error("Failed to load identity", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load session")
		return
	}

	if identity.AccessToken() == "" {
		loginURL, err := h.saveAndBeginLogin(r, draft)
		if err != nil {
			h.logger.Error("Failed to start login", "err", err)
			writeError(w, r, http.StatusInternalServerError, "failed to start login")
			return
		}
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: simplesubmit.ErrAuthenticationRequired.Error(), LoginURL: loginURL})
		return
	}

	files, closeFiles, err := openParts(r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unreadable file upload")
		return
	}
	defer closeFiles()
	draft.AttachFiles(contribution, files...)

	if thumbs := r.MultipartForm.File["thumbnail"]; len(thumbs) > 0 {
		parts, closeThumb, err := openParts(thumbs[:1])
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unreadable thumbnail upload")
			return
		}
		defer closeThumb()
		draft.Thumbnail = &parts[0]
	}

	key := sessionID(ctx) + ":" + string(contribution)
	pipeline, err := simplesubmit.NewPipeline(
		simplesubmit.WithRepository(h.repositories(identity.TokenSource())),
		simplesubmit.WithIdentity(identity),
		simplesubmit.WithThumbnailStore(h.thumbnails),
		simplesubmit.WithDraftKeeper(h.manager(r)),
		simplesubmit.WithProfile(simplesubmit.ProfileFor(contribution)),
		simplesubmit.WithLogger(h.logger.With("contribution", contribution)),
	)
	if err != nil {
		h.logger.Error("Failed to create pipeline", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to start submission")
		return
	}
	if !h.claim(key, pipeline) {
		writeError(w, r, http.StatusConflict, "a submission is already in progress")
		return
	}
	defer h.release(key)

	result := pipeline.Submit(ctx, draft)

	resp := SubmitResponse{
		State:       result.State,
		ResourceID:  result.ResourceID,
		ResourceURL: result.ResourceURL,
		Orphaned:    result.Orphaned,
		Events:      result.Events,
	}

	status := http.StatusCreated
	if result.Err != nil {
		resp.Error = result.Err.Error()
		status = submitStatus(result.Err)
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// claim registers a run for key unless one is already registered and still going
func (h *Handler) claim(key string, p *simplesubmit.Pipeline) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.running[key]; busy {
		return false
	}
	h.running[key] = p
	return true
}

func (h *Handler) release(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, key)
}

// InProgress reports whether a browser session has a run in flight for a contribution type
func (h *Handler) InProgress(sid string, contribution simplesubmit.ContributionType) bool {
	h.mu.Lock()
	p, ok := h.running[sid+":"+string(contribution)]
	h.mu.Unlock()
	return ok && p.InProgress()
}

// StatusResponse reports whether a submission is running
type StatusResponse struct {
	InProgress bool `json:"in_progress"`
}

// GetStatus reports whether this browser has a submission running for the contribution type
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	contribution := simplesubmit.ContributionType(chi.URLParam(r, "type"))
	render.JSON(w, r, StatusResponse{InProgress: h.InProgress(sessionID(r.Context()), contribution)})
}

func submitStatus(err error) int {
	switch {
	case simplesubmit.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, simplesubmit.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// openParts turns uploaded parts into pipeline files. The returned func closes them.
func openParts(headers []*multipart.FileHeader) ([]simplesubmit.File, func(), error) {
	files := make([]simplesubmit.File, 0, len(headers))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, f)

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, simplesubmit.File{
			Name:        fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Reader:      f,
		})
	}
	return files, closeAll, nil
}
