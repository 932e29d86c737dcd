package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/auth"
	"github.com/tendant/simple-submit/pkg/simplesubmit/session"
	"golang.org/x/oauth2"
)

const (
	// SessionCookie carries the signed session ID; jwtauth.TokenFromCookie reads it
	SessionCookie = "jwt"

	sidClaim = "sid"
)

// RepositoryFactory builds a repository client authorized by a user's token
type RepositoryFactory func(ts oauth2.TokenSource) simplesubmit.Repository

// Config holds the handler's collaborators
type Config struct {
	Sessions      session.Store
	Auth          *auth.Provider
	Repositories  RepositoryFactory
	Thumbnails    simplesubmit.ThumbnailStore
	JWTSecret     string
	SecureCookies bool

	// AfterLoginURL is where the callback redirects the browser (default "/")
	AfterLoginURL string

	Logger *slog.Logger
}

// Handler serves the submission API. Each browser gets its own namespace in
// the session store, identified by a signed "sid" cookie.
type Handler struct {
	sessions      session.Store
	provider      *auth.Provider
	repositories  RepositoryFactory
	thumbnails    simplesubmit.ThumbnailStore
	jwt           *jwtauth.JWTAuth
	secureCookies bool
	afterLoginURL string
	logger        *slog.Logger

	mu      sync.Mutex
	running map[string]*simplesubmit.Pipeline
}

// NewHandler creates a new submission handler
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	afterLogin := cfg.AfterLoginURL
	if afterLogin == "" {
		afterLogin = "/"
	}
	return &Handler{
		sessions:      cfg.Sessions,
		provider:      cfg.Auth,
		repositories:  cfg.Repositories,
		thumbnails:    cfg.Thumbnails,
		jwt:           jwtauth.New("HS256", []byte(cfg.JWTSecret), nil),
		secureCookies: cfg.SecureCookies,
		afterLoginURL: afterLogin,
		logger:        logger,
		running:       make(map[string]*simplesubmit.Pipeline),
	}
}

// Routes returns the router for the submission API
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Use(jwtauth.Verify(h.jwt, jwtauth.TokenFromCookie))
		r.Use(h.browserSession)

		r.Get("/session", h.GetSession)
		r.Get("/auth/login", h.Login)
		r.Get("/auth/callback", h.Callback)
		r.Post("/auth/logout", h.Logout)

		r.Route("/contributions/{type}", func(r chi.Router) {
			r.Get("/draft", h.GetDraft)
			r.Put("/draft", h.SaveDraft)
			r.Post("/login", h.LoginWithDraft)
			r.Post("/submit", h.Submit)
			r.Get("/status", h.GetStatus)
		})
	})

	if _, ok := h.thumbnails.(downloader); ok {
		r.Get("/thumbnails/{key}", h.GetThumbnail)
	}

	return r
}

type sidKey struct{}

// browserSession makes sure the request carries a signed session ID, issuing a new one if needed
func (h *Handler) browserSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if _, claims, err := jwtauth.FromContext(r.Context()); err == nil {
			sid, _ = claims[sidClaim].(string)
		}

		if sid == "" {
			sid = uuid.NewString()
			_, token, err := h.jwt.Encode(map[string]interface{}{sidClaim: sid})
			if err != nil {
				h.logger.Error("Failed to sign session", "err", err)
				writeError(w, r, http.StatusInternalServerError, "failed to create session")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sidKey{}, sid)))
	})
}

func sessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey{}).(string)
	return sid
}

func (h *Handler) store(r *http.Request) session.Store {
	return session.Prefix(h.sessions, sessionID(r.Context()))
}

func (h *Handler) authSession(r *http.Request) *auth.Session {
	return auth.NewSession(h.provider, h.store(r), h.logger)
}

func (h *Handler) manager(r *http.Request) *session.Manager {
	t := simplesubmit.ContributionType(chi.URLParam(r, "type"))
	return session.NewManager(h.store(r), t, session.WithLogger(h.logger))
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	LoginURL string `json:"login_url,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// SessionResponse describes the browser's login state
type SessionResponse struct {
	Authenticated   bool   `json:"authenticated"`
	LoginInProgress bool   `json:"login_in_progress"`
	LastTab         string `json:"last_tab,omitempty"`
}

// GetSession reports whether the browser holds a valid token
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authSession(r).Identity(r.Context())
	if err != nil {
		h.logger.Error("Failed to load identity", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load session")
		return
	}

	tab, _, err := h.store(r).Get(r.Context(), session.LastTabKey)
	if err != nil {
		h.logger.Warn("Failed to load last tab", "err", err)
	}

	render.JSON(w, r, SessionResponse{
		Authenticated:   identity.AccessToken() != "",
		LoginInProgress: identity.LoginInProgress(),
		LastTab:         tab,
	})
}

// LoginResponse carries the identity provider URL to send the browser to
type LoginResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// Login starts a login without saving a draft and redirects to the identity provider
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	loginURL, err := h.authSession(r).Begin(r.Context())
	if err != nil {
		h.logger.Error("Failed to start login", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to start login")
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// LoginWithDraft saves the posted draft, marks a login as pending and returns the login URL
func (h *Handler) LoginWithDraft(w http.ResponseWriter, r *http.Request) {
	var draft simplesubmit.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.logger.Warn("Failed to decode draft", "err", err)
		writeError(w, r, http.StatusBadRequest, "invalid draft")
		return
	}

	loginURL, err := h.saveAndBeginLogin(r, draft)
	if err != nil {
		h.logger.Error("Failed to start login", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to start login")
		return
	}
	render.JSON(w, r, LoginResponse{RedirectURL: loginURL})
}

// saveAndBeginLogin persists everything needed to resume after the identity provider returns
func (h *Handler) saveAndBeginLogin(r *http.Request, draft simplesubmit.Draft) (string, error) {
	ctx := r.Context()
	m := h.manager(r)

	if err := m.SaveDraft(ctx, draft); err != nil {
		return "", err
	}
	if err := m.SaveCurrentTab(ctx, r.URL.Query().Get("current-contribution")); err != nil {
		return "", err
	}
	if err := m.MarkAuthPending(ctx); err != nil {
		return "", err
	}

	identity, err := h.authSession(r).Identity(ctx)
	if err != nil {
		return "", err
	}
	if err := identity.LogIn(ctx); err != nil {
		return "", err
	}
	return identity.LoginURL(), nil
}

// Callback completes the code exchange and sends the browser back to the saved tab
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, r, http.StatusUnauthorized, e)
		return
	}

	_, err := h.authSession(r).Complete(r.Context(), q.Get("state"), q.Get("code"))
	switch {
	case errors.Is(err, auth.ErrNoLoginPending), errors.Is(err, auth.ErrStateMismatch):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to complete login", "err", err)
		writeError(w, r, http.StatusBadGateway, "login failed")
		return
	}

	target := h.afterLoginURL
	tab, found, err := h.store(r).Get(r.Context(), session.LastTabKey)
	if err != nil {
		h.logger.Warn("Failed to load last tab", "err", err)
	}
	if found && tab != "" {
		if u, err := url.Parse(target); err == nil {
			values := u.Query()
			values.Set("current-contribution", tab)
			u.RawQuery = values.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Logout forgets the browser's token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authSession(r).Logout(r.Context()); err != nil {
		h.logger.Error("Failed to log out", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDraft returns the saved draft when the browser is back from a login, and 204 otherwise
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authSession(r).Identity(r.Context())
	if err != nil {
		h.logger.Error("Failed to load identity", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load session")
		return
	}

	draft, err := h.manager(r).Resume(r.Context(), identity.AccessToken() != "")
	if err != nil {
		h.logger.Error("Failed to resume draft", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to restore draft")
		return
	}
	if draft == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	render.JSON(w, r, draft)
}

// SaveDraft stores the posted draft for the contribution type
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft simplesubmit.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.logger.Warn("Failed to decode draft", "err", err)
		writeError(w, r, http.StatusBadRequest, "invalid draft")
		return
	}
	if err := h.manager(r).SaveDraft(r.Context(), draft); err != nil {
		h.logger.Error("Failed to save draft", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to save draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type downloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// GetThumbnail serves thumbnails held by the in-memory store
func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	d := h.thumbnails.(downloader)
	rc, mimeType, err := d.Download(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "thumbnail not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", mimeType)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Failed to write thumbnail", "err", err)
	}
}
