// Package auth implements the HydroShare OAuth2 authorization-code flow with PKCE
// and keeps the resulting token in a session store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/session"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthorizeURL = "https://www.hydroshare.org/o/authorize/"
	DefaultTokenURL     = "https://www.hydroshare.org/o/token/"

	TokenKey    = "hydroshare-token"
	StateKey    = "hydroshare-oauth-state"
	VerifierKey = "hydroshare-oauth-verifier"
)

var (
	// ErrNoLoginPending indicates a callback arrived without a started login
	ErrNoLoginPending = errors.New("no login in progress")

	// ErrStateMismatch indicates the callback state does not match the started login
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// Config describes the OAuth2 client registered with the identity provider
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// Provider runs the authorization-code + PKCE exchange
type Provider struct {
	oauth *oauth2.Config
}

// NewProvider creates a provider. Empty endpoints default to HydroShare's.
func NewProvider(cfg Config) *Provider {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	return &Provider{oauth: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeURL,
			TokenURL: cfg.TokenURL,
		},
	}}
}

// LoginURL returns the authorize URL carrying state and the S256 challenge of verifier
func (p *Provider) LoginURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// Session ties a provider to one user's session store
type Session struct {
	provider *Provider
	store    session.Store
	logger   *slog.Logger
}

// NewSession creates an auth session over store
func NewSession(provider *Provider, store session.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{provider: provider, store: store, logger: logger}
}

// Begin starts a login and returns the URL to redirect the browser to
func (s *Session) Begin(ctx context.Context) (string, error) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	if err := s.store.Set(ctx, StateKey, state); err != nil {
		return "", fmt.Errorf("failed to save login state: %w", err)
	}
	if err := s.store.Set(ctx, VerifierKey, verifier); err != nil {
		return "", fmt.Errorf("failed to save login verifier: %w", err)
	}
	return s.provider.LoginURL(state, verifier), nil
}

// Complete finishes a login started by Begin and stores the token
func (s *Session) Complete(ctx context.Context, state, code string) (*oauth2.Token, error) {
	expected, found, err := s.store.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load login state: %w", err)
	}
	if !found {
		return nil, ErrNoLoginPending
	}
	if state != expected {
		return nil, ErrStateMismatch
	}

	verifier, _, err := s.store.Get(ctx, VerifierKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load login verifier: %w", err)
	}

	tok, err := s.provider.Exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.store.Set(ctx, TokenKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	for _, key := range []string{StateKey, VerifierKey} {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to clear login state", "key", key, "err", err)
		}
	}
	return tok, nil
}

// Token returns the stored token if it is still valid
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	raw, found, err := s.store.Get(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if !found {
		return nil, nil
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		s.logger.Warn("Discarding unreadable token", "err", err)
		return nil, nil
	}
	if !tok.Valid() {
		return nil, nil
	}
	return &tok, nil
}

// Logout forgets the token
func (s *Session) Logout(ctx context.Context) error {
	return s.store.Delete(ctx, TokenKey)
}

// Identity captures the session's current login state for one pipeline run
func (s *Session) Identity(ctx context.Context) (*Identity, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	_, pending, err := s.store.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load login state: %w", err)
	}

	id := &Identity{session: s, pending: pending}
	if tok != nil {
		id.token = tok.AccessToken
	}
	return id, nil
}

// Identity is a simplesubmit.Identity backed by a Session.
// LogIn starts a login; the redirect URL is then available from LoginURL.
type Identity struct {
	session  *Session
	token    string
	pending  bool
	loginURL string
}

var _ simplesubmit.Identity = (*Identity)(nil)

func (i *Identity) AccessToken() string {
	return i.token
}

func (i *Identity) LoginInProgress() bool {
	return i.pending
}

func (i *Identity) LogIn(ctx context.Context) error {
	url, err := i.session.Begin(ctx)
	if err != nil {
		return err
	}
	i.loginURL = url
	i.pending = true
	return nil
}

// LoginURL is the redirect target of the last LogIn call
func (i *Identity) LoginURL() string {
	return i.loginURL
}

// TokenSource returns a static source for the captured token
func (i *Identity) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: i.token})
}
