// Package session keeps a submission draft alive across an identity-provider redirect.
//
// A Manager stores a timestamped snapshot of the draft and a login-pending marker
// in a key/value Store before the browser leaves for the login page. When the
// user comes back with a token, Resume returns the draft if both are still fresh.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tendant/simple-submit/pkg/simplesubmit"
)

const (
	// DraftTTL is how long a saved draft can be restored
	DraftTTL = 30 * time.Minute

	// AuthPendingTTL is how long a login redirect counts as in flight
	AuthPendingTTL = 10 * time.Minute

	// LastTabKey remembers which contribution tab the user was on
	LastTabKey = "hydroshare-last-tab"
)

// Store is the persisted key/value contract. Get reports found=false for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type prefixed struct {
	store  Store
	prefix string
}

// Prefix namespaces every key of store under scope, e.g. one browser session
func Prefix(store Store, scope string) Store {
	return &prefixed{store: store, prefix: scope + ":"}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.prefix+key)
}

// snapshot is the persisted form of a draft
type snapshot struct {
	simplesubmit.Draft
	Timestamp int64 `json:"timestamp"`
}

// Manager persists drafts for one contribution type
type Manager struct {
	store        Store
	contribution simplesubmit.ContributionType
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager for the given contribution type
func NewManager(store Store, contribution simplesubmit.ContributionType, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		contribution: contribution,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DraftKey is where the draft snapshot is stored
func (m *Manager) DraftKey() string {
	return fmt.Sprintf("hydroshare-form-%s", m.contribution)
}

// AuthPendingKey is where the login marker is stored
func (m *Manager) AuthPendingKey() string {
	return fmt.Sprintf("hydroshare-auth-pending-%s", m.contribution)
}

// SaveDraft stores the draft with the current time. Files and thumbnail are not kept.
func (m *Manager) SaveDraft(ctx context.Context, draft simplesubmit.Draft) error {
	data, err := json.Marshal(snapshot{Draft: draft, Timestamp: m.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := m.store.Set(ctx, m.DraftKey(), string(data)); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// RestoreDraft returns the saved draft, or nil when there is none, it is older
// than DraftTTL or stamped in the future, or it cannot be decoded. Only store failures are returned.
func (m *Manager) RestoreDraft(ctx context.Context) (*simplesubmit.Draft, error) {
	raw, found, err := m.store.Get(ctx, m.DraftKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if !found {
		return nil, nil
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		m.logger.Warn("Failed to restore form state", "key", m.DraftKey(), "err", err)
		return nil, nil
	}

	age := m.now().Sub(time.UnixMilli(snap.Timestamp))
	if age < 0 || age >= DraftTTL {
		m.logger.Debug("Saved draft expired", "key", m.DraftKey(), "age", age)
		return nil, nil
	}

	draft := snap.Draft
	if draft.Visibility == "" {
		draft.Visibility = simplesubmit.VisibilityPublic
	}
	return &draft, nil
}

// ClearDraft removes the saved draft
func (m *Manager) ClearDraft(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.DraftKey()); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}

// MarkAuthPending records that a login redirect is starting
func (m *Manager) MarkAuthPending(ctx context.Context) error {
	if err := m.store.Set(ctx, m.AuthPendingKey(), strconv.FormatInt(m.now().UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to mark login pending: %w", err)
	}
	return nil
}

// IsReturningFromAuth reports whether a login was started less than
// AuthPendingTTL ago and a token is now present. Markers dated in the future
// never count.
func (m *Manager) IsReturningFromAuth(ctx context.Context, hasToken bool) (bool, error) {
	raw, found, err := m.store.Get(ctx, m.AuthPendingKey())
	if err != nil {
		return false, fmt.Errorf("failed to load login marker: %w", err)
	}
	if !found || !hasToken {
		return false, nil
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("Ignoring malformed login marker", "key", m.AuthPendingKey(), "value", raw)
		return false, nil
	}
	age := m.now().Sub(time.UnixMilli(ms))
	return age >= 0 && age < AuthPendingTTL, nil
}

// ClearAuthPending removes the login marker
func (m *Manager) ClearAuthPending(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.AuthPendingKey()); err != nil {
		return fmt.Errorf("failed to clear login marker: %w", err)
	}
	return nil
}

// Resume restores the draft when the user is back from a login and clears the
// marker. It returns nil when there is nothing to resume.
func (m *Manager) Resume(ctx context.Context, hasToken bool) (*simplesubmit.Draft, error) {
	returning, err := m.IsReturningFromAuth(ctx, hasToken)
	if err != nil || !returning {
		return nil, err
	}

	draft, err := m.RestoreDraft(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.ClearAuthPending(ctx); err != nil {
		return nil, err
	}
	return draft, nil
}

// SaveCurrentTab remembers the contribution tab to reopen after login
func (m *Manager) SaveCurrentTab(ctx context.Context, tab string) error {
	if tab == "" {
		tab = string(m.contribution)
	}
	if err := m.store.Set(ctx, LastTabKey, tab); err != nil {
		return fmt.Errorf("failed to save current tab: %w", err)
	}
	return nil
}

// LastTab returns the remembered tab, or "" when none was saved
func (m *Manager) LastTab(ctx context.Context) (string, error) {
	tab, _, err := m.store.Get(ctx, LastTabKey)
	if err != nil {
		return "", fmt.Errorf("failed to load current tab: %w", err)
	}
	return tab, nil
}

var _ simplesubmit.DraftKeeper = (*Manager)(nil)
