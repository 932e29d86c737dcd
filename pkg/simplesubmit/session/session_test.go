package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/session"
	"github.com/tendant/simple-submit/pkg/simplesubmit/session/memory"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T) (*session.Manager, *memory.Store, *clock) {
	t.Helper()
	store := memory.New()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return session.NewManager(store, simplesubmit.ContributionDataset, session.WithClock(c.now)), store, c
}

func fullDraft() simplesubmit.Draft {
	return simplesubmit.Draft{
		Title:    "Flood Model",
		Authors:  "Ana, Bo",
		Abstract: "Models floods.",
		Keywords: "flood rain",
		PageURL:  "https://app.example.org",
		DocsURL:  "https://docs.example.org",
		FundingAgencies: []simplesubmit.FundingAgency{{
			AgencyName: "NSF", AwardTitle: "Water", AwardNumber: "123", AgencyURL: "https://nsf.gov",
		}},
		Coverages: []simplesubmit.Coverage{{
			Type: "period", Value: map[string]interface{}{"start": "2000-01-01", "end": "2010-12-31"},
		}},
		PresentationPath: "talk.pdf",
		Visibility:       simplesubmit.VisibilityDiscoverable,
		Files:            []simplesubmit.File{simplesubmit.NewFile("talk.pdf", "application/pdf", []byte("%PDF"))},
	}
}

func TestManager_Keys(t *testing.T) {
	m, _, _ := newManager(t)
	assert.Equal(t, "hydroshare-form-dataset", m.DraftKey())
	assert.Equal(t, "hydroshare-auth-pending-dataset", m.AuthPendingKey())
}

func TestManager_DraftRoundTrip(t *testing.T) {
	m, store, c := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveDraft(ctx, fullDraft()))

	raw, found, err := store.Get(ctx, m.DraftKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, `"timestamp":1714564800000`)

	c.advance(29 * time.Minute)
	draft, err := m.RestoreDraft(ctx)
	require.NoError(t, err)
	require.NotNil(t, draft)

	expected := fullDraft()
	expected.Files = nil
	assert.Equal(t, expected, *draft)
}

func TestManager_DraftExpires(t *testing.T) {
	m, _, c := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveDraft(ctx, fullDraft()))
	c.advance(session.DraftTTL)

	draft, err := m.RestoreDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestManager_DraftFromFutureIsIgnored(t *testing.T) {
	m, _, c := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveDraft(ctx, fullDraft()))
	c.advance(-time.Hour)

	draft, err := m.RestoreDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestManager_RestoreMissingOrCorrupt(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	draft, err := m.RestoreDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, draft)

	require.NoError(t, store.Set(ctx, m.DraftKey(), "{not json"))
	draft, err = m.RestoreDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestManager_RestoreDefaultsVisibility(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveDraft(ctx, simplesubmit.Draft{Title: "T"}))
	draft, err := m.RestoreDraft(ctx)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, simplesubmit.VisibilityPublic, draft.Visibility)
}

func TestManager_IsReturningFromAuth(t *testing.T) {
	tests := []struct {
		name     string
		mark     bool
		elapsed  time.Duration
		hasToken bool
		expected bool
	}{
		{"fresh marker with token", true, 9 * time.Minute, true, true},
		{"fresh marker without token", true, time.Minute, false, false},
		{"stale marker", true, session.AuthPendingTTL, true, false},
		{"marker dated in the future", true, -time.Minute, true, false},
		{"no marker", false, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, c := newManager(t)
			ctx := context.Background()
			if tt.mark {
				require.NoError(t, m.MarkAuthPending(ctx))
			}
			c.advance(tt.elapsed)

			got, err := m.IsReturningFromAuth(ctx, tt.hasToken)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestManager_Resume(t *testing.T) {
	t.Run("restores and clears marker", func(t *testing.T) {
		m, store, c := newManager(t)
		ctx := context.Background()

		require.NoError(t, m.SaveDraft(ctx, fullDraft()))
		require.NoError(t, m.MarkAuthPending(ctx))
		c.advance(2 * time.Minute)

		draft, err := m.Resume(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, draft)
		assert.Equal(t, "Flood Model", draft.Title)

		_, found, _ := store.Get(ctx, m.AuthPendingKey())
		assert.False(t, found)

		// draft itself survives until a successful submission
		_, found, _ = store.Get(ctx, m.DraftKey())
		assert.True(t, found)

		again, err := m.Resume(ctx, true)
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	t.Run("not returning leaves state alone", func(t *testing.T) {
		m, store, _ := newManager(t)
		ctx := context.Background()

		require.NoError(t, m.SaveDraft(ctx, fullDraft()))
		require.NoError(t, m.MarkAuthPending(ctx))

		draft, err := m.Resume(ctx, false)
		require.NoError(t, err)
		assert.Nil(t, draft)

		_, found, _ := store.Get(ctx, m.AuthPendingKey())
		assert.True(t, found)
	})
}

func TestManager_ClearDraft(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveDraft(ctx, fullDraft()))
	require.NoError(t, m.ClearDraft(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestManager_CurrentTab(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	tab, err := m.LastTab(ctx)
	require.NoError(t, err)
	assert.Empty(t, tab)

	require.NoError(t, m.SaveCurrentTab(ctx, ""))
	tab, err = m.LastTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dataset", tab)
}

func TestPrefix(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	a := session.Prefix(store, "browser-a")
	b := session.Prefix(store, "browser-b")

	require.NoError(t, a.Set(ctx, "k", "from-a"))
	_, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	raw, found, err := store.Get(ctx, "browser-a:k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-a", raw)

	require.NoError(t, a.Delete(ctx, "k"))
	assert.Equal(t, 0, store.Len())
}
