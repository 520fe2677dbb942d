package sync

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/storage"
	"github.com/aheige321/true-mastery/internal/store"
)

// memDocument is an in-memory remote.Document.
type memDocument struct {
	files    remote.Files
	readErr  error
	writeErr error
	writes   int
}

func (m *memDocument) ReadFiles(context.Context) (remote.Files, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return maps.Clone(m.files), nil
}

func (m *memDocument) WriteFiles(_ context.Context, files remote.Files, removeNames []string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	if m.files == nil {
		m.files = remote.Files{}
	}
	for name, content := range files {
		m.files[name] = content
	}
	for _, name := range removeNames {
		delete(m.files, name)
	}
	return nil
}

func newEngine(doc remote.Document) *Engine {
	e := NewEngine(doc, "alice", nil)
	e.now = func() time.Time { return at(60) }
	return e
}

func remoteFiles(t *testing.T, cards []domain.Card, decks []domain.Deck) remote.Files {
	t.Helper()
	files, _, err := remote.Encode(nil, "alice", remote.Replica{Cards: cards, Decks: decks})
	require.NoError(t, err)
	return files
}

func TestEngine_Sync(t *testing.T) {
	decks := []domain.Deck{{ID: "d", LastModified: at(0)}}
	doc := &memDocument{files: remoteFiles(t, []domain.Card{c("A", 1, false)}, decks)}
	doc.files[remote.FileLegacy] = []byte(`{}`)
	local := snapshot([]domain.Card{c("A", 2, true), c("B", 1, false)}, decks, "")

	got, err := newEngine(doc).Run(context.Background(), ModeSync, local)
	require.NoError(t, err)

	assert.Len(t, got.Cards, 2)
	assert.True(t, got.Cards[0].Deleted)
	assert.Equal(t, 1, doc.writes)
	assert.NotContains(t, doc.files, remote.FileLegacy)

	back, err := remote.Decode(doc.files, "alice")
	require.NoError(t, err)
	assert.Equal(t, got.Cards, back.Cards)
	require.NotNil(t, back.Meta.LastSync)
	assert.True(t, back.Meta.LastSync.Equal(at(60)))
}

func TestEngine_OverwriteCloudIgnoresRemoteTimestamps(t *testing.T) {
	decks := []domain.Deck{{ID: "d", LastModified: at(0)}}
	doc := &memDocument{files: remoteFiles(t, []domain.Card{c("A", 999, false), c("Z", 999, false)}, decks)}
	local := snapshot([]domain.Card{c("A", 1, true)}, decks, "")

	_, err := newEngine(doc).Run(context.Background(), ModeOverwriteCloud, local)
	require.NoError(t, err)

	var cards map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc.files[remote.FileCards], &cards))
	want, err := json.Marshal(local.Cards)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(cards["alice"]))
}

func TestEngine_OverwriteLocalDoesNotWrite(t *testing.T) {
	doc := &memDocument{files: remoteFiles(t, []domain.Card{c("A", 1, false)}, []domain.Deck{{ID: "d"}})}

	got, err := newEngine(doc).Run(context.Background(), ModeOverwriteLocal, domain.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, 0, doc.writes)
	assert.Len(t, got.Cards, 1)
}

func TestEngine_Failures(t *testing.T) {
	local := snapshot([]domain.Card{}, []domain.Deck{}, "")

	t.Run("read", func(t *testing.T) {
		doc := &memDocument{readErr: remote.ErrUnavailable}
		_, err := newEngine(doc).Run(context.Background(), ModeSync, local)
		assert.ErrorIs(t, err, remote.ErrUnavailable)
	})

	t.Run("write", func(t *testing.T) {
		doc := &memDocument{writeErr: remote.ErrAuth}
		_, err := newEngine(doc).Run(context.Background(), ModeSync, local)
		assert.ErrorIs(t, err, remote.ErrAuth)
	})

	t.Run("unparseable remote", func(t *testing.T) {
		doc := &memDocument{files: remote.Files{remote.FileCards: []byte(`{oops`)}}
		_, err := newEngine(doc).Run(context.Background(), ModeSync, local)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		assert.Equal(t, 0, doc.writes)
	})
}

func TestEngine_RepairsLowEaseFromRemote(t *testing.T) {
	doc := &memDocument{files: remote.Files{
		remote.FileCards: []byte(`{"alice":[{"id":"x","deckId":"d","easeFactor":1.1,"lastModified":"2024-01-01T00:00:00Z"}]}`),
		remote.FileDecks: []byte(`{"alice":[{"id":"d","name":"D"}]}`),
	}}
	local := snapshot([]domain.Card{}, []domain.Deck{}, "")

	got, err := newEngine(doc).Run(context.Background(), ModeSync, local)
	require.NoError(t, err)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, domain.MinEaseFactor, got.Cards[0].EaseFactor)
	assert.Equal(t, 1, doc.writes)

	st := openStore(t)
	_, err = NewSyncer(newEngine(doc), st, nil).Sync(context.Background(), ModeOverwriteLocal)
	require.NoError(t, err)
	card, err := st.Card("x")
	require.NoError(t, err)
	assert.Equal(t, domain.MinEaseFactor, card.EaseFactor)
}

func TestEngine_InvalidMergeIsNotWritten(t *testing.T) {
	doc := &memDocument{files: remote.Files{
		remote.FileCards: []byte(`{"alice":[{"id":"x","lastModified":"2024-01-01T00:00:00Z"}]}`),
	}}
	before := maps.Clone(doc.files)
	local := snapshot([]domain.Card{}, []domain.Deck{}, "")

	_, err := newEngine(doc).Run(context.Background(), ModeSync, local)
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	assert.Equal(t, 0, doc.writes)
	assert.Equal(t, before, doc.files)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(storage.NewMemory(), store.WithClock(func() time.Time { return at(30) }))
	require.NoError(t, err)
	return st
}

func TestSyncer(t *testing.T) {
	t.Run("sync applies merged state", func(t *testing.T) {
		st := openStore(t)
		deck, err := st.AddDeck("D")
		require.NoError(t, err)
		_, err = st.AddCard(deck.ID, "local", "x", nil)
		require.NoError(t, err)

		doc := &memDocument{files: remoteFiles(t, []domain.Card{{ID: "r", DeckID: deck.ID, LastModified: at(1)}}, nil)}
		sum, err := NewSyncer(newEngine(doc), st, nil).Sync(context.Background(), ModeSync)
		require.NoError(t, err)

		assert.True(t, sum.Applied)
		assert.Equal(t, 2, sum.Cards)
		assert.Len(t, st.CardsForDeck(deck.ID), 2)
		got, _ := st.Deck(deck.ID)
		assert.Equal(t, 2, got.Count)
	})

	t.Run("overwrite cloud leaves local alone", func(t *testing.T) {
		st := openStore(t)
		_, _ = st.AddDeck("D")
		before := st.Snapshot()

		doc := &memDocument{}
		sum, err := NewSyncer(newEngine(doc), st, nil).Sync(context.Background(), ModeOverwriteCloud)
		require.NoError(t, err)
		assert.False(t, sum.Applied)
		assert.Equal(t, before, st.Snapshot())
		assert.Equal(t, 1, doc.writes)
	})

	t.Run("failure leaves local alone", func(t *testing.T) {
		st := openStore(t)
		_, _ = st.AddDeck("D")
		before := st.Snapshot()

		doc := &memDocument{writeErr: errors.New("boom")}
		_, err := NewSyncer(newEngine(doc), st, nil).Sync(context.Background(), ModeSync)
		require.Error(t, err)
		assert.Equal(t, before, st.Snapshot())
	})

	t.Run("overwrite local replaces everything", func(t *testing.T) {
		st := openStore(t)
		_, _ = st.AddDeck("mine")

		doc := &memDocument{files: remoteFiles(t, []domain.Card{c("A", 1, false)}, []domain.Deck{{ID: "d"}})}
		_, err := NewSyncer(newEngine(doc), st, nil).Sync(context.Background(), ModeOverwriteLocal)
		require.NoError(t, err)

		decks := st.Decks()
		require.Len(t, decks, 1)
		assert.Equal(t, domain.ID("d"), decks[0].ID)
		assert.Equal(t, 1, decks[0].Count)
	})
}
