// Package store holds the replica's cards, decks, settings and stats in
// memory and writes them through to a key-value backend after every change.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/storage"
)

// Backend keys for the three persisted blobs.
const (
	KeyDecks    = "flashcardDecks"
	KeyCards    = "flashcardCards"
	KeySettings = "settings"
)

// ErrCorrupted marks a persisted blob that could not be decoded. Open logs it
// and starts from an empty replica instead of failing.
var ErrCorrupted = errors.New("local data corrupted")

// Store is the record store. It is safe for use by one logical operation at
// a time; the mutex only guards against accidental overlap.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	log     *slog.Logger
	now     func() time.Time

	state
}

// state is everything the store persists. Mutators work on a copy and
// commit it only once it has been written.
type state struct {
	decks    []domain.Deck
	cards    []domain.Card
	settings domain.Settings
	stats    domain.Stats
	quota    domain.QuotaState
}

func emptyState() state {
	return state{
		decks:    []domain.Deck{},
		cards:    []domain.Card{},
		settings: domain.Settings{},
		stats:    domain.Stats{},
	}
}

func (st state) clone() state {
	snap := domain.Snapshot{Cards: st.cards, Decks: st.decks, Settings: st.settings, Stats: st.stats}.Clone()
	return state{
		decks:    snap.Decks,
		cards:    snap.Cards,
		settings: snap.Settings,
		stats:    snap.Stats,
		quota:    st.quota,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open loads the replica from backend. A blob that fails to decode resets
// the whole replica to empty; only backend read failures are returned.
func Open(backend storage.Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "store")

	err := s.load()
	if errors.Is(err, ErrCorrupted) {
		s.log.Warn("Local data corrupted, resetting", "error", err)
		if err := s.commit(emptyState()); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.state = emptyState()

	if err := s.loadBlob(KeyDecks, &s.decks); err != nil {
		return err
	}
	if err := s.loadBlob(KeyCards, &s.cards); err != nil {
		return err
	}

	raw, err := s.backend.Get(KeySettings)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", KeySettings, err)
	}
	doc, err := decodeSettings(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupted, KeySettings, err)
	}
	s.settings, s.stats, s.quota = doc.Settings, doc.Stats, doc.Quota
	if doc.Version < settingsVersion {
		s.log.Info("Migrated legacy settings blob", "version", doc.Version)
	}
	return nil
}

func (s *Store) loadBlob(key string, v any) error {
	raw, err := s.backend.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupted, key, err)
	}
	return nil
}

// commit writes all three blobs of next and then makes it the current state.
// If any write fails the current state is kept.
func (s *Store) commit(next state) error {
	decks, err := json.Marshal(next.decks)
	if err != nil {
		return fmt.Errorf("json.Marshal decks > %w", err)
	}
	cards, err := json.Marshal(next.cards)
	if err != nil {
		return fmt.Errorf("json.Marshal cards > %w", err)
	}
	settings, err := encodeSettings(next.settings, next.stats, next.quota)
	if err != nil {
		return err
	}

	for _, kv := range []struct {
		key   string
		value []byte
	}{{KeyDecks, decks}, {KeyCards, cards}, {KeySettings, settings}} {
		if err := s.backend.Set(kv.key, kv.value); err != nil {
			return fmt.Errorf("failed to persist %s: %w", kv.key, err)
		}
	}
	s.state = next
	return nil
}

// Reset removes every persisted blob and empties the replica.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{KeyDecks, KeyCards, KeySettings} {
		if err := s.backend.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	s.state = emptyState()
	s.log.Info("Local data reset")
	return nil
}

// Decks returns every deck, tombstones included.
func (s *Store) Decks() []domain.Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.decks)
}

// LiveDecks returns the decks that are not soft-deleted.
func (s *Store) LiveDecks() []domain.Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Deck{}
	for _, d := range s.decks {
		if !d.Deleted {
			out = append(out, d)
		}
	}
	return out
}

// Deck returns the deck with the given id, deleted or not.
func (s *Store) Deck(id domain.ID) (domain.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.deckIndex(id)
	if i < 0 {
		return domain.Deck{}, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	return s.decks[i], nil
}

// Card returns the card with the given id, deleted or not.
func (s *Store) Card(id domain.ID) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.cardIndex(id)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	return cloneCard(s.cards[i]), nil
}

// CardsForDeck returns the live cards of a deck in creation order.
func (s *Store) CardsForDeck(deckID domain.ID) []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Card{}
	for _, c := range s.cards {
		if c.DeckID == deckID && !c.Deleted {
			out = append(out, cloneCard(c))
		}
	}
	return out
}

// LiveCards returns every card that is not soft-deleted.
func (s *Store) LiveCards() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Card{}
	for _, c := range s.cards {
		if !c.Deleted {
			out = append(out, cloneCard(c))
		}
	}
	return out
}

// AddDeck creates an empty deck.
func (s *Store) AddDeck(name string) (domain.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.clone()
	d := domain.NewDeck(name, s.now())
	next.decks = append(next.decks, d)
	if err := s.commit(next); err != nil {
		return domain.Deck{}, err
	}
	return d, nil
}

// AddCard creates a new card in a live deck.
func (s *Store) AddCard(deckID domain.ID, front, back string, tags []string) (domain.Card, error) {
	cards, err := s.AddCards(deckID, []domain.Draft{{Front: front, Back: back, Tags: tags}})
	if err != nil {
		return domain.Card{}, err
	}
	return cards[0], nil
}

// AddCards creates one new card per draft and persists once.
func (s *Store) AddCards(deckID domain.ID, drafts []domain.Draft) ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deckIndex(deckID)
	if i < 0 || s.decks[i].Deleted {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, deckID)
	}

	next := s.clone()
	now := s.now()
	added := make([]domain.Card, 0, len(drafts))
	for _, d := range drafts {
		c := domain.NewCard(deckID, d.Front, d.Back, d.Tags, now)
		next.cards = append(next.cards, c)
		added = append(added, cloneCard(c))
	}
	next.recount()
	if err := s.commit(next); err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateCard replaces the stored card with the same id and stamps it as
// modified now.
func (s *Store) UpdateCard(card domain.Card) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cardIndex(card.ID)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("%w: %s", domain.ErrCardNotFound, card.ID)
	}
	next := s.clone()
	card = cloneCard(card)
	card.LastModified = s.now()
	next.cards[i] = card
	next.recount()
	if err := s.commit(next); err != nil {
		return domain.Card{}, err
	}
	return cloneCard(card), nil
}

// DeleteCard soft-deletes a card.
func (s *Store) DeleteCard(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cardIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	next := s.clone()
	next.cards[i].Deleted = true
	next.cards[i].LastModified = s.now()
	next.recount()
	return s.commit(next)
}

// DeleteDeck soft-deletes a deck together with every card in it.
func (s *Store) DeleteDeck(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deckIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	next := s.clone()
	now := s.now()
	next.decks[i].Deleted = true
	next.decks[i].LastModified = now
	for j := range next.cards {
		if next.cards[j].DeckID == id && !next.cards[j].Deleted {
			next.cards[j].Deleted = true
			next.cards[j].LastModified = now
		}
	}
	next.recount()
	return s.commit(next)
}

// RestoreCard brings a card back from the trash, restoring its deck too if
// the deck was deleted.
func (s *Store) RestoreCard(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cardIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	next := s.clone()
	now := s.now()
	next.cards[i].Deleted = false
	next.cards[i].LastModified = now
	if d := next.deckIndex(next.cards[i].DeckID); d >= 0 && next.decks[d].Deleted {
		next.decks[d].Deleted = false
		next.decks[d].LastModified = now
	}
	next.recount()
	return s.commit(next)
}

// RestoreDeck brings a deck back from the trash. Its cards stay deleted
// until restored one by one.
func (s *Store) RestoreDeck(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deckIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	next := s.clone()
	next.decks[i].Deleted = false
	next.decks[i].LastModified = s.now()
	return s.commit(next)
}

// HardDeleteCard removes a card permanently.
func (s *Store) HardDeleteCard(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cardIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	next := s.clone()
	next.cards = slices.Delete(next.cards, i, i+1)
	next.recount()
	return s.commit(next)
}

// HardDeleteDeck removes a deck and all of its cards permanently.
func (s *Store) HardDeleteDeck(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deckIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	next := s.clone()
	next.decks = slices.Delete(next.decks, i, i+1)
	next.cards = slices.DeleteFunc(next.cards, func(c domain.Card) bool { return c.DeckID == id })
	return s.commit(next)
}

// Trash returns the soft-deleted decks and cards.
func (s *Store) Trash() ([]domain.Deck, []domain.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decks := []domain.Deck{}
	for _, d := range s.decks {
		if d.Deleted {
			decks = append(decks, d)
		}
	}
	cards := []domain.Card{}
	for _, c := range s.cards {
		if c.Deleted {
			cards = append(cards, cloneCard(c))
		}
	}
	return decks, cards
}

// EmptyTrash permanently removes every tombstone and returns how many
// decks and cards were dropped.
func (s *Store) EmptyTrash() (decks, cards int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	next.decks = slices.DeleteFunc(next.decks, domain.Deck.Tombstoned)
	next.cards = slices.DeleteFunc(next.cards, domain.Card.Tombstoned)
	decks = len(s.decks) - len(next.decks)
	cards = len(s.cards) - len(next.cards)
	if err := s.commit(next); err != nil {
		return 0, 0, err
	}
	return decks, cards, nil
}

func (st *state) deckIndex(id domain.ID) int {
	return slices.IndexFunc(st.decks, func(d domain.Deck) bool { return d.ID == id })
}

func (st *state) cardIndex(id domain.ID) int {
	return slices.IndexFunc(st.cards, func(c domain.Card) bool { return c.ID == id })
}

// recount refreshes the derived deck counts. It does not touch the decks'
// lastModified, so a recount never wins a merge on its own.
func (st *state) recount() {
	domain.RecountDecks(st.decks, st.cards)
}

func cloneCard(c domain.Card) domain.Card {
	c.Tags = slices.Clone(c.Tags)
	if c.NextReview != nil {
		t := *c.NextReview
		c.NextReview = &t
	}
	return c
}
