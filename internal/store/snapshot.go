package store

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aheige321/true-mastery/internal/domain"
)

// DateLayout is the calendar-day format used for activity and quota dates.
const DateLayout = "2006-01-02"

// Snapshot returns a deep copy of the whole replica, tombstones included.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Snapshot{
		Cards:    s.cards,
		Decks:    s.decks,
		Settings: s.settings,
		Stats:    s.stats,
	}.Clone()
}

// ReplaceAll swaps the replica's records for those in snap. A snapshot that
// fails validation is rejected with domain.ErrMalformedPayload and the
// current state is kept. Nil settings or stats leave the current ones in
// place. Deck counts are recomputed.
func (s *Store) ReplaceAll(snap domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	keepSettings, keepStats := snap.Settings == nil, snap.Stats == nil
	snap = snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	next.cards = snap.Cards
	next.decks = snap.Decks
	if !keepSettings {
		next.settings = snap.Settings
	}
	if !keepStats {
		next.stats = snap.Stats
	}
	// Replicas written by older clients still carry the flattened keys.
	legacyQuota := migrateLegacy(next.settings, next.stats)
	if next.quota == (domain.QuotaState{}) {
		next.quota = legacyQuota
	}
	next.recount()
	return s.commit(next)
}

// backup is the export file layout.
type backup struct {
	Decks    []domain.Deck   `json:"decks"`
	Cards    []domain.Card   `json:"cards"`
	Settings domain.Settings `json:"settings"`
	Stats    domain.Stats    `json:"stats,omitempty"`
}

// Export writes the live decks and cards with the settings and stats as
// indented JSON.
func (s *Store) Export(w io.Writer) error {
	snap := s.Snapshot()
	out := backup{
		Decks:    []domain.Deck{},
		Cards:    []domain.Card{},
		Settings: snap.Settings,
		Stats:    snap.Stats,
	}
	for _, d := range snap.Decks {
		if !d.Deleted {
			out.Decks = append(out.Decks, d)
		}
	}
	for _, c := range snap.Cards {
		if !c.Deleted {
			out.Cards = append(out.Cards, c)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Import replaces the replica with a backup produced by Export. The backup
// must carry both cards and decks; otherwise nothing changes.
func (s *Store) Import(r io.Reader) error {
	var snap domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return s.ReplaceAll(snap)
}

// Settings returns a copy of the settings object.
func (s *Store) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// SetDailyNewLimit stores the daily new-card limit.
// domain.UnlimitedNewCards disables the limit.
func (s *Store) SetDailyNewLimit(n int) error {
	if n < domain.UnlimitedNewCards {
		return fmt.Errorf("daily new-card limit must be >= %d, got %d", domain.UnlimitedNewCards, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.clone()
	next.settings.SetDailyNewLimit(n)
	return s.commit(next)
}

// Stats returns a copy of the stats object.
func (s *Store) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.Clone()
}

// LogActivity counts one rating on today's local calendar day.
func (s *Store) LogActivity() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.clone()
	next.stats.RecordActivity(s.now().Format(DateLayout))
	return s.commit(next)
}

// Quota returns the persisted daily quota counters.
func (s *Store) Quota() domain.QuotaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota
}

// SaveQuota persists the daily quota counters.
func (s *Store) SaveQuota(q domain.QuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.clone()
	next.quota = q
	return s.commit(next)
}
