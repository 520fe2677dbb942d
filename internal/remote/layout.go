package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
)

// Meta is one tenant's entry in the meta file.
type Meta struct {
	Settings domain.Settings `json:"settings"`
	Stats    domain.Stats    `json:"stats"`
	LastSync *time.Time      `json:"lastSync,omitempty"`
}

// Replica is one tenant's view of the remote document.
type Replica struct {
	Cards []domain.Card
	Decks []domain.Deck
	Meta  Meta
}

// Snapshot converts the replica to a snapshot with non-nil collections.
func (r Replica) Snapshot() domain.Snapshot {
	s := domain.EmptySnapshot()
	if r.Cards != nil {
		s.Cards = r.Cards
	}
	if r.Decks != nil {
		s.Decks = r.Decks
	}
	if r.Meta.Settings != nil {
		s.Settings = r.Meta.Settings
	}
	if r.Meta.Stats != nil {
		s.Stats = r.Meta.Stats
	}
	return s
}

// legacyEntry is the single-file layout older servers wrote.
type legacyEntry struct {
	Cards    []domain.Card   `json:"cards"`
	Decks    []domain.Deck   `json:"decks"`
	Settings domain.Settings `json:"settings"`
	Stats    domain.Stats    `json:"stats"`
}

// Decode extracts userID's replica from the document. Missing files decode
// as empty collections; content that is not valid JSON is an error wrapping
// domain.ErrMalformedPayload. Records without an id are dropped.
//
// Collections are read from, in order: a bare array, the entry keyed by
// userID, or the value of a single-entry object when that value is an array.
// When neither the cards nor the decks file exists the legacy single file
// is read instead.
func Decode(files Files, userID string) (Replica, error) {
	_, hasCards := files[FileCards]
	_, hasDecks := files[FileDecks]
	if legacy, ok := files[FileLegacy]; ok && !hasCards && !hasDecks {
		return decodeLegacy(legacy, userID)
	}

	var r Replica
	if err := decodeCollection(files[FileCards], userID, &r.Cards); err != nil {
		return Replica{}, fmt.Errorf("%s: %w", FileCards, err)
	}
	if err := decodeCollection(files[FileDecks], userID, &r.Decks); err != nil {
		return Replica{}, fmt.Errorf("%s: %w", FileDecks, err)
	}
	meta, err := decodeMeta(files[FileMeta], userID)
	if err != nil {
		return Replica{}, fmt.Errorf("%s: %w", FileMeta, err)
	}
	r.Meta = meta
	r.Cards = repairCards(dropAnonymous(r.Cards))
	r.Decks = dropAnonymous(r.Decks)
	return r, nil
}

func decodeCollection[T any](raw []byte, userID string, out *[]T) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*out = []T{}
		return nil
	}

	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, out); err != nil {
			return malformed(err)
		}
		return nil
	case '{':
	default:
		return malformed(fmt.Errorf("unexpected %q", raw[0]))
	}

	var byUser map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byUser); err != nil {
		return malformed(err)
	}
	if v, ok := byUser[userID]; ok && !isNull(v) {
		if err := json.Unmarshal(v, out); err != nil {
			return malformed(err)
		}
		return nil
	}
	if len(byUser) == 1 {
		for _, v := range byUser {
			if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
				if err := json.Unmarshal(v, out); err != nil {
					return malformed(err)
				}
				return nil
			}
		}
	}
	*out = []T{}
	return nil
}

func decodeMeta(raw []byte, userID string) (Meta, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return emptyMeta(), nil
	}

	var byUser map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byUser); err != nil {
		return Meta{}, malformed(err)
	}

	var m Meta
	switch {
	case byUser[userID] != nil && !isNull(byUser[userID]):
		if err := json.Unmarshal(byUser[userID], &m); err != nil {
			return Meta{}, malformed(err)
		}
	case byUser["settings"] != nil:
		if err := json.Unmarshal(raw, &m); err != nil {
			return Meta{}, malformed(err)
		}
	default:
		return emptyMeta(), nil
	}
	if m.Settings == nil {
		m.Settings = domain.Settings{}
	}
	if m.Stats == nil {
		m.Stats = domain.Stats{}
	}
	return m, nil
}

func decodeLegacy(raw []byte, userID string) (Replica, error) {
	var byUser map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byUser); err != nil {
		return Replica{}, fmt.Errorf("%s: %w", FileLegacy, malformed(err))
	}

	entryRaw := raw
	if v, ok := byUser[userID]; ok {
		entryRaw = v
	}
	var e legacyEntry
	if err := json.Unmarshal(entryRaw, &e); err != nil {
		return Replica{}, fmt.Errorf("%s: %w", FileLegacy, malformed(err))
	}

	r := Replica{
		Cards: repairCards(dropAnonymous(e.Cards)),
		Decks: dropAnonymous(e.Decks),
		Meta:  Meta{Settings: e.Settings, Stats: e.Stats},
	}
	if r.Meta.Settings == nil {
		r.Meta.Settings = domain.Settings{}
	}
	if r.Meta.Stats == nil {
		r.Meta.Stats = domain.Stats{}
	}
	return r, nil
}

// Encode returns the files that store r as userID's entry, starting from the
// current document so that other tenants' entries are kept. It also returns
// the files to delete, which is the legacy file when present.
func Encode(current Files, userID string, r Replica) (Files, []string, error) {
	cards := r.Cards
	if cards == nil {
		cards = []domain.Card{}
	}
	decks := r.Decks
	if decks == nil {
		decks = []domain.Deck{}
	}
	meta := r.Meta
	if meta.Settings == nil {
		meta.Settings = domain.Settings{}
	}
	if meta.Stats == nil {
		meta.Stats = domain.Stats{}
	}

	out := Files{}
	for _, f := range []struct {
		name  string
		value any
	}{
		{FileCards, cards},
		{FileDecks, decks},
		{FileMeta, meta},
	} {
		raw, err := encodeEntry(current[f.name], userID, f.value)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", f.name, err)
		}
		out[f.name] = raw
	}

	var remove []string
	if _, ok := current[FileLegacy]; ok {
		remove = append(remove, FileLegacy)
	}
	return out, remove, nil
}

func encodeEntry(current []byte, userID string, value any) ([]byte, error) {
	entries := otherTenants(current, userID)
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal > %w", err)
	}
	entries[userID] = raw

	doc, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal > %w", err)
	}
	return doc, nil
}

// otherTenants returns the entries of an existing file that belong to other
// tenants. Bare arrays, bare meta objects and a lone foreign entry holding
// an array, which Decode reads as this tenant's collection, are not carried
// over. A lone foreign meta object is another tenant's and is kept.
func otherTenants(current []byte, userID string) map[string]json.RawMessage {
	entries := map[string]json.RawMessage{}
	current = bytes.TrimSpace(current)
	if len(current) == 0 || current[0] != '{' {
		return entries
	}
	if err := json.Unmarshal(current, &entries); err != nil {
		return map[string]json.RawMessage{}
	}
	if _, ok := entries["settings"]; ok {
		return map[string]json.RawMessage{}
	}
	if _, mine := entries[userID]; !mine && len(entries) == 1 {
		for _, v := range entries {
			if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
				return map[string]json.RawMessage{}
			}
		}
	}
	delete(entries, userID)
	return entries
}

func emptyMeta() Meta {
	return Meta{Settings: domain.Settings{}, Stats: domain.Stats{}}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
}

type keyed interface{ Key() domain.ID }

// repairCards clamps scheduling fields older clients could write out of
// range. A zero ease factor means unset and is left alone.
func repairCards(cards []domain.Card) []domain.Card {
	for i := range cards {
		c := &cards[i]
		if c.EaseFactor > 0 && c.EaseFactor < domain.MinEaseFactor {
			c.EaseFactor = domain.MinEaseFactor
		}
		c.Interval = max(c.Interval, 0)
		c.ReviewCount = max(c.ReviewCount, 0)
	}
	return cards
}

func dropAnonymous[T keyed](records []T) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if r.Key() != "" {
			out = append(out, r)
		}
	}
	return out
}
