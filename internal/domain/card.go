package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultEaseFactor is the confidence factor a new card starts with.
const DefaultEaseFactor = 2.5

// MinEaseFactor is the floor every confidence factor is clamped to.
const MinEaseFactor = 1.3

// ID is an opaque record identifier. Older clients generated numeric card
// ids, so both JSON strings and JSON numbers decode into an ID.
type ID string

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// UnmarshalJSON accepts either a string or a number.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("json.Unmarshal > %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Status is the lifecycle state of a card.
type Status string

const (
	StatusNew       Status = "new"
	StatusLearning  Status = "learning"
	StatusReview    Status = "review"
	StatusGraduated Status = "graduated"
)

// Card is a single front/back study unit with its own scheduling state.
type Card struct {
	ID           ID         `json:"id" validate:"required"`
	DeckID       ID         `json:"deckId" validate:"required"`
	Front        string     `json:"front"`
	Back         string     `json:"back"`
	Tags         []string   `json:"tags"`
	Status       Status     `json:"status" validate:"omitempty,oneof=new learning review graduated"`
	Interval     int        `json:"interval" validate:"gte=0"`
	EaseFactor   float64    `json:"easeFactor" validate:"omitempty,gte=1.3"`
	ReviewCount  int        `json:"reviewCount" validate:"gte=0"`
	NextReview   *time.Time `json:"nextReview"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastModified time.Time  `json:"lastModified"`
	Deleted      bool       `json:"deleted,omitempty"`
}

// NewCard creates a card in status new, due immediately.
func NewCard(deckID ID, front, back string, tags []string, now time.Time) Card {
	due := now
	return Card{
		ID:           NewID(),
		DeckID:       deckID,
		Front:        front,
		Back:         back,
		Tags:         NormalizeTags(tags),
		Status:       StatusNew,
		Interval:     0,
		EaseFactor:   DefaultEaseFactor,
		ReviewCount:  0,
		NextReview:   &due,
		CreatedAt:    now,
		LastModified: now,
	}
}

// Key returns the card id.
func (c Card) Key() ID { return c.ID }

// Modified returns the last modification time.
func (c Card) Modified() time.Time { return c.LastModified }

// Tombstoned reports whether the card is soft-deleted.
func (c Card) Tombstoned() bool { return c.Deleted }

// EffectiveStatus treats a missing status as new.
func (c Card) EffectiveStatus() Status {
	if c.Status == "" {
		return StatusNew
	}
	return c.Status
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping the first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Deck is a named grouping of cards. Count is derived from the live cards
// that reference the deck.
type Deck struct {
	ID           ID        `json:"id" validate:"required"`
	Name         string    `json:"name"`
	Count        int       `json:"count"`
	Deleted      bool      `json:"deleted,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// NewDeck creates an empty deck.
func NewDeck(name string, now time.Time) Deck {
	return Deck{
		ID:           NewID(),
		Name:         name,
		LastModified: now,
	}
}

// Key returns the deck id.
func (d Deck) Key() ID { return d.ID }

// Modified returns the last modification time.
func (d Deck) Modified() time.Time { return d.LastModified }

// Tombstoned reports whether the deck is soft-deleted.
func (d Deck) Tombstoned() bool { return d.Deleted }

// RecountDecks sets every deck's Count to the number of non-deleted cards
// referencing it.
func RecountDecks(decks []Deck, cards []Card) {
	counts := make(map[ID]int, len(decks))
	for _, c := range cards {
		if !c.Deleted {
			counts[c.DeckID]++
		}
	}
	for i := range decks {
		decks[i].Count = counts[decks[i].ID]
	}
}

// Draft is the content of a card that has not been created yet.
type Draft struct {
	Front string
	Back  string
	Tags  []string
}
