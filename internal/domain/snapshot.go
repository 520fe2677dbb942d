package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// UnlimitedNewCards is the daily new-card limit meaning "no limit".
const UnlimitedNewCards = -1

// DefaultDailyNewLimit is used when settings carry no limit.
const DefaultDailyNewLimit = 20

const (
	settingsDailyNewLimit = "dailyNewLimit"
	statsActivity         = "activity"
)

// Settings is the user's preference object. Keys unknown to this program
// are kept as-is so that other clients' preferences survive a round trip.
type Settings map[string]json.RawMessage

// DailyNewLimit returns the configured daily new-card limit, or fallback
// when none is stored.
func (s Settings) DailyNewLimit(fallback int) int {
	var n int
	if !getAttr(s, settingsDailyNewLimit, &n) {
		return fallback
	}
	return n
}

// SetDailyNewLimit stores the daily new-card limit.
func (s *Settings) SetDailyNewLimit(n int) {
	setAttr((*map[string]json.RawMessage)(s), settingsDailyNewLimit, n)
}

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	return maps.Clone(s)
}

// Stats holds cumulative activity data.
type Stats map[string]json.RawMessage

// Activity returns the number of ratings per calendar day (YYYY-MM-DD).
func (s Stats) Activity() map[string]int {
	activity := map[string]int{}
	getAttr(s, statsActivity, &activity)
	return activity
}

// SetActivity replaces the activity histogram.
func (s *Stats) SetActivity(activity map[string]int) {
	setAttr((*map[string]json.RawMessage)(s), statsActivity, activity)
}

// RecordActivity adds one rating to the given day.
func (s *Stats) RecordActivity(day string) {
	activity := s.Activity()
	activity[day]++
	s.SetActivity(activity)
}

// Clone returns a shallow copy.
func (s Stats) Clone() Stats {
	if s == nil {
		return Stats{}
	}
	return maps.Clone(s)
}

func getAttr(m map[string]json.RawMessage, key string, v any) bool {
	raw, ok := m[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func setAttr(m *map[string]json.RawMessage, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		// Only ints and string-keyed int maps are stored here.
		panic(fmt.Sprintf("domain: marshal %s: %v", key, err))
	}
	if *m == nil {
		*m = map[string]json.RawMessage{}
	}
	(*m)[key] = raw
}

// QuotaState is the per-device daily new-card counter.
type QuotaState struct {
	LastStudyDate string `json:"lastStudyDate"`
	TodayNewCount int    `json:"todayNewCount"`
}

// Snapshot is a full copy of one replica's records.
type Snapshot struct {
	Cards    []Card   `json:"cards" validate:"required,dive"`
	Decks    []Deck   `json:"decks" validate:"required,dive"`
	Settings Settings `json:"settings"`
	Stats    Stats    `json:"stats"`
}

// EmptySnapshot returns a snapshot with empty, non-nil collections.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Cards:    []Card{},
		Decks:    []Deck{},
		Settings: Settings{},
		Stats:    Stats{},
	}
}

// Clone returns a copy whose slices and maps are not shared with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Cards:    make([]Card, len(s.Cards)),
		Decks:    make([]Deck, len(s.Decks)),
		Settings: s.Settings.Clone(),
		Stats:    s.Stats.Clone(),
	}
	for i, c := range s.Cards {
		c.Tags = append([]string(nil), c.Tags...)
		if c.NextReview != nil {
			t := *c.NextReview
			c.NextReview = &t
		}
		out.Cards[i] = c
	}
	copy(out.Decks, s.Decks)
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the snapshot carries both record collections and
// that every record is well formed. Failures wrap ErrMalformedPayload.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: no data", ErrMalformedPayload)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
