// Package queue builds study sessions: which cards of a deck are due, in
// what order, and what happens when one is rated.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/srs"
)

// Empty-queue outcomes. Build returns exactly one of them when there is
// nothing to study.
var (
	ErrDeckEmpty      = errors.New("deck has no cards")
	ErrNothingDue     = errors.New("no cards due")
	ErrQuotaExhausted = errors.New("daily new-card limit reached")
)

// Store is the slice of the record store the scheduler needs.
type Store interface {
	CardsForDeck(deckID domain.ID) []domain.Card
	UpdateCard(card domain.Card) (domain.Card, error)
	LogActivity() error
	Settings() domain.Settings
}

// Quota is the daily new-card tracker.
type Quota interface {
	CheckRollover() error
	ConsumeNewCard() error
	Remaining(limit int) int
}

// Scheduler selects and orders the cards of a study session.
type Scheduler struct {
	store        Store
	quota        Quota
	now          func() time.Time
	rand         *rand.Rand
	defaultLimit int
	log          *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand sets the source used to shuffle the queue.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rand = r }
}

// WithDailyNewLimit sets the limit used when the settings carry none.
func WithDailyNewLimit(n int) Option {
	return func(s *Scheduler) { s.defaultLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New returns a Scheduler over store and quota.
func New(store Store, quota Quota, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		quota:        quota,
		now:          time.Now,
		rand:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		defaultLimit: domain.DefaultDailyNewLimit,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "queue")
	return s
}

// Build returns the shuffled cards of deckID due at now: learning and review
// cards whose next review has passed, plus new cards in creation order up
// to the remaining daily quota.
func (s *Scheduler) Build(deckID domain.ID, now time.Time) ([]domain.Card, error) {
	if err := s.quota.CheckRollover(); err != nil {
		return nil, fmt.Errorf("quota rollover: %w", err)
	}

	cards := s.store.CardsForDeck(deckID)
	if len(cards) == 0 {
		return nil, ErrDeckEmpty
	}

	var due, fresh []domain.Card
	for _, c := range cards {
		switch c.EffectiveStatus() {
		case domain.StatusNew:
			fresh = append(fresh, c)
		case domain.StatusLearning, domain.StatusReview:
			if c.NextReview != nil && !c.NextReview.After(now) {
				due = append(due, c)
			}
		}
	}

	limit := s.store.Settings().DailyNewLimit(s.defaultLimit)
	remaining := s.quota.Remaining(limit)
	admitted := fresh[:min(len(fresh), remaining)]

	queue := append(due, admitted...)
	if len(queue) == 0 {
		if len(fresh) > 0 && remaining == 0 {
			return nil, ErrQuotaExhausted
		}
		return nil, ErrNothingDue
	}

	s.rand.Shuffle(len(queue), func(i, j int) {
		queue[i], queue[j] = queue[j], queue[i]
	})

	s.log.Debug("Built study queue", "deck", deckID, "due", len(due), "new", len(admitted), "new_available", len(fresh))
	return queue, nil
}

// Start builds a queue for deckID at the current time and wraps it in a
// Session.
func (s *Scheduler) Start(deckID domain.ID) (*Session, error) {
	q, err := s.Build(deckID, s.now())
	if err != nil {
		return nil, err
	}
	return &Session{sched: s, queue: q}, nil
}

// Session is one sitting over a built queue.
type Session struct {
	sched    *Scheduler
	queue    []domain.Card
	reviewed int
}

// Len returns the number of cards left, relearning repeats included.
func (s *Session) Len() int { return len(s.queue) }

// Reviewed returns how many ratings were applied.
func (s *Session) Reviewed() int { return s.reviewed }

// Done reports whether the queue is exhausted.
func (s *Session) Done() bool { return len(s.queue) == 0 }

// Current returns the card at the head of the queue.
func (s *Session) Current() (domain.Card, bool) {
	if len(s.queue) == 0 {
		return domain.Card{}, false
	}
	return s.queue[0], true
}

// Rate applies rating to the head card and stores the result. A card rated
// again goes back to the tail of the queue in its updated state. If the
// store rejects the update the queue is left as it was.
func (s *Session) Rate(rating domain.Rating) (domain.Card, error) {
	if !rating.Valid() {
		return domain.Card{}, fmt.Errorf("%w: %q", domain.ErrInvalidRating, rating)
	}
	head, ok := s.Current()
	if !ok {
		return domain.Card{}, ErrNothingDue
	}

	wasNew := head.EffectiveStatus() == domain.StatusNew
	next := srs.Apply(head, rating, s.sched.now())
	stored, err := s.sched.store.UpdateCard(next)
	if err != nil {
		return domain.Card{}, fmt.Errorf("update card %s: %w", head.ID, err)
	}

	s.queue = s.queue[1:]
	s.reviewed++

	if wasNew {
		if err := s.sched.quota.ConsumeNewCard(); err != nil {
			return stored, fmt.Errorf("consume quota: %w", err)
		}
	}
	if err := s.sched.store.LogActivity(); err != nil {
		return stored, fmt.Errorf("log activity: %w", err)
	}
	if stored.Status == domain.StatusGraduated {
		s.sched.log.Info("Card graduated", "card", stored.ID, "reviews", stored.ReviewCount)
	}

	if rating == domain.RatingAgain {
		s.queue = append(s.queue, stored)
	}
	return stored, nil
}
