// Package quota tracks how many new cards were introduced on the current
// calendar day.
package quota

import (
	"log/slog"
	"math"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
)

const dateLayout = "2006-01-02"

// Persister loads and saves the quota counters. *store.Store implements it.
type Persister interface {
	Quota() domain.QuotaState
	SaveQuota(domain.QuotaState) error
}

// Tracker is the daily new-card counter. Every change is persisted
// immediately.
type Tracker struct {
	store Persister
	now   func() time.Time
	log   *slog.Logger
}

// New returns a Tracker backed by p. A nil clock means time.Now and a nil
// logger means slog.Default().
func New(p Persister, now func() time.Time, logger *slog.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: p, now: now, log: logger.With("component", "quota")}
}

// today is the current calendar date in the clock's location.
func (t *Tracker) today() string {
	return t.now().Format(dateLayout)
}

// CheckRollover resets the counter when the stored date is not today.
// Calling it again on the same day changes nothing.
func (t *Tracker) CheckRollover() error {
	q := t.store.Quota()
	today := t.today()
	if q.LastStudyDate == today {
		return nil
	}
	t.log.Debug("New study day, resetting quota", "previous", q.LastStudyDate, "today", today)
	return t.store.SaveQuota(domain.QuotaState{LastStudyDate: today, TodayNewCount: 0})
}

// ConsumeNewCard records that one new card was introduced today.
func (t *Tracker) ConsumeNewCard() error {
	if err := t.CheckRollover(); err != nil {
		return err
	}
	q := t.store.Quota()
	q.TodayNewCount++
	return t.store.SaveQuota(q)
}

// Used returns how many new cards were introduced today.
func (t *Tracker) Used() int {
	q := t.store.Quota()
	if q.LastStudyDate != t.today() {
		return 0
	}
	return q.TodayNewCount
}

// Remaining returns how many more new cards may be introduced today under
// limit. domain.UnlimitedNewCards yields math.MaxInt.
func (t *Tracker) Remaining(limit int) int {
	if limit == domain.UnlimitedNewCards {
		return math.MaxInt
	}
	return max(0, limit-t.Used())
}
