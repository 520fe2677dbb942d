// Package srs implements the review scheduling arithmetic and the
// lifecycle policy layered on top of it.
package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
)

const (
	// MinutesPerDay is the learning/mature regime boundary.
	MinutesPerDay = 1440

	// GraduationDays is the interval at which a card may graduate.
	GraduationDays = 365

	// MinReviewsToGraduate is the number of reviews a card needs before it
	// may graduate.
	MinReviewsToGraduate = 5

	// CapDays bounds the interval of a card that reached GraduationDays
	// without enough reviews.
	CapDays = 180
)

// Result is the next interval and confidence factor for a card.
type Result struct {
	Interval   int     // minutes
	EaseFactor float64
}

// Calculate returns the interval and confidence factor that follow rating
// the card. It is pure: equal inputs always give equal outputs.
// Calculate panics on a rating outside the four defined values.
func Calculate(card domain.Card, rating domain.Rating) Result {
	ease := card.EaseFactor
	if ease == 0 {
		ease = domain.DefaultEaseFactor
	}
	current := card.Interval
	if current < 0 {
		current = 0
	}

	if isLearning(card.EffectiveStatus(), current) {
		return learningStep(card.EffectiveStatus(), current, ease, rating)
	}
	return matureStep(current, ease, rating)
}

func isLearning(status domain.Status, current int) bool {
	return status == domain.StatusNew || status == domain.StatusLearning || current < MinutesPerDay
}

func learningStep(status domain.Status, current int, ease float64, rating domain.Rating) Result {
	short := MinutesPerDay
	if current < 10 {
		short = 10
	}

	switch rating {
	case domain.RatingAgain:
		return Result{Interval: 1, EaseFactor: floorEase(ease - 0.2)}
	case domain.RatingHard:
		return Result{Interval: 6, EaseFactor: floorEase(ease - 0.15)}
	case domain.RatingGood:
		return Result{Interval: short, EaseFactor: floorEase(ease)}
	case domain.RatingEasy:
		if status == domain.StatusNew {
			return Result{Interval: 4 * MinutesPerDay, EaseFactor: floorEase(ease + 0.15)}
		}
		return Result{Interval: short, EaseFactor: floorEase(ease + 0.15)}
	}
	panic(fmt.Sprintf("srs: unknown rating %q", rating))
}

func matureStep(current int, ease float64, rating domain.Rating) Result {
	switch rating {
	case domain.RatingAgain:
		return Result{Interval: 10, EaseFactor: floorEase(ease - 0.2)}
	case domain.RatingHard:
		return Result{Interval: scale(current, 1.2), EaseFactor: floorEase(ease - 0.15)}
	case domain.RatingGood:
		return Result{Interval: scale(current, ease), EaseFactor: floorEase(ease)}
	case domain.RatingEasy:
		return Result{Interval: scale(current, ease*1.3), EaseFactor: floorEase(ease + 0.15)}
	}
	panic(fmt.Sprintf("srs: unknown rating %q", rating))
}

func scale(minutes int, factor float64) int {
	return int(math.Floor(float64(minutes) * factor))
}

func floorEase(ease float64) float64 {
	return math.Max(domain.MinEaseFactor, ease)
}

// Apply rates the card and returns its next state. The returned card shares
// no pointers with the input.
//
// A card graduates when the new interval reaches GraduationDays and it has
// been reviewed at least MinReviewsToGraduate times; graduated cards have no
// next review. A card that reaches GraduationDays too early is capped to
// CapDays. Otherwise the card is due after the interval, in status learning
// after "again" or while the interval is under a day, and review after that.
func Apply(card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	res := Calculate(card, rating)

	next := card
	next.Tags = append([]string(nil), card.Tags...)
	next.EaseFactor = res.EaseFactor
	next.ReviewCount = card.ReviewCount + 1
	next.LastModified = now

	longGap := res.Interval >= GraduationDays*MinutesPerDay
	if longGap && next.ReviewCount >= MinReviewsToGraduate {
		next.Interval = res.Interval
		next.Status = domain.StatusGraduated
		next.NextReview = nil
		return next
	}

	interval := res.Interval
	if longGap {
		interval = CapDays * MinutesPerDay
	}
	due := now.Add(time.Duration(interval) * time.Minute)
	next.Interval = interval
	next.NextReview = &due

	switch {
	case rating == domain.RatingAgain, interval < MinutesPerDay:
		next.Status = domain.StatusLearning
	default:
		next.Status = domain.StatusReview
	}
	return next
}

// Label renders the interval rating the card would produce, e.g. "10m",
// "6h", "4d" or "2y".
func Label(card domain.Card, rating domain.Rating) string {
	minutes := Calculate(card, rating).Interval
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	case minutes < MinutesPerDay:
		return fmt.Sprintf("%dh", int(math.Round(float64(minutes)/60)))
	case minutes < 365*MinutesPerDay:
		return fmt.Sprintf("%dd", int(math.Round(float64(minutes)/MinutesPerDay)))
	default:
		return fmt.Sprintf("%dy", int(math.Round(float64(minutes)/(365*MinutesPerDay))))
	}
}
