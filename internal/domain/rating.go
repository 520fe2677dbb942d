package domain

import (
	"fmt"
	"strings"
)

// Rating is the learner's recall rating for a card.
type Rating string

// Possible rating values
const (
	RatingAgain Rating = "again"
	RatingHard  Rating = "hard"
	RatingGood  Rating = "good"
	RatingEasy  Rating = "easy"
)

// Ratings lists every rating in prompt order.
var Ratings = []Rating{RatingAgain, RatingHard, RatingGood, RatingEasy}

// Valid reports whether r is one of the four ratings.
func (r Rating) Valid() bool {
	switch r {
	case RatingAgain, RatingHard, RatingGood, RatingEasy:
		return true
	default:
		return false
	}
}

// ParseRating accepts a rating name or its 1-4 shortcut.
func ParseRating(s string) (Rating, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1":
		return RatingAgain, nil
	case "2":
		return RatingHard, nil
	case "3":
		return RatingGood, nil
	case "4":
		return RatingEasy, nil
	}
	r := Rating(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return r, nil
}
