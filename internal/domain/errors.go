package domain

import "errors"

var (
	// ErrMalformedPayload is returned when a snapshot, import file or
	// reconcile response lacks its cards or decks collection, or carries
	// invalid records.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidRating is returned when a rating is not again, hard, good or easy.
	ErrInvalidRating = errors.New("invalid rating")

	// ErrCardNotFound is returned when no card has the requested id.
	ErrCardNotFound = errors.New("card not found")

	// ErrDeckNotFound is returned when no deck has the requested id.
	ErrDeckNotFound = errors.New("deck not found")
)
