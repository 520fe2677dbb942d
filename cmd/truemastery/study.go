package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/queue"
	"github.com/aheige321/true-mastery/internal/srs"
)

// cmdStudy runs an interactive session over the due cards of a deck. Each
// card shows its front, waits for Enter, shows the back and asks for a
// rating with the interval each rating would give.
func cmdStudy(ctx context.Context, a *app, argv []string) error {
	if err := args("study", argv, 1); err != nil {
		return err
	}
	deck, err := a.resolveDeck(argv[0])
	if err != nil {
		return err
	}

	session, err := a.scheduler().Start(deck.ID)
	switch {
	case errors.Is(err, queue.ErrDeckEmpty):
		fmt.Fprintf(a.out, "Deck %s has no cards yet.\n", deck.Name)
		return nil
	case errors.Is(err, queue.ErrQuotaExhausted):
		fmt.Fprintln(a.out, "Daily new-card limit reached and nothing is due. Come back tomorrow.")
		return nil
	case errors.Is(err, queue.ErrNothingDue):
		fmt.Fprintln(a.out, "Nothing is due. Well done!")
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(a.out, "Studying %s: %d cards due.\n", deck.Name, session.Len())
	for !session.Done() && ctx.Err() == nil {
		card, _ := session.Current()
		fmt.Fprintf(a.out, "\n[%d left] %s\n", session.Len(), card.Front)
		if line, ok := a.prompt("Press Enter to show the answer (q to quit) "); !ok || line == "q" {
			break
		}
		fmt.Fprintf(a.out, "%s\n", card.Back)

		rating, ok := a.askRating(card)
		if !ok {
			break
		}
		if _, err := session.Rate(rating); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "\nSession finished: %d reviews, %d cards left.\n", session.Reviewed(), session.Len())
	return nil
}

// askRating prompts until a valid rating is entered. ok is false when the
// user quits or input ends.
func (a *app) askRating(card domain.Card) (domain.Rating, bool) {
	opts := make([]string, len(domain.Ratings))
	for i, r := range domain.Ratings {
		opts[i] = fmt.Sprintf("%d %s (%s)", i+1, r, srs.Label(card, r))
	}
	msg := strings.Join(opts, "  ") + ": "

	for {
		line, ok := a.prompt(msg)
		if !ok || line == "q" {
			return "", false
		}
		r, err := domain.ParseRating(line)
		if err == nil {
			return r, true
		}
		fmt.Fprintln(a.out, err)
	}
}
