package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/fingerprint"
	"github.com/aheige321/true-mastery/internal/parser"
	"github.com/aheige321/true-mastery/internal/stats"
)

func (a *app) newFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// args checks the positional argument count.
func args(name string, got []string, want int) error {
	if len(got) != want {
		return fmt.Errorf("%w: %s", errUsage, commands[name].summary)
	}
	return nil
}

func cmdDecks(_ context.Context, a *app, argv []string) error {
	if err := args("decks", argv, 0); err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCARDS")
	for _, d := range a.store.LiveDecks() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", d.ID, d.Name, d.Count)
	}
	return w.Flush()
}

func cmdAddDeck(_ context.Context, a *app, argv []string) error {
	if err := args("add-deck", argv, 1); err != nil {
		return err
	}
	name := strings.TrimSpace(argv[0])
	if name == "" {
		return fmt.Errorf("%w: deck name must not be empty", errUsage)
	}
	d, err := a.store.AddDeck(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created deck %s (%s)\n", d.Name, d.ID)
	return nil
}

func cmdCards(_ context.Context, a *app, argv []string) error {
	if err := args("cards", argv, 1); err != nil {
		return err
	}
	deck, err := a.resolveDeck(argv[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDUE\tFRONT")
	for _, c := range a.store.CardsForDeck(deck.ID) {
		due := "-"
		if c.NextReview != nil {
			due = c.NextReview.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.EffectiveStatus(), due, firstLine(c.Front))
	}
	return w.Flush()
}

func cmdAddCard(_ context.Context, a *app, argv []string) error {
	fs := a.newFlags("add-card")
	deckRef := fs.String("deck", "", "deck id or name")
	front := fs.String("front", "", "front side")
	back := fs.String("back", "", "back side")
	tags := fs.StringSlice("tags", nil, "comma-separated tags")
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *deckRef == "" || strings.TrimSpace(*front) == "" || strings.TrimSpace(*back) == "" {
		return fmt.Errorf("%w: %s", errUsage, commands["add-card"].summary)
	}

	deck, err := a.resolveDeck(*deckRef)
	if err != nil {
		return err
	}
	c, err := a.store.AddCard(deck.ID, strings.TrimSpace(*front), strings.TrimSpace(*back), *tags)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added card %s to %s\n", c.ID, deck.Name)
	return nil
}

func cmdImport(_ context.Context, a *app, argv []string) error {
	fs := a.newFlags("import")
	deckRef := fs.String("deck", "", "deck id or name")
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *deckRef == "" || fs.NArg() != 1 {
		return fmt.Errorf("%w: %s", errUsage, commands["import"].summary)
	}

	deck, err := a.resolveDeck(*deckRef)
	if err != nil {
		return err
	}
	drafts, err := parser.ParseFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", fs.Arg(0), err)
	}
	fresh, dupes := fingerprint.Dedupe(a.store.CardsForDeck(deck.ID), drafts)
	if len(fresh) > 0 {
		if _, err := a.store.AddCards(deck.ID, fresh); err != nil {
			return err
		}
	}
	a.log.Info("Imported batch", "deck", deck.ID, "file", fs.Arg(0), "added", len(fresh), "duplicates", dupes)
	fmt.Fprintf(a.out, "Imported %d cards into %s, skipped %d duplicates.\n", len(fresh), deck.Name, dupes)
	return nil
}

func cmdDeleteCard(_ context.Context, a *app, argv []string) error {
	fs := a.newFlags("delete-card")
	hard := fs.Bool("hard", false, "remove permanently instead of moving to the trash")
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := args("delete-card", fs.Args(), 1); err != nil {
		return err
	}
	id := domain.ID(fs.Arg(0))
	if *hard {
		if err := a.store.HardDeleteCard(id); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Card removed permanently.")
		return nil
	}
	if err := a.store.DeleteCard(id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Card moved to trash.")
	return nil
}

func cmdDeleteDeck(_ context.Context, a *app, argv []string) error {
	fs := a.newFlags("delete-deck")
	hard := fs.Bool("hard", false, "remove the deck and its cards permanently")
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := args("delete-deck", fs.Args(), 1); err != nil {
		return err
	}
	deck, err := a.resolveDeck(fs.Arg(0))
	if err != nil {
		return err
	}
	if *hard {
		if err := a.store.HardDeleteDeck(deck.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deck %s and its cards removed permanently.\n", deck.Name)
		return nil
	}
	if err := a.store.DeleteDeck(deck.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deck %s and its cards moved to trash.\n", deck.Name)
	return nil
}

func cmdRestoreCard(_ context.Context, a *app, argv []string) error {
	if err := args("restore-card", argv, 1); err != nil {
		return err
	}
	if err := a.store.RestoreCard(domain.ID(argv[0])); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Card restored.")
	return nil
}

func cmdRestoreDeck(_ context.Context, a *app, argv []string) error {
	if err := args("restore-deck", argv, 1); err != nil {
		return err
	}
	if err := a.store.RestoreDeck(domain.ID(argv[0])); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deck restored.")
	return nil
}

func cmdTrash(_ context.Context, a *app, argv []string) error {
	if err := args("trash", argv, 0); err != nil {
		return err
	}
	decks, cards := a.store.Trash()
	if len(decks) == 0 && len(cards) == 0 {
		fmt.Fprintln(a.out, "Trash is empty.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tNAME")
	for _, d := range decks {
		fmt.Fprintf(w, "deck\t%s\t%s\n", d.ID, d.Name)
	}
	for _, c := range cards {
		fmt.Fprintf(w, "card\t%s\t%s\n", c.ID, firstLine(c.Front))
	}
	return w.Flush()
}

func cmdEmptyTrash(_ context.Context, a *app, argv []string) error {
	if err := args("empty-trash", argv, 0); err != nil {
		return err
	}
	decks, cards, err := a.store.EmptyTrash()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %d decks and %d cards.\n", decks, cards)
	return nil
}

func cmdReset(_ context.Context, a *app, argv []string) error {
	fs := a.newFlags("reset")
	yes := fs.Bool("yes", false, "confirm")
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := args("reset", fs.Args(), 0); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("%w: reset deletes every deck and card, pass --yes to confirm", errUsage)
	}
	if err := a.store.Reset(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Local data deleted.")
	return nil
}

func cmdLimit(_ context.Context, a *app, argv []string) error {
	switch len(argv) {
	case 0:
		limit := a.store.Settings().DailyNewLimit(a.cfg.Study.DailyNewLimit)
		used := a.quota().Used()
		if limit == domain.UnlimitedNewCards {
			fmt.Fprintf(a.out, "Daily new-card limit: unlimited (%d new today)\n", used)
			return nil
		}
		fmt.Fprintf(a.out, "Daily new-card limit: %d (%d new today)\n", limit, used)
		return nil
	case 1:
		n, err := strconv.Atoi(argv[0])
		if err != nil {
			return fmt.Errorf("%w: limit must be an integer", errUsage)
		}
		if err := a.store.SetDailyNewLimit(n); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Daily new-card limit updated.")
		return nil
	default:
		return fmt.Errorf("%w: %s", errUsage, commands["limit"].summary)
	}
}

func cmdStats(_ context.Context, a *app, argv []string) error {
	if err := args("stats", argv, 0); err != nil {
		return err
	}
	sum := stats.Summarize(a.store.Snapshot())

	fmt.Fprintf(a.out, "Decks: %d  Cards: %d\n", sum.Decks, sum.Cards)
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, row := range []struct {
		label string
		n     int
	}{
		{"new", sum.New},
		{"learning", sum.Learning},
		{"review", sum.Review},
		{"mastered", sum.Mastered},
		{"graduated", sum.Graduated},
	} {
		fmt.Fprintf(w, "%s\t%d\t%.0f%%\t\n", row.label, row.n, sum.Share(row.n))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(sum.Activity) > 0 {
		fmt.Fprintln(a.out, "\nActivity:")
		recent := sum.Activity
		if len(recent) > 14 {
			recent = recent[len(recent)-14:]
		}
		for _, d := range recent {
			fmt.Fprintf(a.out, "  %s %4d %s\n", d.Day, d.Count, strings.Repeat("#", min(d.Count, 50)))
		}
	}
	return nil
}

func cmdExport(_ context.Context, a *app, argv []string) error {
	fs := a.newFlags("export")
	out := fs.StringP("out", "o", "", "output file (default stdout)")
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *out == "" {
		return a.store.Export(a.out)
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := a.store.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Backup written to %s\n", *out)
	return nil
}

func cmdRestore(_ context.Context, a *app, argv []string) error {
	if err := args("restore", argv, 1); err != nil {
		return err
	}
	f, err := os.Open(argv[0])
	if err != nil {
		return err
	}
	defer f.Close()

	if err := a.store.Import(f); err != nil {
		return fmt.Errorf("restore from %s: %w", argv[0], err)
	}
	fmt.Fprintf(a.out, "Restored %d decks and %d cards.\n", len(a.store.LiveDecks()), len(a.store.LiveCards()))
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
