package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/aheige321/true-mastery/internal/config"
)

// command is one sub-command. run receives the arguments after its name.
type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

// commands is filled in init because the handlers look up their own usage
// line in it.
var commands map[string]command

func init() {
	commands = map[string]command{
		"decks":        {"list decks", cmdDecks},
		"add-deck":     {"create a deck: add-deck NAME", cmdAddDeck},
		"cards":        {"list the cards of a deck: cards DECK", cmdCards},
		"add-card":     {"add a card: add-card --deck DECK --front F --back B [--tags a,b]", cmdAddCard},
		"import":       {"import a batch file into a deck: import --deck DECK FILE", cmdImport},
		"delete-card":  {"move a card to the trash: delete-card [--hard] ID", cmdDeleteCard},
		"delete-deck":  {"move a deck and its cards to the trash: delete-deck [--hard] DECK", cmdDeleteDeck},
		"restore-card": {"take a card out of the trash: restore-card ID", cmdRestoreCard},
		"restore-deck": {"take a deck out of the trash: restore-deck ID", cmdRestoreDeck},
		"trash":        {"list the trash", cmdTrash},
		"empty-trash":  {"permanently remove everything in the trash", cmdEmptyTrash},
		"reset":        {"delete all local data: reset --yes", cmdReset},
		"limit":        {"show or set the daily new-card limit: limit [N], -1 for unlimited", cmdLimit},
		"study":        {"study the due cards of a deck: study DECK", cmdStudy},
		"stats":        {"show the status breakdown and activity", cmdStats},
		"export":       {"write a backup: export [--out FILE]", cmdExport},
		"restore":      {"replace everything with a backup: restore FILE", cmdRestore},
		"sync":         {"merge with the remote replica", cmdSync},
		"push":         {"overwrite the remote replica with this one", cmdPush},
		"pull":         {"overwrite this replica with the remote one", cmdPull},
		"serve":        {"serve the reconcile endpoint", cmdServe},
	}
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("truemastery", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	config.RegisterFlags(flags)
	flags.Usage = func() { usage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		usage(stderr, flags)
		return 2
	}
	name := flags.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr, flags)
		return 2
	}

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path, flags)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	a, err := newApp(cfg, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := cmd.run(ctx, a, flags.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "%v\n", err)
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: truemastery [global flags] <command> [args]")
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-13s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nGlobal flags:")
	flags.PrintDefaults()
}
