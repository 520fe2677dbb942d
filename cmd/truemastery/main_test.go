package main

import (
	"bytes"
	"context"
	"maps"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/sync"
	"github.com/aheige321/true-mastery/internal/web"
)

type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return &cli{t: t, db: filepath.Join(dir, "test.db")}
}

// run executes one command against the test database and returns its
// stdout, stderr and exit code.
func (c *cli) run(stdin string, args ...string) (string, string, int) {
	c.t.Helper()
	var out, errb bytes.Buffer
	argv := append([]string{"--db", c.db, "--log-level", "error"}, args...)
	code := run(context.Background(), argv, strings.NewReader(stdin), &out, &errb)
	return out.String(), errb.String(), code
}

func (c *cli) ok(args ...string) string {
	c.t.Helper()
	out, errOut, code := c.run("", args...)
	require.Equal(c.t, 0, code, "%v: %s", args, errOut)
	return out
}

func TestRun_Usage(t *testing.T) {
	c := newCLI(t)

	_, errOut, code := c.run("")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Commands:")

	_, errOut, code = c.run("", "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "frobnicate"`)

	_, _, code = c.run("", "add-deck")
	assert.Equal(t, 2, code)

	_, errOut, code = c.run("", "cards", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "deck not found")
}

func TestRun_DeckAndCardWorkflow(t *testing.T) {
	c := newCLI(t)

	assert.Contains(t, c.ok("add-deck", "Spanish"), "Created deck Spanish")

	batch := filepath.Join(t.TempDir(), "batch.txt")
	require.NoError(t, os.WriteFile(batch, []byte("hola || hello\nadiós || goodbye\nHola || Hello\n"), 0o644))
	assert.Contains(t, c.ok("import", "--deck", "spanish", batch), "Imported 2 cards into Spanish, skipped 1 duplicates.")
	assert.Contains(t, c.ok("import", "--deck", "Spanish", batch), "Imported 0 cards into Spanish, skipped 2 duplicates.")

	assert.Contains(t, c.ok("add-card", "--deck", "Spanish", "--front", "gracias", "--back", "thanks", "--tags", "polite,basics"), "Added card")

	decks := c.ok("decks")
	assert.Contains(t, decks, "Spanish")
	assert.Contains(t, decks, "3")

	cards := c.ok("cards", "Spanish")
	assert.Contains(t, cards, "gracias")
	assert.Equal(t, 3, strings.Count(cards, "new"))
}

func TestRun_Study(t *testing.T) {
	c := newCLI(t)
	c.ok("add-deck", "Go")
	c.ok("add-card", "--deck", "Go", "--front", "chan", "--back", "pipe")
	c.ok("add-card", "--deck", "Go", "--front", "defer", "--back", "later")

	out, errOut, code := c.run("\nbogus\n3\n\n4\n", "study", "Go")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "2 cards due")
	assert.Contains(t, out, "3 good (10m)")
	assert.Contains(t, out, "4 easy (4d)")
	assert.Contains(t, out, "invalid rating")
	assert.Contains(t, out, "Session finished: 2 reviews, 0 cards left.")

	stats := c.ok("stats")
	assert.Contains(t, stats, "Decks: 1  Cards: 2")
	assert.Contains(t, stats, "Activity:")

	assert.Contains(t, c.ok("limit"), "(2 new today)")

	// Both new cards were rated; only the learning step is left and it is
	// not due yet.
	assert.Contains(t, c.ok("study", "Go"), "Nothing is due")
}

func TestRun_StudyQuit(t *testing.T) {
	c := newCLI(t)
	c.ok("add-deck", "Go")
	c.ok("add-card", "--deck", "Go", "--front", "chan", "--back", "pipe")

	out, _, code := c.run("q\n", "study", "Go")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Session finished: 0 reviews, 1 cards left.")
}

func TestRun_Limit(t *testing.T) {
	c := newCLI(t)

	assert.Contains(t, c.ok("limit"), "Daily new-card limit: 20")
	c.ok("limit", "5")
	assert.Contains(t, c.ok("limit"), "Daily new-card limit: 5")
	c.ok("limit", "-1")
	assert.Contains(t, c.ok("limit"), "unlimited")

	_, _, code := c.run("", "limit", "-2")
	assert.Equal(t, 1, code)
	_, _, code = c.run("", "limit", "lots")
	assert.Equal(t, 2, code)
}

func TestRun_TrashAndBackup(t *testing.T) {
	c := newCLI(t)
	c.ok("add-deck", "Go")
	c.ok("add-card", "--deck", "Go", "--front", "chan", "--back", "pipe")

	backup := filepath.Join(t.TempDir(), "backup.json")
	assert.Contains(t, c.ok("export", "--out", backup), "Backup written")

	c.ok("delete-deck", "Go")
	assert.Contains(t, c.ok("trash"), "chan")
	assert.Contains(t, c.ok("empty-trash"), "Removed 1 decks and 1 cards.")
	assert.Contains(t, c.ok("trash"), "Trash is empty.")

	assert.Contains(t, c.ok("restore", backup), "Restored 1 decks and 1 cards.")
	assert.Contains(t, c.ok("export"), `"front": "chan"`)
}

func TestRun_BadFlagGoesToStderr(t *testing.T) {
	c := newCLI(t)
	c.ok("add-deck", "Go")

	out, errOut, code := c.run("", "add-card", "--deck", "Go", "--bogus")
	assert.Equal(t, 2, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "unknown flag: --bogus")
	assert.Contains(t, errOut, "Usage of add-card")
}

func TestRun_Reset(t *testing.T) {
	c := newCLI(t)
	c.ok("add-deck", "Go")
	c.ok("add-card", "--deck", "Go", "--front", "chan", "--back", "pipe")

	_, errOut, code := c.run("", "reset")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--yes")
	assert.Contains(t, c.ok("decks"), "Go")

	assert.Contains(t, c.ok("reset", "--yes"), "Local data deleted.")
	assert.NotContains(t, c.ok("decks"), "Go")
	assert.Contains(t, c.ok("trash"), "Trash is empty.")
}

type memDocument struct {
	files remote.Files
}

func (m *memDocument) ReadFiles(context.Context) (remote.Files, error) {
	return maps.Clone(m.files), nil
}

func (m *memDocument) WriteFiles(_ context.Context, files remote.Files, removeNames []string) error {
	if m.files == nil {
		m.files = remote.Files{}
	}
	for name, content := range files {
		m.files[name] = content
	}
	for _, name := range removeNames {
		delete(m.files, name)
	}
	return nil
}

func TestRun_SyncOverHTTP(t *testing.T) {
	doc := &memDocument{}
	ts := httptest.NewServer(web.NewServer(sync.NewEngine(doc, "", nil), nil))
	defer ts.Close()
	t.Setenv("TRUEMASTERY_SYNC__REMOTE", "http")
	t.Setenv("TRUEMASTERY_SYNC__HTTP__ENDPOINT", ts.URL+web.SyncPath)

	laptop := newCLI(t)
	laptop.ok("add-deck", "Go")
	laptop.ok("add-card", "--deck", "Go", "--front", "chan", "--back", "pipe")
	assert.Contains(t, laptop.ok("push"), "remote now holds 1 decks, 1 cards")

	phone := newCLI(t)
	phone.ok("add-deck", "Rust")
	assert.Contains(t, phone.ok("sync"), "SYNC complete: 2 decks, 1 cards.")
	decks := phone.ok("decks")
	assert.Contains(t, decks, "Go")
	assert.Contains(t, decks, "Rust")

	assert.Contains(t, laptop.ok("pull"), "OVERWRITE_LOCAL complete: 2 decks, 1 cards.")
	assert.Contains(t, laptop.ok("decks"), "Rust")
}

func TestRun_SyncNeedsRemoteLocation(t *testing.T) {
	c := newCLI(t)
	_, errOut, code := c.run("", "sync")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "git.url")
}

func TestRun_HardDelete(t *testing.T) {
	c := newCLI(t)
	c.ok("add-deck", "Go")
	c.ok("add-card", "--deck", "Go", "--front", "chan", "--back", "pipe")

	assert.Contains(t, c.ok("delete-deck", "--hard", "Go"), "removed permanently")
	assert.Contains(t, c.ok("trash"), "Trash is empty.")
	assert.NotContains(t, c.ok("decks"), "Go")
}
