// Package remote defines the shared remote document the replicas reconcile
// against, and the file layout stored in it.
package remote

import (
	"context"
	"errors"
)

var (
	// ErrAuth is returned when remote credentials are missing or rejected.
	ErrAuth = errors.New("remote authentication failed")

	// ErrUnavailable is returned when the remote cannot be reached or
	// answers with a failure.
	ErrUnavailable = errors.New("remote unavailable")
)

// File names inside the remote document.
const (
	FileCards  = "cards.json"
	FileDecks  = "decks.json"
	FileMeta   = "meta.json"
	FileLegacy = "user-data.json"
)

// DefaultUserID is the tenant key used when none is configured.
const DefaultUserID = "user_shared_account"

// Files maps a file name to its raw content.
type Files map[string][]byte

// Document is a multi-file key-value document. Every write replaces whole
// files; there are no partial patches.
type Document interface {
	// ReadFiles returns every file in the document. A file that does not
	// exist is absent from the map.
	ReadFiles(ctx context.Context) (Files, error)

	// WriteFiles stores files and deletes the named files in remove.
	WriteFiles(ctx context.Context, files Files, remove []string) error
}
