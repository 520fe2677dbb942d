// Package fingerprint identifies cards by their content so repeated imports
// do not create duplicates.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/aheige321/true-mastery/internal/domain"
)

// Normalize joins the card sides after cleaning each one.
// It trims whitespace, lowercases, and normalizes line endings.
func Normalize(front, back string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.TrimSpace(p)
	}

	// A newline keeps "ab"+"c" and "a"+"bc" apart.
	return normalizePart(front) + "\n" + normalizePart(back)
}

// Of returns the SHA-256 of the normalized content as a hex string.
func Of(front, back string) string {
	sum := sha256.Sum256([]byte(Normalize(front, back)))
	return fmt.Sprintf("%x", sum)
}

// Dedupe drops drafts whose content matches a live card in existing or an
// earlier draft. It returns the drafts to create and how many were skipped.
func Dedupe(existing []domain.Card, drafts []domain.Draft) ([]domain.Draft, int) {
	seen := make(map[string]bool, len(existing)+len(drafts))
	for _, c := range existing {
		if !c.Deleted {
			seen[Of(c.Front, c.Back)] = true
		}
	}

	fresh := make([]domain.Draft, 0, len(drafts))
	dupes := 0
	for _, d := range drafts {
		fp := Of(d.Front, d.Back)
		if seen[fp] {
			dupes++
			continue
		}
		seen[fp] = true
		fresh = append(fresh, d)
	}
	return fresh, dupes
}
