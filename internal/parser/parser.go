// Package parser reads card drafts from plain-text batch files.
//
// Two layouts are accepted and may be mixed. A single line holding
// "front || back" is one card; any further "||" stays in the back. A block
// starts with "Q:" for the front, followed by "A:" for the back and an
// optional "T:" with comma-separated tags. Block fields may span several
// lines. A block ends at the next "Q:", at a "---" line, or at a blank line
// once its answer has started.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/aheige321/true-mastery/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	tagsPrefix     = "T:"
	inlineSep      = "||"
	blockSep       = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingTags
)

// ParseFile reads a file from the given path and extracts all drafts.
func ParseFile(path string) ([]domain.Draft, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all drafts. Cards missing
// either side are skipped.
func Parse(r io.Reader) ([]domain.Draft, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var drafts []domain.Draft
	var current domain.Draft
	var block []string
	currentState := seeking

	add := func(d domain.Draft) {
		d.Front = strings.TrimSpace(d.Front)
		d.Back = strings.TrimSpace(d.Back)
		if d.Front != "" && d.Back != "" {
			d.Tags = domain.NormalizeTags(d.Tags)
			drafts = append(drafts, d)
		}
	}

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch currentState {
		case readingQuestion:
			current.Front = content
		case readingAnswer:
			current.Back = content
		case readingTags:
			current.Tags = append(current.Tags, strings.Split(content, ",")...)
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if currentState != seeking {
			add(current)
		}
		current = domain.Draft{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == blockSep:
			finishCard()

		case strings.HasPrefix(line, questionPrefix):
			finishCard()
			currentState = readingQuestion
			block = append(block, field(line, questionPrefix))

		case strings.HasPrefix(line, answerPrefix) && currentState != seeking:
			flushBlock()
			currentState = readingAnswer
			block = append(block, field(line, answerPrefix))

		case strings.HasPrefix(line, tagsPrefix) && currentState != seeking:
			flushBlock()
			currentState = readingTags
			block = append(block, field(line, tagsPrefix))

		case trimmed == "" && (currentState == readingAnswer || currentState == readingTags):
			finishCard()

		case currentState != seeking:
			block = append(block, line)

		case strings.Contains(line, inlineSep):
			front, back, _ := strings.Cut(line, inlineSep)
			add(domain.Draft{Front: front, Back: back})
		}
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return drafts, nil
}

func field(line, prefix string) string {
	return strings.TrimPrefix(line[len(prefix):], " ")
}
