// Package ingest turns raw document bytes into the unit sequence and formula
// occurrences the engine scores. Heavy formats (PDF, OCR output) are expected
// to arrive through external providers implementing the same interface;
// PlainText is the reference implementation for ordinary text.
package ingest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// FormulaOccurrence locates one recognized formula in the source text.
// Offset is the byte offset of the formula text itself, past any delimiter.
type FormulaOccurrence struct {
	Formula string `json:"formula"`
	Offset  int    `json:"offset"`
}

// Document is one ingested source ready for scoring.
type Document struct {
	Name     string
	Source   string
	Units    []string
	Formulas []FormulaOccurrence
}

// Provider extracts a Document from raw bytes.
type Provider interface {
	Ingest(ctx context.Context, name string, r io.Reader) (*Document, error)
}

var (
	dollarRe = regexp.MustCompile(`\$([^$\n]+)\$`)
	parenRe  = regexp.MustCompile(`\\\((.+?)\\\)`)
)

// PlainText ingests plain text: sentence-boundary unit splitting plus
// recognition of $...$ and \(...\) formula spans. A document with zero units
// and zero formulas is valid, just degenerate.
type PlainText struct{}

func (PlainText) Ingest(ctx context.Context, name string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	source := string(data)

	formulas, spans := findFormulas(source)
	return &Document{
		Name:     name,
		Source:   source,
		Units:    splitSentences(source, spans),
		Formulas: formulas,
	}, nil
}

// findFormulas collects formula occurrences in document order. The returned
// spans cover the full delimited match so the sentence splitter can treat
// each span as opaque.
func findFormulas(source string) ([]FormulaOccurrence, [][2]int) {
	var occurrences []FormulaOccurrence
	var spans [][2]int

	for _, re := range []*regexp.Regexp{dollarRe, parenRe} {
		for _, m := range re.FindAllStringSubmatchIndex(source, -1) {
			// m[0]:m[1] is the full match, m[2]:m[3] the formula text.
			occurrences = append(occurrences, FormulaOccurrence{
				Formula: source[m[2]:m[3]],
				Offset:  m[2],
			})
			spans = append(spans, [2]int{m[0], m[1]})
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].Offset < occurrences[j].Offset
	})
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i][0] < spans[j][0]
	})
	return occurrences, spans
}

// splitSentences segments source into trimmed sentence units. A terminator
// (. ! ?) followed by whitespace ends a unit, as does a blank line. Bytes
// inside a formula span never end a unit, so punctuation within math does
// not fragment the surrounding sentence.
func splitSentences(source string, formulaSpans [][2]int) []string {
	var units []string
	var b strings.Builder

	flush := func() {
		fields := strings.Fields(b.String())
		b.Reset()
		if len(fields) > 0 {
			units = append(units, strings.Join(fields, " "))
		}
	}

	inSpan := func(i int) bool {
		for _, s := range formulaSpans {
			if i >= s[0] && i < s[1] {
				return true
			}
			if s[0] > i {
				break
			}
		}
		return false
	}

	for i := 0; i < len(source); i++ {
		c := source[i]
		if inSpan(i) {
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\n':
			if i+1 < len(source) && source[i+1] == '\n' {
				flush()
				continue
			}
			b.WriteByte(' ')
		case '.', '!', '?':
			b.WriteByte(c)
			if i+1 >= len(source) || source[i+1] == ' ' || source[i+1] == '\n' || source[i+1] == '\t' {
				flush()
			}
		default:
			b.WriteByte(c)
		}
	}
	flush()

	return units
}
