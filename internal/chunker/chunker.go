// Package chunker splits extracted page text into pieces small enough for a
// single model call. Splitting prefers paragraph boundaries, then sentence
// boundaries, and only slices mid-text when a single sentence exceeds the
// budget.
package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most maxSize bytes. Text that already
// fits is returned whole as a single chunk, so empty input yields one empty
// chunk rather than none. maxSize must be positive.
func Split(text string, maxSize int) ([]string, error) {
	if maxSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if len(text) <= maxSize {
		return []string{text}, nil
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range splitParagraphs(text) {
		if len(para) > maxSize {
			flush()
			chunks = append(chunks, splitLongParagraph(para, maxSize)...)
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(para) > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks, nil
}

// splitParagraphs splits on blank lines and drops empty segments.
func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitLongParagraph packs sentences greedily, slicing any single sentence
// that alone exceeds the budget.
func splitLongParagraph(para string, maxSize int) []string {
	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > maxSize {
			flush()
			chunks = append(chunks, slice(sentence, maxSize)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitSentences does basic sentence splitting: a terminator followed by
// whitespace ends a sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if isTerminator(r) && i+1 < len(text) && isSpaceByte(text[i+1]) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// slice cuts s into maxSize-byte pieces without breaking UTF-8 sequences.
func slice(s string, maxSize int) []string {
	var parts []string
	for len(s) > maxSize {
		cut := maxSize
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxSize
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
