package utils

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText splits text into chunks of at most chunkSize runes, preferring to
// break on paragraph, line and word boundaries in that order. Consecutive
// chunks share up to overlap runes of trailing pieces.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	var out []string
	for _, c := range splitRecursive(text, defaultSeparators, chunkSize, overlap) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func splitRecursive(text string, separators []string, chunkSize, overlap int) []string {
	sep := separators[len(separators)-1]
	rest := []string(nil)
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks, small []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= chunkSize {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			chunks = append(chunks, merge(small, sep, chunkSize, overlap)...)
			small = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, p)
			continue
		}
		chunks = append(chunks, splitRecursive(p, rest, chunkSize, overlap)...)
	}
	if len(small) > 0 {
		chunks = append(chunks, merge(small, sep, chunkSize, overlap)...)
	}
	return chunks
}

// merge packs pieces into chunks joined by sep, carrying trailing pieces
// worth at most overlap runes into the next chunk.
func merge(pieces []string, sep string, chunkSize, overlap int) []string {
	sepLen := utf8.RuneCountInString(sep)
	var chunks []string
	var current []string
	total := 0

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		extra := n
		if len(current) > 0 {
			extra += sepLen
		}
		if total+extra > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, sep))
			for total > overlap || (total+n+sepLen > chunkSize && total > 0) {
				dropped := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					dropped += sepLen
				}
				total -= dropped
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, sep))
	}
	return chunks
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
