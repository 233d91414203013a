package plan

import (
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// chunkText splits text into chunks of roughly size grapheme clusters.
// With GranularityWord a chunk never ends inside a contiguous run of word
// characters; runs longer than the chunk size are emitted whole.
func chunkText(text string, g Granularity, size int) []string {
	if text == "" {
		return []string{""}
	}
	if g == GranularityWord {
		return chunkWords(text, size)
	}
	return chunkGraphemes(text, size)
}

// chunkGraphemes splits at grapheme boundaries every size clusters.
func chunkGraphemes(text string, size int) []string {
	var chunks []string
	var start, count int

	state := -1
	rest := text
	pos := 0
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		pos += len(cluster)
		count++
		if count == size {
			chunks = append(chunks, text[start:pos])
			start = pos
			count = 0
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

// chunkWords packs whole tokens (word runs, punctuation, whitespace) into
// chunks up to size clusters. Punctuation and whitespace tokens are
// preferred chunk terminators: a chunk already holding a word run is
// flushed after trailing non-word tokens rather than before them.
func chunkWords(text string, size int) []string {
	tokens := tokenize(text)

	var chunks []string
	var start, pos, count int

	flush := func() {
		if pos > start {
			chunks = append(chunks, text[start:pos])
			start = pos
		}
		count = 0
	}

	for _, tok := range tokens {
		tokLen := uniseg.GraphemeClusterCount(tok.text)

		// A word run that alone exceeds the chunk size is emitted whole:
		// splitting inside it is not allowed.
		if count > 0 && count+tokLen > size {
			// Prefer to keep adjacent punctuation with the chunk it
			// terminates instead of starting the next chunk with it.
			if !tok.word && tokLen <= size {
				pos += len(tok.text)
				count += tokLen
				flush()
				continue
			}
			flush()
		}

		pos += len(tok.text)
		count += tokLen

		// Token runs are maximal, so a boundary here never splits a word.
		if count >= size {
			flush()
		}
	}
	flush()
	return chunks
}

// token is a maximal run of word or non-word characters.
type token struct {
	text string
	word bool
}

// tokenize splits text into alternating word and non-word runs.
func tokenize(text string) []token {
	var tokens []token
	var start int
	var cur, started bool

	for i, r := range text {
		w := isWordRune(r)
		if !started {
			cur = w
			started = true
			continue
		}
		if w != cur {
			tokens = append(tokens, token{text: text[start:i], word: cur})
			start = i
			cur = w
		}
	}
	if started {
		tokens = append(tokens, token{text: text[start:], word: cur})
	}
	return tokens
}

// isWordRune reports whether r belongs to a word run.
func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
