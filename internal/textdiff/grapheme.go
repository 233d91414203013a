package textdiff

import "github.com/rivo/uniseg"

// segment is one grapheme cluster with its byte offset in the source string.
type segment struct {
	text   string
	offset int64
}

// segments splits s into grapheme clusters.
// Diffing over clusters guarantees multi-code-point glyphs (emoji with
// modifiers, combining marks) are treated as atomic units and edit ranges
// never land mid-glyph.
func segments(s string) []segment {
	if s == "" {
		return nil
	}

	segs := make([]segment, 0, len(s))
	var offset int64
	state := -1
	rest := s
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		segs = append(segs, segment{text: cluster, offset: offset})
		offset += int64(len(cluster))
	}
	return segs
}

// commonAffixes returns the number of equal segments at the start and end
// of a and b. Trimming affixes before the Myers pass keeps the edit graph
// proportional to the changed region.
func commonAffixes(a, b []segment) (prefix, suffix int) {
	n := len(a)
	m := len(b)

	for prefix < n && prefix < m && a[prefix].text == b[prefix].text {
		prefix++
	}
	for suffix < n-prefix && suffix < m-prefix &&
		a[n-1-suffix].text == b[m-1-suffix].text {
		suffix++
	}
	return prefix, suffix
}
