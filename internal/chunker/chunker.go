// Package chunker splits file content into bounded, semantically coherent
// chunks with 1-indexed inclusive line ranges. Markdown splits at ATX
// heading boundaries, recognized source languages at top-level declaration
// boundaries, everything else at fixed-size line windows. Splitting is pure
// and deterministic; the output chunks partition the input with no gaps and
// no overlaps.
package chunker

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Chunk is one contiguous slice of a file. StartLine and EndLine are
// 1-indexed and inclusive.
type Chunk struct {
	StartLine int
	EndLine   int
	Content   string
}

const (
	// DefaultMinLines is the merge threshold: chunks smaller than this are
	// merged forward into their successor.
	DefaultMinLines = 200
	// DefaultMaxLines is the split threshold and the small-file cutoff:
	// files at or below this size become a single chunk, and chunks above
	// it are sub-split into windows of this size.
	DefaultMaxLines = 400
)

// boundaryRule detects lines that plausibly open a top-level declaration.
// When indented is true the pattern may match past leading whitespace and
// only matches at the outermost indentation level seen are treated as
// boundaries; otherwise the pattern is anchored to column zero.
type boundaryRule struct {
	pattern  *regexp.Regexp
	indented bool
}

// Per-language boundary rules, keyed by lowercase file extension. Adding a
// language is a data addition, not a new code path.
var boundaryRules = map[string]boundaryRule{
	".py": {pattern: regexp.MustCompile(`^(?:class |def |async def )`)},
	".js": {pattern: regexp.MustCompile(`^(?:function |class |const \w+ = (?:async )?\(|export (?:default )?(?:function|class))`)},
	".ts": {pattern: regexp.MustCompile(`^(?:function |class |const \w+ = (?:async )?\(|export (?:default )?(?:function|class)|interface |type )`)},
	".tsx": {pattern: regexp.MustCompile(`^(?:function |class |const \w+ = (?:async )?\(|export (?:default )?(?:function|class)|interface |type )`)},
	".go": {pattern: regexp.MustCompile(`^(?:func |type \w+ struct)`)},
	".rs": {pattern: regexp.MustCompile(`^(?:fn |pub fn |impl |struct |enum |trait )`)},
	".java": {
		pattern:  regexp.MustCompile(`^(\s*)(?:public|private|protected)?\s*(?:static\s+)?(?:class |interface )`),
		indented: true,
	},
}

// atxHeading matches markdown ATX headings at the start of a line.
var atxHeading = regexp.MustCompile(`^#{1,6}\s`)

// ChunkFile splits content using the rule set matching the path's
// extension: .md/.mdx go through heading-based splitting, known languages
// through declaration boundaries, and everything else through fixed
// windows. Empty content yields zero chunks.
func ChunkFile(path, content string) []Chunk {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".md" || ext == ".mdx" {
		return ChunkMarkdown(content)
	}
	return ChunkCode(content, ext, DefaultMinLines, DefaultMaxLines)
}

// ChunkMarkdown splits at top-level ATX heading boundaries. A heading line
// starts a new chunk; content before the first heading forms its own
// leading chunk; whitespace-only chunks are dropped.
func ChunkMarkdown(content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var chunks []Chunk
	start := 0 // 0-indexed

	for i, line := range lines {
		if i > 0 && atxHeading.MatchString(line) {
			text := strings.Join(lines[start:i], "\n")
			if strings.TrimSpace(text) != "" {
				chunks = append(chunks, Chunk{StartLine: start + 1, EndLine: i, Content: text})
			}
			start = i
		}
	}

	text := strings.Join(lines[start:], "\n")
	if strings.TrimSpace(text) != "" {
		chunks = append(chunks, Chunk{StartLine: start + 1, EndLine: len(lines), Content: text})
	}

	return chunks
}

// ChunkCode splits source code at declaration boundaries for recognized
// extensions, merging chunks below minLines and sub-splitting chunks above
// maxLines. Files at or below maxLines are returned whole; unknown
// extensions and boundary-free files fall back to fixed windows.
func ChunkCode(content, ext string, minLines, maxLines int) []Chunk {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	total := len(lines)

	if total <= maxLines {
		return []Chunk{{StartLine: 1, EndLine: total, Content: content}}
	}

	boundaries := findBoundaries(lines, ext)
	if len(boundaries) == 0 {
		return windowChunks(lines, maxLines)
	}

	raw := splitAtBoundaries(boundaries, total)
	spans := mergeAndSplit(raw, minLines, maxLines)

	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		chunks = append(chunks, Chunk{
			StartLine: s.start + 1,
			EndLine:   s.end,
			Content:   strings.Join(lines[s.start:s.end], "\n"),
		})
	}
	return chunks
}

// span is a 0-indexed half-open line interval [start, end).
type span struct {
	start, end int
}

// findBoundaries returns the 0-indexed line numbers that open a top-level
// declaration. For indent-tolerant rules, nested declarations are ignored:
// only matches at the outermost indentation seen count as boundaries.
func findBoundaries(lines []string, ext string) []int {
	rule, ok := boundaryRules[ext]
	if !ok {
		return nil
	}

	if !rule.indented {
		var out []int
		for i, line := range lines {
			if rule.pattern.MatchString(line) {
				out = append(out, i)
			}
		}
		return out
	}

	type match struct {
		line   int
		indent int
	}
	var matches []match
	minIndent := -1
	for i, line := range lines {
		m := rule.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := len(m[1])
		matches = append(matches, match{line: i, indent: indent})
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}

	var out []int
	for _, m := range matches {
		if m.indent == minIndent {
			out = append(out, m.line)
		}
	}
	return out
}

// windowChunks splits lines into fixed windows of maxLines; the final
// window holds the remainder.
func windowChunks(lines []string, maxLines int) []Chunk {
	total := len(lines)
	var chunks []Chunk
	for i := 0; i < total; i += maxLines {
		end := i + maxLines
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			StartLine: i + 1,
			EndLine:   end,
			Content:   strings.Join(lines[i:end], "\n"),
		})
	}
	return chunks
}

// splitAtBoundaries turns sorted boundary line numbers into covering spans,
// including a leading span when the first boundary is not at line zero.
func splitAtBoundaries(boundaries []int, total int) []span {
	var spans []span
	if boundaries[0] > 0 {
		spans = append(spans, span{0, boundaries[0]})
	}
	for i := range boundaries {
		end := total
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		spans = append(spans, span{boundaries[i], end})
	}
	return spans
}

// mergeAndSplit merges spans smaller than minLines into their successor,
// then sub-splits any span larger than maxLines into maxLines windows.
func mergeAndSplit(spans []span, minLines, maxLines int) []span {
	var merged []span
	for i := 0; i < len(spans); i++ {
		s := spans[i]
		for s.end-s.start < minLines && i+1 < len(spans) {
			i++
			s.end = spans[i].end
		}
		merged = append(merged, s)
	}

	var out []span
	for _, s := range merged {
		if s.end-s.start <= maxLines {
			out = append(out, s)
			continue
		}
		for sub := s.start; sub < s.end; sub += maxLines {
			end := sub + maxLines
			if end > s.end {
				end = s.end
			}
			out = append(out, span{sub, end})
		}
	}
	return out
}
