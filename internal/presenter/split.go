// Package presenter implements the streaming presenter (C7): rate-limited
// progressive message edits, overflow rollover, code-aware splitting, and
// reaction lifecycle management driven by the agent bridge's event stream.
package presenter

import "strings"

const fence = "```"

// SplitMessage implements the code-aware split algorithm: chunks text to
// fit limit, preferring to split on the last newline within the window, and
// closing/reopening fenced code blocks that straddle a split so each chunk
// renders as valid markdown on its own.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	open := false
	lang := ""

	for len(text) > 0 {
		reservation := 0
		if open {
			reservation = len(fence) + len(lang) + 1 // "```lang\n" prefix reopening the block
		}
		// a non-final chunk may also gain a "\n```" suffix closing the block
		budget := limit - reservation - len("\n"+fence)
		if budget <= 0 {
			budget = limit
		}
		if budget > len(text) {
			budget = len(text)
		}

		if len(text)+reservation <= limit {
			head := text
			text = ""
			chunks = append(chunks, renderChunk(head, open, lang, false))
			break
		}

		boundary := budget
		for boundary > 0 && !isRuneBoundary(text, boundary) {
			boundary--
		}
		splitAt := boundary
		if idx := strings.LastIndexByte(text[:boundary], '\n'); idx > 0 {
			splitAt = idx
		}
		if splitAt == 0 {
			splitAt = boundary
		}

		head := text[:splitAt]
		tail := strings.TrimPrefix(text[splitAt:], "\n")

		stillOpen, nextLang := fenceState(head, open, lang)
		chunks = append(chunks, renderChunk(head, open, lang, stillOpen))

		open, lang = stillOpen, nextLang
		text = tail
	}

	return chunks
}

// renderChunk prepends a reopening fence if the block was already open
// entering this chunk, and appends a closing fence if it's still open at
// the end of this chunk.
func renderChunk(head string, openBefore bool, langBefore string, openAfter bool) string {
	chunk := head
	if openBefore {
		chunk = fence + langBefore + "\n" + chunk
	}
	if openAfter {
		chunk += "\n" + fence
	}
	return chunk
}

// fenceState walks s counting ``` markers, starting from (startOpen,
// startLang), and returns the resulting open state and the language tag of
// the most recent opening fence.
func fenceState(s string, startOpen bool, startLang string) (open bool, lang string) {
	open, lang = startOpen, startLang
	idx := 0
	for {
		pos := strings.Index(s[idx:], fence)
		if pos < 0 {
			break
		}
		pos += idx
		if !open {
			rest := s[pos+len(fence):]
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}
			lang = strings.TrimSpace(rest[:end])
			open = true
		} else {
			open = false
		}
		idx = pos + len(fence)
	}
	return open, lang
}

func isRuneBoundary(s string, i int) bool {
	if i <= 0 || i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// NormalizeEmptyLines collapses runs of blank lines to at most one blank
// line. Idempotent.
func NormalizeEmptyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
		} else {
			blankRun = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
