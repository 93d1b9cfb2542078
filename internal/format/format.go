// Package format holds the small per-surface text-rendering helpers shared
// between the Discord and Telegram adapters: Markdown/HTML conversion,
// titled status blocks, and terminal control-character flattening for the
// inline shell command.
package format

import (
	"fmt"
	"strings"
)

// ToDiscordMarkdown passes text through unchanged: Discord already renders
// the GitHub-flavored Markdown the presenter produces.
func ToDiscordMarkdown(text string) string {
	return text
}

// ToTelegramHTML converts the presenter's Markdown output to the HTML subset
// Telegram's bot API accepts (bold, italic, inline code). Fenced code
// blocks get no conversion of their own: their backticks are paired like
// inline code markers.
func ToTelegramHTML(text string) string {
	escaped := EscapeHTML(text)
	escaped = replacePaired(escaped, "**", "<b>", "</b>")
	escaped = replacePaired(escaped, "*", "<i>", "</i>")
	escaped = replaceInlineCode(escaped)
	return escaped
}

// EscapeHTML escapes the three characters Telegram's HTML parser treats as
// markup.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// replacePaired replaces alternating occurrences of marker with open, close,
// open, close, ... matching Markdown's toggle-style emphasis.
func replacePaired(s, marker, open, close string) string {
	parts := strings.Split(s, marker)
	if len(parts) < 3 {
		return s
	}
	var b strings.Builder
	for i, p := range parts {
		b.WriteString(p)
		if i == len(parts)-1 {
			continue
		}
		if i%2 == 0 {
			b.WriteString(open)
		} else {
			b.WriteString(close)
		}
	}
	return b.String()
}

func replaceInlineCode(s string) string {
	return replacePaired(s, "`", "<code>", "</code>")
}

// FormatError renders a titled error block: the title in bold, a blank
// line, then the message.
func FormatError(title, message string) string {
	return fmt.Sprintf("**%s**\n\n%s", title, message)
}

// FormatSuccess renders a titled success block.
func FormatSuccess(title, message string) string {
	return fmt.Sprintf("**%s**\n\n%s", title, message)
}
