package presenter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// spinnerFrames mirrors the ten-glyph braille frame set bubbles/spinner
// uses for spinner.MiniDot, reused here for the text-only progressive render.
var spinnerFrames = [...]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SpinnerFrame returns the glyph for tick, cycling through the 10-frame
// set.
func SpinnerFrame(tick int) string {
	return spinnerFrames[((tick%len(spinnerFrames))+len(spinnerFrames))%len(spinnerFrames)]
}

const bashCommandMaxLen = 150
const unknownToolInputMaxLen = 200

// SummarizeToolInput renders a one-line summary of a tool invocation per
// spec §4.7.1. input is the tool's raw JSON input payload.
func SummarizeToolInput(name string, input json.RawMessage) string {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(input, &fields)

	str := func(key string) string {
		var s string
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}

	switch name {
	case "Bash":
		cmd := truncateRunes(str("command"), bashCommandMaxLen)
		if desc := str("description"); desc != "" {
			return fmt.Sprintf("%s: `%s`", desc, cmd)
		}
		return fmt.Sprintf("`%s`", cmd)

	case "Read", "Write", "Edit":
		path := str("file_path")
		if name == "Write" {
			lines := strings.Count(str("content"), "\n") + 1
			return fmt.Sprintf("%s (%d lines)", path, lines)
		}
		return path

	case "Glob":
		pattern := str("pattern")
		if path := str("path"); path != "" {
			return fmt.Sprintf("Glob %s in %s", pattern, path)
		}
		return fmt.Sprintf("Glob %s", pattern)

	case "Grep":
		pattern := str("pattern")
		mode := str("output_mode")
		if path := str("path"); path != "" {
			return fmt.Sprintf("Grep %q in %s (%s)", pattern, path, mode)
		}
		return fmt.Sprintf("Grep %q (%s)", pattern, mode)

	case "WebSearch":
		return str("query")

	case "WebFetch":
		return str("url")

	case "Task":
		return fmt.Sprintf("Task [%s]: %s", str("subagent_type"), str("description"))

	case "Skill":
		return fmt.Sprintf("Skill: %s", str("name"))

	default:
		return fmt.Sprintf("%s %s", name, truncateRunes(string(input), unknownToolInputMaxLen))
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
