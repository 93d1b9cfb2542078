package presenter

import (
	"strings"
	"testing"
)

func TestSplitMessageUnderLimitReturnsSingleChunk(t *testing.T) {
	chunks := SplitMessage("short text", 100)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("expected single unchanged chunk, got %+v", chunks)
	}
}

func TestSplitMessageSplitsOnNewlineBoundary(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 10)
	chunks := SplitMessage(text, 15)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %+v", chunks)
	}
	for _, c := range chunks {
		if len(c) > 15 {
			t.Errorf("chunk exceeds limit: %q (%d)", c, len(c))
		}
	}
}

func TestSplitMessageReopensFenceAcrossChunks(t *testing.T) {
	code := strings.Repeat("x", 40)
	text := "intro\n```go\n" + code + "\nmore code here\n```\ntrailer"
	chunks := SplitMessage(text, 30)

	if len(chunks) < 2 {
		t.Fatalf("expected the fenced block to force a split, got %+v", chunks)
	}

	// Every chunk containing an opening fence without its own closing fence
	// should be followed by a chunk reopening with the same language tag.
	for i := 0; i < len(chunks)-1; i++ {
		if strings.Count(chunks[i], fence)%2 == 1 {
			if !strings.HasPrefix(chunks[i+1], fence+"go") {
				t.Errorf("expected chunk %d to reopen with ```go, got %q", i+1, chunks[i+1])
			}
		}
	}
}

func TestSplitMessageNeverExceedsLimitEvenWithReopenedFence(t *testing.T) {
	code := strings.Repeat("y", 200)
	text := "```python\n" + code + "\n```"
	limit := 40
	chunks := SplitMessage(text, limit)
	for i, c := range chunks {
		if len(c) > limit {
			t.Errorf("chunk %d exceeds limit %d: len=%d", i, limit, len(c))
		}
	}
}

func TestNormalizeEmptyLinesCollapsesRuns(t *testing.T) {
	in := "a\n\n\n\nb\n\nc"
	want := "a\n\nb\n\nc"
	if got := NormalizeEmptyLines(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeEmptyLinesIsIdempotent(t *testing.T) {
	in := "a\n\n\n\nb"
	once := NormalizeEmptyLines(in)
	twice := NormalizeEmptyLines(once)
	if once != twice {
		t.Fatalf("expected idempotent normalization: %q vs %q", once, twice)
	}
}

func TestSpinnerFrameCyclesThroughTenFrames(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		seen[SpinnerFrame(i)] = true
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct frames, got %d", len(seen))
	}
	if SpinnerFrame(0) != SpinnerFrame(10) {
		t.Fatalf("expected frame set to cycle with period 10")
	}
}
