package presenter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/itismyfield/cokacdir/internal/agentproc"
)

type fakeSink struct {
	mu          sync.Mutex
	nextID      int
	edits       []string
	sent        []string
	deleted     []string
	longSent    string
	reactions   []Reaction
	reactionsRm []Reaction
}

func (f *fakeSink) Send(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "msg-" + itoa(f.nextID)
	f.sent = append(f.sent, text)
	return id, nil
}

func (f *fakeSink) Edit(ctx context.Context, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeSink) Delete(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSink) AddReaction(ctx context.Context, kind Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, kind)
	return nil
}

func (f *fakeSink) RemoveReaction(ctx context.Context, kind Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactionsRm = append(f.reactionsRm, kind)
	return nil
}

func (f *fakeSink) SendLong(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.longSent = text
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newFastPresenter() *Presenter {
	return &Presenter{
		limiter:      NewRateLimiter(0),
		pollInterval: 5 * time.Millisecond,
	}
}

func TestRunDeliversFinalTextAndReactions(t *testing.T) {
	stream := make(chan agentproc.StreamMessage, 4)
	stream <- agentproc.StreamMessage{Kind: agentproc.KindInit, SessionID: "s1"}
	stream <- agentproc.StreamMessage{Kind: agentproc.KindText, Content: "hello world"}
	stream <- agentproc.StreamMessage{Kind: agentproc.KindDone, Result: "hello world", SessionID: "s1"}
	close(stream)

	sink := &fakeSink{}
	p := newFastPresenter()

	result, err := p.Run(context.Background(), "conv-1", LimitSurfaceA, stream, sink, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SessionID != "s1" {
		t.Fatalf("expected session id to propagate, got %q", result.SessionID)
	}
	if result.Cancelled {
		t.Fatalf("expected non-cancelled result")
	}
	if sink.longSent == "" {
		t.Fatalf("expected a final long-send")
	}
	if len(sink.reactions) == 0 || sink.reactions[0] != ReactionHourglass {
		t.Fatalf("expected hourglass reaction on start, got %+v", sink.reactions)
	}
	if len(sink.reactions) < 2 || sink.reactions[len(sink.reactions)-1] != ReactionCheck {
		t.Fatalf("expected check reaction on completion, got %+v", sink.reactions)
	}
	if len(sink.deleted) == 0 {
		t.Fatalf("expected the placeholder to be deleted before final send")
	}
}

type fakeHooks struct {
	mu         sync.Mutex
	started    []string
	done       []string
	cleared    []string
	statusline []string
}

func (f *fakeHooks) PublishToolStart(sessionID, toolName, summary string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, sessionID+":"+toolName)
}

func (f *fakeHooks) PublishToolDone(sessionID, toolName string, isError bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, sessionID+":"+toolName)
}

func (f *fakeHooks) PublishToolsClear(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
}

func (f *fakeHooks) PublishStatusline(sessionID string, costUSD float64, inputTokens, outputTokens int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusline = append(f.statusline, sessionID)
}

func TestRunFiresHooksForToolActivity(t *testing.T) {
	stream := make(chan agentproc.StreamMessage, 8)
	stream <- agentproc.StreamMessage{Kind: agentproc.KindInit, SessionID: "s1"}
	stream <- agentproc.StreamMessage{Kind: agentproc.KindToolUse, ToolName: "Bash", ToolInput: []byte(`{"command":"ls"}`)}
	stream <- agentproc.StreamMessage{Kind: agentproc.KindToolResult, ToolResultContent: "ok"}
	stream <- agentproc.StreamMessage{Kind: agentproc.KindDone, Result: "done", SessionID: "s1", CostUSD: 0.05, InputTokens: 100, OutputTokens: 40}
	close(stream)

	sink := &fakeSink{}
	hooks := &fakeHooks{}
	p := newFastPresenter()
	p.WithHooks(hooks)

	if _, err := p.Run(context.Background(), "conv-hooks", LimitSurfaceA, stream, sink, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(hooks.started) != 1 || hooks.started[0] != "s1:Bash" {
		t.Fatalf("expected one ToolStart(s1, Bash), got %+v", hooks.started)
	}
	if len(hooks.done) != 1 || hooks.done[0] != "s1:Bash" {
		t.Fatalf("expected one ToolDone(s1, Bash), got %+v", hooks.done)
	}
	if len(hooks.cleared) != 1 || hooks.cleared[0] != "s1" {
		t.Fatalf("expected ToolsClear(s1) once the stream ends, got %+v", hooks.cleared)
	}
	if len(hooks.statusline) != 1 || hooks.statusline[0] != "s1" {
		t.Fatalf("expected Statusline(s1) once Done arrives, got %+v", hooks.statusline)
	}
}

func TestRunRolloverTruncationNeverSplitsAMultibyteRune(t *testing.T) {
	// 110 ASCII bytes get the first edit's rendered length past
	// rolloverMinAccumulated; the limit is chosen so the rollover cut point
	// (limit - rolloverReservation = 111) lands one byte into the first
	// two-byte "é" that follows, exercising the rune-boundary walk-back.
	const limit = 119
	stream := make(chan agentproc.StreamMessage, 2)
	stream <- agentproc.StreamMessage{Kind: agentproc.KindText, Content: strings.Repeat("x", 110)}
	stream <- agentproc.StreamMessage{Kind: agentproc.KindText, Content: strings.Repeat("é", 200)}

	sink := &fakeSink{}
	p := newFastPresenter()

	go func() {
		time.Sleep(15 * time.Millisecond)
		close(stream)
	}()

	if _, err := p.Run(context.Background(), "conv-rollover", limit, stream, sink, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.edits) < 2 {
		t.Fatalf("expected at least two progressive edits, got %d", len(sink.edits))
	}
	for _, edit := range sink.edits {
		if !utf8.ValidString(edit) {
			t.Fatalf("rollover truncation produced invalid UTF-8: %q", edit)
		}
	}
}

func TestRunSurfacesStoppedSuffixOnCancellation(t *testing.T) {
	stream := make(chan agentproc.StreamMessage)
	sink := &fakeSink{}
	p := newFastPresenter()
	token := agentproc.NewCancelToken()

	go func() {
		stream <- agentproc.StreamMessage{Kind: agentproc.KindText, Content: "partial"}
		time.Sleep(10 * time.Millisecond)
		token.Cancel()
		time.Sleep(20 * time.Millisecond)
		close(stream)
	}()

	result, err := p.Run(context.Background(), "conv-2", LimitSurfaceA, stream, sink, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("expected cancelled result")
	}
	if len(sink.reactions) == 0 || sink.reactions[len(sink.reactions)-1] != ReactionStop {
		t.Fatalf("expected stop reaction after cancellation, got %+v", sink.reactions)
	}
}
