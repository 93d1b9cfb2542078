package presenter

import (
	"context"
	"strings"
	"time"

	"github.com/itismyfield/cokacdir/internal/agentproc"
)

// Surface length limits (L_msg).
const (
	LimitSurfaceA = 2000 // Discord-style
	LimitSurfaceB = 4096 // Telegram-style
)

// rolloverReservation is subtracted from L_msg when truncating the message
// that's about to roll over, leaving headroom for the spinner glyph.
const rolloverReservation = 8

// rolloverMinAccumulated is the minimum accumulated content length (spec
// "more than 100 characters") before a message is eligible to roll over
// rather than simply continuing to grow.
const rolloverMinAccumulated = 100

// Reaction is one of the three lifecycle reaction kinds.
type Reaction string

const (
	ReactionHourglass Reaction = "hourglass"
	ReactionCheck     Reaction = "check"
	ReactionStop      Reaction = "stop"
)

// Sink is the surface-specific side of the presenter: sending, editing and
// deleting messages, managing reactions, and delivering the final
// paginated response. Discord and Telegram adapters each implement this
// against their own SDK client.
type Sink interface {
	Send(ctx context.Context, text string) (messageID string, err error)
	Edit(ctx context.Context, messageID, text string) error
	Delete(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, kind Reaction) error
	RemoveReaction(ctx context.Context, kind Reaction) error
	// SendLong delivers the final, possibly multi-chunk response, pausing
	// between chunks per the rate-limit contract.
	SendLong(ctx context.Context, text string) error
}

// Hooks receives live per-event notifications during Run, so a component
// like the dashboard (C9) can publish tool-level activity alongside the
// coarser PublishStatus calls the adapters already make at request
// boundaries. Method names match dashboard.Server's exported Publish*
// methods so it satisfies Hooks without an adapter shim. Implementations
// must return quickly: they're called synchronously from Run's event loop.
type Hooks interface {
	PublishToolStart(sessionID, toolName, summary string)
	PublishToolDone(sessionID, toolName string, isError bool)
	PublishToolsClear(sessionID string)
	PublishStatusline(sessionID string, costUSD float64, inputTokens, outputTokens int)
}

// Presenter drains a StreamMessage channel into a Sink, honoring the
// rate limiter, overflow rollover, and reaction lifecycle.
type Presenter struct {
	limiter      *RateLimiter
	pollInterval time.Duration
	hooks        Hooks
}

// New returns a Presenter using limiter for outbound pacing.
func New(limiter *RateLimiter) *Presenter {
	return &Presenter{limiter: limiter, pollInterval: 250 * time.Millisecond}
}

// WithHooks wires an optional Hooks receiver for tool-level activity.
// Presenters run fine without one.
func (p *Presenter) WithHooks(h Hooks) *Presenter {
	p.hooks = h
	return p
}

// Result is what Run reports back to the caller once the stream ends.
type Result struct {
	FinalText string
	SessionID string
	Cancelled bool
}

// Run drains stream, editing sink's placeholder message progressively, and
// delivers the final response via SendLong. convKey scopes rate limiting
// and limit is the surface's L_msg.
func (p *Presenter) Run(ctx context.Context, convKey string, limit int, stream <-chan agentproc.StreamMessage, sink Sink, cancel *agentproc.CancelToken) (Result, error) {
	p.limiter.Wait(convKey)
	if err := sink.AddReaction(ctx, ReactionHourglass); err != nil {
		return Result{}, err
	}

	currentID, err := sink.Send(ctx, SpinnerFrame(0))
	if err != nil {
		return Result{}, err
	}

	var accumulated strings.Builder
	var lastRendered string
	currentMsgLen := 0
	tick := 0
	result := Result{}
	var liveSessionID, lastToolName string

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	live := true
	for live {
		select {
		case msg, ok := <-stream:
			if !ok {
				live = false
				break
			}
			switch msg.Kind {
			case agentproc.KindInit:
				liveSessionID = msg.SessionID
			case agentproc.KindText:
				accumulated.WriteString(msg.Content)
			case agentproc.KindToolUse:
				summary := SummarizeToolInput(msg.ToolName, msg.ToolInput)
				accumulated.WriteString("\n▸ " + summary + "\n")
				lastToolName = msg.ToolName
				if p.hooks != nil && liveSessionID != "" {
					p.hooks.PublishToolStart(liveSessionID, msg.ToolName, summary)
				}
			case agentproc.KindToolResult:
				if msg.IsError {
					accumulated.WriteString("\n```\n" + truncateRunes(msg.ToolResultContent, 500) + "\n```\n")
				}
				if p.hooks != nil && liveSessionID != "" {
					p.hooks.PublishToolDone(liveSessionID, lastToolName, msg.IsError)
				}
			case agentproc.KindTaskNotification:
				accumulated.WriteString("\n" + msg.Summary + "\n")
			case agentproc.KindDone:
				result.SessionID = msg.SessionID
				liveSessionID = msg.SessionID
				if result.FinalText == "" {
					result.FinalText = accumulated.String()
				}
				if p.hooks != nil && liveSessionID != "" {
					p.hooks.PublishStatusline(liveSessionID, msg.CostUSD, msg.InputTokens, msg.OutputTokens)
				}
				live = false
			case agentproc.KindError:
				accumulated.WriteString("\n" + msg.Message + "\n")
				result.FinalText = accumulated.String()
				live = false
			}

		case <-ticker.C:
			// polled independently of the rate-limit gap; only edits when
			// the rendered text actually changed.

		case <-ctx.Done():
			live = false
		}

		if cancel != nil && cancel.Cancelled() {
			result.Cancelled = true
			live = false
		}

		tick++
		render := NormalizeEmptyLines(accumulated.String())
		if live {
			render += " " + SpinnerFrame(tick)
		}
		if render == lastRendered {
			continue
		}

		if live && len(render) > limit && currentMsgLen > rolloverMinAccumulated {
			truncated := render
			if cut := limit - rolloverReservation; len(truncated) > cut {
				for cut > 0 && !isRuneBoundary(truncated, cut) {
					cut--
				}
				truncated = truncated[:cut]
			}
			p.limiter.Wait(convKey)
			if err := sink.Edit(ctx, currentID, truncated); err != nil {
				return result, err
			}
			newID, err := sink.Send(ctx, SpinnerFrame(tick))
			if err != nil {
				return result, err
			}
			currentID = newID
			currentMsgLen = 0
			lastRendered = ""
			continue
		}

		p.limiter.Wait(convKey)
		if err := sink.Edit(ctx, currentID, render); err != nil {
			return result, err
		}
		lastRendered = render
		currentMsgLen = len(render)
	}

	if p.hooks != nil && liveSessionID != "" {
		p.hooks.PublishToolsClear(liveSessionID)
	}

	if err := sink.RemoveReaction(ctx, ReactionHourglass); err != nil {
		return result, err
	}
	if result.Cancelled {
		result.FinalText = NormalizeEmptyLines(accumulated.String()) + "\n\n[Stopped]"
		if err := sink.AddReaction(ctx, ReactionStop); err != nil {
			return result, err
		}
	} else {
		if err := sink.AddReaction(ctx, ReactionCheck); err != nil {
			return result, err
		}
	}

	if err := sink.Delete(ctx, currentID); err != nil {
		return result, err
	}
	if err := sink.SendLong(ctx, NormalizeEmptyLines(result.FinalText)); err != nil {
		return result, err
	}

	return result, nil
}
