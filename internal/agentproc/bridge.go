// Package agentproc implements the agent streaming bridge (C2): it spawns
// the agent as a child process, parses its newline-delimited JSON event
// stream into typed StreamMessage values, and supports cooperative
// cancellation that also terminates the child and its process group.
package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync/atomic"
)

// StreamMessage is the discriminated union of events the bridge emits. The
// stream always terminates with exactly one Done or Error.
type StreamMessage struct {
	Kind string

	// Init
	SessionID string

	// Text
	Content string

	// ToolUse
	ToolName  string
	ToolInput json.RawMessage

	// ToolResult
	ToolResultContent string
	IsError           bool

	// TaskNotification
	Summary string

	// Done
	Result       string
	CostUSD      float64
	InputTokens  int
	OutputTokens int

	// Error
	Message string
}

const (
	KindInit             = "init"
	KindText             = "text"
	KindToolUse          = "tool_use"
	KindToolResult       = "tool_result"
	KindTaskNotification = "task_notification"
	KindDone             = "done"
	KindError            = "error"
)

// rawEvent is the wire shape the child emits: one JSON object per line,
// discriminated by "type". Unknown or malformed lines are skipped, not
// fatal, so interleaved diagnostic output on stdout does not abort the
// stream.
type rawEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Result    string          `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`

	// Done (usage/cost telemetry, present on the "done" event only)
	CostUSD float64 `json:"total_cost_usd,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens,omitempty"`
		OutputTokens int `json:"output_tokens,omitempty"`
	} `json:"usage,omitempty"`
}

// CancelToken is the per-in-flight-request cancellation handle: an atomic
// flag plus a holder for the recorded child process id.
type CancelToken struct {
	cancelled atomic.Bool
	pid       atomic.Int64
}

// NewCancelToken returns a fresh, unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// recordPID stores the child's process id once spawn succeeds.
func (t *CancelToken) recordPID(pid int) {
	t.pid.Store(int64(pid))
}

// Cancel sets the flag and, if a pid has been recorded, signals the
// process group so that descendant shells (spawned by a Bash-like tool)
// are terminated too.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
	if pid := t.pid.Load(); pid != 0 {
		terminateProcessGroup(int(pid))
	}
}

// Spawner launches the agent binary. Tests substitute a stub.
type Spawner func(ctx context.Context, args []string, workingDirectory string) (*exec.Cmd, io.ReadCloser, io.WriteCloser, error)

// Bridge spawns the agent and turns its stdout into a StreamMessage
// channel.
type Bridge struct {
	binary string
	spawn  Spawner
}

// New returns a Bridge that execs binary directly (no spawn override).
func New(binary string) *Bridge {
	b := &Bridge{binary: binary}
	b.spawn = b.defaultSpawn
	return b
}

// NewWithSpawner returns a Bridge using a custom Spawner, for tests.
func NewWithSpawner(spawn Spawner) *Bridge {
	return &Bridge{spawn: spawn}
}

func (b *Bridge) defaultSpawn(ctx context.Context, args []string, workingDirectory string) (*exec.Cmd, io.ReadCloser, io.WriteCloser, error) {
	cmd := exec.CommandContext(ctx, b.binary, args...)
	cmd.Dir = workingDirectory
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("agent stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("agent stdin pipe: %w", err)
	}
	return cmd, stdout, stdin, nil
}

// Request carries the arguments for one bridge invocation.
type Request struct {
	Prompt           string
	PriorSessionID   string
	WorkingDirectory string
	SystemPrompt     string
	AllowedTools     []string
	Cancel           *CancelToken
}

func (r Request) buildArgs() []string {
	args := []string{"--output-format", "stream-json", "--input-format", "stream-json"}
	if r.PriorSessionID != "" {
		args = append(args, "--resume", r.PriorSessionID)
	}
	if r.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", r.SystemPrompt)
	}
	for _, t := range r.AllowedTools {
		args = append(args, "--allowedTools", t)
	}
	return args
}

// Run spawns the agent and streams StreamMessage values on the returned
// channel, which is closed after the terminal Done or Error message. The
// prompt is written to the child's stdin as its first line.
func (b *Bridge) Run(ctx context.Context, req Request) <-chan StreamMessage {
	out := make(chan StreamMessage, 16)

	go func() {
		defer close(out)

		cmd, stdout, stdin, err := b.spawn(ctx, req.buildArgs(), req.WorkingDirectory)
		if err != nil {
			out <- StreamMessage{Kind: KindError, Message: fmt.Sprintf("failed to start agent: %v", err)}
			return
		}

		if err := cmd.Start(); err != nil {
			out <- StreamMessage{Kind: KindError, Message: fmt.Sprintf("failed to start agent: %v", err)}
			return
		}
		if req.Cancel != nil && cmd.Process != nil {
			req.Cancel.recordPID(cmd.Process.Pid)
		}

		if _, err := io.WriteString(stdin, req.Prompt+"\n"); err != nil {
			log.Printf("[AGENTPROC] stdin write failed: %v", err)
		}
		stdin.Close()

		var lastSessionID string
		var transcript []string
		terminal := false

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if req.Cancel != nil && req.Cancel.Cancelled() {
				break
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var ev rawEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				log.Printf("[AGENTPROC] skipping malformed line: %v", err)
				continue
			}

			msg, ok := translate(ev)
			if !ok {
				continue
			}
			if msg.Kind == KindInit {
				lastSessionID = msg.SessionID
			}
			if msg.Kind == KindText {
				transcript = append(transcript, msg.Content)
			}
			if msg.Kind == KindDone || msg.Kind == KindError {
				terminal = true
			}

			out <- msg
			if terminal {
				break
			}
		}

		waitErr := cmd.Wait()

		if terminal {
			return
		}

		if req.Cancel != nil && req.Cancel.Cancelled() {
			partial := joinTranscript(transcript) + "\n\n[Stopped]"
			out <- StreamMessage{Kind: KindDone, Result: partial, SessionID: lastSessionID}
			return
		}

		status := "unknown"
		if waitErr != nil {
			status = waitErr.Error()
		} else if cmd.ProcessState != nil {
			status = cmd.ProcessState.String()
		}
		out <- StreamMessage{Kind: KindError, Message: fmt.Sprintf("child exited unexpectedly: %s", status)}
	}()

	return out
}

func translate(ev rawEvent) (StreamMessage, bool) {
	switch ev.Type {
	case "init":
		return StreamMessage{Kind: KindInit, SessionID: ev.SessionID}, true
	case "text":
		return StreamMessage{Kind: KindText, Content: ev.Content}, true
	case "tool_use":
		return StreamMessage{Kind: KindToolUse, ToolName: ev.ToolName, ToolInput: ev.ToolInput}, true
	case "tool_result":
		return StreamMessage{Kind: KindToolResult, ToolResultContent: ev.Content, IsError: ev.IsError}, true
	case "task_notification":
		return StreamMessage{Kind: KindTaskNotification, Summary: ev.Summary}, true
	case "done":
		return StreamMessage{
			Kind:         KindDone,
			Result:       ev.Result,
			SessionID:    ev.SessionID,
			CostUSD:      ev.CostUSD,
			InputTokens:  ev.Usage.InputTokens,
			OutputTokens: ev.Usage.OutputTokens,
		}, true
	case "error":
		return StreamMessage{Kind: KindError, Message: ev.Message}, true
	default:
		return StreamMessage{}, false
	}
}

func joinTranscript(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}
