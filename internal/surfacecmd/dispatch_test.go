package surfacecmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itismyfield/cokacdir/internal/auth"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/settings"
	"github.com/itismyfield/cokacdir/internal/shared"
	"github.com/itismyfield/cokacdir/internal/skills"
)

func newTestDeps(t *testing.T) (Deps, sessions.Key) {
	t.Helper()
	root := t.TempDir()
	st := settings.OpenAt(filepath.Join(root, "bot_settings.json"))
	sessStore := sessions.NewAt(filepath.Join(root, "sessions"), st, "k", "tok")
	deps := Deps{
		Sessions:         sessStore,
		Settings:         st,
		Auth:             auth.New(st),
		Skills:           skills.NewScanner(),
		Registry:         shared.NewRegistry(),
		CredentialKey:    "k",
		CredentialToken:  "tok",
		OwnerOnlyUserOps: true,
	}
	return deps, sessions.Key{Surface: "discord", ConversationKey: "chan-1"}
}

func TestParseCommandRecognizesSlashPrefix(t *testing.T) {
	name, args, ok := ParseCommand("/start /tmp/work")
	if !ok || name != "start" || len(args) != 1 || args[0] != "/tmp/work" {
		t.Fatalf("unexpected parse: name=%q args=%+v ok=%v", name, args, ok)
	}
}

func TestParseCommandRejectsPlainText(t *testing.T) {
	_, _, ok := ParseCommand("just a regular message")
	if ok {
		t.Fatalf("expected plain text to not parse as a command")
	}
}

func TestDispatchPlainTextStartsAgent(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "what does this file do?"})
	if !result.StartAgent || result.Prompt != "what does this file do?" {
		t.Fatalf("expected plain text to start the agent verbatim, got %+v", result)
	}
}

func TestDispatchStartSetsWorkingDirectory(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "/start /tmp/project"})
	if !strings.Contains(result.Reply, "/tmp/project") {
		t.Fatalf("expected reply to mention new path, got %q", result.Reply)
	}
	sess := deps.Sessions.GetOrCreate(key)
	if sess.WorkingDirectory != "/tmp/project" {
		t.Fatalf("expected working directory to be set, got %q", sess.WorkingDirectory)
	}
}

func TestDispatchStartWithNoArgsAndNoPriorPathGeneratesWorkspace(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	deps, key := newTestDeps(t)

	result := Dispatch(deps, Request{Key: key, Text: "/start"})
	if strings.Contains(result.Reply, "usage:") {
		t.Fatalf("expected /start with no args to auto-generate a workspace, got %q", result.Reply)
	}

	sess := deps.Sessions.GetOrCreate(key)
	if sess.WorkingDirectory == "" {
		t.Fatalf("expected a working directory to be set")
	}
	if !strings.HasPrefix(sess.WorkingDirectory, filepath.Join(home, ".cokacdir", "workspace")) {
		t.Fatalf("expected generated directory under the workspace root, got %q", sess.WorkingDirectory)
	}
	if info, err := os.Stat(sess.WorkingDirectory); err != nil || !info.IsDir() {
		t.Fatalf("expected generated workspace directory to exist on disk: %v", err)
	}
}

func TestDestructiveAdditionsReportsDestructiveToolsOnly(t *testing.T) {
	got := DestructiveAdditions("/allowed +bash +glob -edit")
	if len(got) != 1 || got[0] != "Bash" {
		t.Fatalf("expected only Bash flagged as a destructive addition, got %+v", got)
	}
}

func TestDestructiveAdditionsIgnoresNonAllowedCommands(t *testing.T) {
	if got := DestructiveAdditions("/start /tmp/work"); got != nil {
		t.Fatalf("expected nil for a non-/allowed command, got %+v", got)
	}
}

func TestDispatchPwdReportsWorkingDirectory(t *testing.T) {
	deps, key := newTestDeps(t)
	Dispatch(deps, Request{Key: key, Text: "/start /tmp/project"})
	result := Dispatch(deps, Request{Key: key, Text: "/pwd"})
	if result.Reply != "/tmp/project" {
		t.Fatalf("unexpected pwd reply: %q", result.Reply)
	}
}

func TestDispatchStopWhenNothingInFlightRepliesAccordingly(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "/stop"})
	if result.Reply != "already stopping" {
		t.Fatalf("expected already-stopping reply, got %q", result.Reply)
	}
}

func TestDispatchBangPrefixIsTreatedAsShell(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "!ls -la"})
	if result.StartAgent {
		t.Fatalf("expected shell command to not start the agent")
	}
	if result.Reply != "ls -la" {
		t.Fatalf("expected resolved shell command, got %q", result.Reply)
	}
}

func TestDispatchAllowedAddsAndRemovesTools(t *testing.T) {
	deps, key := newTestDeps(t)
	add := Dispatch(deps, Request{Key: key, Text: "/allowed +bash"})
	if !strings.Contains(add.Reply, "Bash") {
		t.Fatalf("expected normalized tool name in reply, got %q", add.Reply)
	}
	list := Dispatch(deps, Request{Key: key, Text: "/allowedtools"})
	if !strings.Contains(list.Reply, "Bash") {
		t.Fatalf("expected Bash in allowlist, got %q", list.Reply)
	}
	remove := Dispatch(deps, Request{Key: key, Text: "/allowed -bash"})
	if !strings.Contains(remove.Reply, "Bash") {
		t.Fatalf("expected removal confirmation, got %q", remove.Reply)
	}
}

func TestDispatchAddUserRejectsNonOwner(t *testing.T) {
	deps, key := newTestDeps(t)
	// First message from "owner-1" imprints ownership.
	deps.Auth.Check(deps.CredentialKey, deps.CredentialToken, "owner-1", "owner")

	result := Dispatch(deps, Request{Key: key, UserID: "someone-else", UserLabel: "intruder", Text: "/adduser 42"})
	if !strings.Contains(result.Reply, "only the owner") {
		t.Fatalf("expected owner-only rejection, got %q", result.Reply)
	}
}

func TestDispatchAddUserSucceedsForOwner(t *testing.T) {
	deps, key := newTestDeps(t)
	deps.Auth.Check(deps.CredentialKey, deps.CredentialToken, "owner-1", "owner")

	result := Dispatch(deps, Request{Key: key, UserID: "owner-1", UserLabel: "owner", Text: "/adduser 42"})
	if !strings.Contains(result.Reply, "42") {
		t.Fatalf("expected confirmation mentioning the added user, got %q", result.Reply)
	}
}

func TestDispatchUnknownCommandRepliesWithHint(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "/bogus"})
	if !strings.Contains(result.Reply, "/help") {
		t.Fatalf("expected a hint towards /help, got %q", result.Reply)
	}
}

func TestDispatchCCForwardsKnownSkillAsPrompt(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "/cc help extra args"})
	if !result.StartAgent || result.Prompt != "/help extra args" {
		t.Fatalf("expected forwarded skill prompt, got %+v", result)
	}
}

func TestDispatchCCRejectsUnknownSkill(t *testing.T) {
	deps, key := newTestDeps(t)
	result := Dispatch(deps, Request{Key: key, Text: "/cc nonexistent"})
	if result.StartAgent {
		t.Fatalf("expected unknown skill to not start the agent")
	}
	if !strings.Contains(result.Reply, "unknown skill") {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
}
