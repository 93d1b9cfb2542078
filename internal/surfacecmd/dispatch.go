// Package surfacecmd implements the command surface shared by both
// messenger adapters (C8): parsing, the dispatch table, and every command's
// pure reply logic. Only the actual send/edit/react calls differ between
// Discord and Telegram, and those live in their own adapter packages.
package surfacecmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/itismyfield/cokacdir/internal/auth"
	"github.com/itismyfield/cokacdir/internal/paths"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/settings"
	"github.com/itismyfield/cokacdir/internal/shared"
	"github.com/itismyfield/cokacdir/internal/skills"
	"github.com/itismyfield/cokacdir/internal/tools"
)

// Deps bundles the core components a command needs. OwnerOnlyUserOps gates
// whether adduser/removeuser are available on this surface (spec: surface
// A only).
type Deps struct {
	Sessions         *sessions.Store
	Settings         *settings.Store
	Auth             *auth.Gate
	Skills           *skills.Scanner
	Registry         *shared.Registry
	CredentialKey    string
	CredentialToken  string
	OwnerOnlyUserOps bool
}

// Request describes one inbound message already past the auth gate.
type Request struct {
	Key             sessions.Key
	UserID          string
	UserLabel       string
	Text            string
	ConversationKey string
}

// Result is what a command produces. When StartAgent is set, the caller
// must invoke the bridge with Prompt and hand the resulting stream to the
// presenter; Reply is used for every other (synchronous) command.
type Result struct {
	Reply      string
	StartAgent bool
	Prompt     string
}

// ParseCommand recognizes a leading "/" or "!" command prefix and splits
// the remainder on whitespace. Plain text (no recognized prefix) is not a
// command.
func ParseCommand(text string) (name string, args []string, isCommand bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil, false
	}
	if strings.HasPrefix(trimmed, "!") {
		fields := strings.Fields(trimmed[1:])
		if len(fields) == 0 {
			return "", nil, false
		}
		return strings.ToLower(fields[0]), fields[1:], true
	}
	if strings.HasPrefix(trimmed, "/") {
		fields := strings.Fields(trimmed[1:])
		if len(fields) == 0 {
			return "", nil, false
		}
		return strings.ToLower(fields[0]), fields[1:], true
	}
	return "", nil, false
}

// DestructiveAdditions inspects raw command text and, if it is an
// `/allowed` command, returns the normalized names of any destructive
// tools it would newly enable — without mutating any state. Surface
// adapters call this before Dispatch to gate the enable behind a
// permission prompt (the "approve/reject/always-allow" flow supplemented
// from the original service, relayed per-surface in its own idiom).
func DestructiveAdditions(text string) []string {
	name, args, isCommand := ParseCommand(text)
	if !isCommand || name != "allowed" {
		return nil
	}
	var names []string
	for _, arg := range args {
		if len(arg) < 2 || arg[0] != '+' {
			continue
		}
		toolName := tools.Normalize(arg[1:])
		if tools.IsDestructive(toolName) {
			names = append(names, toolName)
		}
	}
	return names
}

// Dispatch routes req to its handler. Free text (not a recognized command)
// is treated as a prompt for the agent, with any buffered upload notes
// prepended and drained.
func Dispatch(deps Deps, req Request) Result {
	trimmed := strings.TrimSpace(req.Text)
	if strings.HasPrefix(trimmed, "!") {
		return handleShell(strings.Fields(trimmed[1:]))
	}

	name, args, isCommand := ParseCommand(req.Text)
	if !isCommand {
		return startAgent(deps, req, req.Text)
	}

	switch name {
	case "start":
		return handleStart(deps, req, args)
	case "pwd":
		return handlePwd(deps, req)
	case "clear":
		return handleClear(deps, req)
	case "stop":
		return handleStop(deps, req)
	case "down":
		return handleDown(deps, req, args)
	case "shell":
		return handleShell(args)
	case "allowedtools":
		return handleAllowedTools(deps)
	case "allowed":
		return handleAllowed(deps, args)
	case "help":
		return handleHelp(deps)
	case "cc":
		return handleSkill(deps, req, args)
	case "adduser":
		return handleAddUser(deps, req, args)
	case "removeuser":
		return handleRemoveUser(deps, req, args)
	default:
		return Result{Reply: fmt.Sprintf("unknown command %q. Try /help.", name)}
	}
}

func startAgent(deps Deps, req Request, text string) Result {
	notes := deps.Sessions.DrainPendingUploads(req.Key)
	prompt := text
	if len(notes) > 0 {
		prompt = strings.Join(notes, "\n") + "\n\n" + text
	}
	return Result{StartAgent: true, Prompt: prompt}
}

func handleStart(deps Deps, req Request, args []string) Result {
	sess := deps.Sessions.GetOrCreate(req.Key)
	path := sess.WorkingDirectory
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		generated, err := paths.NewWorkspaceDir()
		if err != nil {
			return Result{Reply: fmt.Sprintf("failed to create workspace directory: %v", err)}
		}
		path = generated
	}
	if err := deps.Sessions.SetPath(req.Key, path); err != nil {
		return Result{Reply: fmt.Sprintf("failed to set working directory: %v", err)}
	}
	deps.Skills.SetWorkDir(path)
	return Result{Reply: fmt.Sprintf("working directory set to `%s`", path)}
}

func handlePwd(deps Deps, req Request) Result {
	sess := deps.Sessions.GetOrCreate(req.Key)
	if sess.WorkingDirectory == "" {
		return Result{Reply: "no working directory set yet. Try /start <path>."}
	}
	return Result{Reply: sess.WorkingDirectory}
}

func handleClear(deps Deps, req Request) Result {
	deps.Sessions.Clear(req.Key)
	return Result{Reply: "session cleared."}
}

func handleStop(deps Deps, req Request) Result {
	if deps.Registry.Stop(req.Key) {
		return Result{Reply: "stopping..."}
	}
	return Result{Reply: "already stopping"}
}

func handleDown(deps Deps, req Request, args []string) Result {
	if len(args) == 0 {
		return Result{Reply: "usage: /down <path>"}
	}
	sess := deps.Sessions.GetOrCreate(req.Key)
	next := args[0]
	if sess.WorkingDirectory != "" && !strings.HasPrefix(next, "/") {
		next = strings.TrimSuffix(sess.WorkingDirectory, "/") + "/" + next
	}
	if err := deps.Sessions.SetPath(req.Key, next); err != nil {
		return Result{Reply: fmt.Sprintf("failed to descend: %v", err)}
	}
	deps.Skills.SetWorkDir(next)
	return Result{Reply: fmt.Sprintf("now in `%s`", next)}
}

// handleShell resolves the literal command line and returns it as the
// reply; it runs nothing. The Discord and Telegram adapters send that reply
// as-is, so on those surfaces the command is not executed. The terminal
// file manager intercepts "!<cmd>" before Dispatch and runs it itself
// behind a pty.
func handleShell(args []string) Result {
	cmd := strings.Join(args, " ")
	if cmd == "" {
		return Result{Reply: "usage: /shell <command> (or !<command>)"}
	}
	return Result{Reply: cmd}
}

func handleAllowedTools(deps Deps) Result {
	allowed := deps.Settings.AllowedTools(deps.CredentialKey, deps.CredentialToken)
	if len(allowed) == 0 {
		return Result{Reply: "no tools are allowed."}
	}
	sorted := append([]string(nil), allowed...)
	sort.Strings(sorted)
	return Result{Reply: "allowed tools: " + strings.Join(sorted, ", ")}
}

func handleAllowed(deps Deps, args []string) Result {
	if len(args) == 0 {
		return Result{Reply: "usage: /allowed +<name>|-<name>"}
	}
	var added, removed, rejected []string
	for _, arg := range args {
		if len(arg) < 2 || (arg[0] != '+' && arg[0] != '-') {
			rejected = append(rejected, arg)
			continue
		}
		name := tools.Normalize(arg[1:])
		if tools.NeverEnabled(name) {
			rejected = append(rejected, name)
			continue
		}
		var err error
		if arg[0] == '+' {
			err = deps.Settings.AddAllowedTool(deps.CredentialKey, deps.CredentialToken, name)
			if err == nil {
				added = append(added, name)
			}
		} else {
			err = deps.Settings.RemoveAllowedTool(deps.CredentialKey, deps.CredentialToken, name)
			if err == nil {
				removed = append(removed, name)
			}
		}
		if err != nil {
			rejected = append(rejected, name)
		}
	}

	var b strings.Builder
	if len(added) > 0 {
		fmt.Fprintf(&b, "allowed: %s\n", strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		fmt.Fprintf(&b, "disallowed: %s\n", strings.Join(removed, ", "))
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&b, "rejected: %s\n", strings.Join(rejected, ", "))
	}
	if b.Len() == 0 {
		return Result{Reply: "nothing changed."}
	}
	return Result{Reply: strings.TrimSpace(b.String())}
}

func handleHelp(deps Deps) Result {
	var b strings.Builder
	b.WriteString("commands: start [path], pwd, clear, stop, down <path>, shell <cmd> / !<cmd>, allowedtools, allowed +<name>|-<name>, help, cc <skill> [args]\n\nskills:\n")
	for _, sk := range deps.Skills.List() {
		fmt.Fprintf(&b, "  /%s — %s\n", sk.Name, sk.Description)
	}
	return Result{Reply: strings.TrimRight(b.String(), "\n")}
}

func handleSkill(deps Deps, req Request, args []string) Result {
	if len(args) == 0 {
		return Result{Reply: "usage: /cc <skill> [args]"}
	}
	name := args[0]
	found := false
	for _, sk := range deps.Skills.List() {
		if sk.Name == name {
			found = true
			break
		}
	}
	if !found {
		return Result{Reply: fmt.Sprintf("unknown skill %q. Try /help.", name)}
	}
	prompt := "/" + name
	if len(args) > 1 {
		prompt += " " + strings.Join(args[1:], " ")
	}
	return startAgent(deps, req, prompt)
}

func handleAddUser(deps Deps, req Request, args []string) Result {
	if !deps.OwnerOnlyUserOps {
		return Result{Reply: "adduser is not available on this surface."}
	}
	if err := deps.Auth.RequireOwner(deps.CredentialKey, deps.CredentialToken, req.UserID, req.UserLabel, "adduser"); err != nil {
		return Result{Reply: err.Error()}
	}
	if len(args) == 0 {
		return Result{Reply: "usage: /adduser <user_id>"}
	}
	if err := deps.Settings.AddAllowedUser(deps.CredentialKey, deps.CredentialToken, args[0]); err != nil {
		return Result{Reply: fmt.Sprintf("failed to add user: %v", err)}
	}
	return Result{Reply: fmt.Sprintf("user %s added.", args[0])}
}

func handleRemoveUser(deps Deps, req Request, args []string) Result {
	if !deps.OwnerOnlyUserOps {
		return Result{Reply: "removeuser is not available on this surface."}
	}
	if err := deps.Auth.RequireOwner(deps.CredentialKey, deps.CredentialToken, req.UserID, req.UserLabel, "removeuser"); err != nil {
		return Result{Reply: err.Error()}
	}
	if len(args) == 0 {
		return Result{Reply: "usage: /removeuser <user_id>"}
	}
	if err := deps.Settings.RemoveAllowedUser(deps.CredentialKey, deps.CredentialToken, args[0]); err != nil {
		return Result{Reply: fmt.Sprintf("failed to remove user: %v", err)}
	}
	return Result{Reply: fmt.Sprintf("user %s removed.", args[0])}
}
