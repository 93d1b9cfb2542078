// Command cokacdir is the control-plane binary: it wires the settings
// store, session store, agent bridge, and presenter once, then starts
// whichever surfaces have credentials configured (Discord, Telegram, the
// terminal file manager) plus the dashboard service. Structured as a
// spf13/cobra root command, grounded on the teacher's cmd/ricochet/main.go
// subcommand dispatch but with cobra doing the parsing instead of a
// hand-rolled os.Args switch.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/auth"
	"github.com/itismyfield/cokacdir/internal/dashboard"
	"github.com/itismyfield/cokacdir/internal/discordsurface"
	"github.com/itismyfield/cokacdir/internal/filemanager"
	"github.com/itismyfield/cokacdir/internal/paths"
	"github.com/itismyfield/cokacdir/internal/presenter"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/settings"
	"github.com/itismyfield/cokacdir/internal/shared"
	"github.com/itismyfield/cokacdir/internal/skills"
	"github.com/itismyfield/cokacdir/internal/surfacecmd"
	"github.com/itismyfield/cokacdir/internal/telegramsurface"
	"github.com/itismyfield/cokacdir/internal/tools"
)

const agentBinaryEnv = "COKACDIR_AGENT_BIN"
const defaultAgentBinary = "claude"
const defaultDashboardAddr = ":4170"

func main() {
	root := &cobra.Command{
		Use:   "cokacdir",
		Short: "Control plane for a tool-using AI coding agent across Discord, Telegram, and the terminal",
	}

	root.AddCommand(runCmd(), installCmd(), doctorCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runCmd() *cobra.Command {
	var dashboardAddr string
	var webDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured surfaces and the dashboard service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd.Context(), dashboardAddr, webDir)
		},
	}
	cmd.Flags().StringVar(&dashboardAddr, "dashboard-addr", defaultDashboardAddr, "listen address for the dashboard HTTP/WebSocket server")
	cmd.Flags().StringVar(&webDir, "dashboard-web-dir", "", "directory holding the dashboard's static web bundle, if any")
	return cmd
}

func runAll(ctx context.Context, dashboardAddr, webDir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settingsStore := settings.Open()
	bridge := agentproc.New(agentBinary())
	pres := presenter.New(presenter.NewRateLimiter(time.Second))
	dash := dashboard.New(settingsStore, webDir)
	pres.WithHooks(dash)

	go func() {
		if err := dash.Run(ctx, dashboardAddr); err != nil {
			log.Printf("[DASHBOARD] stopped: %v", err)
		}
	}()

	started := false

	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		if err := startDiscord(ctx, token, settingsStore, bridge, pres, dash); err != nil {
			return err
		}
		started = true
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		go func() {
			if err := startTelegram(ctx, token, settingsStore, bridge, pres, dash); err != nil {
				log.Printf("[TGBOT] stopped: %v", err)
			}
		}()
		started = true
	}

	if !started && isatty.IsTerminal(os.Stdin.Fd()) {
		return runFileManager(ctx, settingsStore, bridge)
	}

	if !started {
		return fmt.Errorf("no surface configured: set DISCORD_BOT_TOKEN or TELEGRAM_BOT_TOKEN, or run interactively for the file manager")
	}

	<-ctx.Done()
	return nil
}

func startDiscord(ctx context.Context, token string, settingsStore *settings.Store, bridge *agentproc.Bridge, pres *presenter.Presenter, dash *dashboard.Server) error {
	credKey := settings.CredentialKey("discord_", token)
	deps := buildDeps(settingsStore, credKey, token, true)

	adapter, err := discordsurface.New(token, os.Getenv("DISCORD_GUILD_ID"), deps, bridge, pres, shared.New(deps.Sessions, settingsStore))
	if err != nil {
		return fmt.Errorf("discord surface: %w", err)
	}
	adapter.WithDashboard(dash)

	if err := adapter.Start(); err != nil {
		return fmt.Errorf("discord surface: %w", err)
	}
	go func() {
		<-ctx.Done()
		adapter.Stop()
	}()
	return nil
}

func startTelegram(ctx context.Context, token string, settingsStore *settings.Store, bridge *agentproc.Bridge, pres *presenter.Presenter, dash *dashboard.Server) error {
	credKey := settings.CredentialKey("", token)
	deps := buildDeps(settingsStore, credKey, token, false)

	adapter, err := telegramsurface.New(token, deps, bridge, pres, shared.New(deps.Sessions, settingsStore))
	if err != nil {
		return fmt.Errorf("telegram surface: %w", err)
	}
	adapter.WithDashboard(dash)
	return adapter.Start(ctx)
}

func runFileManager(ctx context.Context, settingsStore *settings.Store, bridge *agentproc.Bridge) error {
	credKey := settings.CredentialKey("local_", "terminal")
	deps := buildDeps(settingsStore, credKey, "terminal", false)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	key := sessions.Key{Surface: "filemanager", ConversationKey: cwd}
	model := filemanager.New(key, deps, bridge, cwd)
	return runBubbletea(ctx, model)
}

// runBubbletea drives the file manager's event loop until the user quits or
// ctx is cancelled (e.g. SIGTERM from a supervising process).
func runBubbletea(ctx context.Context, model filemanager.Model) error {
	program := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()
	_, err := program.Run()
	return err
}

func buildDeps(settingsStore *settings.Store, credKey, credTok string, ownerOnly bool) surfacecmd.Deps {
	sessionStore := sessions.New(settingsStore, credKey, credTok)
	skillScanner := skills.NewScanner()
	gate := auth.New(settingsStore)

	return surfacecmd.Deps{
		Sessions:         sessionStore,
		Settings:         settingsStore,
		Auth:             gate,
		Skills:           skillScanner,
		Registry:         shared.NewRegistry(),
		CredentialKey:    credKey,
		CredentialToken:  credTok,
		OwnerOnlyUserOps: ownerOnly,
	}
}

func agentBinary() string {
	if bin := os.Getenv(agentBinaryEnv); bin != "" {
		return bin
	}
	return defaultAgentBinary
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Register the Telegram bot's slash commands once",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := os.Getenv("TELEGRAM_BOT_TOKEN")
			if token == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for install")
			}
			return registerTelegramCommands(cmd.Context(), token)
		},
	}
}

// registerTelegramCommands mirrors the teacher's Bot.Start SetMyCommands
// call, generalized to this system's command surface (spec §4.8).
func registerTelegramCommands(ctx context.Context, token string) error {
	tgBot, err := bot.New(token)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	_, err = tgBot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "Set or show the working directory"},
			{Command: "pwd", Description: "Show the working directory"},
			{Command: "clear", Description: "Clear the session"},
			{Command: "stop", Description: "Cancel the in-flight request"},
			{Command: "down", Description: "Descend into a subdirectory"},
			{Command: "shell", Description: "Run a shell command"},
			{Command: "allowedtools", Description: "Show the tool allowlist"},
			{Command: "allowed", Description: "Change the tool allowlist"},
			{Command: "help", Description: "Show available commands and skills"},
			{Command: "cc", Description: "Invoke a skill"},
		},
	})
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	fmt.Println("telegram commands registered.")
	return nil
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print resolved paths and settings-file health",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("settings file: %s\n", paths.SettingsPath())
			fmt.Printf("sessions dir:  %s\n", paths.SessionsDir())
			fmt.Printf("workspace root: %s\n", paths.WorkspaceRoot())

			if _, err := os.Stat(paths.SettingsPath()); err != nil {
				fmt.Printf("settings file status: absent (defaults will be used): %v\n", err)
			} else {
				fmt.Println("settings file status: present")
			}

			fmt.Printf("default allowlist: %v\n", tools.DefaultAllowedTools())
			fmt.Printf("agent binary: %s\n", agentBinary())
			return nil
		},
	}
}
