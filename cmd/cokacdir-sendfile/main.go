// Command cokacdir-sendfile is the subprocess helper entry point the agent
// invokes (via its Bash tool) to deliver an artifact to the user on the
// surface handling the current request. It receives only a credential
// hash, never the raw bot token, so the token never appears in an agent
// prompt or transcript (spec §4.8, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/itismyfield/cokacdir/internal/discordsurface"
	"github.com/itismyfield/cokacdir/internal/settings"
	"github.com/itismyfield/cokacdir/internal/telegramsurface"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		sendFile        string
		discordSendFile string
		chatID          string
		channelID       string
		key             string
		caption         string
	)

	flag.StringVar(&sendFile, "sendfile", "", "path to deliver via the Telegram surface")
	flag.StringVar(&discordSendFile, "discord-sendfile", "", "path to deliver via the Discord surface")
	flag.StringVar(&chatID, "chat", "", "Telegram chat id")
	flag.StringVar(&channelID, "channel", "", "Discord channel id")
	flag.StringVar(&key, "key", "", "credential hash resolving the bot token")
	flag.StringVar(&caption, "caption", "", "optional caption accompanying the file")
	flag.Parse()

	if key == "" {
		return fmt.Errorf("--key is required")
	}

	store := settings.Open()
	token, ok := store.ResolveByHash(key)
	if !ok {
		return fmt.Errorf("no credential registered for key %q", key)
	}

	switch {
	case discordSendFile != "":
		if channelID == "" {
			return fmt.Errorf("--channel is required with --discord-sendfile")
		}
		return discordsurface.SendFile(token, channelID, discordSendFile, caption)

	case sendFile != "":
		if chatID == "" {
			return fmt.Errorf("--chat is required with --sendfile")
		}
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --chat %q: %w", chatID, err)
		}
		return telegramsurface.SendFile(context.Background(), token, id, sendFile, caption)

	default:
		return fmt.Errorf("one of --sendfile or --discord-sendfile is required")
	}
}
