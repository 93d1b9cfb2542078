// Package discordsurface implements surface A (C8): a Discord bot built on
// discordgo, grounded on the teacher's internal/discord/bot.go message
// handler and session-per-channel bookkeeping, adapted to route through
// the shared C1-C7 core instead of the teacher's own in-package state.
package discordsurface

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/dashboard"
	"github.com/itismyfield/cokacdir/internal/format"
	"github.com/itismyfield/cokacdir/internal/presenter"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/shared"
	"github.com/itismyfield/cokacdir/internal/surfacecmd"
	"github.com/itismyfield/cokacdir/internal/tools"
)

const emojiHourglass = "⌛"
const emojiCheck = "✅"
const emojiStop = "🛑"

func reactionEmoji(kind presenter.Reaction) string {
	switch kind {
	case presenter.ReactionHourglass:
		return emojiHourglass
	case presenter.ReactionCheck:
		return emojiCheck
	case presenter.ReactionStop:
		return emojiStop
	default:
		return ""
	}
}

// Adapter is the Discord surface: one long-lived event loop plus one
// presenter run per in-flight request.
type Adapter struct {
	session *discordgo.Session
	guildID string

	deps       surfacecmd.Deps
	bridge     *agentproc.Bridge
	presenter  *presenter.Presenter
	shared     *shared.Data
	registry   *shared.Registry
	systemNote func([]string) string
	dashboard  *dashboard.Server

	pendingMu      sync.Mutex
	pendingConfirm map[string]chan bool
}

// WithDashboard wires an optional C9 publisher; adapters run fine without
// one (nil checks guard every call).
func (a *Adapter) WithDashboard(d *dashboard.Server) *Adapter {
	a.dashboard = d
	return a
}

// New creates the Discord session and registers handlers. Start() opens
// the actual connection.
func New(token, guildID string, deps surfacecmd.Deps, bridge *agentproc.Bridge, pres *presenter.Presenter, data *shared.Data) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	a := &Adapter{
		session:        session,
		guildID:        guildID,
		deps:           deps,
		bridge:         bridge,
		presenter:      pres,
		shared:         data,
		registry:       deps.Registry,
		pendingConfirm: make(map[string]chan bool),
	}

	session.AddHandler(a.handleMessage)
	session.AddHandler(a.handleReady)
	session.AddHandler(a.handleReactionAdd)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return a, nil
}

// Start opens the Discord connection.
func (a *Adapter) Start() error {
	log.Println("[DISCORD] starting bot")
	return a.session.Open()
}

// Stop closes the Discord connection.
func (a *Adapter) Stop() error {
	log.Println("[DISCORD] stopping bot")
	return a.session.Close()
}

func (a *Adapter) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[DISCORD] connected as %s#%s", r.User.Username, r.User.Discriminator)
}

func (a *Adapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if a.guildID != "" && m.GuildID != a.guildID {
		return
	}

	key := sessions.Key{Surface: "discord", ConversationKey: m.ChannelID}
	userLabel := m.Author.Username + "#" + m.Author.Discriminator

	if len(m.Attachments) > 0 {
		a.handleAttachments(key, m)
	}

	if !a.deps.Auth.Check(a.deps.CredentialKey, a.deps.CredentialToken, m.Author.ID, userLabel) {
		return
	}

	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	if names := surfacecmd.DestructiveAdditions(text); len(names) > 0 {
		question := fmt.Sprintf("React %s to enable destructive tool(s) %s, %s to reject.", emojiCheck, strings.Join(names, ", "), emojiStop)
		approved, err := a.AskUserConfirm(context.Background(), m.ChannelID, question)
		if err != nil {
			if _, sendErr := s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("permission prompt failed: %v", err)); sendErr != nil {
				log.Printf("[DISCORD] failed to send reply: %v", sendErr)
			}
			return
		}
		if !approved {
			if _, sendErr := s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("not enabling %s.", strings.Join(names, ", "))); sendErr != nil {
				log.Printf("[DISCORD] failed to send reply: %v", sendErr)
			}
			return
		}
	}

	result := surfacecmd.Dispatch(a.deps, surfacecmd.Request{
		Key: key, UserID: m.Author.ID, UserLabel: userLabel, Text: text, ConversationKey: m.ChannelID,
	})

	if !result.StartAgent {
		if result.Reply != "" {
			if _, err := s.ChannelMessageSend(m.ChannelID, result.Reply); err != nil {
				log.Printf("[DISCORD] failed to send reply: %v", err)
			}
		}
		return
	}

	a.runAgent(key, m.ChannelID, m.ID, result.Prompt)
}

func (a *Adapter) handleAttachments(key sessions.Key, m *discordgo.MessageCreate) {
	sess := a.deps.Sessions.GetOrCreate(key)
	if sess.WorkingDirectory == "" {
		return
	}
	for _, att := range m.Attachments {
		note := fmt.Sprintf("uploaded %s (%d bytes) to %s", att.Filename, att.Size, filepath.Join(sess.WorkingDirectory, att.Filename))
		a.deps.Sessions.AddPendingUpload(key, note)
	}
}

// handleReactionAdd resolves a pending AskUserConfirm prompt by matching
// the reacted-to message id; any reaction other than the check emoji is
// treated as a reject.
func (a *Adapter) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == s.State.User.ID {
		return
	}
	a.pendingMu.Lock()
	ch, ok := a.pendingConfirm[r.MessageID]
	if ok {
		delete(a.pendingConfirm, r.MessageID)
	}
	a.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- r.Emoji.Name == emojiCheck
}

// AskUserConfirm posts question to channelID with check/stop reactions and
// blocks for the user's reaction, relaying the "approve/reject" half of the
// original service's permission-prompt flow in Discord's own idiom
// (reactions rather than Telegram's inline keyboard).
func (a *Adapter) AskUserConfirm(ctx context.Context, channelID, question string) (bool, error) {
	msg, err := a.session.ChannelMessageSend(channelID, question)
	if err != nil {
		return false, fmt.Errorf("failed to send permission prompt: %w", err)
	}
	if err := a.session.MessageReactionAdd(channelID, msg.ID, emojiCheck); err != nil {
		return false, fmt.Errorf("failed to add confirm reaction: %w", err)
	}
	if err := a.session.MessageReactionAdd(channelID, msg.ID, emojiStop); err != nil {
		return false, fmt.Errorf("failed to add reject reaction: %w", err)
	}

	respCh := make(chan bool, 1)
	a.pendingMu.Lock()
	a.pendingConfirm[msg.ID] = respCh
	a.pendingMu.Unlock()

	select {
	case <-ctx.Done():
		a.pendingMu.Lock()
		delete(a.pendingConfirm, msg.ID)
		a.pendingMu.Unlock()
		return false, ctx.Err()
	case approved := <-respCh:
		return approved, nil
	}
}

func (a *Adapter) runAgent(key sessions.Key, channelID, reactionMessageID, prompt string) {
	token := agentproc.NewCancelToken()
	if !a.registry.Start(key, token) {
		if _, err := a.session.ChannelMessageSend(channelID, "a request is already in progress in this channel."); err != nil {
			log.Printf("[DISCORD] failed to send busy reply: %v", err)
		}
		return
	}
	if !a.deps.Sessions.AttachCancel(key, token) {
		a.registry.Finish(key)
		return
	}

	sess := a.deps.Sessions.GetOrCreate(key)
	allowed := a.deps.Settings.AllowedTools(a.deps.CredentialKey, a.deps.CredentialToken)

	req := agentproc.Request{
		Prompt:           prompt,
		PriorSessionID:   sess.AgentSessionID,
		WorkingDirectory: sess.WorkingDirectory,
		AllowedTools:     allowed,
		SystemPrompt:     tools.DisabledNotice(allowed),
		Cancel:           token,
	}

	go func() {
		defer a.registry.Finish(key)
		defer a.deps.Sessions.DetachCancel(key)

		a.deps.Sessions.ResetCleared(key)
		a.deps.Sessions.Append(key, sessions.HistoryItem{Kind: sessions.User, Content: prompt})

		if sess.AgentSessionID != "" && a.dashboard != nil {
			a.dashboard.PublishStatus(sess.AgentSessionID, "running")
		}

		stream := a.bridge.Run(context.Background(), req)
		sink := &sink{session: a.session, channelID: channelID, reactionMessageID: reactionMessageID}

		result, err := a.presenter.Run(context.Background(), key.ConversationKey, presenter.LimitSurfaceA, stream, sink, token)
		if err != nil {
			log.Printf("[DISCORD] presenter error: %v", err)
			return
		}

		if result.SessionID != "" {
			a.deps.Sessions.SetAgentSessionID(key, result.SessionID)
		}
		a.deps.Sessions.Append(key, sessions.HistoryItem{Kind: sessions.Assistant, Content: result.FinalText})
		if err := a.deps.Sessions.Persist(key); err != nil {
			log.Printf("[DISCORD] failed to persist session: %v", err)
		}
		if a.dashboard != nil && result.SessionID != "" {
			a.dashboard.PublishStatus(result.SessionID, "idle")
		}
	}()
}

// sink implements presenter.Sink against a single Discord channel. Reaction
// calls target the user's original inbound message; Send/Edit/Delete
// target the bot's placeholder response.
type sink struct {
	session           *discordgo.Session
	channelID         string
	reactionMessageID string
}

func (sk *sink) Send(ctx context.Context, text string) (string, error) {
	msg, err := sk.session.ChannelMessageSend(sk.channelID, format.ToDiscordMarkdown(text))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (sk *sink) Edit(ctx context.Context, messageID, text string) error {
	_, err := sk.session.ChannelMessageEdit(sk.channelID, messageID, format.ToDiscordMarkdown(text))
	return err
}

func (sk *sink) Delete(ctx context.Context, messageID string) error {
	return sk.session.ChannelMessageDelete(sk.channelID, messageID)
}

func (sk *sink) AddReaction(ctx context.Context, kind presenter.Reaction) error {
	emoji := reactionEmoji(kind)
	if emoji == "" {
		return nil
	}
	return sk.session.MessageReactionAdd(sk.channelID, sk.reactionMessageID, emoji)
}

func (sk *sink) RemoveReaction(ctx context.Context, kind presenter.Reaction) error {
	emoji := reactionEmoji(kind)
	if emoji == "" {
		return nil
	}
	return sk.session.MessageReactionRemove(sk.channelID, sk.reactionMessageID, emoji, "@me")
}

func (sk *sink) SendLong(ctx context.Context, text string) error {
	chunks := presenter.SplitMessage(text, presenter.LimitSurfaceA)
	for i, chunk := range chunks {
		if _, err := sk.session.ChannelMessageSend(sk.channelID, format.ToDiscordMarkdown(chunk)); err != nil {
			return err
		}
		if i < len(chunks)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return nil
}

// SendFile delivers a local file as a Discord attachment; invoked by the
// cokacdir-sendfile subprocess helper on the agent's behalf.
func SendFile(token, channelID, path, caption string) error {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	defer session.Close()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{
			{Name: filepath.Base(path), Reader: file},
		},
	})
	return err
}
