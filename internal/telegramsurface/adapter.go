// Package telegramsurface implements surface B (C8): a Telegram bot on
// go-telegram/bot, grounded on the teacher's internal/telegram/bot.go —
// its single-instance flock-based locking, long-polling setup, and
// inline-keyboard AskUser flow, adapted to route through the shared C1-C7
// core and to relay the "approve/reject/always-allow" tool-permission
// prompt the original cokacdir Telegram service exposed.
package telegramsurface

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"
	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/dashboard"
	"github.com/itismyfield/cokacdir/internal/format"
	"github.com/itismyfield/cokacdir/internal/presenter"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/shared"
	"github.com/itismyfield/cokacdir/internal/surfacecmd"
	"github.com/itismyfield/cokacdir/internal/tools"
)

// Reaction emoji the Telegram Bot API (7.0+) accepts via setMessageReaction.
const (
	emojiHourglass = "⏳"
	emojiCheck     = "✅"
	emojiStop      = "🚫"
)

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

// AskChoice is one of the three buttons the original Telegram service
// offered on a tool-permission prompt.
type AskChoice string

const (
	AskApprove     AskChoice = "yes"
	AskReject      AskChoice = "no"
	AskAlwaysAllow AskChoice = "always allow"
)

// Adapter is the Telegram surface.
type Adapter struct {
	bot   *bot.Bot
	token string

	deps      surfacecmd.Deps
	bridge    *agentproc.Bridge
	presenter *presenter.Presenter
	shared    *shared.Data
	registry  *shared.Registry

	pendingMu sync.Mutex
	pending   map[int64]chan AskChoice

	lock      *flock.Flock
	dashboard *dashboard.Server
}

// WithDashboard wires an optional C9 publisher; adapters run fine without
// one (nil checks guard every call).
func (a *Adapter) WithDashboard(d *dashboard.Server) *Adapter {
	a.dashboard = d
	return a
}

// New creates the bot client. Start begins long polling.
func New(token string, deps surfacecmd.Deps, bridge *agentproc.Bridge, pres *presenter.Presenter, data *shared.Data) (*Adapter, error) {
	a := &Adapter{
		token:     token,
		deps:      deps,
		bridge:    bridge,
		presenter: pres,
		shared:    data,
		registry:  deps.Registry,
		pending:   make(map[int64]chan AskChoice),
	}

	tgBot, err := bot.New(token, bot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	a.bot = tgBot
	return a, nil
}

// Start acquires the per-token cross-process lock and begins long polling.
// It blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	home, _ := os.UserHomeDir()
	sum := sha256.Sum256([]byte(a.token))
	tokenID := hex.EncodeToString(sum[:8])
	lockPath := filepath.Join(home, ".cokacdir", fmt.Sprintf("tg-bot-%s.lock", tokenID))
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to prepare lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire telegram bot lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("telegram bot token %s is already running in another process", tokenID)
	}
	a.lock = fl
	defer func() {
		a.lock.Unlock()
		a.lock = nil
	}()

	log.Printf("[TGBOT] starting, lock %s acquired", lockPath)
	a.bot.Start(ctx)
	log.Println("[TGBOT] polling loop stopped")
	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		a.handleCallback(ctx, tgBot, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		a.handleMessage(ctx, tgBot, update.Message)
	}
}

func (a *Adapter) handleCallback(ctx context.Context, tgBot *bot.Bot, cb *models.CallbackQuery) {
	chatID := cb.Message.Message.Chat.ID
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID})

	a.pendingMu.Lock()
	ch, ok := a.pending[chatID]
	if ok {
		delete(a.pending, chatID)
	}
	a.pendingMu.Unlock()

	if !ok {
		return
	}
	ch <- AskChoice(cb.Data)
}

func (a *Adapter) handleMessage(ctx context.Context, tgBot *bot.Bot, message *models.Message) {
	chatID := message.Chat.ID
	userID := fmt.Sprintf("%d", message.From.ID)
	userLabel := message.From.Username
	if userLabel == "" {
		userLabel = userID
	}

	key := sessions.Key{Surface: "telegram", ConversationKey: fmt.Sprintf("%d", chatID)}

	if (message.Document != nil && len(message.Document.FileID) > 0) || len(message.Photo) > 0 {
		a.handleAttachment(ctx, tgBot, key, message)
	}

	if !a.deps.Auth.Check(a.deps.CredentialKey, a.deps.CredentialToken, userID, userLabel) {
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	if names := surfacecmd.DestructiveAdditions(text); len(names) > 0 {
		question := fmt.Sprintf("Enable destructive tool(s) %s for this chat?", strings.Join(names, ", "))
		choice, err := a.AskUserChoice(ctx, chatID, question)
		if err != nil {
			a.send(ctx, chatID, fmt.Sprintf("permission prompt failed: %v", err))
			return
		}
		if choice == AskReject {
			a.send(ctx, chatID, fmt.Sprintf("not enabling %s.", strings.Join(names, ", ")))
			return
		}
	}

	result := surfacecmd.Dispatch(a.deps, surfacecmd.Request{
		Key: key, UserID: userID, UserLabel: userLabel, Text: text, ConversationKey: fmt.Sprintf("%d", chatID),
	})

	if !result.StartAgent {
		if result.Reply != "" {
			a.send(ctx, chatID, result.Reply)
		}
		return
	}

	a.runAgent(ctx, key, chatID, message.ID, result.Prompt)
}

func (a *Adapter) handleAttachment(ctx context.Context, tgBot *bot.Bot, key sessions.Key, message *models.Message) {
	sess := a.deps.Sessions.GetOrCreate(key)
	if sess.WorkingDirectory == "" {
		return
	}
	if message.Document != nil && message.Document.FileID != "" {
		note := fmt.Sprintf("uploaded %s to %s", message.Document.FileName, filepath.Join(sess.WorkingDirectory, message.Document.FileName))
		a.deps.Sessions.AddPendingUpload(key, note)
	}
}

func (a *Adapter) send(ctx context.Context, chatID int64, text string) {
	if _, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		log.Printf("[TGBOT] failed to send message: %v", err)
	}
}

func (a *Adapter) runAgent(ctx context.Context, key sessions.Key, chatID int64, reactionMessageID int, prompt string) {
	token := agentproc.NewCancelToken()
	if !a.registry.Start(key, token) {
		a.send(ctx, chatID, "a request is already in progress in this chat.")
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
		sk := &sink{bot: a.bot, chatID: chatID, reactionMessageID: reactionMessageID}

		result, err := a.presenter.Run(context.Background(), key.ConversationKey, presenter.LimitSurfaceB, stream, sk, token)
		if err != nil {
			log.Printf("[TGBOT] presenter error: %v", err)
			return
		}

		if result.SessionID != "" {
			a.deps.Sessions.SetAgentSessionID(key, result.SessionID)
		}
		a.deps.Sessions.Append(key, sessions.HistoryItem{Kind: sessions.Assistant, Content: result.FinalText})
		if err := a.deps.Sessions.Persist(key); err != nil {
			log.Printf("[TGBOT] failed to persist session: %v", err)
		}
		if a.dashboard != nil && result.SessionID != "" {
			a.dashboard.PublishStatus(result.SessionID, "idle")
		}
	}()
}

// AskUserChoice relays a tool-permission prompt as an inline keyboard with
// approve/reject/always-allow buttons and blocks for the user's choice,
// supplementing the surface-relay half of the original service's
// permission-prompt flow (the reasoning about when to ask is out of scope).
func (a *Adapter) AskUserChoice(ctx context.Context, chatID int64, question string) (AskChoice, error) {
	respCh := make(chan AskChoice, 1)
	a.pendingMu.Lock()
	a.pending[chatID] = respCh
	a.pendingMu.Unlock()

	keyboard := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Yes", CallbackData: string(AskApprove)},
				{Text: "❌ No", CallbackData: string(AskReject)},
			},
			{
				{Text: "🛡️ Always Allow", CallbackData: string(AskAlwaysAllow)},
			},
		},
	}

	if _, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        format.ToTelegramHTML(question),
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: keyboard,
	}); err != nil {
		a.pendingMu.Lock()
		delete(a.pending, chatID)
		a.pendingMu.Unlock()
		return "", fmt.Errorf("failed to send permission prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		a.pendingMu.Lock()
		delete(a.pending, chatID)
		a.pendingMu.Unlock()
		return "", ctx.Err()
	case choice := <-respCh:
		return choice, nil
	}
}

// sink implements presenter.Sink against a single Telegram chat.
type sink struct {
	bot               *bot.Bot
	chatID            int64
	reactionMessageID int
}

func (sk *sink) Send(ctx context.Context, text string) (string, error) {
	msg, err := sk.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    sk.chatID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", msg.ID), nil
}

func (sk *sink) Edit(ctx context.Context, messageID, text string) error {
	id, err := parseMessageID(messageID)
	if err != nil {
		return err
	}
	_, err = sk.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    sk.chatID,
		MessageID: id,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	return err
}

func (sk *sink) Delete(ctx context.Context, messageID string) error {
	id, err := parseMessageID(messageID)
	if err != nil {
		return err
	}
	_, err = sk.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: sk.chatID, MessageID: id})
	return err
}

func (sk *sink) AddReaction(ctx context.Context, kind presenter.Reaction) error {
	emoji := reactionEmoji(kind)
	if emoji == "" || sk.reactionMessageID == 0 {
		return nil
	}
	_, err := sk.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    sk.chatID,
		MessageID: sk.reactionMessageID,
		Reaction:  []models.ReactionType{{Type: models.ReactionTypeTypeEmoji, ReactionTypeEmoji: &models.ReactionTypeEmoji{Emoji: emoji}}},
	})
	return err
}

func (sk *sink) RemoveReaction(ctx context.Context, kind presenter.Reaction) error {
	if sk.reactionMessageID == 0 {
		return nil
	}
	_, err := sk.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    sk.chatID,
		MessageID: sk.reactionMessageID,
		Reaction:  []models.ReactionType{},
	})
	return err
}

func (sk *sink) SendLong(ctx context.Context, text string) error {
	chunks := presenter.SplitMessage(text, presenter.LimitSurfaceB)
	for i, chunk := range chunks {
		if _, err := sk.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    sk.chatID,
			Text:      format.ToTelegramHTML(chunk),
			ParseMode: models.ParseModeHTML,
		}); err != nil {
			return err
		}
		if i < len(chunks)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return nil
}

func parseMessageID(s string) (int, error) {
	var id int
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid telegram message id %q: %w", s, err)
	}
	return id, nil
}

// SendFile delivers a local file as a Telegram document; invoked by the
// cokacdir-sendfile subprocess helper on the agent's behalf.
func SendFile(ctx context.Context, token string, chatID int64, path, caption string) error {
	tgBot, err := bot.New(token)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = tgBot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filepath.Base(path), Data: file},
		Caption:  format.ToTelegramHTML(caption),
	})
	return err
}
