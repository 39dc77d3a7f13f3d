// Package bot is the Telegram transport: it logs users in on every message,
// routes commands, and renders reply fragments as chat messages.
package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gotohe11/issuebot/internal/models"
	"github.com/gotohe11/issuebot/internal/router"
)

// UserSource registers or loads a user for an incoming message.
type UserSource interface {
	LoadOrCreateUser(id, name string) (*models.User, error)
}

// Bot runs the Telegram side of the service.
type Bot struct {
	api    *tgbotapi.BotAPI
	router *router.Router
	users  UserSource
}

// New creates the bot for a Telegram API token.
func New(token string, r *router.Router, users UserSource) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{api: api, router: r, users: users}, nil
}

// Username returns the bot account's Telegram username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run long-polls Telegram updates until the context is canceled. Updates
// are handled sequentially, so two commands of the same user never
// interleave.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	user, err := b.users.LoadOrCreateUser(userID, msg.From.FirstName)
	if err != nil {
		slog.Error("login failed", "user", userID, "error", err)
		b.sendPlain(msg.Chat.ID, "Something went wrong. Try again!")
		return
	}
	slog.Info("login", "user", user.ID, "name", user.Name)

	if msg.Command() == "start" {
		b.sendPlain(msg.Chat.ID, fmt.Sprintf(
			"Hi, %s! I am a bot that brings issues from github by your request.\n"+
				"Use /help command to understand what can i do.", msg.From.FirstName))
		return
	}

	frags, err := b.router.Execute(ctx, user, msg.Text)
	if err != nil {
		slog.Warn("command failed", "user", user.ID, "text", msg.Text, "error", err)
		b.sendPlain(msg.Chat.ID, fmt.Sprintf("Something went wrong: %q.\nTry again!", err))
		return
	}
	b.sendFragments(msg.Chat.ID, frags)
}

// Notify pushes scheduled-check results to a user. The user ID doubles as
// the Telegram chat ID.
func (b *Bot) Notify(userID string, frags []router.Fragment) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		slog.Error("bad chat id", "user", userID, "error", err)
		return
	}
	b.sendFragments(chatID, frags)
}

// NotifyError tells a user the scheduled check could not reach GitHub.
func (b *Bot) NotifyError(userID string) {
	b.Notify(userID, []router.Fragment{
		{Text: "Error communication with GitHub. Try later!", Header: true},
	})
}

// sendFragments sends header fragments bold and issue rows plain, one
// message per fragment, matching the original chat layout.
func (b *Bot) sendFragments(chatID int64, frags []router.Fragment) {
	for _, frag := range frags {
		if frag.Header {
			m := tgbotapi.NewMessage(chatID, "<b>"+html.EscapeString(frag.Text)+"</b>")
			m.ParseMode = tgbotapi.ModeHTML
			b.send(m)
			continue
		}
		b.sendPlain(chatID, frag.Text)
	}
}

func (b *Bot) sendPlain(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("send failed", "chat", msg.ChatID, "error", err)
	}
}
