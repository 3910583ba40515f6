package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// Telegram renames channels and groups through the Bot API chat title.
type Telegram struct {
	bot *tele.Bot
}

func NewTelegram(b *tele.Bot) *Telegram {
	return &Telegram{bot: b}
}

// Label returns the chat title.
func (t *Telegram) Label(ctx context.Context, entityID string) (string, error) {
	id, err := parseChatID(entityID)
	if err != nil {
		return "", err
	}
	chat, err := call(ctx, func() (*tele.Chat, error) {
		return t.bot.ChatByID(id)
	})
	if err != nil {
		return "", telegramError(err)
	}
	return chat.Title, nil
}

// Rename sets the chat title. Telegram rejects a title equal to the current
// one; that is reported as success.
func (t *Telegram) Rename(ctx context.Context, entityID, label string) error {
	id, err := parseChatID(entityID)
	if err != nil {
		return err
	}
	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, t.bot.SetGroupTitle(&tele.Chat{ID: id}, label)
	})
	if err != nil && strings.Contains(err.Error(), "chat title is not modified") {
		return nil
	}
	if err != nil {
		return telegramError(err)
	}
	return nil
}

func parseChatID(entityID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(entityID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid telegram chat id %q", ErrNotFound, entityID)
	}
	return id, nil
}

// telegramError maps Bot API errors onto ErrForbidden / ErrNotFound.
func telegramError(err error) error {
	switch {
	case errors.Is(err, tele.ErrChatNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case isAccessError(err):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "chat not found"):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case strings.Contains(msg, "Forbidden:"), strings.Contains(msg, "not enough rights"):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return err
}

// isAccessError reports whether a Telegram API error means the bot lost access to a chat.
func isAccessError(err error) bool {
	return errors.Is(err, tele.ErrKickedFromGroup) ||
		errors.Is(err, tele.ErrKickedFromSuperGroup) ||
		errors.Is(err, tele.ErrKickedFromChannel) ||
		errors.Is(err, tele.ErrNotChannelMember) ||
		errors.Is(err, tele.ErrNoRightsToSend)
}
