// Package notify forwards director messages to the directors' Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	sender Sender
	chat   string
	logger *logrus.Logger
}

// New connects to Telegram with token. An empty token yields a disabled
// notifier whose Notify always reports false.
func New(token, chatID string, logger *logrus.Logger) (*Telegram, error) {
	if token == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, director messages will only be stored")
		return &Telegram{logger: logger}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return NewWithSender(api, chatID, logger), nil
}

func NewWithSender(sender Sender, chatID string, logger *logrus.Logger) *Telegram {
	return &Telegram{sender: sender, chat: strings.TrimSpace(chatID), logger: logger}
}

func (t *Telegram) Enabled() bool {
	return t.sender != nil && t.chat != ""
}

// Notify sends one message to the directors' chat and reports whether
// Telegram accepted it.
func (t *Telegram) Notify(ctx context.Context, telegramID int64, userName, message string) (bool, error) {
	if !t.Enabled() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msg, err := t.message(Format(telegramID, userName, message))
	if err != nil {
		return false, err
	}
	if _, err := t.sender.Send(msg); err != nil {
		t.logger.WithError(err).WithField("telegram_id", telegramID).Error("failed to forward director message")
		return false, err
	}
	return true, nil
}

func (t *Telegram) message(text string) (tgbotapi.MessageConfig, error) {
	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(t.chat, "@") {
		msg = tgbotapi.NewMessageToChannel(t.chat, text)
	} else {
		id, err := strconv.ParseInt(t.chat, 10, 64)
		if err != nil {
			return msg, fmt.Errorf("invalid DIRECTORS_CHAT_ID %q: %w", t.chat, err)
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	return msg, nil
}

// Format renders a director message with user content escaped for HTML.
func Format(telegramID int64, userName, message string) string {
	from := strconv.FormatInt(telegramID, 10)
	if userName != "" {
		from = tgbotapi.EscapeText(tgbotapi.ModeHTML, userName) + " (" + from + ")"
	}
	return fmt.Sprintf("📨 <b>Сообщение директору</b>\n\n<b>От:</b> %s\n\n%s",
		from, tgbotapi.EscapeText(tgbotapi.ModeHTML, message))
}
