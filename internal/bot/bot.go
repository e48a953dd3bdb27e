package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/models"
)

// Sender is the part of *tgbotapi.BotAPI used to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Backend is the backend API as seen by the bot.
type Backend interface {
	GetProfile(ctx context.Context, telegramID int64) (*models.UserProfile, error)
	GetBalance(ctx context.Context, telegramID int64) (*models.BalanceResponse, error)
	GetFinanceHistory(ctx context.Context, telegramID int64) (*models.FinanceHistory, error)
	GetBotRules(ctx context.Context) (*models.Rules, error)
	GetSchoolRules(ctx context.Context) (*models.Rules, error)
	SendToDirector(ctx context.Context, telegramID int64, message, userName string) (bool, error)
	LinkCustomer(ctx context.Context, customerID, telegramID int64) (bool, error)
}

type state int

const (
	stateNone state = iota
	stateWaitingDirectorMessage
)

type Bot struct {
	api     *tgbotapi.BotAPI
	sender  Sender
	backend Backend
	admins  map[int64]bool
	logger  *logrus.Logger

	mu     sync.Mutex
	states map[int64]state

	wg sync.WaitGroup
}

func New(token string, backend Backend, admins []int64, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b := NewWithSender(api, backend, admins, logger)
	b.api = api
	return b, nil
}

// NewWithSender builds a Bot that replies through sender. Run needs a Bot
// made by New; HandleUpdate works with either.
func NewWithSender(sender Sender, backend Backend, admins []int64, logger *logrus.Logger) *Bot {
	b := &Bot{
		sender:  sender,
		backend: backend,
		admins:  make(map[int64]bool, len(admins)),
		logger:  logger,
		states:  make(map[int64]state),
	}
	for _, id := range admins {
		b.admins[id] = true
	}
	return b
}

// Run polls Telegram until ctx is done, handling each update in its own
// goroutine. It waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return fmt.Errorf("bot has no telegram connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.WithField("username", b.api.Self.UserName).Info("telegram bot started")

	// Handlers finish their reply even when polling stops.
	handlerCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info("telegram bot stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(handlerCtx, upd)
			}()
		}
	}
}

// HandleUpdate routes one update. It never panics.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("panic", r).WithField("update_id", upd.UpdateID).Error("update handler panicked")
			if upd.Message != nil && upd.Message.Chat != nil {
				b.replyWithMenu(upd.Message.Chat.ID, textInternalError)
			}
		}
	}()

	msg := upd.Message
	if msg == nil || msg.From == nil {
		return
	}
	b.handleMessage(ctx, msg)
}

func (b *Bot) stateOf(userID int64) state {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[userID]
}

func (b *Bot) setState(userID int64, s state) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == stateNone {
		delete(b.states, userID)
		return
	}
	b.states[userID] = s
}

// takeState clears the user's state and reports whether it was s.
func (b *Bot) takeState(userID int64, s state) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.states[userID] != s {
		return false
	}
	delete(b.states, userID)
	return true
}

func (b *Bot) send(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Error("failed to send message")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) replyWithMenu(chatID int64, text string) {
	b.send(chatID, text, mainMenu())
}

func (b *Bot) replyRemoveKeyboard(chatID int64, text string) {
	b.send(chatID, text, tgbotapi.NewRemoveKeyboard(true))
}
