package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/backend"
	"github.com/kiberone/kiberbot/internal/crm"
	"github.com/kiberone/kiberbot/internal/models"
)

const (
	historyShown       = 10
	minDirectorMessage = 5
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, chatID, userID)
		case "cancel":
			b.handleCancel(chatID, userID)
		case "link":
			b.handleLink(ctx, chatID, userID, msg.CommandArguments())
		default:
			b.replyWithMenu(chatID, textUnknown)
		}
		return
	}

	if b.stateOf(userID) == stateWaitingDirectorMessage {
		b.handleDirectorMessage(ctx, msg, text)
		return
	}

	switch text {
	case btnBalance:
		b.handleBalance(ctx, chatID, userID)
	case btnFinances:
		b.handleFinances(ctx, chatID, userID)
	case btnBotRules:
		b.handleRules(ctx, chatID, userID, b.backend.GetBotRules,
			"📋 <b>Правила использования бота</b>\n\n", textBotRulesDefault, textBotRulesFailed)
	case btnSchool:
		b.handleRules(ctx, chatID, userID, b.backend.GetSchoolRules,
			"🏫 <b>Правила школы KIBERone</b>\n\n", textSchoolRulesDefault, textSchoolRulesFailed)
	case btnQR:
		b.reply(chatID, textQR)
	case btnCyberons:
		b.reply(chatID, textCyberons)
	case btnDirector:
		b.setState(userID, stateWaitingDirectorMessage)
		b.replyRemoveKeyboard(chatID, textDirectorPrompt)
	default:
		b.replyWithMenu(chatID, textUnknown)
	}
}

// failureText picks the reply for a failed backend call.
func (b *Bot) failureText(err error, fallback string) string {
	switch {
	case backend.IsTimeout(err):
		return textTimeout
	case errors.Is(err, backend.ErrUnauthorized):
		return textAuthFailed
	default:
		return fallback
	}
}

func (b *Bot) logFailure(err error, op string, userID int64) {
	b.logger.WithError(err).WithFields(logrus.Fields{
		"op":          op,
		"telegram_id": userID,
	}).Error("backend call failed")
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64) {
	b.logger.WithField("telegram_id", userID).Info("user started bot")

	profile, err := b.backend.GetProfile(ctx, userID)
	switch {
	case backend.IsNotFound(err):
		b.replyRemoveKeyboard(chatID, textNotRegistered)
		return
	case err != nil:
		b.logFailure(err, "get_profile", userID)
		b.replyRemoveKeyboard(chatID, b.failureText(err, textStartFailed))
		return
	case profile == nil || profile.FullName == "":
		b.replyRemoveKeyboard(chatID, textNotRegistered)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👋 Добро пожаловать, <b>%s</b>!\n\n", escape(profile.FullName))
	sb.WriteString("✅ Вы успешно авторизованы в системе KIBERone.\n")
	if profile.GroupName != "" {
		fmt.Fprintf(&sb, "🏫 Ваша группа: <b>%s</b>\n\n", escape(profile.GroupName))
	}
	sb.WriteString("Выберите нужный раздел:")
	b.replyWithMenu(chatID, sb.String())
}

func (b *Bot) handleBalance(ctx context.Context, chatID, userID int64) {
	bal, err := b.backend.GetBalance(ctx, userID)
	if err != nil {
		b.logFailure(err, "get_balance", userID)
		b.reply(chatID, b.failureText(err, textBalanceFailed))
		return
	}

	group := bal.FocusGroup
	if group == "" {
		group = "Основная группа"
	}
	b.reply(chatID, fmt.Sprintf("💰 <b>Баланс</b>\n\n"+
		"<b>1. %s</b>\n"+
		"📊 Баланс: <b>%s %s</b>\n"+
		"🎓 Оплаченных занятий: <b>%d</b>\n"+
		"🪙 Баланс киберонов: <b>%d</b>\n\n"+
		"<i>Данные обновляются автоматически</i>",
		escape(group), bal.MoneyBalance.String(), crm.DefaultCurrency, bal.PaidLessons, bal.CyberonBalance))
}

func (b *Bot) handleFinances(ctx context.Context, chatID, userID int64) {
	history, err := b.backend.GetFinanceHistory(ctx, userID)
	if err != nil {
		b.logFailure(err, "get_finance_history", userID)
		b.reply(chatID, b.failureText(err, textFinancesFailed))
		return
	}

	group := history.FocusGroup
	if group == "" {
		group = "Ваша группа"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 <b>Финансы: %s</b>\n\n", escape(group))

	txs := history.Transactions
	if len(txs) == 0 {
		sb.WriteString("📭 История финансов пуста.\n" +
			"Данные обновляются раз в 15 минут.\n\n" +
			"<i>Здесь будут отображаться все ваши платежи и операции</i>")
		b.reply(chatID, sb.String())
		return
	}

	shown := txs
	if len(shown) > historyShown {
		shown = shown[:historyShown]
	}
	for _, tx := range shown {
		emoji, sign := "📤", "-"
		if tx.Type == crm.TransactionIncome {
			emoji, sign = "📥", "+"
		}
		date := tx.Date
		if date == "" {
			date = "Неизвестно"
		}
		desc := tx.Description
		if desc == "" {
			desc = "Без описания"
		}
		currency := tx.Currency
		if currency == "" {
			currency = crm.DefaultCurrency
		}
		fmt.Fprintf(&sb, "%s <b>%s</b>\n   %s%s %s\n   <i>%s</i>\n\n",
			emoji, escape(date), sign, tx.Amount.String(), escape(currency), escape(desc))
	}
	fmt.Fprintf(&sb, "<i>Показано %d из %d операций</i>", len(shown), len(txs))
	b.reply(chatID, sb.String())
}

func (b *Bot) handleRules(ctx context.Context, chatID, userID int64, load func(context.Context) (*models.Rules, error), header, fallback, failed string) {
	rules, err := load(ctx)
	if err != nil {
		b.logFailure(err, "get_rules", userID)
		b.reply(chatID, b.failureText(err, failed))
		return
	}
	if rules == nil || strings.TrimSpace(rules.Text) == "" {
		b.reply(chatID, fallback)
		return
	}
	b.reply(chatID, header+rules.Text)
}

func (b *Bot) handleDirectorMessage(ctx context.Context, msg *tgbotapi.Message, text string) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if utf8.RuneCountInString(text) < minDirectorMessage {
		b.reply(chatID, textDirectorTooShort)
		return
	}
	// A concurrent update from the same user may already have consumed the form.
	if !b.takeState(userID, stateWaitingDirectorMessage) {
		return
	}

	ok, err := b.backend.SendToDirector(ctx, userID, text, displayName(msg.From))
	switch {
	case err != nil:
		b.logFailure(err, "send_to_director", userID)
		b.replyWithMenu(chatID, b.failureText(err, textDirectorFailed))
	case ok:
		b.logger.WithField("telegram_id", userID).Info("director message sent")
		b.replyWithMenu(chatID, textDirectorSent)
	default:
		b.replyWithMenu(chatID, textDirectorNotSent)
	}
}

func (b *Bot) handleCancel(chatID, userID int64) {
	if b.takeState(userID, stateWaitingDirectorMessage) {
		b.replyWithMenu(chatID, textDirectorCancelled)
		return
	}
	b.replyWithMenu(chatID, textNothingToCancel)
}

// handleLink binds a CRM customer to a Telegram account: /link <customer_id> <telegram_id>.
func (b *Bot) handleLink(ctx context.Context, chatID, userID int64, args string) {
	if !b.admins[userID] {
		b.reply(chatID, textLinkForbidden)
		return
	}

	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(chatID, textLinkUsage)
		return
	}
	customerID, err1 := strconv.ParseInt(fields[0], 10, 64)
	telegramID, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil || customerID <= 0 || telegramID <= 0 {
		b.reply(chatID, textLinkUsage)
		return
	}

	ok, err := b.backend.LinkCustomer(ctx, customerID, telegramID)
	switch {
	case err != nil:
		b.logFailure(err, "link_customer", userID)
		b.reply(chatID, b.failureText(err, fmt.Sprintf(textLinkFailed, customerID)))
	case ok:
		b.logger.WithFields(logrus.Fields{"customer_id": customerID, "linked_telegram_id": telegramID, "admin": userID}).Info("customer linked")
		b.reply(chatID, fmt.Sprintf(textLinkDone, customerID, telegramID))
	default:
		b.reply(chatID, fmt.Sprintf(textLinkFailed, customerID))
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
