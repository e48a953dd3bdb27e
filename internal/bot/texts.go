package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Menu buttons. The button label is the text the bot receives.
const (
	btnBalance  = "Баланс"
	btnQR       = "Оплата по QR"
	btnBotRules = "Правила бота"
	btnSchool   = "Правила школы"
	btnCyberons = "Кибероны"
	btnFinances = "Финансы"
	btnDirector = "Написать директору"
)

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBalance),
			tgbotapi.NewKeyboardButton(btnQR),
			tgbotapi.NewKeyboardButton(btnBotRules),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSchool),
			tgbotapi.NewKeyboardButton(btnCyberons),
			tgbotapi.NewKeyboardButton(btnFinances),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDirector),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

const (
	textTimeout = "⏳ <b>Таймаут при подключении к серверу</b>\n\n" +
		"Сервер не ответил вовремя. Попробуйте позже."

	textAuthFailed = "❌ <b>Ошибка авторизации</b>\n\n" +
		"Пожалуйста, обратитесь к администратору для подключения бота."

	textNotRegistered = "❌ <b>Вы не зарегистрированы в системе</b>\n\n" +
		"Для подключения бота обратитесь к администрации школы.\n" +
		"Сообщите ваш телефон или ID ученика администратору."

	textStartFailed = "⚠️ <b>Произошла ошибка при подключении к системе</b>\n\n" +
		"Попробуйте позже или обратитесь к администратору."

	textBalanceFailed = "⚠️ <b>Не удалось загрузить данные о балансе</b>\n\n" +
		"Попробуйте позже или обратитесь к администратору."

	textFinancesFailed = "⚠️ <b>Не удалось загрузить историю финансов</b>\n\n" +
		"Попробуйте позже или обратитесь к администратору."

	textBotRulesFailed = "⚠️ <b>Не удалось загрузить правила бота</b>\n\n" +
		"Попробуйте позже."

	textSchoolRulesFailed = "⚠️ <b>Не удалось загрузить правила школы</b>\n\n" +
		"Попробуйте позже или обратитесь к администратору."

	textUnknown = "Выберите нужный раздел в меню."

	textInternalError = "⚠️ <b>Произошла внутренняя ошибка</b>\n\n" +
		"Попробуйте позже или обратитесь к администратору."
)

const textQR = "💳 <b>Оплата по QR</b>\n\n" +
	"🔧 Раздел в разработке. QR-код будет доступен позже.\n\n" +
	"Для оплаты вы можете:\n" +
	"1. Обратиться к администратору в школе\n" +
	"2. Использовать банковский перевод\n" +
	"3. Оплатить наличными в офисе\n\n" +
	"<i>Онлайн-оплата появится в ближайшее время!</i>"

const textBotRulesDefault = "ℹ️ <b>Правила использования бота</b>\n\n" +
	"1. Бот предназначен только для клиентов KIBERone\n" +
	"2. Запрещено спамить и использовать нецензурную лексику\n" +
	"3. Конфиденциальные данные не передаются третьим лицам\n" +
	"4. Администрация оставляет за собой право блокировки\n\n" +
	"<i>Полная версия правил скоро будет доступна</i>"

const textSchoolRulesDefault = "🏫 <b>Правила школы KIBERone</b>\n\n" +
	"Основные правила:\n\n" +
	"✅ <b>Посещение занятий:</b>\n" +
	"• Опоздание не более 15 минут\n" +
	"• Предупреждать об отсутствии за 24 часа\n" +
	"• Иметь сменную обувь\n\n" +
	"✅ <b>Поведение:</b>\n" +
	"• Уважительное отношение к преподавателям\n" +
	"• Бережное обращение с оборудованием\n" +
	"• Соблюдение чистоты в классах\n\n" +
	"✅ <b>Оплата:</b>\n" +
	"• Оплата до 10 числа каждого месяца\n" +
	"• Возврат средств за пропущенные занятия не предусмотрен\n" +
	"• Возможна заморозка абонемента по уважительной причине\n\n" +
	"<i>Полная версия правил доступна у администратора</i>"

const textCyberons = "🪙 <b>Кибероны - внутренняя валюта KIBERone</b>\n\n" +
	"🎯 <b>Как начисляются кибероны:</b>\n" +
	"• 1 киберон = 1 посещенное занятие\n" +
	"• +5 киберонов за приведенного друга\n" +
	"• +10 киберонов за отличную учебу (оценка 5)\n" +
	"• +15 киберонов за участие в конкурсах\n" +
	"• +20 киберонов за победу в олимпиаде\n\n" +
	"💰 <b>Как можно потратить кибероны:</b>\n" +
	"• 10 киберонов = 1 дополнительное занятие\n" +
	"• 25 киберонов = мерч KIBERone (футболка)\n" +
	"• 50 киберонов = участие в мастер-классе\n" +
	"• 100 киберонов = скидка 20% на следующий месяц\n" +
	"• 150 киберонов = бесплатный месяц обучения\n\n" +
	"📜 <b>Основные правила:</b>\n" +
	"1. Кибероны действуют в течение учебного года\n" +
	"2. Не подлежат обмену на денежные средства\n" +
	"3. Накопленные кибероны отображаются в разделе \"Баланс\"\n" +
	"4. Списываются автоматически при использовании\n\n" +
	"👨‍💻 <b>Текущий курс:</b>\n" +
	"1 киберон = 50 рублей (номинальная стоимость)\n\n" +
	"<i>Точные условия начисления и списания уточняйте у администратора школы.</i>"

const (
	textDirectorPrompt = "✍️ <b>Написать директору</b>\n\n" +
		"Пожалуйста, напишите ваше сообщение для директора школы.\n\n" +
		"<b>Что можно написать:</b>\n" +
		"• Предложения по улучшению работы школы\n" +
		"• Жалобы или замечания\n" +
		"• Благодарности преподавателям\n" +
		"• Идеи для новых курсов\n\n" +
		"<i>Сообщение будет прочитано лично директором.\n" +
		"Ответ поступит в течение 24 часов.\n\n" +
		"Для отмены отправьте /cancel</i>"

	textDirectorTooShort = "❌ Сообщение слишком короткое. " +
		"Пожалуйста, напишите подробнее (минимум 5 символов)."

	textDirectorSent = "✅ <b>Сообщение успешно отправлено!</b>\n\n" +
		"Ваше обращение зарегистрировано и будет рассмотрено в течение 24 часов.\n\n" +
		"Спасибо за ваше мнение и участие в жизни школы!"

	textDirectorNotSent = "⚠️ <b>Не удалось отправить сообщение</b>\n\n" +
		"Попробуйте позже или обратитесь к администратору лично."

	textDirectorFailed = "⚠️ <b>Произошла ошибка при отправке сообщения</b>\n\n" +
		"Попробуйте позже."

	textDirectorCancelled = "❌ Отправка сообщения директору отменена."
	textNothingToCancel   = "Нет активных действий для отмены."
)

const (
	textLinkUsage     = "Использование: <code>/link &lt;customer_id&gt; &lt;telegram_id&gt;</code>"
	textLinkForbidden = "⛔ Команда доступна только администраторам."
	textLinkDone      = "✅ Ученик %d привязан к Telegram ID %d."
	textLinkFailed    = "⚠️ Не удалось привязать ученика %d. Проверьте ID в CRM."
)
