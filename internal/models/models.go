// Package models holds the JSON contracts between the bot and the backend API.
package models

import (
	"github.com/shopspring/decimal"
)

// Rule kinds served under /admin/rules/{kind}.
const (
	RulesBot    = "bot"
	RulesSchool = "school"
)

// UserProfile is returned by GET /users/profile.
type UserProfile struct {
	ID          int64           `json:"id"`
	FullName    string          `json:"full_name"`
	GroupName   string          `json:"group_name,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	PaidLessons int             `json:"paid_lessons"`
	BonusPoints int             `json:"bonus_points"`
}

// BalanceResponse is returned by GET /finance/balance.
type BalanceResponse struct {
	FocusGroup     string          `json:"focus_group"`
	MoneyBalance   decimal.Decimal `json:"money_balance"`
	PaidLessons    int             `json:"paid_lessons"`
	CyberonBalance int             `json:"cyberon_balance"`
}

// FinanceRecord is one entry of FinanceHistory.
type FinanceRecord struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// FinanceHistory is returned by GET /finance/history, newest first.
type FinanceHistory struct {
	FocusGroup   string          `json:"focus_group"`
	Transactions []FinanceRecord `json:"transactions"`
}

type Rules struct {
	Text string `json:"text"`
}

// DirectorMessageRequest is the body of POST /messages/director.
type DirectorMessageRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Message    string `json:"message"`
	UserName   string `json:"user_name"`
}

// LinkRequest is the body of POST /admin/customers/{id}/link.
type LinkRequest struct {
	TelegramID int64  `json:"telegram_id"`
	FieldKey   string `json:"field_key,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
