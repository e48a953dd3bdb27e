package crm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"

	DefaultCurrency = "руб."
)

// Customer is a CRM customer record. Decoding never fails on a malformed
// field: such a field is left at its zero value.
type Customer struct {
	ID           int64                      `json:"id"`
	Name         string                     `json:"name"`
	CustomFields map[string]json.RawMessage `json:"custom_fields"`
	Groups       []string                   `json:"groups"`

	// balance holds the fields balance aliases are read from: the "balance"
	// sub-record, or the record itself when "balance" is a plain number.
	balance map[string]json.RawMessage
}

func (c *Customer) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*c = Customer{}
		return nil
	}

	*c = Customer{
		ID:           intOf(raw["id"]),
		Name:         stringOf(raw["name"]),
		CustomFields: map[string]json.RawMessage{},
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw["custom_fields"], &fields); err == nil && fields != nil {
		c.CustomFields = fields
	}

	if b, ok := raw["balance"]; ok {
		var sub map[string]json.RawMessage
		if err := json.Unmarshal(b, &sub); err == nil && sub != nil {
			c.balance = sub
		} else if isScalar(b) {
			c.balance = raw
		}
	}

	var groups []map[string]json.RawMessage
	if err := json.Unmarshal(raw["groups"], &groups); err == nil {
		for _, g := range groups {
			if name := stringOf(g["name"]); name != "" {
				c.Groups = append(c.Groups, name)
			}
		}
	}
	return nil
}

// HasExternalID reports whether any custom field (or only key, when key is
// non-empty) holds id as a string or an integer.
func (c *Customer) HasExternalID(id int64, key string) bool {
	want := strconv.FormatInt(id, 10)
	if key != "" {
		return fieldEquals(c.CustomFields[key], want)
	}
	for _, v := range c.CustomFields {
		if fieldEquals(v, want) {
			return true
		}
	}
	return false
}

func fieldEquals(raw json.RawMessage, want string) bool {
	raw = trimJSON(raw)
	if len(raw) == 0 {
		return false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		return strings.TrimSpace(s) == want
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false
	}
	return strconv.FormatInt(n, 10) == want
}

// Balance is the normalized balance of a customer.
type Balance struct {
	Balance     decimal.Decimal `json:"balance"`
	PaidLessons int             `json:"paid_lessons"`
	BonusPoints int             `json:"bonus_points"`
}

var (
	balanceKeys     = []string{"balance"}
	paidLessonKeys  = []string{"lesson_balance", "paid_lesson_count"}
	bonusPointsKeys = []string{"bonus_balance", "balance_bonus"}
)

// HasBalance reports whether the record carried balance data.
func (c *Customer) HasBalance() bool {
	return c != nil && c.balance != nil
}

// BalanceOf reshapes the balance data of c. Absent or non-numeric fields are zero.
func BalanceOf(c *Customer) Balance {
	if c == nil || c.balance == nil {
		return Balance{}
	}
	return Balance{
		Balance:     decimalOf(first(c.balance, balanceKeys)),
		PaidLessons: int(intOf(first(c.balance, paidLessonKeys))),
		BonusPoints: int(intOf(first(c.balance, bonusPointsKeys))),
	}
}

// Transaction is a normalized customer transaction.
type Transaction struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// ReshapeTransaction converts a raw CRM transaction. Payments and incoming
// corrections are income, everything else is expense; the amount is always
// a magnitude.
func ReshapeTransaction(raw map[string]json.RawMessage) Transaction {
	tx := Transaction{
		Type:        TransactionExpense,
		Amount:      decimalOf(raw["value"]).Abs(),
		Currency:    stringOf(raw["currency"]),
		Description: stringOf(raw["comment"]),
		Date:        stringOf(raw["date"]),
	}
	switch stringOf(raw["type"]) {
	case "payment", "correction_in":
		tx.Type = TransactionIncome
	}
	if tx.Currency == "" {
		tx.Currency = DefaultCurrency
	}
	return tx
}

func first(m map[string]json.RawMessage, keys []string) json.RawMessage {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func trimJSON(raw json.RawMessage) json.RawMessage {
	return json.RawMessage(strings.TrimSpace(string(raw)))
}

func isScalar(raw json.RawMessage) bool {
	raw = trimJSON(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '{', '[':
		return false
	}
	return string(raw) != "null"
}

// stringOf returns a JSON string's value or a number's literal text.
func stringOf(raw json.RawMessage) string {
	raw = trimJSON(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	if _, err := decimal.NewFromString(string(raw)); err == nil {
		return string(raw)
	}
	return ""
}

// decimalOf accepts JSON numbers and numeric strings; anything else is zero.
func decimalOf(raw json.RawMessage) decimal.Decimal {
	s := strings.TrimSpace(stringOf(raw))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func intOf(raw json.RawMessage) int64 {
	return decimalOf(raw).IntPart()
}
