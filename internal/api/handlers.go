package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/crm"
	"github.com/kiberone/kiberbot/internal/db"
	"github.com/kiberone/kiberbot/internal/models"
)

// minDirectorMessage is the shortest accepted director message, in runes.
const minDirectorMessage = 5

const (
	defaultMessageList = 50
	maxMessageList     = 500
)

const notRegistered = "Пользователь не найден в CRM"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}

// Public handlers
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "KIBERone Backend API",
		"version": version,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// customerFor resolves the telegram_id query parameter to a CRM customer,
// writing the error response itself when it cannot.
func (a *API) customerFor(w http.ResponseWriter, r *http.Request) (*crm.Customer, bool) {
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if err != nil || telegramID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return nil, false
	}

	customer := a.crm.FindCustomerByExternalID(r.Context(), telegramID)
	if customer == nil {
		writeError(w, http.StatusNotFound, notRegistered)
		return nil, false
	}
	return customer, true
}

func (a *API) focusGroup(r *http.Request, customer *crm.Customer) string {
	groups := customer.Groups
	if len(groups) == 0 {
		groups = a.crm.GetGroups(r.Context(), customer.ID)
	}
	if len(groups) == 0 {
		return ""
	}
	return groups[0]
}

// balanceOf reads the balance from the customer record, fetching it from the
// CRM when the record came without one.
func (a *API) balanceOf(r *http.Request, customer *crm.Customer) crm.Balance {
	if customer.HasBalance() {
		return crm.BalanceOf(customer)
	}
	return a.crm.GetBalance(r.Context(), customer.ID)
}

type customerResponse struct {
	ID           int64                      `json:"id"`
	Name         string                     `json:"name"`
	CustomFields map[string]json.RawMessage `json:"custom_fields"`
	Groups       []string                   `json:"groups"`
	Balance      crm.Balance                `json:"balance"`
}

// Client handlers
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	customer, ok := a.customerFor(w, r)
	if !ok {
		return
	}

	balance := a.balanceOf(r, customer)
	writeJSON(w, http.StatusOK, models.UserProfile{
		ID:          customer.ID,
		FullName:    customer.Name,
		GroupName:   a.focusGroup(r, customer),
		Balance:     balance.Balance,
		PaidLessons: balance.PaidLessons,
		BonusPoints: balance.BonusPoints,
	})
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	customer, ok := a.customerFor(w, r)
	if !ok {
		return
	}

	balance := a.balanceOf(r, customer)
	writeJSON(w, http.StatusOK, models.BalanceResponse{
		FocusGroup:     a.focusGroup(r, customer),
		MoneyBalance:   balance.Balance,
		PaidLessons:    balance.PaidLessons,
		CyberonBalance: balance.BonusPoints,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	customer, ok := a.customerFor(w, r)
	if !ok {
		return
	}

	txs := a.crm.GetTransactions(r.Context(), customer.ID, crm.DefaultTransactions)
	history := models.FinanceHistory{
		FocusGroup:   a.focusGroup(r, customer),
		Transactions: make([]models.FinanceRecord, 0, len(txs)),
	}
	for _, tx := range txs {
		history.Transactions = append(history.Transactions, models.FinanceRecord{
			Type:        tx.Type,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Description: tx.Description,
			Date:        tx.Date,
		})
	}
	writeJSON(w, http.StatusOK, history)
}

// Admin handlers
func rulesKind(r *http.Request) (string, bool) {
	kind := mux.Vars(r)["kind"]
	return kind, kind == models.RulesBot || kind == models.RulesSchool
}

func (a *API) handleGetRules(w http.ResponseWriter, r *http.Request) {
	kind, ok := rulesKind(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown rules kind")
		return
	}

	rules, err := a.store.GetRules(r.Context(), kind)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusOK, models.Rules{})
		return
	}
	if err != nil {
		a.logger.WithError(err).WithField("kind", kind).Error("failed to load rules")
		writeError(w, http.StatusInternalServerError, "failed to load rules")
		return
	}
	writeJSON(w, http.StatusOK, models.Rules{Text: rules.Text})
}

func (a *API) handleSetRules(w http.ResponseWriter, r *http.Request) {
	kind, ok := rulesKind(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown rules kind")
		return
	}

	var req models.Rules
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.store.SetRules(r.Context(), kind, strings.TrimSpace(req.Text)); err != nil {
		a.logger.WithError(err).WithField("kind", kind).Error("failed to store rules")
		writeError(w, http.StatusInternalServerError, "failed to store rules")
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

func (a *API) handleSearchCustomers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}
	writeJSON(w, http.StatusOK, a.crm.SearchCustomers(r.Context(), q))
}

func (a *API) handleCustomerByPhone(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "missing phone")
		return
	}
	customer := a.crm.FindCustomerByPhone(r.Context(), phone)
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, customerResponse{
		ID:           customer.ID,
		Name:         customer.Name,
		CustomFields: customer.CustomFields,
		Groups:       customer.Groups,
		Balance:      a.balanceOf(r, customer),
	})
}

func (a *API) handleLinkCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	var req models.LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TelegramID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok := a.crm.UpdateExternalIDField(r.Context(), customerID, req.TelegramID, req.FieldKey)
	a.logger.WithFields(logrus.Fields{
		"customer_id": customerID,
		"telegram_id": req.TelegramID,
		"success":     ok,
	}).Info("customer link requested")
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: ok})
}

func (a *API) handleListDirectorMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageList
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxMessageList {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := a.store.ListDirectorMessages(r.Context(), limit)
	if err != nil {
		a.logger.WithError(err).Error("failed to list director messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []db.DirectorMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleDirectorMessage stores the message and forwards it to the directors'
// chat. It succeeds when at least one of the two worked.
func (a *API) handleDirectorMessage(w http.ResponseWriter, r *http.Request) {
	var req models.DirectorMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.TelegramID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	if utf8.RuneCountInString(req.Message) < minDirectorMessage {
		writeError(w, http.StatusUnprocessableEntity, "message is too short")
		return
	}

	ctx := r.Context()
	log := a.logger.WithField("telegram_id", req.TelegramID)

	saved, err := a.store.SaveDirectorMessage(ctx, req.TelegramID, req.UserName, req.Message)
	if err != nil {
		log.WithError(err).Error("failed to store director message")
	}

	delivered, err := a.notifier.Notify(ctx, req.TelegramID, req.UserName, req.Message)
	if err != nil {
		log.WithError(err).Warn("director message not forwarded")
	}

	if saved != nil && delivered {
		if err := a.store.MarkDelivered(ctx, saved.ID); err != nil {
			log.WithError(err).Warn("failed to mark director message delivered")
		}
	}

	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: saved != nil || delivered})
}
