// Package backend is the bot's client for the backend API. Each method maps
// to one HTTP call; failures are returned as ErrUnauthorized, *TimeoutError,
// *ServerError or *ConnectionError.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/httpclient"
	"github.com/kiberone/kiberbot/internal/models"
)

type Client struct {
	exec *httpclient.Executor
}

func New(baseURL, token string, timeout time.Duration, logger *logrus.Logger) *Client {
	exec := httpclient.New(httpclient.Config{
		Name:    "backend",
		BaseURL: baseURL,
		Headers: http.Header{"Accept": []string{"application/json"}},
		Auth:    httpclient.BearerAuth(token),
		Timeout: timeout,
	}, logger)

	if logger != nil {
		logger.WithField("base_url", exec.BaseURL()).Info("backend client initialized")
	}
	return &Client{exec: exec}
}

func (c *Client) do(ctx context.Context, method, path string, out any, opts ...httpclient.Option) error {
	return translate(c.exec.Do(ctx, method, path, out, opts...))
}

func byTelegramID(id int64) httpclient.Option {
	return httpclient.WithQuery(url.Values{"telegram_id": {strconv.FormatInt(id, 10)}})
}

func (c *Client) GetProfile(ctx context.Context, telegramID int64) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/users/profile", &p, byTelegramID(telegramID)); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetBalance(ctx context.Context, telegramID int64) (*models.BalanceResponse, error) {
	var b models.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/finance/balance", &b, byTelegramID(telegramID)); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetFinanceHistory(ctx context.Context, telegramID int64) (*models.FinanceHistory, error) {
	var h models.FinanceHistory
	if err := c.do(ctx, http.MethodGet, "/finance/history", &h, byTelegramID(telegramID)); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) GetBotRules(ctx context.Context) (*models.Rules, error) {
	return c.rules(ctx, models.RulesBot)
}

func (c *Client) GetSchoolRules(ctx context.Context) (*models.Rules, error) {
	return c.rules(ctx, models.RulesSchool)
}

func (c *Client) rules(ctx context.Context, kind string) (*models.Rules, error) {
	var r models.Rules
	if err := c.do(ctx, http.MethodGet, "/admin/rules/"+kind, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SendToDirector forwards a free-text message and reports the backend's
// success flag.
func (c *Client) SendToDirector(ctx context.Context, telegramID int64, message, userName string) (bool, error) {
	req := models.DirectorMessageRequest{
		TelegramID: telegramID,
		Message:    message,
		UserName:   userName,
	}
	var resp models.SuccessResponse
	if err := c.do(ctx, http.MethodPost, "/messages/director", &resp, httpclient.WithJSON(req)); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// LinkCustomer stores telegramID in the CRM record of customerID.
func (c *Client) LinkCustomer(ctx context.Context, customerID, telegramID int64) (bool, error) {
	var resp models.SuccessResponse
	path := fmt.Sprintf("/admin/customers/%d/link", customerID)
	err := c.do(ctx, http.MethodPost, path, &resp, httpclient.WithJSON(models.LinkRequest{TelegramID: telegramID}))
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}
