// Package crm is a client for the AlfaCRM REST API.
//
// Every operation degrades to a safe default when the CRM fails: lookups
// return nil, empty slices or a zero Balance and the update reports false.
// The failure is logged with its kind but not returned, so "customer does
// not exist" and "CRM unreachable" look the same to callers.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/httpclient"
)

const (
	TokenHeader = "X-ALFACRM-TOKEN"

	DefaultExternalIDField = "1"
	DefaultTransactions    = 50
)

// BaseURL builds the API root of one CRM branch.
func BaseURL(hostname string, branchID int) string {
	return fmt.Sprintf("https://%s/v2api/%d", hostname, branchID)
}

type Client struct {
	exec        *httpclient.Executor
	logger      *logrus.Logger
	fieldKey    string
	strictField bool
}

type options struct {
	timeout     time.Duration
	fieldKey    string
	strictField bool
}

type Option func(*options)

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithExternalIDField names the custom field that stores the external id.
// With strict set, lookups inspect only that field instead of scanning all
// custom fields.
func WithExternalIDField(key string, strict bool) Option {
	return func(o *options) {
		o.fieldKey = key
		o.strictField = strict
	}
}

func New(baseURL, apiKey string, logger *logrus.Logger, opts ...Option) *Client {
	o := options{fieldKey: DefaultExternalIDField}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	exec := httpclient.New(httpclient.Config{
		Name:    "alfacrm",
		BaseURL: baseURL,
		Headers: http.Header{
			"Accept":       []string{"application/json"},
			"Content-Type": []string{"application/json"},
		},
		Auth:    httpclient.HeaderAuth(TokenHeader, apiKey),
		Timeout: o.timeout,
	}, logger)

	logger.WithField("base_url", exec.BaseURL()).Info("AlfaCRM client initialized")

	return &Client{
		exec:        exec,
		logger:      logger,
		fieldKey:    o.fieldKey,
		strictField: o.strictField,
	}
}

type customerList struct {
	Items []Customer `json:"items"`
}

type rawList struct {
	Items []map[string]json.RawMessage `json:"items"`
}

func (c *Client) listCustomers(ctx context.Context, q url.Values) ([]Customer, error) {
	var resp customerList
	if err := c.exec.Do(ctx, http.MethodGet, "/customer/index", &resp, httpclient.WithQuery(q)); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) customerByID(ctx context.Context, customerID int64, with ...string) (*Customer, error) {
	q := url.Values{"id": {strconv.FormatInt(customerID, 10)}}
	for _, w := range with {
		q.Add("with", w)
	}
	items, err := c.listCustomers(ctx, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (c *Client) degrade(op string, err error, fields logrus.Fields) {
	c.logger.WithFields(fields).
		WithField("op", op).
		WithField("kind", httpclient.KindOf(err).String()).
		WithError(err).
		Error("CRM request failed, using default")
}

// FindCustomerByExternalID scans the first page of customers for one whose
// custom fields hold id. Only one page is fetched.
func (c *Client) FindCustomerByExternalID(ctx context.Context, id int64) *Customer {
	q := url.Values{
		"page": {"0"},
		"with": {"customers", "customers.custom_fields", "customers.balance"},
	}
	items, err := c.listCustomers(ctx, q)
	if err != nil {
		c.degrade("find_by_external_id", err, logrus.Fields{"external_id": id})
		return nil
	}

	key := ""
	if c.strictField {
		key = c.fieldKey
	}
	for i := range items {
		if items[i].HasExternalID(id, key) {
			return &items[i]
		}
	}
	return nil
}

func (c *Client) FindCustomerByPhone(ctx context.Context, phone string) *Customer {
	q := url.Values{
		"page":  {"0"},
		"phone": {phone},
		"with":  {"customers", "customers.custom_fields", "customers.balance"},
	}
	items, err := c.listCustomers(ctx, q)
	if err != nil {
		c.degrade("find_by_phone", err, logrus.Fields{"phone": phone})
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	return &items[0]
}

func (c *Client) GetBalance(ctx context.Context, customerID int64) Balance {
	customer, err := c.customerByID(ctx, customerID, "balance")
	if err != nil {
		c.degrade("get_balance", err, logrus.Fields{"customer_id": customerID})
		return Balance{}
	}
	return BalanceOf(customer)
}

// GetTransactions returns at most limit transactions, newest first.
func (c *Client) GetTransactions(ctx context.Context, customerID int64, limit int) []Transaction {
	if limit <= 0 {
		return []Transaction{}
	}

	q := url.Values{
		"page":        {"0"},
		"customer_id": {strconv.FormatInt(customerID, 10)},
		"with":        {"transactions"},
		"limit":       {strconv.Itoa(limit)},
		"order":       {"date_desc"},
	}
	var resp rawList
	if err := c.exec.Do(ctx, http.MethodGet, "/transaction/index", &resp, httpclient.WithQuery(q)); err != nil {
		c.degrade("get_transactions", err, logrus.Fields{"customer_id": customerID})
		return []Transaction{}
	}

	items := resp.Items
	if len(items) > limit {
		items = items[:limit]
	}
	txs := make([]Transaction, 0, len(items))
	for _, item := range items {
		txs = append(txs, ReshapeTransaction(item))
	}
	return txs
}

func (c *Client) GetGroups(ctx context.Context, customerID int64) []string {
	customer, err := c.customerByID(ctx, customerID, "groups")
	if err != nil {
		c.degrade("get_groups", err, logrus.Fields{"customer_id": customerID})
		return []string{}
	}
	if customer == nil || customer.Groups == nil {
		return []string{}
	}
	return customer.Groups
}

// SearchCustomers passes query to the CRM search and returns the raw items.
func (c *Client) SearchCustomers(ctx context.Context, query string) []map[string]any {
	q := url.Values{
		"page":   {"0"},
		"search": {query},
		"with":   {"customers", "customers.custom_fields"},
	}
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	if err := c.exec.Do(ctx, http.MethodGet, "/customer/index", &resp, httpclient.WithQuery(q)); err != nil {
		c.degrade("search_customers", err, logrus.Fields{"query": query})
		return []map[string]any{}
	}
	if resp.Items == nil {
		return []map[string]any{}
	}
	return resp.Items
}

// UpdateExternalIDField stores externalID in the fieldKey custom field of the
// customer (the configured field when fieldKey is empty), keeping the other
// custom fields as they are.
func (c *Client) UpdateExternalIDField(ctx context.Context, customerID, externalID int64, fieldKey string) bool {
	if fieldKey == "" {
		fieldKey = c.fieldKey
	}
	fields := logrus.Fields{"customer_id": customerID, "external_id": externalID, "field": fieldKey}

	customer, err := c.customerByID(ctx, customerID)
	if err != nil {
		c.degrade("update_external_id", err, fields)
		return false
	}
	if customer == nil {
		c.logger.WithFields(fields).Warn("customer not found, external id not stored")
		return false
	}

	custom := make(map[string]any, len(customer.CustomFields)+1)
	for k, v := range customer.CustomFields {
		custom[k] = v
	}
	custom[fieldKey] = strconv.FormatInt(externalID, 10)

	body := map[string]any{
		"id":            customerID,
		"custom_fields": custom,
	}
	if err := c.exec.Do(ctx, http.MethodPost, "/customer/update", nil, httpclient.WithJSON(body)); err != nil {
		c.degrade("update_external_id", err, fields)
		return false
	}

	c.logger.WithFields(fields).Info("external id stored in CRM")
	return true
}
