package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/crm"
	"github.com/kiberone/kiberbot/internal/db"
)

const (
	serviceName = "kiberone-backend"
	version     = "1.0.0"
)

// CRM is the subset of *crm.Client the handlers use.
type CRM interface {
	FindCustomerByExternalID(ctx context.Context, id int64) *crm.Customer
	GetBalance(ctx context.Context, customerID int64) crm.Balance
	GetTransactions(ctx context.Context, customerID int64, limit int) []crm.Transaction
	GetGroups(ctx context.Context, customerID int64) []string
	FindCustomerByPhone(ctx context.Context, phone string) *crm.Customer
	SearchCustomers(ctx context.Context, query string) []map[string]any
	UpdateExternalIDField(ctx context.Context, customerID, externalID int64, fieldKey string) bool
}

// Store persists rules texts and director messages.
type Store interface {
	GetRules(ctx context.Context, kind string) (*db.Rules, error)
	SetRules(ctx context.Context, kind, text string) error
	SaveDirectorMessage(ctx context.Context, telegramID int64, userName, message string) (*db.DirectorMessage, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	ListDirectorMessages(ctx context.Context, limit int) ([]db.DirectorMessage, error)
}

// Notifier forwards director messages.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, userName, message string) (bool, error)
}

type Options struct {
	Bind         string
	CORSOrigins  []string
	ServiceToken string
	JWTSecret    string
	TokenTTL     time.Duration
}

type API struct {
	router   *mux.Router
	crm      CRM
	store    Store
	notifier Notifier
	logger   *logrus.Logger
	opts     Options
	server   *http.Server

	jwtSecret []byte
}

func New(opts Options, c CRM, store Store, notifier Notifier, logger *logrus.Logger) *API {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	api := &API{
		router:    mux.NewRouter(),
		crm:       c,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
		jwtSecret: []byte(opts.JWTSecret),
	}

	api.setupRoutes()
	api.server = &http.Server{
		Addr:              opts.Bind,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(a.logRequests)

	// Public endpoints
	a.router.HandleFunc("/", a.handleRoot).Methods("GET")
	a.router.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Protected endpoints
	protected := a.router.NewRoute().Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/auth/token", a.handleIssueToken).Methods("POST")

	protected.HandleFunc("/users/profile", a.handleProfile).Methods("GET")
	protected.HandleFunc("/finance/balance", a.handleBalance).Methods("GET")
	protected.HandleFunc("/finance/history", a.handleHistory).Methods("GET")

	protected.HandleFunc("/messages/director", a.handleDirectorMessage).Methods("POST")

	// Admin endpoints
	protected.HandleFunc("/admin/rules/{kind}", a.requireAdmin(a.handleGetRules)).Methods("GET")
	protected.HandleFunc("/admin/rules/{kind}", a.requireAdmin(a.handleSetRules)).Methods("PUT")
	protected.HandleFunc("/admin/customers/search", a.requireAdmin(a.handleSearchCustomers)).Methods("GET")
	protected.HandleFunc("/admin/customers/by-phone", a.requireAdmin(a.handleCustomerByPhone)).Methods("GET")
	protected.HandleFunc("/admin/customers/{id:[0-9]+}/link", a.requireAdmin(a.handleLinkCustomer)).Methods("POST")
	protected.HandleFunc("/messages/director", a.requireAdmin(a.handleListDirectorMessages)).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	origins := a.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Credentials stay off while the wildcard origin is allowed.
	corsOptions := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !containsWildcard(origins),
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	a.logger.WithField("bind", a.opts.Bind).Info("API server listening")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
