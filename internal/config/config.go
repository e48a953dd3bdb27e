package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiberone/kiberbot/internal/crm"
)

// Bot configures cmd/kiberbot.
type Bot struct {
	// Telegram
	TelegramToken string
	Admins        []int64

	// Backend API
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration

	LogLevel string
}

// API configures cmd/kiberapi.
type API struct {
	// Web Server
	Bind        string
	CORSOrigins []string

	// Security
	ServiceToken string
	// JWTSecret signs issued tokens. Empty disables JWT auth.
	JWTSecret string
	TokenTTL     time.Duration

	// Database
	DatabaseURL string

	// AlfaCRM
	CRMHostname    string
	CRMBranchID    int
	CRMAPIKey      string
	CRMField       string
	CRMStrictField bool
	CRMTimeout     time.Duration

	// Telegram, for forwarding director messages
	TelegramToken   string
	DirectorsChatID string

	LogLevel string
}

// CRMBaseURL is the API root of the configured branch.
func (c *API) CRMBaseURL() string {
	return crm.BaseURL(c.CRMHostname, c.CRMBranchID)
}

func LoadBot() (*Bot, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Bot{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		BackendURL:    os.Getenv("BACKEND_API_URL"),
		BackendToken:  os.Getenv("BACKEND_API_TOKEN"),
		LogLevel:      getEnvDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Admins, err = parseIDs(os.Getenv("TELEGRAM_ADMINS")); err != nil {
		return nil, fmt.Errorf("TELEGRAM_ADMINS: %w", err)
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_API_URL is required")
	}
	if cfg.BackendToken == "" {
		return nil, fmt.Errorf("BACKEND_API_TOKEN is required")
	}

	return cfg, nil
}

func LoadAPI() (*API, error) {
	_ = godotenv.Load()

	cfg := &API{
		Bind:            getEnvDefault("API_BIND", "127.0.0.1:8000"),
		CORSOrigins:     splitList(getEnvDefault("CORS_ORIGINS", "*")),
		ServiceToken:    os.Getenv("BACKEND_API_TOKEN"),
		JWTSecret:       os.Getenv("SECRET_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CRMHostname:     os.Getenv("ALFACRM_HOSTNAME"),
		CRMAPIKey:       os.Getenv("ALFACRM_API_KEY"),
		CRMField:        getEnvDefault("ALFACRM_TELEGRAM_FIELD", crm.DefaultExternalIDField),
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		DirectorsChatID: os.Getenv("DIRECTORS_CHAT_ID"),
		LogLevel:        getEnvDefault("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("BACKEND_API_TOKEN is required")
	}
	if cfg.CRMHostname == "" {
		return nil, fmt.Errorf("ALFACRM_HOSTNAME is required")
	}
	if cfg.CRMAPIKey == "" {
		return nil, fmt.Errorf("ALFACRM_API_KEY is required")
	}

	branch := os.Getenv("ALFACRM_BRANCH_ID")
	if branch == "" {
		return nil, fmt.Errorf("ALFACRM_BRANCH_ID is required")
	}
	id, err := strconv.Atoi(branch)
	if err != nil {
		return nil, fmt.Errorf("ALFACRM_BRANCH_ID: %w", err)
	}
	cfg.CRMBranchID = id

	if cfg.CRMStrictField, err = getBool("ALFACRM_STRICT_FIELD", false); err != nil {
		return nil, err
	}
	if cfg.CRMTimeout, err = getDuration("ALFACRM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	minutes, err := strconv.Atoi(getEnvDefault("ACCESS_TOKEN_EXPIRE_MINUTES", "30"))
	if err != nil {
		return nil, fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
	}
	cfg.TokenTTL = time.Duration(minutes) * time.Minute

	if cfg.TelegramToken != "" && cfg.DirectorsChatID == "" {
		return nil, fmt.Errorf("DIRECTORS_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range splitList(s) {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
