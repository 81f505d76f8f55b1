package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"promptsmith/config"
	"promptsmith/shared"
)

const (
	settingAPIKey  = "api_key"
	settingAPIHost = "api_host"

	DefaultGeminiHost = "generativelanguage.googleapis.com"
	DefaultOpenAIHost = "api.openai.com"
)

// CredentialResolver yields the credential and host for one generation call.
type CredentialResolver interface {
	Resolve(ctx context.Context) (shared.Credentials, error)
}

// SettingsService resolves the credential/host pair. A stored override wins
// over the environment default; values are read on every call so a change
// takes effect on the next generation.
type SettingsService struct {
	db       *sql.DB // nil means environment only
	provider string
	envKey   string
	envHost  string
	logger   *zap.Logger

	mu        sync.Mutex
	listeners []func()
}

func NewSettingsService(db *sql.DB, cfg config.GenerationConfig, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		db:       db,
		provider: cfg.Provider,
		envKey:   strings.TrimSpace(cfg.APIKey),
		envHost:  strings.TrimSpace(cfg.Host),
		logger:   logger.Named("settings"),
	}
}

// SettingsView is what the settings surface may show: never the key itself.
type SettingsView struct {
	Provider  string           `json:"provider"`
	Host      string           `json:"host"`
	KeySource shared.KeySource `json:"keySource"`
}

// Resolve returns the credentials for the next call. A missing key is not an
// error here; the generation client reports it as a ConfigurationError.
func (s *SettingsService) Resolve(ctx context.Context) (shared.Credentials, error) {
	storedKey, storedHost, err := s.stored(ctx)
	if err != nil {
		return shared.Credentials{}, err
	}

	creds := shared.Credentials{Provider: s.provider, KeySource: shared.KeySourceNone}
	switch {
	case storedKey != "":
		creds.APIKey, creds.KeySource = storedKey, shared.KeySourceStorage
	case s.envKey != "":
		creds.APIKey, creds.KeySource = s.envKey, shared.KeySourceEnvironment
	}

	host := storedHost
	if host == "" {
		host = s.envHost
	}
	if host == "" {
		host = defaultHost(s.provider)
	}
	creds.Host = NormalizeHost(host)
	return creds, nil
}

// Describe reports the effective settings without exposing the key.
func (s *SettingsService) Describe(ctx context.Context) (SettingsView, error) {
	creds, err := s.Resolve(ctx)
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{Provider: creds.Provider, Host: creds.Host, KeySource: creds.KeySource}, nil
}

// Save stores the key and host overrides. Blank values clear the override.
// Listeners registered with OnChange run after a successful save.
func (s *SettingsService) Save(ctx context.Context, apiKey, host string) error {
	if s.db == nil {
		return errors.New("settings storage is not configured")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback()

	for key, value := range map[string]string{settingAPIKey: strings.TrimSpace(apiKey), settingAPIHost: strings.TrimSpace(host)} {
		if value == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
				return fmt.Errorf("clearing setting %s: %w", key, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
      INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
      ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("saving setting %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	s.logger.Info("Settings updated", zap.Bool("keyOverride", strings.TrimSpace(apiKey) != ""), zap.String("host", host))
	s.notify()
	return nil
}

// OnChange registers fn to run after every successful Save.
func (s *SettingsService) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *SettingsService) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *SettingsService) stored(ctx context.Context) (key, host string, err error) {
	if s.db == nil {
		return "", "", nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?)`, settingAPIKey, settingAPIHost)
	if err != nil {
		return "", "", fmt.Errorf("reading settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", fmt.Errorf("scanning settings: %w", err)
		}
		switch k {
		case settingAPIKey:
			key = strings.TrimSpace(v)
		case settingAPIHost:
			host = strings.TrimSpace(v)
		}
	}
	return key, host, rows.Err()
}

// NormalizeHost prepends https:// when no scheme is present and trims
// trailing slashes.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}

func defaultHost(provider string) string {
	if provider == config.ProviderOpenAI {
		return DefaultOpenAIHost
	}
	return DefaultGeminiHost
}
