package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for chat-sync.
type Config struct {
	// Chat backend.
	APIKey  string `env:"CHAT_API_KEY"`
	BaseURL string `env:"CHAT_BASE_URL" envDefault:"https://chat.stream-io-api.com"`
	WSURL   string `env:"CHAT_WS_URL"`

	// Identity. One of Token, TokenFile or Guest must be provided.
	UserID    string `env:"CHAT_USER_ID"`
	UserName  string `env:"CHAT_USER_NAME"`
	Token     string `env:"CHAT_TOKEN"`
	TokenFile string `env:"CHAT_TOKEN_FILE"`
	Guest     bool   `env:"CHAT_GUEST" envDefault:"false"`

	// Local mirror. StatePath defaults to ~/.chat-sync/<user_id>.db.
	StatePath           string        `env:"CHAT_STATE_PATH"`
	LocalStorageEnabled bool          `env:"CHAT_LOCAL_STORAGE" envDefault:"true"`
	ActiveMode          bool          `env:"CHAT_ACTIVE_MODE" envDefault:"true"`
	QueueMaxAge         time.Duration `env:"CHAT_QUEUE_MAX_AGE" envDefault:"12h"`
	WaiterTimeout       time.Duration `env:"CHAT_WAITER_TIMEOUT" envDefault:"10s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// MCP server settings
	EnableMCP       bool   `env:"MCP_ENABLED" envDefault:"false"`
	MCPListenAddr   string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeyHashes string `env:"MCP_API_KEY_HASHES"`

	// Prometheus endpoint. Empty disables it.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.WSURL == "" {
		cfg.WSURL = DeriveWSURL(cfg.BaseURL)
	}

	if cfg.StatePath == "" && cfg.LocalStorageEnabled {
		p, err := DefaultStatePath(cfg.storeName())
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("CHAT_API_KEY is required")
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("CHAT_BASE_URL must be an http(s) URL")
	}

	if c.Guest {
		if c.UserID == "" {
			return fmt.Errorf("CHAT_USER_ID is required for guest users")
		}
	} else if c.Token == "" && c.TokenFile == "" {
		return fmt.Errorf("one of CHAT_TOKEN, CHAT_TOKEN_FILE or CHAT_GUEST is required")
	}

	if c.QueueMaxAge <= 0 {
		return fmt.Errorf("CHAT_QUEUE_MAX_AGE must be positive")
	}

	if c.WaiterTimeout <= 0 {
		return fmt.Errorf("CHAT_WAITER_TIMEOUT must be positive")
	}

	if c.EnableMCP {
		if c.MCPAPIKeyHashes == "" {
			return fmt.Errorf("MCP_API_KEY_HASHES is required when MCP is enabled")
		}

		if _, err := c.ParseMCPAPIKeyHashes(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) storeName() string {
	if c.UserID != "" {
		return c.UserID
	}

	return "default"
}

// DeriveWSURL turns the REST base URL into the websocket base URL.
func DeriveWSURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u
}

// DefaultStatePath returns ~/.chat-sync/<name>.db.
func DefaultStatePath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".chat-sync", name+".db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIKeyEntry holds a bcrypt hash of an MCP API key and the identity
// it authenticates as.
type APIKeyEntry struct {
	UserID string
	Hash   string
}

// ParseMCPAPIKeyHashes parses the MCP_API_KEY_HASHES string.
// Format: "user1:$2a$10$...,user2:$2a$10$..."
func (c *Config) ParseMCPAPIKeyHashes() ([]APIKeyEntry, error) {
	if c.MCPAPIKeyHashes == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.MCPAPIKeyHashes, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		hash := pair[idx+1:]
		if userID == "" || hash == "" {
			return nil, fmt.Errorf("empty user or hash in entry %d", len(entries)+1)
		}

		if !strings.HasPrefix(hash, "$2") {
			return nil, fmt.Errorf("API key hash in entry %d is not a bcrypt hash", len(entries)+1)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in MCP_API_KEY_HASHES", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Hash: hash})
	}

	return entries, nil
}
