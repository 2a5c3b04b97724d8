// Package config loads client and sandbox settings from flags, environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Env prefixes: MEDALERT_API_URL, SANDBOX_ADDR, ...
const (
	ClientPrefix  = "MEDALERT"
	SandboxPrefix = "SANDBOX"
)

// Client configures the medalert CLI.
type Client struct {
	APIURL     string        `mapstructure:"api_url"`
	ConfigDir  string        `mapstructure:"config_dir"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Insecure   bool          `mapstructure:"insecure"`
	CACert     string        `mapstructure:"ca_cert"`
	Passphrase string        `mapstructure:"passphrase"`
	LogLevel   string        `mapstructure:"log_level"`
}

// Sandbox configures the in-memory backend.
type Sandbox struct {
	Addr          string        `mapstructure:"addr"`
	JWTKey        string        `mapstructure:"jwt_key"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	TLSCert       string        `mapstructure:"tls_cert"`
	TLSKey        string        `mapstructure:"tls_key"`
	LoginMaxFails int           `mapstructure:"login_max_fails"`
	LoginWindow   time.Duration `mapstructure:"login_window"`
	LoginBlockFor time.Duration `mapstructure:"login_block_for"`
	Seed          bool          `mapstructure:"seed"`
	LogLevel      string        `mapstructure:"log_level"`
}

// LoadDotEnv loads the given .env files (default ".env") into the process environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: %s: %w", p, err)
		}
	}
	return nil
}

func newViper(prefix string, defaults map[string]any) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	return v
}

// NewClientViper returns a viper preloaded with client defaults and MEDALERT_* bindings.
// Callers may bind flags to it before LoadClient.
func NewClientViper() *viper.Viper {
	return newViper(ClientPrefix, map[string]any{
		"api_url":    "http://localhost:8080",
		"config_dir": "",
		"timeout":    30 * time.Second,
		"insecure":   false,
		"ca_cert":    "",
		"passphrase": "",
		"log_level":  "warn",
	})
}

// LoadClient reads the client settings and fills in the default config dir.
func LoadClient(v *viper.Viper) (Client, error) {
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return Client{}, fmt.Errorf("config: unmarshal client: %w", err)
	}
	if c.APIURL == "" {
		return Client{}, errors.New("config: api_url is required")
	}
	if c.Timeout <= 0 {
		return Client{}, fmt.Errorf("config: timeout %s must be positive", c.Timeout)
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir()
	}
	return c, nil
}

// NewSandboxViper returns a viper preloaded with sandbox defaults and SANDBOX_* bindings.
func NewSandboxViper() *viper.Viper {
	return newViper(SandboxPrefix, map[string]any{
		"addr":            ":8080",
		"jwt_key":         "",
		"access_ttl":      24 * time.Hour,
		"tls_cert":        "",
		"tls_key":         "",
		"login_max_fails": 5,
		"login_window":    15 * time.Minute,
		"login_block_for": 15 * time.Minute,
		"seed":            true,
		"log_level":       "info",
	})
}

// LoadSandbox reads the sandbox settings. A signing key is required; TLS needs both files.
func LoadSandbox(v *viper.Viper) (Sandbox, error) {
	var c Sandbox
	if err := v.Unmarshal(&c); err != nil {
		return Sandbox{}, fmt.Errorf("config: unmarshal sandbox: %w", err)
	}
	if c.JWTKey == "" {
		return Sandbox{}, errors.New("config: jwt_key is required")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return Sandbox{}, errors.New("config: tls_cert and tls_key go together")
	}
	if c.LoginMaxFails < 1 {
		return Sandbox{}, fmt.Errorf("config: login_max_fails %d must be at least 1", c.LoginMaxFails)
	}
	return c, nil
}

// DefaultConfigDir is $XDG_CONFIG_HOME/medalert, else ~/.config/medalert.
func DefaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "medalert")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "medalert")
}
