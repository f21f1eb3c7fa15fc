package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Global represents ~/.wabiz/config.toml, shared by every instance.
type Global struct {
	DefaultInstance string `toml:"default_instance"`
}

// Config is the per-instance config.toml.
type Config struct {
	ListenAddr       string          `toml:"listen_addr"`
	LogLevel         string          `toml:"log_level"`
	EventLogCapacity int             `toml:"event_log_capacity"`
	VerifyToken      string          `toml:"verify_token"`
	Graph            GraphConfig     `toml:"graph"`
	Auth             AuthConfig      `toml:"auth"`
	Broadcast        BroadcastConfig `toml:"broadcast"`
}

// GraphConfig holds the WhatsApp Cloud API settings.
type GraphConfig struct {
	BaseURL       string   `toml:"base_url"`
	APIVersion    string   `toml:"api_version"`
	AccessToken   string   `toml:"access_token"`
	PhoneNumberID string   `toml:"phone_number_id"`
	WABAID        string   `toml:"waba_id"`
	DisplayPhone  string   `toml:"display_phone"`
	Timeout       Duration `toml:"timeout"`
}

// AuthConfig holds the shared secret used to verify bearer tokens issued by
// the user-authentication service.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// BroadcastConfig controls the outbox drain rate.
type BroadcastConfig struct {
	Interval Duration `toml:"interval"`
}

// Duration is a time.Duration that decodes from TOML strings like "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every optional key filled in.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		EventLogCapacity: 100,
		Graph: GraphConfig{
			BaseURL:    "https://graph.facebook.com",
			APIVersion: "v20.0",
			Timeout:    Duration{10 * time.Second},
		},
		Broadcast: BroadcastConfig{Interval: Duration{time.Second}},
	}
}

// Load reads an instance config on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("WABIZ_VERIFY_TOKEN"); ok {
		c.VerifyToken = v
	}
	if v, ok := lookup("WABIZ_ACCESS_TOKEN"); ok {
		c.Graph.AccessToken = v
	}
	if v, ok := lookup("WABIZ_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
}

// Validate reports the first missing required key.
func (c *Config) Validate() error {
	switch {
	case c.VerifyToken == "":
		return errors.New("verify_token is required")
	case c.Graph.AccessToken == "":
		return errors.New("graph.access_token is required")
	case c.Graph.PhoneNumberID == "":
		return errors.New("graph.phone_number_id is required")
	case c.Auth.JWTSecret == "":
		return errors.New("auth.jwt_secret is required")
	case c.EventLogCapacity < 0:
		return fmt.Errorf("event_log_capacity must be >= 0, got %d", c.EventLogCapacity)
	}
	return nil
}

// LoadGlobal reads the global config. Returns error if file missing.
func LoadGlobal(path string) (*Global, error) {
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Save writes v (a *Config or *Global) to path, creating parent dirs as needed.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
