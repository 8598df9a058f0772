package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/Nordlicht-IT-Solutions/nordlicht-chat-sdk-go/nordchat"
)

type fileConfig struct {
	URL              string `toml:"url"`
	User             string `toml:"user"`
	IdentityFile     string `toml:"identity_file"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	ReconnectDelay   string `toml:"reconnect_delay"`
	CallTimeout      string `toml:"call_timeout"`
	AutoMarkRead     bool   `toml:"auto_mark_read"`
	LogLevel         string `toml:"log_level"`
}

type envConfig struct {
	URL            string        `env:"NORDCHAT_URL"`
	User           string        `env:"NORDCHAT_USER"`
	IdentityFile   string        `env:"NORDCHAT_IDENTITY_FILE"`
	ReconnectDelay time.Duration `env:"NORDCHAT_RECONNECT_DELAY"`
	CallTimeout    time.Duration `env:"NORDCHAT_CALL_TIMEOUT"`
	LogLevel       string        `env:"NORDCHAT_LOG_LEVEL"`
}

type appConfig struct {
	SDK          nordchat.Config
	User         string
	IdentityFile string
	LogLevel     string
}

func defaultAppConfig() appConfig {
	cfg := appConfig{
		SDK:      nordchat.DefaultConfig(),
		LogLevel: "info",
	}
	cfg.SDK.URL = "ws://localhost:8080/chat"
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.IdentityFile = filepath.Join(dir, "nordchat", "identity")
	}
	return cfg
}

// loadConfig layers the TOML file at path (optional) and NORDCHAT_*
// environment variables over the defaults.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return appConfig{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

func applyFile(cfg *appConfig, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if meta.IsDefined("url") {
		cfg.SDK.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("user") {
		cfg.User = strings.TrimSpace(raw.User)
	}
	if meta.IsDefined("identity_file") {
		cfg.IdentityFile = strings.TrimSpace(raw.IdentityFile)
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return fmt.Errorf("parse handshake_timeout: %w", err)
		}
		cfg.SDK.HandshakeTimeout = d
	}
	if meta.IsDefined("reconnect_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReconnectDelay))
		if err != nil {
			return fmt.Errorf("parse reconnect_delay: %w", err)
		}
		cfg.SDK.ReconnectDelay = d
	}
	if meta.IsDefined("call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CallTimeout))
		if err != nil {
			return fmt.Errorf("parse call_timeout: %w", err)
		}
		cfg.SDK.CallTimeout = d
	}
	if meta.IsDefined("auto_mark_read") {
		cfg.SDK.AutoMarkRead = raw.AutoMarkRead
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func applyEnv(cfg *appConfig) error {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if e.URL != "" {
		cfg.SDK.URL = e.URL
	}
	if e.User != "" {
		cfg.User = e.User
	}
	if e.IdentityFile != "" {
		cfg.IdentityFile = e.IdentityFile
	}
	if e.ReconnectDelay > 0 {
		cfg.SDK.ReconnectDelay = e.ReconnectDelay
	}
	if e.CallTimeout > 0 {
		cfg.SDK.CallTimeout = e.CallTimeout
	}
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}
	return nil
}

func (c appConfig) identityStore() nordchat.IdentityStore {
	if c.IdentityFile == "" {
		return &nordchat.MemoryIdentity{}
	}
	return nordchat.FileIdentity{Path: c.IdentityFile}
}
