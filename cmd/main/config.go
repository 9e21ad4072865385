package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/docgate/pkg/content"
	"github.com/CTAG07/docgate/pkg/source"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr     string   `json:"server_addr"`
	ApiAddr        string   `json:"api_addr"`
	LogLevel       string   `json:"log_level"`
	TrustedProxies []string `json:"trusted_proxies"`
	DatabasePath   string   `json:"database_path"`
	AdminToken     string   `json:"admin_token"`
	RoutesPath     string   `json:"routes_path"`
	TemplatesDir   string   `json:"templates_dir"`
	SiteTitle      string   `json:"site_title"`
	WatchConfig    bool     `json:"watch_config"`
}

// SourceConfig describes the repository the documentation is read from.
type SourceConfig struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	GitBaseURL     string `json:"git_base_url"`
	RawBaseURL     string `json:"raw_base_url"`
	Revision       string `json:"revision"`
	FallbackRef    string `json:"fallback_ref"`
	ContentPrefix  string `json:"content_prefix"`
	ContentExt     string `json:"content_ext"`
	AssetPrefix    string `json:"asset_prefix"`
	AssetExt       string `json:"asset_ext"`
	FetchTimeoutMs int    `json:"fetch_timeout_ms"`
}

// CacheConfig controls the in-memory document cache and the snapshot store.
type CacheConfig struct {
	FailurePolicy   string `json:"failure_policy"`
	FailureTTLSec   int    `json:"failure_ttl_sec"`
	SnapshotEnabled bool   `json:"snapshot_enabled"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Source *SourceConfig `json:"source_config"`
	Cache  *CacheConfig  `json:"cache_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:     ":8080",
		ApiAddr:        "127.0.0.1:8081",
		LogLevel:       "info",
		TrustedProxies: []string{},
		DatabasePath:   "./data/docgate.db",
		AdminToken:     "",
		RoutesPath:     "",
		TemplatesDir:   "",
		SiteTitle:      "Orb: Write WebAssembly with Elixir",
		WatchConfig:    true,
	}
}

// DefaultSourceConfig points at the Orb documentation repository.
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		Owner:          "RoyalIcing",
		Repo:           "Orb",
		GitBaseURL:     source.DefaultGitBaseURL,
		RawBaseURL:     source.DefaultRawBaseURL,
		Revision:       "",
		FallbackRef:    "refs/heads/main",
		ContentPrefix:  "site/",
		ContentExt:     ".md",
		AssetPrefix:    "examples/",
		AssetExt:       ".wasm",
		FetchTimeoutMs: 15000,
	}
}

// DefaultCacheConfig memoizes failures and keeps snapshots.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		FailurePolicy:   string(content.FailureMemoize),
		FailureTTLSec:   30,
		SnapshotEnabled: true,
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Source: DefaultSourceConfig(),
		Cache:  DefaultCacheConfig(),
	}
}

// Validate reports settings that would stop a server cycle from starting.
func (c *Config) Validate() error {
	if c.Server == nil || c.Source == nil || c.Cache == nil {
		return fmt.Errorf("config is missing a section")
	}
	if c.Source.Owner == "" || c.Source.Repo == "" {
		return fmt.Errorf("source_config.owner and source_config.repo are required")
	}
	if c.Source.FetchTimeoutMs < 0 {
		return fmt.Errorf("source_config.fetch_timeout_ms must not be negative")
	}
	if _, err := content.ParseFailurePolicy(c.Cache.FailurePolicy); err != nil {
		return err
	}
	return nil
}

// FetchTimeout returns the per-fetch deadline.
func (c *SourceConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config == nil {
		config = defaultConfig()
	}
	// A section set to null in the file falls back to its defaults.
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Source == nil {
		config.Source = DefaultSourceConfig()
	}
	if config.Cache == nil {
		config.Cache = DefaultCacheConfig()
	}

	return config, nil
}

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	cm.logger = logger
	cm.mu.Unlock()
}

// Path returns the file the configuration was loaded from.
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates and saves the configuration. Most settings apply on the
// next server cycle.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("configuration rejected: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	*cm.config = newConfig
	cm.refreshCache()

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsTrusted checks if an IP is in the trusted proxies list.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}

	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}

	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
		} else {
			ip := net.ParseIP(t)
			if ip != nil {
				ips = append(ips, ip)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
			}
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
