package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Source.Owner != "RoyalIcing" || config.Source.Repo != "Orb" {
		t.Errorf("default source = %s/%s, expected RoyalIcing/Orb", config.Source.Owner, config.Source.Repo)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config was not written: %v", err)
	}
	var onDisk Config
	if err = json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("written config is not valid JSON: %v", err)
	}
	if onDisk.Server == nil || onDisk.Server.ServerAddr != ":8080" {
		t.Errorf("written server_config = %+v, expected the defaults", onDisk.Server)
	}
}

func TestLoadConfig_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	partial := `{"server_config": {"server_addr": ":9999"}, "cache_config": null}`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Server.ServerAddr != ":9999" {
		t.Errorf("ServerAddr = %q, expected :9999", config.Server.ServerAddr)
	}
	if config.Server.ApiAddr != "127.0.0.1:8081" {
		t.Errorf("ApiAddr = %q, expected the default to survive a partial section", config.Server.ApiAddr)
	}
	if config.Cache == nil || config.Cache.FailurePolicy != "memoize" {
		t.Errorf("null cache_config did not fall back to defaults: %+v", config.Cache)
	}
	if config.Source.FallbackRef != "refs/heads/main" {
		t.Errorf("missing source_config did not use defaults: %+v", config.Source)
	}
}

func TestLoadConfig_NullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("null"), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config == nil || config.Server == nil || config.Source == nil || config.Cache == nil {
		t.Fatalf("LoadConfig() on a null document = %+v, expected the defaults", config)
	}
	if err = config.Validate(); err != nil {
		t.Errorf("defaults from a null document do not validate: %v", err)
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() accepted malformed JSON")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "missing owner", mutate: func(c *Config) { c.Source.Owner = "" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Source.FetchTimeoutMs = -1 }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Cache.FailurePolicy = "sometimes" }, wantErr: true},
		{name: "backoff policy", mutate: func(c *Config) { c.Cache.FailurePolicy = "backoff" }},
		{name: "missing section", mutate: func(c *Config) { c.Cache = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigManager_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager() error = %v", err)
	}

	updated := *defaultConfig()
	updated.Server.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.1"}
	updated.Source.Revision = "0123456789abcdef0123456789abcdef01234567"
	if err = cm.Update(updated); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() after update error = %v", err)
	}
	if reloaded.Source.Revision != updated.Source.Revision {
		t.Errorf("saved revision = %q, expected %q", reloaded.Source.Revision, updated.Source.Revision)
	}
	if !cm.IsTrusted("10.1.2.3") || !cm.IsTrusted("192.168.1.1") {
		t.Error("trusted proxies were not refreshed by Update()")
	}

	bad := *defaultConfig()
	bad.Source.Repo = ""
	if err = cm.Update(bad); err == nil {
		t.Fatal("Update() accepted an invalid config")
	}
	if cm.Get().Source.Repo != "Orb" {
		t.Error("rejected update changed the live config")
	}
}

func TestConfigManager_IsTrusted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := defaultConfig()
	cfg.Server.TrustedProxies = []string{"127.0.0.1", "fd00::/8", "not-an-ip"}
	data, _ := json.Marshal(cfg)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager() error = %v", err)
	}
	cm.SetLogger(slog.New(slog.DiscardHandler))

	tests := map[string]bool{
		"127.0.0.1":   true,
		"127.0.0.2":   false,
		"fd00::1":     true,
		"2001:db8::1": false,
		"garbage":     false,
	}
	for ip, want := range tests {
		if got := cm.IsTrusted(ip); got != want {
			t.Errorf("IsTrusted(%q) = %v, expected %v", ip, got, want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if err := ensureDataDir(filepath.Join(dir, "docgate.db") + "?_journal_mode=WAL"); err != nil {
		t.Fatalf("ensureDataDir() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("data directory was not created: %v", err)
	}
	if err := ensureDataDir(":memory:"); err != nil {
		t.Errorf("ensureDataDir(:memory:) error = %v", err)
	}
}
