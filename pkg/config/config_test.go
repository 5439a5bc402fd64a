package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:          AppConfig{Name: "test", Environment: "development"},
		Server:       ServerConfig{Port: 8080},
		JWT:          JWTConfig{Secret: "secret"},
		Backend:      BackendConfig{BaseURL: "http://backend.local"},
		Provisioning: ProvisioningConfig{PollAttempts: 10, NextPage: "/dashboard"},
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	envVars := []string{
		"APP_NAME", "APP_ENVIRONMENT", "APP_DEBUG",
		"SERVER_HOST", "SERVER_PORT",
		"DATABASE_HOST", "DATABASE_PORT",
		"REDIS_HOST", "REDIS_PORT",
		"JWT_SECRET", "BACKEND_MODE",
		"PROVISIONING_POLL_ATTEMPTS", "PROVISIONING_POLL_INTERVAL", "PROVISIONING_NEXT_PAGE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "safeguard-membership" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "safeguard-membership")
	}

	if cfg.App.Environment != "development" {
		t.Errorf("App.Environment = %q, want %q", cfg.App.Environment, "development")
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}

	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, want %d", cfg.Redis.Port, 6379)
	}

	if cfg.Provisioning.PollAttempts != 10 {
		t.Errorf("Provisioning.PollAttempts = %d, want %d", cfg.Provisioning.PollAttempts, 10)
	}

	if cfg.Provisioning.PollInterval != 2*time.Second {
		t.Errorf("Provisioning.PollInterval = %v, want %v", cfg.Provisioning.PollInterval, 2*time.Second)
	}

	if cfg.Backend.Mode != BackendModeHTTP {
		t.Errorf("Backend.Mode = %q, want %q", cfg.Backend.Mode, BackendModeHTTP)
	}

	if cfg.Provisioning.NextPage != "/dashboard" {
		t.Errorf("Provisioning.NextPage = %q, want %q", cfg.Provisioning.NextPage, "/dashboard")
	}
}

func TestLoad_WithEnvOverride(t *testing.T) {
	t.Setenv("APP_NAME", "test-app")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BACKEND_BASE_URL", "https://backend.example.com/api/")
	t.Setenv("PROVISIONING_POLL_ATTEMPTS", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "test-app")
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}

	if cfg.Backend.BaseURL != "https://backend.example.com/api" {
		t.Errorf("Backend.BaseURL = %q, want trailing slash trimmed", cfg.Backend.BaseURL)
	}

	if cfg.Provisioning.PollAttempts != 3 {
		t.Errorf("Provisioning.PollAttempts = %d, want %d", cfg.Provisioning.PollAttempts, 3)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v, want two brokers", cfg.Kafka.Brokers)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := cfg.DSN(); dsn != expected {
		t.Errorf("DSN() = %q, want %q", dsn, expected)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	expected := "redis.example.com:6380"
	if addr := cfg.Addr(); addr != expected {
		t.Errorf("Addr() = %q, want %q", addr, expected)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing app name", func(c *Config) { c.App.Name = "" }, true},
		{"invalid port", func(c *Config) { c.Server.Port = -1 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"missing JWT secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"missing backend URL", func(c *Config) { c.Backend.BaseURL = "" }, true},
		{"memory backend without URL", func(c *Config) { c.Backend.Mode = BackendModeMemory; c.Backend.BaseURL = "" }, false},
		{"unknown backend mode", func(c *Config) { c.Backend.Mode = "grpc" }, true},
		{"database enabled without host", func(c *Config) { c.Database.Enabled = true }, true},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
		{"negative poll attempts", func(c *Config) { c.Provisioning.PollAttempts = -1 }, true},
		{"relative next page", func(c *Config) { c.Provisioning.NextPage = "dashboard" }, true},
		{
			"default JWT secret in production",
			func(c *Config) {
				c.App.Environment = "production"
				c.JWT.Secret = "your-secret-key-change-in-production"
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "production"},
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}

	cfg.App.Environment = "development"
	if cfg.IsProduction() {
		t.Error("IsProduction() = true, want false")
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "development"},
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}

	cfg.App.Environment = "production"
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false")
	}
}

func TestLoadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "membership.env")
	content := "APP_NAME=from-file\nBACKEND_MODE=MEMORY\nKAFKA_BROKERS= k1:9092 ,,k2:9092\nPROVISIONING_NEXT_PAGE=/welcome\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadWithPath(path)
	if err != nil {
		t.Fatalf("LoadWithPath() failed: %v", err)
	}
	if cfg.App.Name != "from-file" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "from-file")
	}
	if cfg.Backend.Mode != BackendModeMemory {
		t.Errorf("Backend.Mode = %q, want %q", cfg.Backend.Mode, BackendModeMemory)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Errorf("Kafka.Brokers = %v, want trimmed pair", cfg.Kafka.Brokers)
	}
	if cfg.Provisioning.NextPage != "/welcome" {
		t.Errorf("Provisioning.NextPage = %q, want %q", cfg.Provisioning.NextPage, "/welcome")
	}
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	if _, err := LoadWithPath(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Error("LoadWithPath() error = nil, want error for missing file")
	}
}
