package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DBHost != "localhost" {
		t.Errorf("DBHost = %q, want localhost", cfg.DBHost)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, want 5432", cfg.DBPort)
	}
	if cfg.IngestionBuildsPerPage != 100 {
		t.Errorf("IngestionBuildsPerPage = %d, want 100", cfg.IngestionBuildsPerPage)
	}
	if cfg.DBConnMaxLifetime != 5*time.Minute {
		t.Errorf("DBConnMaxLifetime = %v, want 5m", cfg.DBConnMaxLifetime)
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg := DefaultConfig()
	for k, v := range map[string]string{
		"DB_HOST": "testhost",
		"DB_PORT": "3306",
	} {
		os.Setenv(k, v)
		defer os.Unsetenv(k)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.DBHost != "testhost" {
		t.Errorf("DBHost = %q, want testhost", cfg.DBHost)
	}
	if cfg.DBPort != 3306 {
		t.Errorf("DBPort = %d, want 3306", cfg.DBPort)
	}
}

func TestLoadFromEnvInvalidPortKeepsPriorValue(t *testing.T) {
	cfg := DefaultConfig()
	originalPort := cfg.DBPort

	os.Setenv("DB_PORT", "not-a-number")
	defer os.Unsetenv("DB_PORT")

	// envconfig returns an error for an unparseable int; LoadFromEnv must
	// not have mutated cfg in that case.
	_ = cfg.LoadFromEnv()
	if cfg.DBPort != originalPort {
		t.Errorf("DBPort = %d after invalid env value, want unchanged %d", cfg.DBPort, originalPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"empty host", func(c *Config) { c.DBHost = "" }, true},
		{"port out of range", func(c *Config) { c.DBPort = 70000 }, true},
		{"zero page size", func(c *Config) { c.IngestionBuildsPerPage = 0 }, true},
		{"hard deadline not greater than soft", func(c *Config) { c.HardDeadline = c.SoftDeadline }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBUser = "u"
	cfg.DBPassword = "p"
	cfg.DBName = "d"
	dsn := cfg.DSN()
	if dsn == "" {
		t.Fatal("DSN() returned empty string")
	}
}
