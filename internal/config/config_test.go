package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testConfig returns a valid stdio-mode config rooted in a temp directory.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.VocabPath = filepath.Join(cfg.CacheDir, "vocab.json")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test default values
	if cfg.Mode != "stdio" {
		t.Errorf("Expected default mode to be 'stdio', got '%s'", cfg.Mode)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}

	if cfg.ServerName != "stickercheck" {
		t.Errorf("Expected default server name to be 'stickercheck', got '%s'", cfg.ServerName)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}

	if cfg.ConfidenceThreshold != 0.8 {
		t.Errorf("Expected default confidence threshold to be 0.8, got %v", cfg.ConfidenceThreshold)
	}

	if cfg.MinFuzzyLength != 4 {
		t.Errorf("Expected default min fuzzy length to be 4, got %d", cfg.MinFuzzyLength)
	}

	if cfg.MinTextLayerChars != 100 {
		t.Errorf("Expected default min text layer chars to be 100, got %d", cfg.MinTextLayerChars)
	}

	if cfg.OCRDPI != 300 {
		t.Errorf("Expected default OCR DPI to be 300, got %d", cfg.OCRDPI)
	}

	if cfg.OCRLanguage != "eng" {
		t.Errorf("Expected default OCR language to be 'eng', got '%s'", cfg.OCRLanguage)
	}

	if !cfg.Headless {
		t.Error("Expected headless to default to true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "valid config - stdio mode",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "valid config - server mode",
			mutate: func(cfg *Config) {
				cfg.Mode = "server"
			},
			wantErr: false,
		},
		{
			name: "invalid mode",
			mutate: func(cfg *Config) {
				cfg.Mode = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid port - too low (server mode)",
			mutate: func(cfg *Config) {
				cfg.Mode = "server"
				cfg.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid port - too high (server mode)",
			mutate: func(cfg *Config) {
				cfg.Mode = "server"
				cfg.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "invalid port ignored in stdio mode",
			mutate: func(cfg *Config) {
				cfg.Port = 0
			},
			wantErr: false,
		},
		{
			name: "empty cache directory",
			mutate: func(cfg *Config) {
				cfg.CacheDir = ""
			},
			wantErr: true,
		},
		{
			name: "empty vocabulary path",
			mutate: func(cfg *Config) {
				cfg.VocabPath = ""
			},
			wantErr: true,
		},
		{
			name: "threshold below range",
			mutate: func(cfg *Config) {
				cfg.ConfidenceThreshold = -0.1
			},
			wantErr: true,
		},
		{
			name: "threshold above range",
			mutate: func(cfg *Config) {
				cfg.ConfidenceThreshold = 1.5
			},
			wantErr: true,
		},
		{
			name: "threshold boundary values accepted",
			mutate: func(cfg *Config) {
				cfg.ConfidenceThreshold = 1.0
			},
			wantErr: false,
		},
		{
			name: "zero min fuzzy length",
			mutate: func(cfg *Config) {
				cfg.MinFuzzyLength = 0
			},
			wantErr: true,
		},
		{
			name: "negative match workers",
			mutate: func(cfg *Config) {
				cfg.MatchWorkers = -1
			},
			wantErr: true,
		},
		{
			name: "zero OCR DPI",
			mutate: func(cfg *Config) {
				cfg.OCRDPI = 0
			},
			wantErr: true,
		},
		{
			name: "zero retry attempts",
			mutate: func(cfg *Config) {
				cfg.RetryMaxAttempts = 0
			},
			wantErr: true,
		},
		{
			name: "negative retry backoff",
			mutate: func(cfg *Config) {
				cfg.RetryInitialBackoff = -time.Second
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			mutate: func(cfg *Config) {
				cfg.LogLevel = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid max file size",
			mutate: func(cfg *Config) {
				cfg.MaxFileSize = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateCreatesCacheDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheDir = filepath.Join(t.TempDir(), "nested", "cache")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Config.Validate() error = %v", err)
	}

	if _, err := os.Stat(cfg.CacheDir); err != nil {
		t.Errorf("Expected cache directory to be created: %v", err)
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{
		Host: "192.168.1.1",
		Port: 9090,
	}

	expected := "192.168.1.1:9090"
	if got := cfg.Address(); got != expected {
		t.Errorf("Config.Address() = %v, want %v", got, expected)
	}
}

func TestConfigIsDebug(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     bool
	}{
		{
			name:     "debug level",
			logLevel: "debug",
			want:     true,
		},
		{
			name:     "info level",
			logLevel: "info",
			want:     false,
		},
		{
			name:     "warn level",
			logLevel: "warn",
			want:     false,
		},
		{
			name:     "error level",
			logLevel: "error",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			if got := cfg.IsDebug(); got != tt.want {
				t.Errorf("Config.IsDebug() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := &Config{
		Mode:                "server",
		CacheDir:            "/var/cache/stickercheck",
		VocabPath:           "/etc/stickercheck/vocab.json",
		ConfidenceThreshold: 0.8,
		LogLevel:            "debug",
	}

	result := cfg.String()

	expectedSubstrings := []string{
		"Mode: server",
		"CacheDir: /var/cache/stickercheck",
		"Vocab: /etc/stickercheck/vocab.json",
		"Threshold: 0.80",
		"LogLevel: debug",
	}

	for _, substr := range expectedSubstrings {
		if !contains(result, substr) {
			t.Errorf("Config.String() result doesn't contain expected substring: %s\nGot: %s", substr, result)
		}
	}
}

func TestConfigValidateLogLevels(t *testing.T) {
	validLevels := []string{"debug", "info", "warn", "error"}
	invalidLevels := []string{"DEBUG", "INFO", "trace", "fatal", ""}

	// Test valid log levels
	for _, level := range validLevels {
		t.Run("valid_"+level, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.LogLevel = level

			if err := cfg.Validate(); err != nil {
				t.Errorf("Config.Validate() should accept log level '%s', got error: %v", level, err)
			}
		})
	}

	// Test invalid log levels
	for _, level := range invalidLevels {
		t.Run("invalid_"+level, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.LogLevel = level

			if err := cfg.Validate(); err == nil {
				t.Errorf("Config.Validate() should reject log level '%s'", level)
			}
		})
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) &&
		(s == substr ||
			s[:len(substr)] == substr ||
			s[len(s)-len(substr):] == substr ||
			containsMiddle(s, substr))
}

func containsMiddle(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestConfigIsServerMode(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want bool
	}{
		{
			name: "server mode",
			mode: "server",
			want: true,
		},
		{
			name: "stdio mode",
			mode: "stdio",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Mode: tt.mode}
			if got := cfg.IsServerMode(); got != tt.want {
				t.Errorf("Config.IsServerMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigIsStdioMode(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want bool
	}{
		{
			name: "stdio mode",
			mode: "stdio",
			want: true,
		},
		{
			name: "server mode",
			mode: "server",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Mode: tt.mode}
			if got := cfg.IsStdioMode(); got != tt.want {
				t.Errorf("Config.IsStdioMode() = %v, want %v", got, tt.want)
			}
		})
	}
}
