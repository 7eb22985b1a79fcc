package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort                = 8080
	DefaultHost                = "127.0.0.1"
	DefaultLogLevel            = "info"
	DefaultMaxFileSize         = 100 * 1024 * 1024 // 100MB
	DefaultConfidenceThreshold = 0.8
	DefaultMinFuzzyLength      = 4
	DefaultMinTextLayerChars   = 100
	DefaultOCRDPI              = 300
	DefaultOCRLanguage         = "eng"
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultRetryMaxAttempts    = 3
	DefaultRetryBackoff        = 500 * time.Millisecond

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the sticker verification service
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Document acquisition
	CacheDir    string
	MaxFileSize int64 // Maximum sticker document size in bytes
	HTTPTimeout time.Duration

	// Extraction
	MinTextLayerChars int
	OCRDPI            int
	OCRLanguage       string

	// Feature mapping
	VocabPath           string
	ConfidenceThreshold float64
	MinFuzzyLength      int
	MatchWorkers        int // 0 means one per core

	// Resilience
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration

	// Browser
	Headless bool
	FormURL  string // inventory form to reconcile; empty means dry run

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:                ModeStdio, // Default to stdio mode for MCP compatibility
		Host:                DefaultHost,
		Port:                DefaultPort,
		CacheDir:            filepath.Join(os.TempDir(), "stickercheck"),
		MaxFileSize:         DefaultMaxFileSize,
		HTTPTimeout:         DefaultHTTPTimeout,
		MinTextLayerChars:   DefaultMinTextLayerChars,
		OCRDPI:              DefaultOCRDPI,
		OCRLanguage:         DefaultOCRLanguage,
		VocabPath:           filepath.Join("configs", "feature_mapping.json"),
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MinFuzzyLength:      DefaultMinFuzzyLength,
		MatchWorkers:        0,
		RetryMaxAttempts:    DefaultRetryMaxAttempts,
		RetryInitialBackoff: DefaultRetryBackoff,
		Headless:            true,
		Version:             "1.0.0",
		ServerName:          "stickercheck",
		LogLevel:            DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	if cfg.CacheDir != "" {
		if expandedPath, err := filepath.Abs(cfg.CacheDir); err == nil {
			cfg.CacheDir = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// Set environment variable prefix
	viper.SetEnvPrefix("STICKERCHECK")
	viper.AutomaticEnv()

	// Define flags with Viper
	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("cachedir", cfg.CacheDir)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("httptimeout", cfg.HTTPTimeout)
	viper.SetDefault("mintextchars", cfg.MinTextLayerChars)
	viper.SetDefault("ocrdpi", cfg.OCRDPI)
	viper.SetDefault("ocrlang", cfg.OCRLanguage)
	viper.SetDefault("vocab", cfg.VocabPath)
	viper.SetDefault("threshold", cfg.ConfidenceThreshold)
	viper.SetDefault("minfuzzylen", cfg.MinFuzzyLength)
	viper.SetDefault("matchworkers", cfg.MatchWorkers)
	viper.SetDefault("retries", cfg.RetryMaxAttempts)
	viper.SetDefault("retrybackoff", cfg.RetryInitialBackoff)
	viper.SetDefault("headless", cfg.Headless)
	viper.SetDefault("formurl", cfg.FormURL)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("cachedir", cfg.CacheDir, "Directory for cached sticker documents")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum sticker document size in bytes")
	pflag.Duration("httptimeout", cfg.HTTPTimeout, "Timeout per document download")
	pflag.Int("mintextchars", cfg.MinTextLayerChars, "Minimum text-layer characters before OCR fallback")
	pflag.Int("ocrdpi", cfg.OCRDPI, "Rasterization DPI for the OCR fallback")
	pflag.String("ocrlang", cfg.OCRLanguage, "Tesseract language code")
	pflag.String("vocab", cfg.VocabPath, "Path to the feature vocabulary JSON file")
	pflag.Float64("threshold", cfg.ConfidenceThreshold, "Fuzzy match confidence threshold (0-1)")
	pflag.Int("minfuzzylen", cfg.MinFuzzyLength, "Minimum string length admitted to fuzzy matching")
	pflag.Int("matchworkers", cfg.MatchWorkers, "Parallel workers for canonical matching (0 = one per core)")
	pflag.Int("retries", cfg.RetryMaxAttempts, "Max attempts for transient network failures")
	pflag.Duration("retrybackoff", cfg.RetryInitialBackoff, "Initial retry backoff")
	pflag.Bool("headless", cfg.Headless, "Run the browser headless")
	pflag.String("formurl", cfg.FormURL, "Inventory form URL to reconcile (empty = dry run)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "cachedir", "maxfilesize", "httptimeout",
		"mintextchars", "ocrdpi", "ocrlang", "vocab", "threshold",
		"minfuzzylen", "matchworkers", "retries", "retrybackoff",
		"headless", "formurl", "loglevel",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nstickercheck - window sticker feature verification service\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                        "+
			"# stdio mode with defaults\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --vocab=/etc/stickercheck/vocab.json   "+
			"# stdio mode with custom vocabulary\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --port=8081              # HTTP server mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  STICKERCHECK_MODE        Server mode\n")
		fmt.Fprintf(os.Stderr, "  STICKERCHECK_CACHEDIR    Document cache directory\n")
		fmt.Fprintf(os.Stderr, "  STICKERCHECK_VOCAB       Vocabulary file path\n")
		fmt.Fprintf(os.Stderr, "  STICKERCHECK_THRESHOLD   Fuzzy match confidence threshold\n")
		fmt.Fprintf(os.Stderr, "  STICKERCHECK_OCRLANG     Tesseract language\n")
		fmt.Fprintf(os.Stderr, "  STICKERCHECK_LOGLEVEL    Log level\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.CacheDir = viper.GetString("cachedir")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.HTTPTimeout = viper.GetDuration("httptimeout")
	cfg.MinTextLayerChars = viper.GetInt("mintextchars")
	cfg.OCRDPI = viper.GetInt("ocrdpi")
	cfg.OCRLanguage = viper.GetString("ocrlang")
	cfg.VocabPath = viper.GetString("vocab")
	cfg.ConfidenceThreshold = viper.GetFloat64("threshold")
	cfg.MinFuzzyLength = viper.GetInt("minfuzzylen")
	cfg.MatchWorkers = viper.GetInt("matchworkers")
	cfg.RetryMaxAttempts = viper.GetInt("retries")
	cfg.RetryInitialBackoff = viper.GetDuration("retrybackoff")
	cfg.Headless = viper.GetBool("headless")
	cfg.FormURL = viper.GetString("formurl")
	cfg.LogLevel = viper.GetString("loglevel")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	// Validate cache directory
	if c.CacheDir == "" {
		return errors.New("cache directory cannot be empty")
	}

	// Check if cache directory exists, create if it doesn't
	if _, err := os.Stat(c.CacheDir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.CacheDir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create cache directory %s: %w", c.CacheDir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access cache directory %s: %w", c.CacheDir, err)
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	// Validate matching parameters
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.New("confidence threshold must be between 0 and 1")
	}
	if c.MinFuzzyLength < 1 {
		return errors.New("minimum fuzzy length must be at least 1")
	}
	if c.MatchWorkers < 0 {
		return errors.New("match workers cannot be negative")
	}

	// Validate extraction parameters
	if c.MinTextLayerChars < 0 {
		return errors.New("minimum text layer characters cannot be negative")
	}
	if c.OCRDPI <= 0 {
		return errors.New("OCR DPI must be positive")
	}

	// Validate vocabulary path
	if c.VocabPath == "" {
		return errors.New("vocabulary path cannot be empty")
	}

	// Validate resilience parameters
	if c.RetryMaxAttempts < 1 {
		return errors.New("retry attempts must be at least 1")
	}
	if c.RetryInitialBackoff < 0 {
		return errors.New("retry backoff cannot be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, CacheDir: %s, Vocab: %s, Threshold: %.2f, LogLevel: %s}",
		c.Mode, c.CacheDir, c.VocabPath, c.ConfidenceThreshold, c.LogLevel)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
