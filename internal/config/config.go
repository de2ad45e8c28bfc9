package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Browser      BrowserConfig      `yaml:"browser"`
	Selectors    SelectorsConfig    `yaml:"selectors"`
	Typing       TypingConfig       `yaml:"typing"`
	Session      SessionConfig      `yaml:"session"`
	Retry        RetryConfig        `yaml:"retry"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
	Files        FilesConfig        `yaml:"files"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	ChromePath     string `yaml:"chrome_path"`
	UserDataDir    string `yaml:"user_data_dir"`
	UserAgent      string `yaml:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	LoginURL       string `yaml:"login_url"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	SettleMs       int    `yaml:"settle_ms"`
}

// SelectorsConfig holds the CSS selectors of the messaging client's markup.
type SelectorsConfig struct {
	LoginMarker  string `yaml:"login_marker"`
	SearchInput  string `yaml:"search_input"`
	SearchResult string `yaml:"search_result"`
	MessageInput string `yaml:"message_input"`
	SendButton   string `yaml:"send_button"`
}

type TypingConfig struct {
	SearchKeyDelayMs  int `yaml:"search_key_delay_ms"`
	MessageKeyDelayMs int `yaml:"message_key_delay_ms"`
	AfterSearchMs     int `yaml:"after_search_ms"`
	AfterSelectMs     int `yaml:"after_select_ms"`
	AfterTypeMs       int `yaml:"after_type_ms"`
	AfterSendMs       int `yaml:"after_send_ms"`
}

type SessionConfig struct {
	DelayMinMs    int `yaml:"delay_min_ms"`
	DelayMaxMs    int `yaml:"delay_max_ms"`
	MaxPerSession int `yaml:"max_per_session"`
}

type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

type RateLimitingConfig struct {
	Enabled           bool `yaml:"enabled"`
	MessagesPerMinute int  `yaml:"messages_per_minute"`
}

type FilesConfig struct {
	CompletedCSVPath string `yaml:"completed_csv_path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 3000},
		Browser: BrowserConfig{
			Headless:       true,
			ChromePath:     findChromePath(),
			UserDataDir:    "./chrome-data",
			UserAgent:      DefaultUserAgent,
			ViewportWidth:  1366,
			ViewportHeight: 768,
			LoginURL:       "https://web.telegram.org/k/",
			TimeoutMs:      30000,
			SettleMs:       3000,
		},
		Selectors: SelectorsConfig{
			LoginMarker:  ".login-wrapper",
			SearchInput:  ".input-search input",
			SearchResult: ".chatlist-chat",
			MessageInput: ".input-message-input",
			SendButton:   ".btn-send",
		},
		Typing: TypingConfig{
			SearchKeyDelayMs:  100,
			MessageKeyDelayMs: 50,
			AfterSearchMs:     2000,
			AfterSelectMs:     2000,
			AfterTypeMs:       1000,
			AfterSendMs:       2000,
		},
		Session: SessionConfig{
			DelayMinMs:    30000,
			DelayMaxMs:    90000,
			MaxPerSession: 20,
		},
		Retry: RetryConfig{
			MaxRetries:        0,
			InitialDelayMs:    5000,
			MaxDelayMs:        60000,
			BackoffMultiplier: 2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads the yaml file at configPath over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()

	if config.Browser.UserDataDir != "" {
		absPath, err := filepath.Abs(config.Browser.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user data directory path: %w", err)
		}
		config.Browser.UserDataDir = absPath
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides file values with the service's environment variables.
// Values that do not parse keep what was already there.
func (c *Config) applyEnv() {
	envInt("PORT", &c.Server.Port)
	envInt("DELAY_MIN", &c.Session.DelayMinMs)
	envInt("DELAY_MAX", &c.Session.DelayMaxMs)
	envInt("MAX_PER_SESSION", &c.Session.MaxPerSession)
	envInt("MAX_RETRIES", &c.Retry.MaxRetries)
	envInt("TIMEOUT", &c.Browser.TimeoutMs)
	envString("CHROME_PATH", &c.Browser.ChromePath)
	envString("LOGIN_URL", &c.Browser.LoginURL)
	envString("USER_DATA_DIR", &c.Browser.UserDataDir)
	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)
	if v, ok := os.LookupEnv("HEADLESS"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Browser.Headless = b
		}
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n == 0 {
		return
	}
	*dst = n
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Session.DelayMinMs < 0 {
		errs = append(errs, fmt.Errorf("session.delay_min_ms must not be negative"))
	}
	if c.Session.DelayMinMs > c.Session.DelayMaxMs {
		errs = append(errs, fmt.Errorf("session.delay_min_ms (%d) exceeds session.delay_max_ms (%d)",
			c.Session.DelayMinMs, c.Session.DelayMaxMs))
	}
	if c.Session.MaxPerSession <= 0 {
		errs = append(errs, fmt.Errorf("session.max_per_session must be positive"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative"))
	}
	if c.Browser.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("browser.timeout_ms must be positive"))
	}
	if c.Browser.LoginURL == "" {
		errs = append(errs, fmt.Errorf("browser.login_url is required"))
	}
	if c.RateLimiting.Enabled && c.RateLimiting.MessagesPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("rate_limiting.messages_per_minute must be positive when enabled"))
	}
	s := c.Selectors
	if s.LoginMarker == "" || s.SearchInput == "" || s.SearchResult == "" || s.MessageInput == "" || s.SendButton == "" {
		errs = append(errs, fmt.Errorf("all selectors must be set"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (b BrowserConfig) Timeout() time.Duration { return ms(b.TimeoutMs) }
func (b BrowserConfig) Settle() time.Duration  { return ms(b.SettleMs) }

func (s SessionConfig) DelayMin() time.Duration { return ms(s.DelayMinMs) }
func (s SessionConfig) DelayMax() time.Duration { return ms(s.DelayMaxMs) }

// DelayRange renders the delay bounds the way /status reports them.
func (s SessionConfig) DelayRange() string {
	return fmt.Sprintf("%d-%dms", s.DelayMinMs, s.DelayMaxMs)
}

func (r RetryConfig) InitialDelay() time.Duration { return ms(r.InitialDelayMs) }
func (r RetryConfig) MaxDelay() time.Duration     { return ms(r.MaxDelayMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// findChromePath attempts to locate a Chrome executable on the system
func findChromePath() string {
	var paths []string
	switch runtime.GOOS {
	case "windows":
		paths = []string{
			"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
			"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
			os.Getenv("LOCALAPPDATA") + "\\Google\\Chrome\\Application\\chrome.exe",
		}
	case "linux":
		paths = []string{"/usr/bin/google-chrome", "/usr/bin/chromium", "/usr/bin/chromium-browser"}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Empty lets chromedp search its own defaults
	return ""
}
