package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the rewards runner daemon.
type Config struct {
	// CDP connection settings
	CDPAddress    string `env:"CHROMIUM_CDP_ADDRESS" validate:"required"`
	CDPPort       int    `env:"CHROMIUM_CDP_PORT" validate:"min=1,max=65535"`
	Driver        string `env:"REWARDS_DRIVER" validate:"oneof=raw chromedp"`
	EvalTimeoutMS int    `env:"REWARDS_EVAL_TIMEOUT_MS" validate:"min=1000"`

	// HTTP API
	BindAddr         string   `env:"REWARDS_BIND_ADDR" validate:"required,hostname_port"`
	PortAutoFallback bool     `env:"REWARDS_PORT_AUTO_FALLBACK"`
	PortCandidates   []string `env:"REWARDS_PORT_CANDIDATES" validate:"dive,hostname_port"`

	// Logging
	LogLevel string `env:"REWARDS_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFile  string `env:"REWARDS_LOG_FILE"`

	// Browser process
	LaunchBrowser bool   `env:"REWARDS_LAUNCH_BROWSER"`
	Headless      bool   `env:"REWARDS_HEADLESS"`
	ProfileDir    string `env:"REWARDS_PROFILE_DIR" validate:"required_if=LaunchBrowser true"`
	BrowserPath   string `env:"REWARDS_BROWSER_PATH"`

	// Run behaviour
	SearchCount        int    `env:"REWARDS_SEARCH_COUNT" validate:"min=0"`
	SearchIntervalMS   int    `env:"REWARDS_SEARCH_INTERVAL_MS" validate:"min=0"`
	SettleDelayMS      int    `env:"REWARDS_SETTLE_DELAY_MS" validate:"min=0"`
	TypingDelayMS      int    `env:"REWARDS_TYPING_DELAY_MS" validate:"min=0"`
	RewardsLoadDelayMS int    `env:"REWARDS_REWARDS_LOAD_DELAY_MS" validate:"min=0"`
	ClickDelayMS       int    `env:"REWARDS_CLICK_DELAY_MS" validate:"min=0"`
	SearchURL          string `env:"REWARDS_SEARCH_URL" validate:"required,url"`
	SearchHost         string `env:"REWARDS_SEARCH_HOST" validate:"required"`
	RewardsURL         string `env:"REWARDS_REWARDS_URL" validate:"required,url"`
	RewardSelector     string `env:"REWARDS_REWARD_SELECTOR" validate:"required"`
	TermsFile          string `env:"REWARDS_TERMS_FILE"`

	// Triggers
	StartupDelayMS  int    `env:"REWARDS_STARTUP_DELAY_MS" validate:"min=0"`
	NewTabDelayMS   int    `env:"REWARDS_NEW_TAB_DELAY_MS" validate:"min=0"`
	TriggerOnNewTab bool   `env:"REWARDS_TRIGGER_ON_NEW_TAB"`
	Schedule        string `env:"REWARDS_SCHEDULE"`

	// Notifications
	NotifyURL string `env:"REWARDS_NOTIFY_URL" validate:"omitempty,url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		Driver:        strings.ToLower(getEnvOrDefault("REWARDS_DRIVER", "raw")),
		EvalTimeoutMS: getEnvIntOrDefault("REWARDS_EVAL_TIMEOUT_MS", 10000),

		BindAddr:         getEnvOrDefault("REWARDS_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback: getEnvBoolOrDefault("REWARDS_PORT_AUTO_FALLBACK", true),
		PortCandidates:   getEnvListOrDefault("REWARDS_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),

		LogLevel: strings.ToLower(getEnvOrDefault("REWARDS_LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("REWARDS_LOG_FILE", "logs/rewardrunner.log"),

		LaunchBrowser: getEnvBoolOrDefault("REWARDS_LAUNCH_BROWSER", true),
		Headless:      getEnvBoolOrDefault("REWARDS_HEADLESS", false),
		ProfileDir:    getEnvOrDefault("REWARDS_PROFILE_DIR", "./browser_profile"),
		BrowserPath:   getEnvOrDefault("REWARDS_BROWSER_PATH", ""),

		SearchCount:        getEnvIntOrDefault("REWARDS_SEARCH_COUNT", 5),
		SearchIntervalMS:   getEnvIntOrDefault("REWARDS_SEARCH_INTERVAL_MS", 9000),
		SettleDelayMS:      getEnvIntOrDefault("REWARDS_SETTLE_DELAY_MS", 3000),
		TypingDelayMS:      getEnvIntOrDefault("REWARDS_TYPING_DELAY_MS", 500),
		RewardsLoadDelayMS: getEnvIntOrDefault("REWARDS_REWARDS_LOAD_DELAY_MS", 5000),
		ClickDelayMS:       getEnvIntOrDefault("REWARDS_CLICK_DELAY_MS", 4000),
		SearchURL:          getEnvOrDefault("REWARDS_SEARCH_URL", "https://www.bing.com/"),
		SearchHost:         getEnvOrDefault("REWARDS_SEARCH_HOST", "bing.com"),
		RewardsURL:         getEnvOrDefault("REWARDS_REWARDS_URL", "https://rewards.bing.com/"),
		RewardSelector:     getEnvOrDefault("REWARDS_REWARD_SELECTOR", "#more-activities a.ds-card-sec"),
		TermsFile:          getEnvOrDefault("REWARDS_TERMS_FILE", ""),

		StartupDelayMS:  getEnvIntOrDefault("REWARDS_STARTUP_DELAY_MS", 3000),
		NewTabDelayMS:   getEnvIntOrDefault("REWARDS_NEW_TAB_DELAY_MS", 1000),
		TriggerOnNewTab: getEnvBoolOrDefault("REWARDS_TRIGGER_ON_NEW_TAB", true),
		Schedule:        strings.TrimSpace(getEnvOrDefault("REWARDS_SCHEDULE", "")),

		NotifyURL: getEnvOrDefault("REWARDS_NOTIFY_URL", ""),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field-level rules and reports every violation by its
// environment variable name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, e.Field()+" "+formatValidationError(e))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// CheckSearchCount rejects a search count larger than the loaded catalog.
func (c *Config) CheckSearchCount(catalogSize int) error {
	if c.SearchCount > catalogSize {
		return fmt.Errorf("config: REWARDS_SEARCH_COUNT=%d exceeds catalog size %d", c.SearchCount, catalogSize)
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return "must be >= " + e.Param()
	case "max":
		return "must be <= " + e.Param()
	default:
		return "is invalid"
	}
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + net.JoinHostPort(c.CDPAddress, strconv.Itoa(c.CDPPort))
}

// Millis converts a millisecond setting to a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
