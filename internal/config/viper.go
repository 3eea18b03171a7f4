// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"strings"
	"time"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Server struct {
		Address             string `mapstructure:"address" yaml:"address"`
		ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
		MaxUploadMB         int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	} `mapstructure:"server" yaml:"server"`

	Database struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"database" yaml:"database"`

	Provider struct {
		SenderID              string `mapstructure:"sender_id" yaml:"sender_id"`
		FragmentWindowSeconds int    `mapstructure:"fragment_window_seconds" yaml:"fragment_window_seconds"`
		LowLimit              string `mapstructure:"low_limit" yaml:"low_limit"`
	} `mapstructure:"provider" yaml:"provider"`

	Orders struct {
		CooldownSeconds    int    `mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
		MinDeposit         string `mapstructure:"min_deposit" yaml:"min_deposit"`
		MinWithdrawal      string `mapstructure:"min_withdrawal" yaml:"min_withdrawal"`
		MinWeltradeDeposit string `mapstructure:"min_weltrade_deposit" yaml:"min_weltrade_deposit"`
		SupportContact     string `mapstructure:"support_contact" yaml:"support_contact"`
	} `mapstructure:"orders" yaml:"orders"`

	Fees struct {
		CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
		ScheduleFile    string `mapstructure:"schedule_file" yaml:"schedule_file"`
	} `mapstructure:"fees" yaml:"fees"`

	Deriv struct {
		Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
		Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint"`
		Origin            string  `mapstructure:"origin" yaml:"origin"`
		AppID             string  `mapstructure:"app_id" yaml:"app_id"`
		AgentLoginID      string  `mapstructure:"agent_login_id" yaml:"agent_login_id"`
		Currency          string  `mapstructure:"currency" yaml:"currency"`
		TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
		Token             string  `mapstructure:"token" yaml:"-"` // Never serialize API token
	} `mapstructure:"deriv" yaml:"deriv"`

	OCR struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		Model          string `mapstructure:"model" yaml:"model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		APIKey         string `mapstructure:"api_key" yaml:"-"` // Never serialize API key
	} `mapstructure:"ocr" yaml:"ocr"`

	WhatsApp struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		APIURL         string `mapstructure:"api_url" yaml:"api_url"`
		PhoneNumberID  string `mapstructure:"phone_number_id" yaml:"phone_number_id"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		Token          string `mapstructure:"token" yaml:"-"`
	} `mapstructure:"whatsapp" yaml:"whatsapp"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.ecobridge")
	v.AddConfigPath(".ecobridge")
	v.AddConfigPath(".")

	// 3. Environment variables
	v.SetEnvPrefix("ECOBRIDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	// 5. Secrets always come from their conventional, unprefixed variables
	secrets := map[string]string{
		"ocr.api_key":    "GEMINI_API_KEY",
		"deriv.token":    "DERIV_API_TOKEN",
		"whatsapp.token": "WHATSAPP_TOKEN",
	}
	for key, env := range secrets {
		if err := v.BindEnv(key, env); err != nil {
			fmt.Printf("Warning: failed to bind %s environment variable: %v\n", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.max_upload_mb", 10)

	v.SetDefault("database.path", "ecobridge.db")

	v.SetDefault("provider.sender_id", "+263164")
	v.SetDefault("provider.fragment_window_seconds", 60)
	v.SetDefault("provider.low_limit", "1.5")

	v.SetDefault("orders.cooldown_seconds", 120)
	v.SetDefault("orders.min_deposit", "1")
	v.SetDefault("orders.min_withdrawal", "1")
	v.SetDefault("orders.min_weltrade_deposit", "1")
	v.SetDefault("orders.support_contact", "")

	v.SetDefault("fees.cache_ttl_seconds", 300)
	v.SetDefault("fees.schedule_file", "")

	v.SetDefault("deriv.enabled", false)
	v.SetDefault("deriv.endpoint", "wss://ws.derivws.com/websockets/v3")
	v.SetDefault("deriv.origin", "https://ecobridge.local")
	v.SetDefault("deriv.app_id", "1089")
	v.SetDefault("deriv.agent_login_id", "")
	v.SetDefault("deriv.currency", "USD")
	v.SetDefault("deriv.timeout_seconds", 30)
	v.SetDefault("deriv.requests_per_second", 2.0)

	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.model", "gemini-1.5-flash")
	v.SetDefault("ocr.timeout_seconds", 30)

	v.SetDefault("whatsapp.enabled", false)
	v.SetDefault("whatsapp.api_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("whatsapp.phone_number_id", "")
	v.SetDefault("whatsapp.timeout_seconds", 30)
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	if config.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	if config.Provider.SenderID == "" {
		return fmt.Errorf("provider.sender_id must not be empty")
	}

	if config.Provider.FragmentWindowSeconds < 1 {
		return fmt.Errorf("provider.fragment_window_seconds must be positive, got: %d", config.Provider.FragmentWindowSeconds)
	}

	// 1 to 3 minutes keeps a double submission from creating two orders.
	if config.Orders.CooldownSeconds < 60 || config.Orders.CooldownSeconds > 180 {
		return fmt.Errorf("orders.cooldown_seconds must be between 60 and 180, got: %d", config.Orders.CooldownSeconds)
	}

	amounts := map[string]string{
		"provider.low_limit":          config.Provider.LowLimit,
		"orders.min_deposit":          config.Orders.MinDeposit,
		"orders.min_withdrawal":       config.Orders.MinWithdrawal,
		"orders.min_weltrade_deposit": config.Orders.MinWeltradeDeposit,
	}
	for key, value := range amounts {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%s must be a decimal amount, got: %q", key, value)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative, got: %s", key, value)
		}
	}

	if config.Deriv.Enabled {
		if config.Deriv.Token == "" {
			return fmt.Errorf("DERIV_API_TOKEN required when deriv is enabled")
		}
		if config.Deriv.AgentLoginID == "" {
			return fmt.Errorf("deriv.agent_login_id required when deriv is enabled")
		}
		if config.Deriv.TimeoutSeconds < 1 || config.Deriv.TimeoutSeconds > 300 {
			return fmt.Errorf("deriv.timeout_seconds must be between 1 and 300, got: %d", config.Deriv.TimeoutSeconds)
		}
		if config.Deriv.RequestsPerSecond <= 0 {
			return fmt.Errorf("deriv.requests_per_second must be positive, got: %f", config.Deriv.RequestsPerSecond)
		}
	}

	if config.OCR.Enabled {
		if config.OCR.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY required when OCR is enabled")
		}
		if config.OCR.TimeoutSeconds < 1 || config.OCR.TimeoutSeconds > 300 {
			return fmt.Errorf("ocr.timeout_seconds must be between 1 and 300, got: %d", config.OCR.TimeoutSeconds)
		}
	}

	if config.WhatsApp.Enabled {
		if config.WhatsApp.Token == "" {
			return fmt.Errorf("WHATSAPP_TOKEN required when whatsapp is enabled")
		}
		if config.WhatsApp.PhoneNumberID == "" {
			return fmt.Errorf("whatsapp.phone_number_id required when whatsapp is enabled")
		}
	}

	return nil
}

// ConfigureLoggingFromConfig configures logging based on the Config struct
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	return logging.NewLogrusLogger(config.Log.Level, config.Log.Format)
}

// Seconds converts a configured whole-second value to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// LowLimit is the amount below which a cash-out is marked low_limit.
func (c *Config) LowLimit() decimal.Decimal {
	return decimal.RequireFromString(c.Provider.LowLimit)
}

// Minimums returns the per-type order minimums.
func (c *Config) Minimums() map[models.OrderType]decimal.Decimal {
	return map[models.OrderType]decimal.Decimal{
		models.OrderDeposit:         decimal.RequireFromString(c.Orders.MinDeposit),
		models.OrderWithdrawal:      decimal.RequireFromString(c.Orders.MinWithdrawal),
		models.OrderWeltradeDeposit: decimal.RequireFromString(c.Orders.MinWeltradeDeposit),
	}
}
