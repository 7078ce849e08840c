// Package config loads formcheck settings from defaults, an optional YAML
// file, a .env file and FORMCHECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FORMCHECK_SMTP_HOST.
const EnvPrefix = "FORMCHECK"

type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Paths      PathsConfig      `mapstructure:"paths"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	AI         AIConfig         `mapstructure:"ai"`
	Server     ServerConfig     `mapstructure:"server"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format      string `mapstructure:"format" validate:"oneof=console json"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size" validate:"gte=0"`
	MaxBackups  int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge      int    `mapstructure:"max_age" validate:"gte=0"`
	Compress    bool   `mapstructure:"compress"`
}

type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"`
	NoSandbox  bool          `mapstructure:"no_sandbox"`
	Bin        string        `mapstructure:"bin"`
	ProfileDir string        `mapstructure:"profile_dir"`
	Width      int           `mapstructure:"width" validate:"gt=0"`
	Height     int           `mapstructure:"height" validate:"gt=0"`
	UserAgent  string        `mapstructure:"user_agent"`
	SPAWait    time.Duration `mapstructure:"spa_wait" validate:"gte=0"`
}

type EngineConfig struct {
	NavigationTimeout         time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
	FallbackNavigationTimeout time.Duration `mapstructure:"fallback_navigation_timeout" validate:"gt=0"`
	FillTimeout               time.Duration `mapstructure:"fill_timeout" validate:"gt=0"`
	StepTimeout               time.Duration `mapstructure:"step_timeout" validate:"gt=0"`
	SettleDelay               time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	LocateAttempts            int           `mapstructure:"locate_attempts" validate:"gte=1"`
	LocateBackoff             time.Duration `mapstructure:"locate_backoff" validate:"gte=0"`
	PreviewLimit              int           `mapstructure:"preview_limit" validate:"gt=0"`
	FinalizeTimeout           time.Duration `mapstructure:"finalize_timeout" validate:"gt=0"`
	DiscoverWait              time.Duration `mapstructure:"discover_wait" validate:"gte=0"`
}

type DetectionConfig struct {
	Markers []string `mapstructure:"markers"`
	Phrases []string `mapstructure:"phrases"`
}

// ClassifierConfig overrides the synthetic value table. Viper lowercases map
// keys, so override field names are matched in lower case.
type ClassifierConfig struct {
	Values   map[string]string `mapstructure:"values"`
	Fallback string            `mapstructure:"fallback"`
}

type PathsConfig struct {
	Artifacts string `mapstructure:"artifacts" validate:"required"`
	Reports   string `mapstructure:"reports" validate:"required"`
	Templates string `mapstructure:"templates" validate:"required"`
	Database  string `mapstructure:"database" validate:"required"`
}

type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	From        string `mapstructure:"from" validate:"omitempty,email"`
	To          string `mapstructure:"to"`
	ImplicitTLS bool   `mapstructure:"implicit_tls"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider" validate:"omitempty,oneof=claude anthropic openai"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	PublicURL       string        `mapstructure:"public_url" validate:"omitempty,url"`
	StartRate       float64       `mapstructure:"start_rate" validate:"gt=0"`
	StartBurst      int           `mapstructure:"start_burst" validate:"gte=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "formcheck")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 900)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.spa_wait", "3s")

	v.SetDefault("engine.navigation_timeout", "45s")
	v.SetDefault("engine.fallback_navigation_timeout", "30s")
	v.SetDefault("engine.fill_timeout", "3s")
	v.SetDefault("engine.step_timeout", "30s")
	v.SetDefault("engine.settle_delay", "3s")
	v.SetDefault("engine.locate_attempts", 5)
	v.SetDefault("engine.locate_backoff", "1s")
	v.SetDefault("engine.preview_limit", 2000)
	v.SetDefault("engine.finalize_timeout", "60s")
	v.SetDefault("engine.discover_wait", "1200ms")

	v.SetDefault("detection.markers", []string{".wpcf7-mail-sent-ok", ".wpforms-confirmation-container"})
	v.SetDefault("detection.phrases", []string{"thank you", "message sent", "successfully sent"})

	v.SetDefault("classifier.values", map[string]string{})
	v.SetDefault("classifier.fallback", "Test Value")

	v.SetDefault("paths.artifacts", "artifacts")
	v.SetDefault("paths.reports", "reports")
	v.SetDefault("paths.templates", "templates")
	v.SetDefault("paths.database", "data/formcheck.db")

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.to", "")
	v.SetDefault("smtp.implicit_tls", false)

	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.timeout", "60s")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.start_rate", 1.0)
	v.SetDefault("server.start_burst", 5)
	v.SetDefault("server.shutdown_timeout", "30s")
}

// Load reads configuration. An empty path looks for formcheck.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("formcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
