package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information.
var Version = "dev"

var validate = validator.New()

// Config holds every sub-config.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Relay    RelayConfig    `mapstructure:"relay"    validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
}

// LoggingConfig controls the zap core built at startup.
type LoggingConfig struct {
	Level      string `mapstructure:"level"       validate:"log_level"`
	Format     string `mapstructure:"format"      validate:"log_format"`
	FilePath   string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"    validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAge     int    `mapstructure:"max_age"     validate:"min=0"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RelayConfig holds the relay identity and transport settings.
type RelayConfig struct {
	Name            string        `mapstructure:"name"              validate:"required,max=30"`
	Description     string        `mapstructure:"description"`
	Contact         string        `mapstructure:"contact"`
	Icon            string        `mapstructure:"icon"`
	WSAddr          string        `mapstructure:"ws_addr"           validate:"wsaddr"`
	PublicURL       string        `mapstructure:"public_url"        validate:"required"`
	BaseDomainParts int           `mapstructure:"base_domain_parts" validate:"min=1"`
	PrivateKey      string        `mapstructure:"private_key"       validate:"omitempty,len=64,hexadecimal"`
	KeyFile         string        `mapstructure:"key_file"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"      validate:"min=1s"`
	QueryLimit      int           `mapstructure:"query_limit"       validate:"min=1,max=5000"`
	MaxContentLen   int           `mapstructure:"max_content_len"   validate:"min=1"`
	Throttling      ThrottlingConfig `mapstructure:"throttling"`
}

// ThrottlingConfig bounds per-connection traffic.
type ThrottlingConfig struct {
	MaxConnections     int `mapstructure:"max_connections"       validate:"min=1"`
	MaxEventsPerSecond int `mapstructure:"max_events_per_second" validate:"min=1"`
	BurstSize          int `mapstructure:"burst_size"            validate:"min=1"`
}

// DatabaseConfig points at the PostgreSQL / CockroachDB cluster.
type DatabaseConfig struct {
	Server   string `mapstructure:"server" validate:"required"`
	Port     int    `mapstructure:"port"   validate:"min=1,max=65535"`
	User     string `mapstructure:"user"   validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"   validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// URI renders the connection string for pgx.
func (d DatabaseConfig) URI() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	if d.Password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Server, d.Port, d.Name, ssl)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		d.User, d.Server, d.Port, d.Name, ssl)
}

func init() {
	registerCustomValidators()
}

func registerCustomValidators() {
	if err := validate.RegisterValidation("wsaddr", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		if addr == "" {
			return false
		}
		if strings.HasPrefix(addr, ":") {
			_, err := net.LookupPort("tcp", addr[1:])
			return err == nil
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		if _, err := net.LookupPort("tcp", port); err != nil {
			return false
		}
		if host != "" && net.ParseIP(host) == nil {
			matched, _ := regexp.MatchString(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`, host)
			return matched
		}
		return true
	}); err != nil {
		logger.Error("Failed to register wsaddr validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	}); err != nil {
		logger.Error("Failed to register log_level validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		format := fl.Field().String()
		return format == "console" || format == "json"
	}); err != nil {
		logger.Error("Failed to register log_format validator", zap.Error(err))
	}
}

// SetVersion sets the version from build information.
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, and returns cfg.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GROUPS") // GROUPS_RELAY_WS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err == nil && log != nil {
			log.Info("Loaded config.yaml from current directory")
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return &cfg, nil
}

func initializeLogger(lc LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(lc.Level),
		logger.WithFormat(lc.Format),
		logger.WithFile(lc.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("relay"),
		logger.WithRotation(lc.MaxSize, lc.MaxBackups, lc.MaxAge),
	)
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	var messages []string
	for _, fe := range validationErrors {
		messages = append(messages, fieldErrorMessage(fe))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fe.Field(), fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fe.Field(), fe.Param(), fe.Value())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", fe.Field(), fe.Param())
	case "hexadecimal":
		return fmt.Sprintf("%s must contain only hexadecimal characters", fe.Field())
	case "wsaddr":
		return fmt.Sprintf("%s must be a valid listen address in ':port' or 'host:port' form (got: %v)", fe.Field(), fe.Value())
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", fe.Field(), fe.Value())
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}
