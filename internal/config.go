package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Authorization AuthorizationConfig `mapstructure:"authorization"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

// AuthorizationConfig tunes the permission decision cache.
type AuthorizationConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// NotificationConfig tunes notification delivery and lifecycle.
type NotificationConfig struct {
	RetentionDays   int           `mapstructure:"retention_days"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchPause      time.Duration `mapstructure:"batch_pause"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	CountCacheTTL   time.Duration `mapstructure:"count_cache_ttl"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DefaultAuthzCacheTTL          = time.Hour
	DefaultNotificationRetention  = 21 // days
	DefaultNotificationBatchSize  = 50
	DefaultNotificationBatchPause = 100 * time.Millisecond
	DefaultCleanupInterval        = time.Hour
	DefaultCountCacheTTL          = 5 * time.Minute
)

// ApplyDefaults fills in zero values so partially specified config files work.
func (c *Config) ApplyDefaults() {
	if c.Authorization.CacheTTL <= 0 {
		c.Authorization.CacheTTL = DefaultAuthzCacheTTL
	}
	if c.Notification.RetentionDays <= 0 {
		c.Notification.RetentionDays = DefaultNotificationRetention
	}
	if c.Notification.BatchSize <= 0 {
		c.Notification.BatchSize = DefaultNotificationBatchSize
	}
	if c.Notification.BatchPause <= 0 {
		c.Notification.BatchPause = DefaultNotificationBatchPause
	}
	if c.Notification.CleanupInterval <= 0 {
		c.Notification.CleanupInterval = DefaultCleanupInterval
	}
	if c.Notification.CountCacheTTL <= 0 {
		c.Notification.CountCacheTTL = DefaultCountCacheTTL
	}
	if c.Security.AccessTokenDuration <= 0 {
		c.Security.AccessTokenDuration = 15 * time.Minute
	}
	if c.Security.RefreshTokenDuration <= 0 {
		c.Security.RefreshTokenDuration = 7 * 24 * time.Hour
	}
}

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access_token_secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh_token_secret must be at least 32 characters")
	}
	return nil
}

// Retention returns the purge window as a duration.
func (c *NotificationConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
