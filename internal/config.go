package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/itinera/internal/timeline"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Snapshots SnapshotsConfig   `yaml:"snapshots"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Optimizer OptimizerConfig   `yaml:"optimizer"`
	Images    ImagesConfig      `yaml:"images"`
	Schedule  ScheduleConfig    `yaml:"schedule"`
	Jobs      JobsConfig        `yaml:"jobs"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Snapshots, &c.SQLite, &c.Auth, &c.Optimizer, &c.Images, &c.Schedule,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SnapshotsConfig holds the directory where day plans are saved.
type SnapshotsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the snapshots configuration.
func (c *SnapshotsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// OptimizerConfig points at the route optimisation service. An empty URL
// disables optimisation.
type OptimizerConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerMinute int           `yaml:"rate_per_minute"`
}

// Validate validates the optimizer configuration.
func (c *OptimizerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.When(c.URL != "", validation.Required, validation.Min(time.Second))),
		validation.Field(&c.RatePerMinute, validation.Min(0)),
	)
}

// ImagesConfig points at the place-image lookup service. An empty URL
// disables lookups.
type ImagesConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// Validate validates the images configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.When(c.URL != "", validation.Required)),
	)
}

// ScheduleConfig holds the default day window, as HH:MM.
type ScheduleConfig struct {
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

var clockRule = validation.By(func(v any) error {
	_, err := timeline.ParseClock(v.(string))
	return err
})

// Validate validates the schedule configuration.
func (c *ScheduleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StartTime, validation.Required, clockRule),
		validation.Field(&c.EndTime, validation.Required, clockRule),
	)
}

// Window returns the parsed start and end of the default day.
func (c *ScheduleConfig) Window() (start, end timeline.Clock) {
	start, _ = timeline.ParseClock(c.StartTime)
	end, _ = timeline.ParseClock(c.EndTime)
	return start, end
}

// JobsConfig holds cron specs for background jobs. Empty disables a job.
type JobsConfig struct {
	PoolRefresh string `yaml:"pool_refresh"`
	CacheEvict  string `yaml:"cache_evict"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Snapshots: SnapshotsConfig{
			Path: "./data/plans",
		},
		SQLite: SQLiteConfig{
			Path: "./itinera.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Optimizer: OptimizerConfig{
			Timeout:       30 * time.Second,
			RatePerMinute: 20,
		},
		Images: ImagesConfig{
			TTL: 24 * time.Hour,
		},
		Schedule: ScheduleConfig{
			StartTime: "09:00",
			EndTime:   "19:00",
		},
		Jobs: JobsConfig{
			PoolRefresh: "@every 1m",
			CacheEvict:  "@every 1h",
		},
	}
}
