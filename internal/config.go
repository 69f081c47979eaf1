package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Cartooli/math-boredgames-sub001/internal/catalogue"
	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Source    SourceConfig      `yaml:"source"`
	Store     StoreConfig       `yaml:"store"`
	Catalogue CatalogueConfig   `yaml:"catalogue"`
	Auth      AuthConfig        `yaml:"auth"`
	Profiles  ProfilesConfig    `yaml:"profiles"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Catalogue.Validate(); err != nil {
		return err
	}
	if err := c.Profiles.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// TimeZone is the IANA zone calendar days are counted in.
	TimeZone string `yaml:"time_zone"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TimeZone, validation.By(func(any) error {
			_, err := c.Location()
			return err
		})),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// Location resolves TimeZone. Empty means UTC.
func (c *ApplicationConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", c.TimeZone)
	}
	return loc, nil
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

// SourceConfig says where the problem document comes from. Exactly one of
// URL and Path is set.
type SourceConfig struct {
	URL          string        `yaml:"url"`
	Path         string        `yaml:"path"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// Watch rebuilds the catalogue when the file at Path changes.
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	if (c.URL == "") == (c.Path == "") {
		return errors.New("source: exactly one of url and path must be set")
	}
	if c.Watch && c.Path == "" {
		return errors.New("source: watch requires a local path")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// StoreConfig selects the durable key-value backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(kv.DriverMemory, kv.DriverFile, kv.DriverSQLite, kv.DriverBadger)),
		validation.Field(&c.Path, validation.When(c.Driver == kv.DriverFile || c.Driver == kv.DriverSQLite, validation.Required)),
	)
}

// CatalogueConfig controls envelope expiry.
type CatalogueConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Validate validates the catalogue configuration.
func (c *CatalogueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Minute)),
	)
}

// ProfilesConfig names the profile used when a request does not carry one.
type ProfilesConfig struct {
	Default string `yaml:"default"`
}

// Validate validates the profiles configuration.
func (c *ProfilesConfig) Validate() error {
	if c.Default == "" {
		c.Default = problemservice.DefaultProfile
	}
	return problemservice.ValidateProfileID(c.Default)
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

// NewDefaultConfig returns a new Config with sensible default values. The
// source is left unset; it must come from the config file.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			TimeZone: "UTC",
		},
		Source: SourceConfig{
			FetchTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver: kv.DriverSQLite,
			Path:   "./daily.db",
		},
		Catalogue: CatalogueConfig{
			TTL: catalogue.DefaultTTL,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Profiles: ProfilesConfig{
			Default: problemservice.DefaultProfile,
		},
	}
}
