package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	StorageFS       = "fs"
	StorageSupabase = "supabase"
)

// Index drivers.
const (
	IndexLocal  = "local"
	IndexRemote = "remote"
)

// DefaultLocations are the scheduling sites accepted when none are configured.
var DefaultLocations = []string{
	"10 UNION SQ E",
	"1090 AMST AVE",
	"1176 5TH AVE",
	"1470 MADISON AVE",
	"425 W 59TH ST",
	"787 11TH AVE",
	"325 W 15TH ST",
	"MSQ OP RAD",
	"300 CADMAN PLAZA",
	"MSM",
	"MSB",
}

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Storage   StorageConfig     `yaml:"storage"`
	Index     IndexConfig       `yaml:"index"`
	Transform TransformConfig   `yaml:"transform"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	Notes     NotesConfig       `yaml:"notes"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"storage", &c.Storage},
		{"index", &c.Index},
		{"transform", &c.Transform},
		{"notes", &c.Notes},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return c.Auth.Validate()
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

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Driver            string         `yaml:"driver"`
	FS                FSConfig       `yaml:"fs"`
	Supabase          SupabaseConfig `yaml:"supabase"`
	PublicBaseURL     string         `yaml:"public_base_url"`
	AllowedExtensions []string       `yaml:"allowed_extensions"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StorageFS, StorageSupabase)),
	); err != nil {
		return err
	}
	if c.Driver == StorageSupabase {
		return c.Supabase.Validate()
	}
	return c.FS.Validate()
}

// FSConfig holds the root of the filesystem store.
type FSConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the filesystem store configuration.
func (c *FSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// SupabaseConfig holds Supabase Storage credentials.
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	MaxRetries int    `yaml:"max_retries"`
}

// Validate validates the Supabase configuration.
func (c *SupabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.ServiceKey, validation.Required),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// IndexConfig selects and configures the search index.
type IndexConfig struct {
	Driver   string          `yaml:"driver"`
	SQLite   SQLiteConfig    `yaml:"sqlite"`
	Remote   RemoteConfig    `yaml:"remote"`
	Embed    EmbeddingConfig `yaml:"embedding"`
	TimeZone string          `yaml:"time_zone"`
	Workers  int             `yaml:"workers"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(IndexLocal, IndexRemote)),
		validation.Field(&c.TimeZone, validation.By(func(any) error {
			if c.TimeZone == "" {
				return nil
			}
			_, err := time.LoadLocation(c.TimeZone)
			return err
		})),
		validation.Field(&c.Workers, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Driver == IndexRemote {
		return c.Remote.Validate()
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Embed.Validate()
}

// Location resolves TimeZone, defaulting to America/New_York.
func (c *IndexConfig) Location() (*time.Location, error) {
	name := c.TimeZone
	if name == "" {
		name = "America/New_York"
	}
	return time.LoadLocation(name)
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

// RemoteConfig points at an external indexing service.
type RemoteConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	MaxRetries int    `yaml:"max_retries"`
}

// Validate validates the remote index configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// EmbeddingConfig enables vector search on the local index. Empty Host
// keeps text search.
type EmbeddingConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
	Token string `yaml:"token"`
}

// Enabled reports whether embeddings are configured.
func (c *EmbeddingConfig) Enabled() bool { return c.Host != "" }

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, is.URL),
		validation.Field(&c.Model, validation.When(c.Host != "", validation.Required)),
	)
}

// TransformConfig configures the columnar conversion job.
type TransformConfig struct {
	TriggerURL   string        `yaml:"trigger_url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	ClockSkew    time.Duration `yaml:"clock_skew"`
}

// Validate validates the transform configuration.
func (c *TransformConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TriggerURL, validation.Required, is.URL),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.Timeout, validation.Required, validation.By(func(any) error {
			if c.Timeout < c.PollInterval {
				return errors.New("must not be shorter than poll_interval")
			}
			return nil
		})),
		validation.Field(&c.ClockSkew, validation.Min(time.Duration(0))),
	)
}

// CatalogConfig holds catalog listing settings.
type CatalogConfig struct {
	Hidden []string `yaml:"hidden"`
}

// NotesConfig holds note settings.
type NotesConfig struct {
	Locations []string `yaml:"locations"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Locations, validation.Each(validation.Required)),
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP:     HTTPConfig{Port: 8080},
		},
		Storage: StorageConfig{
			Driver: StorageFS,
			FS:     FSConfig{Root: "./data"},
		},
		Index: IndexConfig{
			Driver:   IndexLocal,
			SQLite:   SQLiteConfig{Path: "./kbsync.db"},
			TimeZone: "America/New_York",
		},
		Transform: TransformConfig{
			PollInterval: 4 * time.Second,
			Timeout:      4 * time.Minute,
		},
		Notes: NotesConfig{Locations: append([]string(nil), DefaultLocations...)},
		Auth:  AuthConfig{Mode: AuthModeDisabled},
	}
}
