package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the immutable process configuration, parsed from the environment
// once at startup and handed to every component. Core logic never reads the
// environment directly.
type Config struct {
	Addr    string `env:"FILEDROP_ADDR" envDefault:":8000"`
	DataDir string `env:"FILEDROP_DATA_DIR,required" validate:"required"`
	DBPath  string `env:"FILEDROP_DB_PATH,required" validate:"required"`

	// MaxUploadBytes is the single-file ceiling. Default 5 GiB.
	MaxUploadBytes int64 `env:"FILEDROP_MAX_UPLOAD_BYTES" envDefault:"5368709120" validate:"min=0"`

	// MaxSourceBytes is the cumulative per-source ceiling; zero disables the
	// quota entirely. Default 80 GiB.
	MaxSourceBytes int64 `env:"FILEDROP_MAX_SOURCE_BYTES" envDefault:"85899345920" validate:"min=0"`

	// PublicBaseURL is used to build absolute download links. When empty,
	// links are derived from the request host.
	PublicBaseURL string `env:"FILEDROP_PUBLIC_BASE_URL" validate:"omitempty,url"`

	SessionSecret string        `env:"FILEDROP_SESSION_SECRET,required" validate:"required,min=16"`
	SessionTTL    time.Duration `env:"FILEDROP_SESSION_TTL" envDefault:"12h"`
	SecureCookies bool          `env:"FILEDROP_SECURE_COOKIES" envDefault:"false"`

	// AuthUsername/AuthPassword optionally seed a single listing user at
	// startup. With no seed user and an empty credential store the listing
	// gate is disabled.
	AuthUsername string `env:"FILEDROP_AUTH_USERNAME"`
	AuthPassword string `env:"FILEDROP_AUTH_PASSWORD"`

	// AdminToken protects the add-user API that the chat bot command calls.
	AdminToken string `env:"FILEDROP_ADMIN_TOKEN,required" validate:"required"`
}

// Validate checks the parsed configuration before anything is wired up.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
