// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nmi-agro/fdm/internal/integrations"
	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/db"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/mailer"
	"github.com/nmi-agro/fdm/pkg/mailer/resend"
	"github.com/nmi-agro/fdm/pkg/oauth"
	"github.com/nmi-agro/fdm/pkg/ratelimit"
	"github.com/nmi-agro/fdm/pkg/redis"
	"github.com/nmi-agro/fdm/pkg/storage"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("config: invalid configuration")

const production = "production"

// Config is the full server configuration.
type Config struct {
	Address     string `env:"ADDRESS" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	BaseURL     string `env:"BASE_URL,required"`
	AuthSecret  string `env:"AUTH_SECRET,required"`

	NMIAPIKey   string `env:"NMI_API_KEY"`
	NMIAPIURL   string `env:"NMI_API_URL" envDefault:"https://api.nmi-agro.nl"`
	AHNIndexURL string `env:"AHN_INDEX_URL"`
	PostHogHost string `env:"POSTHOG_HOST"`

	Log       logger.Config
	DB        db.Config
	Redis     redis.Config
	Storage   storage.Config
	Mailer    mailer.Config
	Resend    resend.Config
	Google    oauth.GoogleConfig
	Microsoft oauth.MicrosoftConfig

	Ingest    ratelimit.Config `envPrefix:"INGEST_"`
	MagicLink ratelimit.Config `envPrefix:"MAGIC_LINK_"`
}

// IsProduction reports whether cookies must be marked Secure.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, production)
}

// AHNIndex returns the configured AHN index URL or the public default.
func (c Config) AHNIndex() string {
	if c.AHNIndexURL != "" {
		return c.AHNIndexURL
	}
	return integrations.DefaultAHNIndexURL
}

// Load reads files (".env" when none are given) into the process
// environment without overriding it, then parses and validates.
// Missing files are skipped.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return Parse(env.ToMap(os.Environ()))
}

// Parse builds a Config from environ and validates it.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if err := cookie.Validate(c.AuthSecret); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_SECRET: %w", err))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL))
	}
	if c.Ingest.RPS <= 0 {
		errs = append(errs, errors.New("INGEST_RPS must be positive"))
	}
	if c.MagicLink.RPS <= 0 {
		errs = append(errs, errors.New("MAGIC_LINK_RPS must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
