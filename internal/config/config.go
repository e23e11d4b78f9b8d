// Package config loads server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// CONFIG_FILE, then a .env file in the working directory, then the process
// environment. Later layers win.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Read policies for recipes owned by someone else.
const (
	ReadPolicyOwner          = "owner"           // hidden, reported as not found
	ReadPolicyOwnerForbidden = "owner-forbidden" // hidden, reported as forbidden
	ReadPolicyAny            = "any"             // any authenticated user may read
)

const minSecretLen = 32

// Config is the full server configuration.
type Config struct {
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	DBPath   string `yaml:"dbPath"`
	LogLevel string `yaml:"logLevel"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"logFormat"`
	// TrustedProxies lists the reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// TCP peer is always the client.
	TrustedProxies []string `yaml:"trustedProxies"`

	Auth    AuthConfig    `yaml:"auth"`
	Recipes RecipesConfig `yaml:"recipes"`
	Media   MediaConfig   `yaml:"media"`
	GitHub  GitHubConfig  `yaml:"github"`
}

type AuthConfig struct {
	AccessSecret  string   `yaml:"accessSecret"`
	RefreshSecret string   `yaml:"refreshSecret"`
	AccessTTL     Duration `yaml:"accessTTL"`
	RefreshTTL    Duration `yaml:"refreshTTL"`
	BcryptCost    int      `yaml:"bcryptCost"`
	RateLimit     float64  `yaml:"rateLimit"` // requests per second per client IP on /auth
	RateBurst     int      `yaml:"rateBurst"`
}

type RecipesConfig struct {
	ReadPolicy string `yaml:"readPolicy"`
	// GroupForeignRecipes lets a group hold recipes its owner does not own.
	GroupForeignRecipes bool `yaml:"groupForeignRecipes"`
}

// MediaConfig configures the S3-compatible media host. With no bucket set
// uploads are disabled and deletions are no-ops.
type MediaConfig struct {
	Bucket        string   `yaml:"bucket"`
	Region        string   `yaml:"region"`
	Endpoint      string   `yaml:"endpoint"`
	AccessKey     string   `yaml:"accessKey"`
	SecretKey     string   `yaml:"secretKey"`
	PublicBaseURL string   `yaml:"publicBaseURL"`
	UploadTTL     Duration `yaml:"uploadTTL"`
	Workers       int      `yaml:"workers"`
	QueueSize     int      `yaml:"queueSize"`
	DeleteTimeout Duration `yaml:"deleteTimeout"`
}

type GitHubConfig struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	CallbackURL  string `yaml:"callbackURL"`
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Duration is a time.Duration that also accepts a whole-day suffix ("7d")
// in YAML and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration is time.ParseDuration plus "<n>d" for days.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Env:       "development",
		Port:      4000,
		DBPath:    "data/recipes.db",
		LogLevel:  "info",
		LogFormat: "text",
		Auth: AuthConfig{
			AccessTTL:  Duration(15 * time.Minute),
			RefreshTTL: Duration(7 * 24 * time.Hour),
			BcryptCost: 12,
			RateLimit:  5,
			RateBurst:  10,
		},
		Recipes: RecipesConfig{
			ReadPolicy:          ReadPolicyOwner,
			GroupForeignRecipes: true,
		},
		Media: MediaConfig{
			Region:        "us-east-1",
			UploadTTL:     Duration(15 * time.Minute),
			Workers:       4,
			QueueSize:     256,
			DeleteTimeout: Duration(10 * time.Second),
		},
	}
}

// Load builds the configuration from all layers and validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("ENV", &c.Env)
	e.int("PORT", &c.Port)
	e.str("DB_PATH", &c.DBPath)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)
	e.list("TRUSTED_PROXIES", &c.TrustedProxies)

	e.str("JWT_ACCESS_SECRET", &c.Auth.AccessSecret)
	e.str("JWT_REFRESH_SECRET", &c.Auth.RefreshSecret)
	e.duration("JWT_ACCESS_TTL", &c.Auth.AccessTTL)
	e.duration("JWT_REFRESH_TTL", &c.Auth.RefreshTTL)
	e.int("BCRYPT_COST", &c.Auth.BcryptCost)
	e.float("AUTH_RATE_LIMIT", &c.Auth.RateLimit)
	e.int("AUTH_RATE_BURST", &c.Auth.RateBurst)

	e.str("RECIPE_READ_POLICY", &c.Recipes.ReadPolicy)
	e.bool("GROUP_FOREIGN_RECIPES", &c.Recipes.GroupForeignRecipes)

	e.str("S3_BUCKET", &c.Media.Bucket)
	e.str("S3_REGION", &c.Media.Region)
	e.str("S3_ENDPOINT", &c.Media.Endpoint)
	e.str("S3_ACCESS_KEY", &c.Media.AccessKey)
	e.str("S3_SECRET_KEY", &c.Media.SecretKey)
	e.str("S3_PUBLIC_BASE_URL", &c.Media.PublicBaseURL)
	e.duration("UPLOAD_URL_TTL", &c.Media.UploadTTL)
	e.int("MEDIA_WORKERS", &c.Media.Workers)
	e.int("MEDIA_QUEUE_SIZE", &c.Media.QueueSize)
	e.duration("MEDIA_DELETE_TIMEOUT", &c.Media.DeleteTimeout)

	e.str("GITHUB_CLIENT_ID", &c.GitHub.ClientID)
	e.str("GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret)
	e.str("GITHUB_CALLBACK_URL", &c.GitHub.CallbackURL)

	return errors.Join(e.errs...)
}

// Validate rejects configurations the server cannot safely start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if len(c.Auth.AccessSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d characters", minSecretLen))
	}
	if len(c.Auth.RefreshSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", minSecretLen))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d out of range [4,31]", c.Auth.BcryptCost))
	}
	if c.Auth.RateLimit < 0 || c.Auth.RateBurst < 0 {
		errs = append(errs, errors.New("auth rate limit must not be negative"))
	}
	switch c.Recipes.ReadPolicy {
	case ReadPolicyOwner, ReadPolicyOwnerForbidden, ReadPolicyAny:
	default:
		errs = append(errs, fmt.Errorf("RECIPE_READ_POLICY %q is not one of owner, owner-forbidden, any", c.Recipes.ReadPolicy))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not text or json", c.LogFormat))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// ProxyPrefixes parses TrustedProxies. A bare address is a single-host
// prefix.
func (c *Config) ProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", raw)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", raw)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// IsProduction reports whether Env names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

// list reads a comma-separated value, skipping empty items.
func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid number %q", key, v))
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *Duration) {
	if v, ok := e.get(key); ok {
		d, err := ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = Duration(d)
	}
}
