// Package config loads runtime settings for the three services.
//
// Sources are layered, each overriding the previous one:
//
//  1. built-in defaults for the service
//  2. an optional YAML file (--config or CONFIG_FILE)
//  3. environment variables
//  4. command-line flags
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Service names one of the binaries.
type Service string

const (
	Gateway     Service = "gateway"
	AuthService Service = "auth-service"
	UserService Service = "user-service"
)

// minSecretLen matches the token codec's minimum.
const minSecretLen = 16

// Config holds the settings of one service. Fields a service does not use
// keep their defaults and are not validated.
type Config struct {
	Service           Service       `yaml:"-"`
	Port              int           `yaml:"port"`
	DBPath            string        `yaml:"db_path"`
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	UserServiceURL    string        `yaml:"user_service_url"`
	AuthServiceURL    string        `yaml:"auth_service_url"`
	DirectoryTimeout  time.Duration `yaml:"directory_timeout"`
	DirectoryCacheTTL time.Duration `yaml:"directory_cache_ttl"`
	LogLevel          string        `yaml:"log_level"`
	DegradedPrincipal bool          `yaml:"degraded_principal"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
	PublicPrefixes    []string      `yaml:"public_prefixes"`
}

// Defaults returns the built-in settings for service.
func Defaults(service Service) Config {
	c := Config{
		Service:          service,
		TokenTTL:         time.Hour,
		UserServiceURL:   "http://localhost:8081",
		AuthServiceURL:   "http://localhost:8082",
		DirectoryTimeout: 3 * time.Second,
		LogLevel:         "info",
		BcryptCost:       12,
	}
	switch service {
	case Gateway:
		c.Port = 8080
	case UserService:
		c.Port = 8081
		c.DBPath = "data/users.db"
	case AuthService:
		c.Port = 8082
		c.DBPath = "data/auth.db"
	}
	return c
}

// Load builds the configuration for service from all sources. args are the
// command-line arguments without the program name.
func Load(service Service, args []string) (Config, error) {
	return load(service, args, os.LookupEnv)
}

func load(service Service, args []string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults(service)

	// Flags are parsed first so --config is known, but applied last.
	fs, flags := newFlagSet(service)
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parsing flags: %w", err)
	}

	path := flags.configFile
	if path == "" {
		path, _ = lookup("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	flags.apply(fs, &cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	service := c.Service
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	c.Service = service
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	integer("PORT", &c.Port)
	str("DB_PATH", &c.DBPath)
	str("JWT_SECRET", &c.JWTSecret)
	duration("TOKEN_TTL", &c.TokenTTL)
	str("USER_SERVICE_URL", &c.UserServiceURL)
	str("AUTH_SERVICE_URL", &c.AuthServiceURL)
	duration("DIRECTORY_TIMEOUT", &c.DirectoryTimeout)
	duration("DIRECTORY_CACHE_TTL", &c.DirectoryCacheTTL)
	str("LOG_LEVEL", &c.LogLevel)
	boolean("DEGRADED_PRINCIPAL", &c.DegradedPrincipal)
	integer("BCRYPT_COST", &c.BcryptCost)
	if v, ok := lookup("PUBLIC_PREFIXES"); ok && v != "" {
		c.PublicPrefixes = splitList(v)
	}

	return errors.Join(errs...)
}

// flagValues receives parsed flags before they are copied onto a Config.
type flagValues struct {
	configFile        string
	port              int
	dbPath            string
	jwtSecret         string
	tokenTTL          time.Duration
	userServiceURL    string
	authServiceURL    string
	directoryTimeout  time.Duration
	directoryCacheTTL time.Duration
	logLevel          string
	degraded          bool
	bcryptCost        int
	publicPrefixes    []string
}

func newFlagSet(service Service) (*pflag.FlagSet, *flagValues) {
	v := &flagValues{}
	fs := pflag.NewFlagSet(string(service), pflag.ContinueOnError)

	fs.StringVarP(&v.configFile, "config", "c", "", "path to a YAML config file")
	fs.IntVarP(&v.port, "port", "p", 0, "HTTP listen port")
	fs.StringVar(&v.dbPath, "db-path", "", "SQLite database file")
	fs.StringVar(&v.jwtSecret, "jwt-secret", "", "HMAC secret for tokens (at least 16 bytes)")
	fs.DurationVar(&v.tokenTTL, "token-ttl", 0, "lifetime of issued tokens")
	fs.StringVar(&v.userServiceURL, "user-service-url", "", "base URL of the user-service")
	fs.StringVar(&v.authServiceURL, "auth-service-url", "", "base URL of the auth-service")
	fs.DurationVar(&v.directoryTimeout, "directory-timeout", 0, "timeout for each identity directory call")
	fs.DurationVar(&v.directoryCacheTTL, "directory-cache-ttl", 0, "cache identity lookups for this long (0 disables)")
	fs.StringVar(&v.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&v.degraded, "degraded-principal", false, "accept a token-only principal when the identity is unresolvable")
	fs.IntVar(&v.bcryptCost, "bcrypt-cost", 0, "bcrypt work factor")
	fs.StringSliceVar(&v.publicPrefixes, "public-prefixes", nil, "paths forwarded without a token")

	return fs, v
}

// apply copies only the flags that were set on the command line.
func (v *flagValues) apply(fs *pflag.FlagSet, c *Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("port", func() { c.Port = v.port })
	set("db-path", func() { c.DBPath = v.dbPath })
	set("jwt-secret", func() { c.JWTSecret = v.jwtSecret })
	set("token-ttl", func() { c.TokenTTL = v.tokenTTL })
	set("user-service-url", func() { c.UserServiceURL = v.userServiceURL })
	set("auth-service-url", func() { c.AuthServiceURL = v.authServiceURL })
	set("directory-timeout", func() { c.DirectoryTimeout = v.directoryTimeout })
	set("directory-cache-ttl", func() { c.DirectoryCacheTTL = v.directoryCacheTTL })
	set("log-level", func() { c.LogLevel = v.logLevel })
	set("degraded-principal", func() { c.DegradedPrincipal = v.degraded })
	set("bcrypt-cost", func() { c.BcryptCost = v.bcryptCost })
	set("public-prefixes", func() { c.PublicPrefixes = v.publicPrefixes })
}

// Validate checks the settings the service actually uses.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	if len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("config: JWT secret must be at least %d bytes", minSecretLen))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	switch c.Service {
	case Gateway:
		errs = append(errs, checkURL("auth service URL", c.AuthServiceURL))
		errs = append(errs, checkURL("user service URL", c.UserServiceURL))
	case AuthService:
		errs = append(errs, checkURL("user service URL", c.UserServiceURL))
		if c.TokenTTL <= 0 {
			errs = append(errs, errors.New("config: token TTL must be positive"))
		}
		if c.DirectoryTimeout <= 0 {
			errs = append(errs, errors.New("config: directory timeout must be positive"))
		}
		if c.DirectoryCacheTTL < 0 {
			errs = append(errs, errors.New("config: directory cache TTL must not be negative"))
		}
	case UserService:
	default:
		errs = append(errs, fmt.Errorf("config: unknown service %q", c.Service))
	}

	if c.Service == AuthService || c.Service == UserService {
		if c.DBPath == "" {
			errs = append(errs, errors.New("config: database path is required"))
		}
		if c.BcryptCost != 0 && (c.BcryptCost < 4 || c.BcryptCost > 31) {
			errs = append(errs, fmt.Errorf("config: bcrypt cost %d out of range", c.BcryptCost))
		}
	}

	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: %s %q is not an absolute URL", name, raw)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
