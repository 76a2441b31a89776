package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultAppName         = "authgraph"
	defaultAppEnv          = "development"
	defaultPort            = "4000"
	defaultLogLevel        = "info"
	defaultMongoDatabase   = "authgraph"
	defaultTokenTTL        = 30 * 24 * time.Hour
	defaultMaxAttempts     = 5
	defaultLockoutMinutes  = 15
	defaultBcryptCost      = 10
	defaultMFAIssuer       = "authgraph"
	defaultShutdownDelay   = 10 * time.Second
	configFileEnvVar       = "CONFIG_FILE"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config captures application runtime configuration. It is built once at
// startup and passed by value.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	StoreDriver      string
	DatabaseURL      string
	RedisURL         string
	MongoURI         string
	MongoDatabase    string
	JWTSecret        string
	TokenTTL         time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	BcryptCost       int
	MFAIssuer        string
	RequireMFA       bool
	RunMigrations    bool
	ShutdownPeriod   time.Duration
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// TOML file its keys (lower-case variable names) fill in anything the
// environment leaves unset.
func Load() (Config, error) {
	src := source{file: map[string]string{}}
	if path := os.Getenv(configFileEnvVar); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return load(src)
}

func load(src source) (Config, error) {
	cfg := Config{
		AppName:       src.get("APP_NAME", defaultAppName),
		AppEnv:        src.get("APP_ENV", defaultAppEnv),
		Port:          src.get("PORT", defaultPort),
		LogLevel:      strings.ToLower(src.get("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:   src.get("DATABASE_URL", ""),
		RedisURL:      src.get("REDIS_URL", ""),
		MongoURI:      src.get("MONGO_URI", ""),
		MongoDatabase: src.get("MONGO_DATABASE", defaultMongoDatabase),
		JWTSecret:     src.get("JWT_SECRET", ""),
		MFAIssuer:     src.get("MFA_ISSUER", defaultMFAIssuer),
	}

	defaultDriver := DriverPostgres
	if cfg.IsDev() {
		defaultDriver = DriverMemory
	}
	cfg.StoreDriver = strings.ToLower(src.get("STORE_DRIVER", defaultDriver))

	var err error
	if cfg.TokenTTL, err = ParseTTL(src.get("JWT_EXPIRES_IN", "")); err != nil {
		return Config{}, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.MaxLoginAttempts, err = src.getInt("MAX_LOGIN_ATTEMPTS", defaultMaxAttempts); err != nil {
		return Config{}, err
	}
	lockoutMinutes, err := src.getInt("LOCKOUT_DURATION_MINUTES", defaultLockoutMinutes)
	if err != nil {
		return Config{}, err
	}
	cfg.LockoutDuration = time.Duration(lockoutMinutes) * time.Minute
	if cfg.BcryptCost, err = src.getInt("BCRYPT_COST", defaultBcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.RequireMFA, err = src.getBool("LOGIN_REQUIRE_MFA", true); err != nil {
		return Config{}, err
	}
	if cfg.RunMigrations, err = src.getBool("RUN_MIGRATIONS", true); err != nil {
		return Config{}, err
	}

	cfg.ShutdownPeriod = defaultShutdownDelay
	if v := src.get(shutdownSecondsEnvVar, ""); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := src.get(shutdownDurationEnvVar, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION_MINUTES must be positive")
	}
	switch c.StoreDriver {
	case DriverMemory:
		if !c.IsDev() {
			return fmt.Errorf("STORE_DRIVER=memory is only allowed in development, APP_ENV=%s", c.AppEnv)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI must be set")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// ParseTTL accepts a Go duration ("720h"), a day count ("30d") or plain
// seconds ("3600"). An empty string yields zero.
func ParseTTL(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad day count %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("ttl must be positive, got %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %q", v)
	}
	return d, nil
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (s source) getInt(key string, fallback int) (int, error) {
	v := s.get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func (s source) getBool(key string, fallback bool) (bool, error) {
	v := s.get(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func readFile(path string) (map[string]string, error) {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]interface{}, []interface{}, []map[string]interface{}:
			return nil, fmt.Errorf("read %s: key %q must be a scalar", path, k)
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}
