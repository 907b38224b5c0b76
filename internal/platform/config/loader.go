package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr     *string
	PublicOrigin   *string
	StoreDriver    *string
	DataDir        *string
	CacheDriver    *string
	AdminUsername  *string
	AdminPassword  *string
	LoggingLevel   *string
	LoginPerMinute *string // numeric string, or "" (unset)
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode         string `toml:"mode"`
	ListenAddr   string `toml:"listen_addr"`
	PublicOrigin string `toml:"public_origin"`

	Server       *serverConfig       `toml:"server"`
	Store        *storeConfig        `toml:"store"`
	Cache        *cacheConfig        `toml:"cache"`
	Ratelimit    *ratelimitConfig    `toml:"ratelimit"`
	Logging      *loggingConfig      `toml:"logging"`
	Restrictions *restrictionsConfig `toml:"restrictions"`
}

type serverConfig struct {
	TrustedOrigins         []string        `toml:"trusted_origins"`
	ShutdownTimeoutSeconds int             `toml:"shutdown_timeout_seconds"`
	BootstrapAdmin         *bootstrapAdmin `toml:"bootstrap_admin"`
}

type bootstrapAdmin struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type storeConfig struct {
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
}

type cacheConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

type ratelimitConfig struct {
	LoginPerMinute int64 `toml:"login_per_minute"`
}

type loggingConfig struct {
	Level string `toml:"level"`
}

type restrictionsConfig struct {
	EmailRules []string `toml:"email_rules"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "prod"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	if err := overlayFlags(cfg, opts.FlagOverrides); err != nil {
		return nil, err
	}

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}

	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return ProdConfig()
}

// ProdConfig returns production-safe defaults.
func ProdConfig() *Config {
	return &Config{
		Mode:       string(ModeProd),
		ListenAddr: ":8600",
		Server: ServerConfig{
			ShutdownTimeoutSeconds: 15,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".addonforge",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Ratelimit: RatelimitConfig{
			LoginPerMinute: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevConfig returns development mode defaults: everything in memory, chatty
// logs, relaxed login limits.
func DevConfig() *Config {
	return &Config{
		Mode:       string(ModeDev),
		ListenAddr: ":8600",
		Server: ServerConfig{
			ShutdownTimeoutSeconds: 5,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Ratelimit: RatelimitConfig{
			LoginPerMinute: 100,
		},
		Logging: LoggingConfig{
			Level: "debug",
		},
	}
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}

	if fc.Server != nil {
		if len(fc.Server.TrustedOrigins) > 0 {
			cfg.Server.TrustedOrigins = fc.Server.TrustedOrigins
		}
		if fc.Server.ShutdownTimeoutSeconds > 0 {
			cfg.Server.ShutdownTimeoutSeconds = fc.Server.ShutdownTimeoutSeconds
		}
		if fc.Server.BootstrapAdmin != nil {
			cfg.Server.BootstrapAdmin.Username = fc.Server.BootstrapAdmin.Username
			cfg.Server.BootstrapAdmin.Password = fc.Server.BootstrapAdmin.Password
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Ratelimit != nil && fc.Ratelimit.LoginPerMinute > 0 {
		cfg.Ratelimit.LoginPerMinute = fc.Ratelimit.LoginPerMinute
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}

	if fc.Restrictions != nil && len(fc.Restrictions.EmailRules) > 0 {
		cfg.Restrictions.EmailRules = fc.Restrictions.EmailRules
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) error {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.PublicOrigin != nil && *f.PublicOrigin != "" {
		cfg.PublicOrigin = *f.PublicOrigin
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.Store.DataDir = *f.DataDir
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.AdminUsername != nil && *f.AdminUsername != "" {
		cfg.Server.BootstrapAdmin.Username = *f.AdminUsername
	}
	if f.AdminPassword != nil && *f.AdminPassword != "" {
		cfg.Server.BootstrapAdmin.Password = *f.AdminPassword
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.LoginPerMinute != nil && *f.LoginPerMinute != "" {
		n, err := strconv.ParseInt(*f.LoginPerMinute, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid login-per-minute %q: must be a positive integer", *f.LoginPerMinute)
		}
		cfg.Ratelimit.LoginPerMinute = n
	}
	return nil
}

// validateEnums validates enum-like config fields.
func validateEnums(cfg *Config) error {
	switch cfg.Store.Driver {
	case "memory", "sqlite":
		// valid
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory, sqlite", cfg.Store.Driver)
	}

	if cfg.Store.Driver == "sqlite" && cfg.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required when store.driver is sqlite")
	}

	switch cfg.Cache.Driver {
	case "", "memory":
		// valid (empty defaults to memory)
	default:
		return fmt.Errorf("invalid cache.driver %q: must be memory", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Ratelimit.LoginPerMinute <= 0 {
		return fmt.Errorf("ratelimit.login_per_minute must be positive, got %d", cfg.Ratelimit.LoginPerMinute)
	}

	return nil
}

// validatePublicOrigin checks the public_origin config value when set.
// Must be an absolute URL with http/https scheme, a host, and no userinfo,
// path, query, or fragment. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	if cfg.PublicOrigin == "" {
		return nil
	}

	origin := cfg.PublicOrigin

	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}

	if !u.IsAbs() {
		return fmt.Errorf("invalid public_origin %q: must be an absolute URL with http or https scheme", origin)
	}

	switch u.Scheme {
	case "http", "https":
		// valid
	default:
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https, got %q", origin, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}

	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string or fragment", origin)
	}

	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}

	return nil
}
