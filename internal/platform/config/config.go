// Package config provides configuration loading and validation.
package config

// Config is the resolved runtime configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string

	// ListenAddr is the HTTP listen address (host:port).
	ListenAddr string

	// PublicOrigin is the externally visible origin, used for CORS and
	// cookie decisions. Optional.
	PublicOrigin string

	Server       ServerConfig
	Store        StoreConfig
	Cache        CacheConfig
	Ratelimit    RatelimitConfig
	Logging      LoggingConfig
	Restrictions RestrictionsConfig
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedOrigins are origins allowed by CORS in addition to PublicOrigin.
	TrustedOrigins []string

	// BootstrapAdmin is seeded at startup when no super admin exists.
	BootstrapAdmin BootstrapAdminConfig

	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int
}

// BootstrapAdminConfig holds bootstrap admin credentials.
type BootstrapAdminConfig struct {
	Username string
	Password string
}

// StoreConfig selects and configures the persistence driver.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string

	// DataDir is the directory for data files (sqlite).
	DataDir string
}

// CacheConfig selects and configures the cache driver.
type CacheConfig struct {
	// Driver names the cache backend (memory).
	Driver string

	// Drivers holds per-driver config maps keyed by driver name.
	Drivers map[string]any
}

// RatelimitConfig holds login rate limiting settings.
type RatelimitConfig struct {
	// LoginPerMinute is the allowed login attempts per client per minute.
	LoginPerMinute int64
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
}

// RestrictionsConfig holds author-eligibility email restrictions.
type RestrictionsConfig struct {
	// EmailRules are restriction rules: full addresses ("spam@example.com"),
	// domains ("example.com"), or @-prefixed domains ("@example.com").
	EmailRules []string
}

// Redacted returns a copy safe for logging: secrets are masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Server.BootstrapAdmin.Password != "" {
		out.Server.BootstrapAdmin.Password = "[redacted]"
	}
	return out
}
