package sessionguard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/sessionguard/session"
	"gopkg.in/yaml.v3"
)

// Config is the full Guard configuration. Obtain a populated value with
// [DefaultConfig], adjust it, and pass it to [Builder.WithConfig].
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Cookie   CookieConfig   `yaml:"cookie"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and storage.
type SessionConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
	// TTL is the absolute session lifetime. A session is never renewed past it.
	TTL time.Duration `yaml:"ttl"`
	// IdleTimeout is how long an untouched session survives when
	// SlidingExpiration is on. Zero slides straight to TTL.
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	SlidingExpiration bool          `yaml:"sliding_expiration"`
	JitterEnabled     bool          `yaml:"jitter_enabled"`
	JitterRange       time.Duration `yaml:"jitter_range"`
	// MaxValuesSize caps the encoded session in bytes, up to
	// session.DefaultMaxEncodedSize.
	MaxValuesSize int `yaml:"max_values_size"`
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the signed session cookie.
type CookieConfig struct {
	Name          string        `yaml:"name"`
	SigningMethod string        `yaml:"signing_method"` // "ed25519" (default) or "hs256"
	SigningKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
	Issuer        string        `yaml:"issuer"`
	Leeway        time.Duration `yaml:"leeway"`
	Path          string        `yaml:"path"`
	Domain        string        `yaml:"domain"`
	Secure        bool          `yaml:"secure"`
	HTTPOnly      bool          `yaml:"http_only"`
	SameSite      string        `yaml:"same_site"` // "lax", "strict" or "none"
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig tightens session acceptance and creation.
type SecurityConfig struct {
	// RejectEmptyKey treats a present but empty key field as invalid.
	// Off by default: validation is presence-only.
	RejectEmptyKey         bool          `yaml:"reject_empty_key"`
	EnableCreationThrottle bool          `yaml:"enable_creation_throttle"`
	MaxCreationsPerWindow  int           `yaml:"max_creations_per_window"`
	CreationWindow         time.Duration `yaml:"creation_window"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Cookie.SigningKey is
// empty and must be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:       "sg",
			TTL:               24 * time.Hour,
			IdleTimeout:       2 * time.Hour,
			SlidingExpiration: true,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
			MaxValuesSize:     4096,
		},
		Cookie: CookieConfig{
			Name:          "sg_session",
			SigningMethod: "ed25519",
			Issuer:        "sessionguard",
			Leeway:        5 * time.Second,
			Path:          "/",
			Secure:        true,
			HTTPOnly:      true,
			SameSite:      "lax",
		},
		Security: SecurityConfig{
			RejectEmptyKey:         false,
			EnableCreationThrottle: false,
			MaxCreationsPerWindow:  30,
			CreationWindow:         time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Cookie.SigningKey = cloneBytes(cfg.Cookie.SigningKey)
	out.Cookie.PublicKey = cloneBytes(cfg.Cookie.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
FILE CONFIG
====================================
*/

// fileKeys carries key material that YAML cannot express as raw bytes.
type fileKeys struct {
	Cookie struct {
		SigningKey string `yaml:"signing_key"`
		PublicKey  string `yaml:"public_key"`
	} `yaml:"cookie"`
}

// LoadConfigFile reads a YAML file over [DefaultConfig]. Durations use Go
// duration syntax ("15m"). cookie.signing_key and cookie.public_key are
// standard base64. The result is validated only if it carries a signing
// key, so callers may still inject one.
func LoadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	var fk fileKeys
	if err := yaml.Unmarshal(data, &fk); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if fk.Cookie.SigningKey != "" {
		cfg.Cookie.SigningKey, err = base64.StdEncoding.DecodeString(fk.Cookie.SigningKey)
		if err != nil {
			return cfg, errors.New("cookie.signing_key must be base64")
		}
	}
	if fk.Cookie.PublicKey != "" {
		cfg.Cookie.PublicKey, err = base64.StdEncoding.DecodeString(fk.Cookie.PublicKey)
		if err != nil {
			return cfg, errors.New("cookie.public_key must be base64")
		}
	}

	if len(cfg.Cookie.SigningKey) > 0 {
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.IdleTimeout > c.Session.TTL {
		return errors.New("Session IdleTimeout must be <= TTL")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}
	if c.Session.MaxValuesSize <= 0 {
		return errors.New("Session MaxValuesSize must be > 0")
	}
	if c.Session.MaxValuesSize > session.DefaultMaxEncodedSize {
		return fmt.Errorf("Session MaxValuesSize must be <= %d", session.DefaultMaxEncodedSize)
	}

	// Cookie
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name must not be empty")
	}
	if c.Cookie.SigningMethod != "ed25519" && c.Cookie.SigningMethod != "hs256" {
		return errors.New("unsupported Cookie signing method")
	}
	if len(c.Cookie.SigningKey) == 0 {
		return errors.New("Cookie SigningKey is required")
	}
	if c.Cookie.SigningMethod == "hs256" && len(c.Cookie.SigningKey) < 32 {
		return errors.New("hs256 requires a SigningKey of at least 32 bytes")
	}
	if c.Cookie.Leeway < 0 || c.Cookie.Leeway > time.Minute {
		return errors.New("Cookie Leeway must be between 0 and 1m")
	}
	if _, ok := sameSiteModes[c.Cookie.SameSite]; !ok {
		return errors.New("Cookie SameSite must be 'lax', 'strict' or 'none'")
	}
	if c.Cookie.SameSite == "none" && !c.Cookie.Secure {
		return errors.New("Cookie SameSite 'none' requires Secure")
	}

	// Security
	if c.Security.EnableCreationThrottle {
		if c.Security.MaxCreationsPerWindow <= 0 {
			return errors.New("Security MaxCreationsPerWindow must be > 0 when throttling")
		}
		if c.Security.CreationWindow <= 0 {
			return errors.New("Security CreationWindow must be > 0 when throttling")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

var sameSiteModes = map[string]http.SameSite{
	"lax":    http.SameSiteLaxMode,
	"strict": http.SameSiteStrictMode,
	"none":   http.SameSiteNoneMode,
}
