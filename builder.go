package sessionguard

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/sessionguard/cookie"
	"github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Guard]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	logger      *slog.Logger
	auditSink   AuditSink
	initializer Initializer
	entropy     io.Reader

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the session store and throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. When auditing is enabled and
// no sink is set, events go to the logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters read by
// [Guard.MetricsSnapshot] and the exporters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Resume latency histogram. It has no
// effect unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithInitializer replaces [DefaultInitializer].
func (b *Builder) WithInitializer(init Initializer) *Builder {
	b.initializer = init
	return b
}

// WithEntropySource replaces crypto/rand for key and session ID
// generation. Intended for tests and hardware-backed readers; a failing
// reader fails session creation, it is never bypassed.
func (b *Builder) WithEntropySource(r io.Reader) *Builder {
	b.entropy = r
	return b
}

// Build validates the configuration and wires the Guard.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- COOKIE MANAGER --------
	cm, err := cookie.NewManager(cookie.Config{
		Name:          cfg.Cookie.Name,
		TTL:           cfg.Session.TTL,
		SigningMethod: cookie.SigningMethod(cfg.Cookie.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Cookie.SigningKey),
		PublicKey:     cloneBytes(cfg.Cookie.PublicKey),
		Issuer:        cfg.Cookie.Issuer,
		Leeway:        cfg.Cookie.Leeway,
		Path:          cfg.Cookie.Path,
		Domain:        cfg.Cookie.Domain,
		Secure:        cfg.Cookie.Secure,
		HTTPOnly:      cfg.Cookie.HTTPOnly,
		SameSite:      sameSiteModes[cfg.Cookie.SameSite],
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.SlidingExpiration,
		cfg.Session.IdleTimeout,
		cfg.Session.JitterEnabled,
		cfg.Session.JitterRange,
	).WithMaxSize(cfg.Session.MaxValuesSize)

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	guard := &Guard{
		config:  cloneConfig(cfg),
		store:   store,
		cookies: cm,
		logger:  logger,
		entropy: b.entropy,
	}

	guard.limiter = rate.New(b.redis, rate.Config{
		Prefix:                cfg.Session.RedisPrefix,
		Enabled:               cfg.Security.EnableCreationThrottle,
		MaxCreationsPerWindow: cfg.Security.MaxCreationsPerWindow,
		CreationWindow:        cfg.Security.CreationWindow,
	})
	guard.metrics = NewMetrics(cfg.Metrics)

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = NewSlogSink(logger)
	}
	metrics := guard.metrics
	guard.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, func() { metrics.Inc(MetricAuditDropped) })

	guard.initializer = b.initializer
	if guard.initializer == nil {
		guard.initializer = DefaultInitializer
	}

	b.built = true

	return guard, nil
}
