package sessionguard

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/sessionguard/cookie"
	"github.com/MrEthical07/sessionguard/internal"
	"github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/keys"
	"github.com/MrEthical07/sessionguard/seal"
	"github.com/MrEthical07/sessionguard/session"
)

// Guard binds a symmetric key to each browser session and refuses to
// hand out a session that is missing any required field. Methods are
// safe for concurrent use after [Builder.Build].
type Guard struct {
	config      Config
	store       *session.Store
	cookies     *cookie.Manager
	limiter     *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	initializer Initializer
	entropy     io.Reader
}

// Close flushes buffered audit events and stops the dispatcher.
func (g *Guard) Close() {
	if g == nil {
		return
	}
	if g.audit != nil {
		g.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded under
// backpressure.
func (g *Guard) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot returns a copy of the Guard's metrics.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// Logger returns the Guard's structured logger.
func (g *Guard) Logger() *slog.Logger {
	if g == nil || g.logger == nil {
		return slog.Default()
	}
	return g.logger
}

func (g *Guard) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

func (g *Guard) entropySource() io.Reader {
	if g.entropy != nil {
		return g.entropy
	}
	return rand.Reader
}

/*
====================================
KEYS AND VALIDATION
====================================
*/

// GenerateKey draws a fresh 256-bit session key. It fails with
// [ErrEntropySource] when the random source fails.
func (g *Guard) GenerateKey() (keys.Key, error) {
	if g == nil {
		return keys.Key{}, ErrGuardNotReady
	}
	k, err := keys.GenerateFrom(g.entropySource())
	if err != nil {
		g.metricInc(MetricKeyGenerationFailed)
		return keys.Key{}, err
	}
	g.metricInc(MetricKeyGenerated)
	return k, nil
}

// IsValid reports whether values carries every required field. With
// Security.RejectEmptyKey set, an empty key also fails.
func (g *Guard) IsValid(values session.Values) bool {
	if !session.IsValid(values) {
		return false
	}
	if g != nil && g.config.Security.RejectEmptyKey && session.HasEmptyKey(values) {
		return false
	}
	return true
}

// Key returns the key bound to sess.
func (g *Guard) Key(sess *session.Session) (keys.Key, error) {
	if sess == nil || !sess.Values.Has(session.FieldKey) {
		return keys.Key{}, ErrSessionInvalid
	}
	k, err := keys.FromValue(sess.Values[session.FieldKey])
	if err != nil {
		return keys.Key{}, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	return k, nil
}

/*
====================================
LIFECYCLE
====================================
*/

// Begin starts a session: it applies the creation throttle, generates
// the key and a session ID, and returns a session holding only the key.
// Nothing is persisted; the caller fills the remaining fields.
func (g *Guard) Begin(ctx context.Context) (*session.Session, error) {
	if g == nil || g.store == nil {
		return nil, ErrGuardNotReady
	}

	if err := g.allowCreation(ctx); err != nil {
		return nil, err
	}

	key, err := g.GenerateKey()
	if err != nil {
		g.emitAudit(ctx, auditEventKeyGenFailed, false, "", err, nil)
		g.logger.ErrorContext(ctx, "session key generation failed", "error", err)
		return nil, err
	}
	defer key.Zero()

	sid, err := internal.NewSessionIDFrom(g.entropySource())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrEntropySource, err)
		g.metricInc(MetricKeyGenerationFailed)
		g.emitAudit(ctx, auditEventKeyGenFailed, false, "", err, nil)
		return nil, err
	}

	now := time.Now()
	return &session.Session{
		ID: sid.String(),
		Values: session.Values{
			session.FieldKey: key.Encode(),
		},
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(g.config.Session.TTL).Unix(),
	}, nil
}

// Create begins a session, runs the initializer, persists it and signs
// its cookie token.
func (g *Guard) Create(ctx context.Context) (*Resolution, error) {
	sess, err := g.Begin(ctx)
	if err != nil {
		return nil, err
	}

	key := sess.Values[session.FieldKey]
	if err := g.initializer(ctx, sess.Values); err != nil {
		return nil, err
	}
	if sess.Values[session.FieldKey] != key {
		return nil, errors.New("initializer must not replace the session key")
	}
	if !g.IsValid(sess.Values) {
		return nil, fmt.Errorf("%w: initializer left %s unset",
			ErrSessionInvalid, strings.Join(session.Missing(sess.Values), ", "))
	}

	if err := g.Save(ctx, sess); err != nil {
		return nil, err
	}

	token, err := g.cookies.Issue(sess.ID)
	if err != nil {
		if delErr := g.store.Delete(ctx, sess.ID); delErr != nil {
			g.logger.WarnContext(ctx, "orphaned session cleanup failed", "session_id", sess.ID, "error", delErr)
		}
		return nil, err
	}

	g.metricInc(MetricSessionCreated)
	g.emitAudit(ctx, auditEventSessionCreated, true, sess.ID, nil, nil)

	return &Resolution{
		Session: sess,
		Token:   token,
		Created: true,
		Reason:  ReasonNoCookie,
	}, nil
}

// Resume returns the session named by token when it is complete. A
// missing, expired, unreadable or incomplete session is discarded and a
// fresh one (new ID, new key) is created in its place. Only backend
// failures and creation failures surface as errors.
func (g *Guard) Resume(ctx context.Context, token string) (*Resolution, error) {
	if g == nil || g.store == nil {
		return nil, ErrGuardNotReady
	}

	start := time.Now()
	defer func() {
		g.metrics.Observe(MetricResumeLatency, time.Since(start))
	}()

	if token == "" {
		return g.Create(ctx)
	}

	sid, err := g.sessionIDFromToken(token)
	if err != nil {
		g.metricInc(MetricCookieInvalid)
		g.emitAudit(ctx, auditEventCookieInvalid, false, "", err, nil)
		return g.regenerate(ctx, ReasonCookieInvalid, "")
	}

	sess, err := g.store.Get(ctx, sid)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		return g.regenerate(ctx, ReasonNotFound, sid)
	case errors.Is(err, session.ErrRedisUnavailable):
		return nil, err
	default:
		g.logger.WarnContext(ctx, "discarding unreadable session", "session_id", sid, "error", err)
		g.discard(ctx, sid)
		return g.regenerate(ctx, ReasonUnreadable, sid)
	}

	if !g.IsValid(sess.Values) {
		missing := session.Missing(sess.Values)
		g.metricInc(MetricSessionRejected)
		g.emitAudit(ctx, auditEventSessionRejected, false, sid, ErrSessionInvalid, map[string]string{
			"missing": strings.Join(missing, ","),
		})
		g.discard(ctx, sid)
		return g.regenerate(ctx, ReasonIncomplete, sid)
	}

	g.metricInc(MetricSessionResumed)
	return &Resolution{
		Session: sess,
		Token:   token,
		Reason:  ReasonResumed,
	}, nil
}

// Lookup returns the complete session named by token without renewing
// it and without minting a replacement.
func (g *Guard) Lookup(ctx context.Context, token string) (*session.Session, error) {
	if g == nil || g.store == nil {
		return nil, ErrGuardNotReady
	}

	sid, err := g.sessionIDFromToken(token)
	if err != nil {
		g.metricInc(MetricCookieInvalid)
		return nil, err
	}

	sess, err := g.store.GetReadOnly(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !g.IsValid(sess.Values) {
		g.metricInc(MetricSessionRejected)
		return nil, ErrSessionInvalid
	}
	return sess, nil
}

// sessionIDFromToken verifies token and checks that the claimed ID has
// the shape of an issued session ID, so a malformed claim never reaches
// the store.
func (g *Guard) sessionIDFromToken(token string) (string, error) {
	sid, err := g.cookies.Parse(token)
	if err != nil {
		return "", err
	}
	if _, err := internal.ParseSessionID(sid); err != nil {
		return "", fmt.Errorf("%w: malformed session id", ErrCookieInvalid)
	}
	return sid, nil
}

// Save persists sess. A session without a key field is never written.
// Store failures are counted under MetricSessionSaveFailed.
func (g *Guard) Save(ctx context.Context, sess *session.Session) error {
	if g == nil || g.store == nil {
		return ErrGuardNotReady
	}
	if sess == nil || sess.ID == "" || !sess.Values.Has(session.FieldKey) {
		return ErrSessionInvalid
	}

	ttl := g.config.Session.TTL
	if g.config.Session.SlidingExpiration && g.config.Session.IdleTimeout > 0 {
		ttl = g.config.Session.IdleTimeout
	}
	if err := g.store.Save(ctx, sess, ttl); err != nil {
		g.metricInc(MetricSessionSaveFailed)
		return err
	}
	return nil
}

// Destroy deletes a session. Destroying a missing session is not an error.
func (g *Guard) Destroy(ctx context.Context, sessionID string) error {
	if g == nil || g.store == nil {
		return ErrGuardNotReady
	}
	if err := g.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	g.metricInc(MetricSessionDestroyed)
	g.emitAudit(ctx, auditEventSessionDestroyed, true, sessionID, nil, nil)
	return nil
}

// ActiveSessions counts stored sessions with a full key scan. Admin use only.
func (g *Guard) ActiveSessions(ctx context.Context) (int, error) {
	if g == nil || g.store == nil {
		return 0, ErrGuardNotReady
	}
	return g.store.Count(ctx)
}

// Ping checks backend availability.
func (g *Guard) Ping(ctx context.Context) (time.Duration, error) {
	if g == nil || g.store == nil {
		return 0, ErrGuardNotReady
	}
	return g.store.Ping(ctx)
}

func (g *Guard) regenerate(ctx context.Context, reason ResolveReason, previousID string) (*Resolution, error) {
	res, err := g.Create(ctx)
	if err != nil {
		return nil, err
	}
	res.Reason = reason
	res.PreviousID = previousID

	g.metricInc(MetricSessionRegenerated)
	g.metrics.IncRegeneration(reason)
	g.emitAudit(ctx, auditEventSessionRegenerated, true, res.Session.ID, nil, map[string]string{
		"reason": string(reason),
	})
	g.logger.DebugContext(ctx, "session regenerated",
		"session_id", res.Session.ID,
		"previous_id", previousID,
		"reason", string(reason),
	)
	return res, nil
}

func (g *Guard) discard(ctx context.Context, sessionID string) {
	if err := g.store.Delete(ctx, sessionID); err != nil {
		g.logger.WarnContext(ctx, "session discard failed", "session_id", sessionID, "error", err)
	}
}

func (g *Guard) allowCreation(ctx context.Context) error {
	err := g.limiter.AllowCreation(ctx, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		g.metricInc(MetricCreationThrottled)
		g.emitAudit(ctx, auditEventCreationThrottled, false, "", ErrSessionCreationThrottled, nil)
		return ErrSessionCreationThrottled
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

// CreationCount returns how many sessions ip created in the current
// throttle window. Denied attempts are included.
func (g *Guard) CreationCount(ctx context.Context, ip string) (int, error) {
	if g == nil || g.limiter == nil {
		return 0, ErrGuardNotReady
	}
	n, err := g.limiter.Creations(ctx, ip)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// ResetCreationThrottle clears the creation window for ip.
func (g *Guard) ResetCreationThrottle(ctx context.Context, ip string) error {
	if g == nil || g.limiter == nil {
		return ErrGuardNotReady
	}
	if err := g.limiter.Reset(ctx, ip); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

/*
====================================
SEALED STATE
====================================
*/

// Seal encrypts plaintext under the key of sess for the given purpose.
func (g *Guard) Seal(sess *session.Session, purpose seal.Purpose, plaintext string) (string, error) {
	key, err := g.Key(sess)
	if err != nil {
		return "", err
	}
	defer key.Zero()

	token, err := seal.SealString(key, purpose, plaintext)
	if err != nil {
		g.metricInc(MetricSealFailure)
		return "", err
	}
	g.metricInc(MetricSealSuccess)
	return token, nil
}

// Open decrypts a token produced by Seal for the same session and purpose.
func (g *Guard) Open(sess *session.Session, purpose seal.Purpose, token string) (string, error) {
	key, err := g.Key(sess)
	if err != nil {
		return "", err
	}
	defer key.Zero()

	plaintext, err := seal.OpenString(key, purpose, token)
	if err != nil {
		g.metricInc(MetricSealFailure)
		return "", err
	}
	return plaintext, nil
}

// CacheReference derives a stable opaque name for a per-session cached
// artifact. References differ across sessions for the same name.
func (g *Guard) CacheReference(sess *session.Session, name string) (string, error) {
	key, err := g.Key(sess)
	if err != nil {
		return "", err
	}
	defer key.Zero()
	return seal.Reference(key, name), nil
}

/*
====================================
COOKIES
====================================
*/

// CookieName returns the configured session cookie name.
func (g *Guard) CookieName() string {
	return g.cookies.Name()
}

// TokenFromRequest returns the session cookie value of r, or "".
func (g *Guard) TokenFromRequest(r *http.Request) string {
	return g.cookies.FromRequest(r)
}

// SessionCookie builds the cookie carrying token.
func (g *Guard) SessionCookie(token string) *http.Cookie {
	return g.cookies.Cookie(token)
}

// ExpiredCookie builds a cookie that clears the session cookie.
func (g *Guard) ExpiredCookie() *http.Cookie {
	return g.cookies.Expired()
}
