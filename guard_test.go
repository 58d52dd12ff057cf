package sessionguard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/MrEthical07/sessionguard/keys"
	"github.com/MrEthical07/sessionguard/seal"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func guardTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Cookie.SigningMethod = "hs256"
	cfg.Cookie.SigningKey = []byte(strings.Repeat("c", 32))
	cfg.Session.JitterEnabled = false
	cfg.Session.JitterRange = 0
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestGuard(t *testing.T, mutate func(*Config), opts ...func(*Builder)) (*Guard, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := guardTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().WithConfig(cfg).WithRedis(rdb)
	for _, opt := range opts {
		opt(b)
	}
	guard, err := b.Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("build guard: %v", err)
	}

	return guard, mr, func() {
		guard.Close()
		rdb.Close()
		mr.Close()
	}
}

func TestGuardGenerateKeyDistinct(t *testing.T) {
	guard, _, done := newTestGuard(t, nil)
	defer done()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		k, err := guard.GenerateKey()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		enc := k.Encode()
		if len(enc) != keys.EncodedLen {
			t.Fatalf("expected %d chars, got %d", keys.EncodedLen, len(enc))
		}
		if _, dup := seen[enc]; dup {
			t.Fatalf("duplicate key at %d", i)
		}
		seen[enc] = struct{}{}
	}
	if got := guard.MetricsSnapshot().Counters[MetricKeyGenerated]; got != 1000 {
		t.Fatalf("expected 1000 generated keys, got %d", got)
	}
}

func TestGuardEntropyFailureIsFatal(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil, func(b *Builder) {
		b.WithEntropySource(iotest.ErrReader(errors.New("rng offline")))
	})
	defer done()

	if _, err := guard.GenerateKey(); !errors.Is(err, ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource, got %v", err)
	}
	if _, err := guard.Resume(context.Background(), ""); !errors.Is(err, ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource from Resume, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("no session may be stored without a key, found %v", mr.Keys())
	}
	if got := guard.MetricsSnapshot().Counters[MetricKeyGenerationFailed]; got != 2 {
		t.Fatalf("expected 2 key generation failures, got %d", got)
	}
}

func TestGuardShortEntropyForSessionIDFails(t *testing.T) {
	// Exactly enough bytes for the key, none left for the session ID.
	guard, mr, done := newTestGuard(t, nil, func(b *Builder) {
		b.WithEntropySource(bytes.NewReader(make([]byte, keys.Size)))
	})
	defer done()

	if _, err := guard.Begin(context.Background()); !errors.Is(err, ErrEntropySource) {
		t.Fatalf("expected ErrEntropySource, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected empty store, got %v", mr.Keys())
	}
}

func TestGuardBeginReturnsPartialSession(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil)
	defer done()

	sess, err := guard.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if sess.ID == "" || !sess.Values.Has(session.FieldKey) {
		t.Fatalf("expected id and key, got %+v", sess)
	}
	if guard.IsValid(sess.Values) {
		t.Fatal("partial session must not be valid")
	}
	if len(mr.Keys()) != 0 {
		t.Fatal("Begin must not persist")
	}
	if _, err := guard.Key(sess); err != nil {
		t.Fatalf("key: %v", err)
	}
}

func TestGuardResumeWithoutCookieCreates(t *testing.T) {
	guard, _, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !res.Created || res.Reason != ReasonNoCookie || res.Token == "" {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if !guard.IsValid(res.Session.Values) {
		t.Fatalf("created session must be valid, missing %v", session.Missing(res.Session.Values))
	}
	if res.Session.Values[session.FieldAuth] != false {
		t.Fatalf("expected auth=false, got %v", res.Session.Values[session.FieldAuth])
	}

	again, err := guard.Resume(ctx, res.Token)
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if again.Created || again.Reason != ReasonResumed {
		t.Fatalf("expected resumed session, got %+v", again)
	}
	if again.Session.ID != res.Session.ID {
		t.Fatal("session id changed across resume")
	}
	if again.Session.Values[session.FieldKey] != res.Session.Values[session.FieldKey] {
		t.Fatal("key must never change for a live session")
	}
	if got := guard.MetricsSnapshot().Counters[MetricSessionResumed]; got != 1 {
		t.Fatalf("expected 1 resume, got %d", got)
	}
}

func TestGuardResumeRegeneratesIncompleteSession(t *testing.T) {
	guard, _, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	// Simulate the hosting layer dropping a required field.
	broken := *res.Session
	broken.Values = res.Session.Values.Clone()
	delete(broken.Values, session.FieldAuth)
	if err := guard.Save(ctx, &broken); err != nil {
		t.Fatalf("save: %v", err)
	}

	next, err := guard.Resume(ctx, res.Token)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !next.Created || next.Reason != ReasonIncomplete || next.PreviousID != res.Session.ID {
		t.Fatalf("unexpected resolution %+v", next)
	}
	if next.Session.ID == res.Session.ID {
		t.Fatal("regenerated session must get a new id")
	}
	if next.Session.Values[session.FieldKey] == res.Session.Values[session.FieldKey] {
		t.Fatal("regenerated session must get a new key")
	}

	if _, err := guard.Lookup(ctx, res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected rejected session to be deleted, got %v", err)
	}

	snap := guard.MetricsSnapshot()
	if snap.Counters[MetricSessionRejected] != 1 || snap.Counters[MetricSessionRegenerated] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestGuardResumeRegeneratesExpiredAndForgedCookies(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	mr.FlushAll()

	next, err := guard.Resume(ctx, res.Token)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if next.Reason != ReasonNotFound || !next.Created {
		t.Fatalf("expected not_found regeneration, got %+v", next)
	}

	forged, err := guard.Resume(ctx, "not-a-token")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if forged.Reason != ReasonCookieInvalid || forged.PreviousID != "" {
		t.Fatalf("expected cookie_invalid regeneration, got %+v", forged)
	}
	if got := guard.MetricsSnapshot().Counters[MetricCookieInvalid]; got != 1 {
		t.Fatalf("expected 1 invalid cookie, got %d", got)
	}
}

func TestGuardRejectsMalformedSessionIDClaim(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	created, err := guard.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A complete session stored under an ID the guard never issues.
	odd := *created.Session
	odd.ID = "legacy:id"
	if err := guard.Save(ctx, &odd); err != nil {
		t.Fatalf("save: %v", err)
	}
	token, err := guard.cookies.Issue(odd.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := guard.Lookup(ctx, token); !errors.Is(err, ErrCookieInvalid) {
		t.Fatalf("expected ErrCookieInvalid, got %v", err)
	}

	res, err := guard.Resume(ctx, token)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Reason != ReasonCookieInvalid || !res.Created || res.Session.ID == odd.ID {
		t.Fatalf("expected cookie_invalid regeneration, got %+v", res)
	}
	if !mr.Exists("sg:legacy:id") {
		t.Fatal("malformed claim must not touch the store")
	}
	if n := guard.MetricsSnapshot().Regenerations[ReasonCookieInvalid]; n != 1 {
		t.Fatalf("expected 1 cookie_invalid regeneration, got %d", n)
	}
}

func TestGuardResumeDiscardsUnreadableBlob(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := mr.Set("sg:"+res.Session.ID, "\x09garbage"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	next, err := guard.Resume(ctx, res.Token)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if next.Reason != ReasonUnreadable {
		t.Fatalf("expected unreadable regeneration, got %+v", next)
	}
	if mr.Exists("sg:" + res.Session.ID) {
		t.Fatal("unreadable blob must be deleted")
	}
}

func TestGuardResumeSurfacesBackendFailure(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	mr.SetError("LOADING redis is loading the dataset in memory")

	if _, err := guard.Resume(ctx, res.Token); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestGuardRejectEmptyKey(t *testing.T) {
	values := session.Values{
		session.FieldUUID:   "u",
		session.FieldConfig: map[string]any{},
		session.FieldKey:    "",
		session.FieldAuth:   false,
	}

	lenient, _, done := newTestGuard(t, nil)
	defer done()
	if !lenient.IsValid(values) {
		t.Fatal("presence-only validation must accept an empty key")
	}

	strict, _, done2 := newTestGuard(t, func(c *Config) { c.Security.RejectEmptyKey = true })
	defer done2()
	if strict.IsValid(values) {
		t.Fatal("RejectEmptyKey must refuse an empty key")
	}
}

func TestGuardSaveRefusesKeylessSession(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil)
	defer done()

	sess := &session.Session{
		ID:        "sid",
		Values:    session.Values{session.FieldUUID: "u"},
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	if err := guard.Save(context.Background(), sess); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatal("keyless session persisted")
	}
}

func TestGuardInitializerCannotReplaceKey(t *testing.T) {
	guard, _, done := newTestGuard(t, nil, func(b *Builder) {
		b.WithInitializer(func(ctx context.Context, v session.Values) error {
			if err := DefaultInitializer(ctx, v); err != nil {
				return err
			}
			v[session.FieldKey] = "replaced"
			return nil
		})
	})
	defer done()

	if _, err := guard.Create(context.Background()); err == nil {
		t.Fatal("expected error when initializer replaces the key")
	}
}

func TestGuardInitializerMustCompleteSession(t *testing.T) {
	guard, mr, done := newTestGuard(t, nil, func(b *Builder) {
		b.WithInitializer(func(_ context.Context, v session.Values) error {
			v[session.FieldUUID] = "only-uuid"
			return nil
		})
	})
	defer done()

	if _, err := guard.Create(context.Background()); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatal("incomplete session persisted")
	}
}

func TestGuardCreationThrottle(t *testing.T) {
	guard, _, done := newTestGuard(t, func(c *Config) {
		c.Security.EnableCreationThrottle = true
		c.Security.MaxCreationsPerWindow = 2
		c.Security.CreationWindow = time.Minute
	})
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	for i := 0; i < 2; i++ {
		if _, err := guard.Resume(ctx, ""); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := guard.Resume(ctx, ""); !errors.Is(err, ErrSessionCreationThrottled) {
		t.Fatalf("expected throttle, got %v", err)
	}

	other := WithClientIP(context.Background(), "198.51.100.1")
	if _, err := guard.Resume(other, ""); err != nil {
		t.Fatalf("other client must not be throttled: %v", err)
	}
	if got := guard.MetricsSnapshot().Counters[MetricCreationThrottled]; got != 1 {
		t.Fatalf("expected 1 throttled, got %d", got)
	}

	// Throttle counters live under the session prefix but are not sessions.
	if n, err := guard.ActiveSessions(context.Background()); err != nil || n != 3 {
		t.Fatalf("expected 3 active sessions, got %d %v", n, err)
	}

	if n, err := guard.CreationCount(ctx, "203.0.113.7"); err != nil || n != 3 {
		t.Fatalf("expected 3 recorded creations, got %d %v", n, err)
	}
	if err := guard.ResetCreationThrottle(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := guard.Resume(ctx, ""); err != nil {
		t.Fatalf("create after reset: %v", err)
	}
}

func TestGuardSealOpenBoundToSession(t *testing.T) {
	guard, _, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	a, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	b, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	token, err := guard.Seal(a.Session, seal.PurposeQuery, "golang generics")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := guard.Open(a.Session, seal.PurposeQuery, token)
	if err != nil || got != "golang generics" {
		t.Fatalf("open: %q %v", got, err)
	}
	if _, err := guard.Open(b.Session, seal.PurposeQuery, token); !errors.Is(err, ErrSealInvalid) {
		t.Fatalf("expected other session to fail, got %v", err)
	}
	if _, err := guard.Open(a.Session, seal.PurposeElement, token); !errors.Is(err, ErrSealInvalid) {
		t.Fatalf("expected purpose mismatch to fail, got %v", err)
	}

	refA, err := guard.CacheReference(a.Session, "search:golang")
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	refB, _ := guard.CacheReference(b.Session, "search:golang")
	if refA == refB {
		t.Fatal("references must differ across sessions")
	}

	if _, err := guard.Seal(&session.Session{Values: session.Values{}}, seal.PurposeQuery, "x"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for keyless session, got %v", err)
	}
}

func TestGuardDestroy(t *testing.T) {
	guard, _, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if n, err := guard.ActiveSessions(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 active session, got %d %v", n, err)
	}
	if err := guard.Destroy(ctx, res.Session.ID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := guard.Destroy(ctx, res.Session.ID); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	if _, err := guard.Lookup(ctx, res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGuardAuditEvents(t *testing.T) {
	sink := NewChannelSink(16)
	guard, _, done := newTestGuard(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 16
	}, func(b *Builder) { b.WithAuditSink(sink) })
	defer done()

	ctx := WithClientIP(context.Background(), "192.0.2.10")
	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	guard.Close()

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventSessionCreated || ev.SessionID != res.Session.ID || ev.IP != "192.0.2.10" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if strings.Contains(ev.Error+ev.SessionID, res.Session.Values[session.FieldKey].(string)) {
			t.Fatal("audit event leaked the session key")
		}
	default:
		t.Fatal("expected session_created event")
	}
}

func TestGuardConcurrentResume(t *testing.T) {
	guard, _, done := newTestGuard(t, nil)
	defer done()
	ctx := context.Background()

	res, err := guard.Resume(ctx, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := guard.Resume(ctx, res.Token)
			if err != nil {
				errs <- err
				return
			}
			if r.Created {
				errs <- errors.New("valid session was regenerated")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestNilGuardIsNotReady(t *testing.T) {
	var g *Guard
	if _, err := g.Resume(context.Background(), ""); !errors.Is(err, ErrGuardNotReady) {
		t.Fatalf("expected ErrGuardNotReady, got %v", err)
	}
	if _, err := g.GenerateKey(); !errors.Is(err, ErrGuardNotReady) {
		t.Fatalf("expected ErrGuardNotReady, got %v", err)
	}
	if g.IsValid(session.Values{}) {
		t.Fatal("empty values must be invalid")
	}
	if g.AuditDropped() != 0 {
		t.Fatal("nil guard drops nothing")
	}
	g.Close()
}
