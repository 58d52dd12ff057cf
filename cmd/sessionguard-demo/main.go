// sessionguard-demo serves a tiny search front end on top of a Guard.
//
// Every route below /search runs behind middleware.Ensure, so the handler
// always sees a complete session. Queries are sealed under the session
// key before they leave the server; /element only opens values sealed
// for the caller's own session.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/metrics/export/prometheus"
	"github.com/MrEthical07/sessionguard/middleware"
	"github.com/MrEthical07/sessionguard/seal"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr           string
		configPath     string
		redisAddr      string
		logLevel       string
		insecureCookie bool
	)

	flagSet := pflag.NewFlagSet("sessionguard-demo", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	flagSet.StringVar(&redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&insecureCookie, "insecure-cookie", false, "drop the Secure cookie attribute for plain-HTTP localhost testing")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", logLevel)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := sessionguard.DefaultConfig()
	if configPath != "" {
		loaded, err := sessionguard.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if len(cfg.Cookie.SigningKey) == 0 {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("generate cookie signing key: %w", err)
		}
		cfg.Cookie.SigningMethod = "ed25519"
		cfg.Cookie.SigningKey = priv
		logger.Warn("no cookie signing key configured; using an ephemeral key, sessions will not survive a restart")
	}
	if insecureCookie {
		cfg.Cookie.Secure = false
		if cfg.Cookie.SameSite == "none" {
			cfg.Cookie.SameSite = "lax"
		}
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	for _, w := range cfg.Lint().BySeverity(sessionguard.LintWarn) {
		logger.Warn("config lint", "code", w.Code, "severity", w.Severity.String(), "detail", w.Message)
	}

	client, cleanup, err := openRedis(redisAddr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	guard, err := sessionguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer guard.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(guard),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openRedis(addr string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		logger.Info("using miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	logger.Info("using redis", "addr", addr)
	return client, func() { _ = client.Close() }, nil
}

func newMux(guard *sessionguard.Guard) *http.ServeMux {
	ensure := middleware.Ensure(guard)
	require := middleware.Require(guard)

	mux := http.NewServeMux()
	mux.Handle("GET /search", ensure(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSearch(guard, w, r)
	})))
	mux.Handle("GET /element", require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleElement(guard, w, r)
	})))
	mux.Handle("POST /logout", require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := middleware.DestroySession(r.Context(), w, guard); err != nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})))
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(guard).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := guard.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type searchResponse struct {
	Query    string `json:"query"`
	Sealed   string `json:"sealed_query"`
	CacheRef string `json:"cache_ref"`
	Element  string `json:"element"`
}

func handleSearch(guard *sessionguard.Guard, w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing q", http.StatusBadRequest)
		return
	}

	sealed, err := guard.Seal(sess, seal.PurposeQuery, q)
	if err != nil {
		http.Error(w, "seal failed", http.StatusInternalServerError)
		return
	}
	ref, err := guard.CacheReference(sess, "search:"+q)
	if err != nil {
		http.Error(w, "seal failed", http.StatusInternalServerError)
		return
	}
	target := "https://example.org/search?q=" + url.QueryEscape(q)
	element, err := guard.Seal(sess, seal.PurposeElement, target)
	if err != nil {
		http.Error(w, "seal failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, searchResponse{
		Query:    q,
		Sealed:   sealed,
		CacheRef: ref,
		Element:  "/element?u=" + url.QueryEscape(element),
	})
}

func handleElement(guard *sessionguard.Guard, w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	target, err := guard.Open(sess, seal.PurposeElement, r.URL.Query().Get("u"))
	if err != nil {
		http.Error(w, "invalid element", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"url": target})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
