//go:build integration
// +build integration

package test

import (
	"strings"
	"testing"

	"github.com/MrEthical07/sessionguard"
	"github.com/redis/go-redis/v9"
)

func newIntegrationGuard(t *testing.T, rdb redis.UniversalClient, mutate func(*sessionguard.Config)) *sessionguard.Guard {
	t.Helper()

	cfg := sessionguard.DefaultConfig()
	cfg.Session.RedisPrefix = "sg-it"
	cfg.Session.JitterEnabled = false
	cfg.Cookie.SigningMethod = "hs256"
	cfg.Cookie.SigningKey = []byte(strings.Repeat("k", 32))
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	guard, err := sessionguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("build guard: %v", err)
	}
	t.Cleanup(guard.Close)
	return guard
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}
