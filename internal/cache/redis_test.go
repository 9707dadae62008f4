package cache

import (
	"context"
	"testing"

	"github.com/tripnest/paycore/internal/config"
)

func TestDisabledCache(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	if Enabled() || Client() != nil {
		t.Fatalf("disabled cache should not expose a client")
	}
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("ping on disabled cache should succeed, got %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("close on disabled cache should succeed, got %v", err)
	}
}

func TestKeyPrefix(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 6399, Prefix: "test"}); err != nil {
		t.Fatalf("init redis failed: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	if got := Key("rl", "payments", " 1.2.3.4 "); got != "test:rl:payments:1.2.3.4" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := Key(); got != "test" {
		t.Fatalf("unexpected bare key: %s", got)
	}
	if !Enabled() || Client() == nil {
		t.Fatalf("enabled cache should expose a client")
	}
}
