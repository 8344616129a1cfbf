package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ghuser/campusreserve/pkg/config"
)

func newTestConfig(url string) *config.Config {
	return &config.Config{RedisURL: url, ServiceName: "campusreserve-test"}
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := NewRedisClient(newTestConfig("not-a-valid-url")); err == nil {
		t.Fatal("expected error for invalid URL, got nil")
	}
}

func TestNewRedisClient_UnreachableHost(t *testing.T) {
	if _, err := NewRedisClient(newTestConfig("redis://localhost:19999")); err == nil {
		t.Fatal("expected error when Redis is unreachable, got nil")
	}
}

func TestApplyDefaults_KeepsURLOverrides(t *testing.T) {
	opts, err := redis.ParseURL("redis://localhost:6379/0?pool_size=50&read_timeout=5s")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	applyDefaults(opts, "campusreserve")

	if opts.PoolSize != 50 {
		t.Errorf("PoolSize = %d, want URL value 50", opts.PoolSize)
	}
	if opts.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %s, want URL value 5s", opts.ReadTimeout)
	}
	if opts.WriteTimeout != time.Second {
		t.Errorf("WriteTimeout = %s, want default 1s", opts.WriteTimeout)
	}
	if opts.ClientName != "campusreserve" {
		t.Errorf("ClientName = %q", opts.ClientName)
	}
}

func TestTracingHook_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	boom := errors.New("READONLY")
	hook := tracingHook{}

	miss := hook.ProcessHook(func(context.Context, redis.Cmder) error { return redis.Nil })
	_ = miss(context.Background(), redis.NewStringCmd(context.Background(), "hget", "fines:u", "total"))

	fail := hook.ProcessHook(func(context.Context, redis.Cmder) error { return boom })
	_ = fail(context.Background(), redis.NewCmd(context.Background(), "evalsha", "abc", 1, "ledger:i"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "redis hget" || spans[0].Status().Code == codes.Error {
		t.Errorf("cache miss span: name %q status %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "redis evalsha" || spans[1].Status().Code != codes.Error {
		t.Errorf("error span: name %q status %v", spans[1].Name(), spans[1].Status())
	}
}

// Integration tests below are skipped unless REDIS_URL is set.

func TestRedisIntegration(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set; skipping integration tests")
	}

	rc, err := NewRedisClient(newTestConfig(redisURL))
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	if err := rc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if rc.Client() == nil {
		t.Fatal("expected non-nil underlying client")
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
