package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/comanda-backend/pkg/config"
)

func TestLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}
	key := client.LockKey("cron-worker:prod")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, ok=%v err=%v", ok, err)
	}

	extended, err := client.ExtendIfOwner(ctx, key, "owner-a", 2*time.Minute)
	if err != nil || !extended {
		t.Fatalf("owner should extend, ok=%v err=%v", extended, err)
	}
	if store.ttls[key] != 2*time.Minute {
		t.Fatalf("unexpected ttl %v", store.ttls[key])
	}
	if extended, _ := client.ExtendIfOwner(ctx, key, "owner-b", time.Hour); extended {
		t.Fatal("non-owner must not extend")
	}

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	if err != nil || released {
		t.Fatalf("non-owner must not release, ok=%v err=%v", released, err)
	}
	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	if err != nil || !released {
		t.Fatalf("owner should release, ok=%v err=%v", released, err)
	}
	if _, exists := store.data[key]; exists {
		t.Fatal("key should be gone after release")
	}
}

func TestScriptFallsBackToEval(t *testing.T) {
	store := newMockCmdable()
	store.noScriptCache = true
	client := &Client{store: store}
	store.data["k"] = "me"

	released, err := client.ReleaseIfOwner(context.Background(), "k", "me")
	if err != nil || !released {
		t.Fatalf("expected eval fallback to release, ok=%v err=%v", released, err)
	}
	if store.evals != 1 {
		t.Fatalf("expected one EVAL, got %d", store.evals)
	}
}

func TestLockKey(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("cron"); got != "comanda:lock:cron" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := buildKey(); got != "comanda" {
		t.Fatalf("unexpected namespace %q", got)
	}
	if got := buildKey("lock", "", " outbox "); got != "comanda:lock:outbox" {
		t.Fatalf("unexpected trimmed key %q", got)
	}
}

func TestUninitialisedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail without a store")
	}
	if _, err := client.ReleaseIfOwner(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected release to fail without a store")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when no address is configured")
	}
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/3", DB: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "secret" {
		t.Fatalf("unexpected url options %+v", opts)
	}
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script" }
func (noScriptError) RedisError()   {}

// mockCmdable runs the two lease scripts natively, keyed by their SHA.
type mockCmdable struct {
	data          map[string]string
	ttls          map[string]time.Duration
	noScriptCache bool
	evals         int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) run(source string, keys []string, args []any) *redis.Cmd {
	key, owner := keys[0], fmt.Sprint(args[0])
	if m.data[key] != owner {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch source {
	case releaseScript.Hash():
		delete(m.data, key)
		delete(m.ttls, key)
	case extendScript.Hash():
		m.ttls[key] = time.Duration(args[1].(int64)) * time.Millisecond
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", source))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	if m.noScriptCache {
		return redis.NewCmdResult(nil, noScriptError{})
	}
	return m.run(sha, keys, args)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	for _, s := range []*redis.Script{releaseScript, extendScript} {
		if s.Hash() == redis.NewScript(script).Hash() {
			return m.run(s.Hash(), keys, args)
		}
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script"))
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}
