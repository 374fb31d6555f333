package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uptimekit/sitesync/types"
)

func setupRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use DB 1 for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	return client
}

type recordingSink struct {
	mu      sync.Mutex
	signals []types.InvalidationSignal
}

func (rs *recordingSink) OnInvalidationSignal(signal types.InvalidationSignal) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.signals = append(rs.signals, signal)
}

func (rs *recordingSink) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.signals)
}

func (rs *recordingSink) last() types.InvalidationSignal {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.signals[len(rs.signals)-1]
}

func TestNewPubSubSource(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	src := NewPubSubSource(client, "test-signals", "instance-1", nil)
	if src == nil {
		t.Fatal("Source should not be nil")
	}
	if src.channel != "test-signals" {
		t.Fatalf("Expected channel 'test-signals', got %s", src.channel)
	}
	if src.instanceID != "instance-1" {
		t.Fatalf("Expected instanceID 'instance-1', got %s", src.instanceID)
	}
}

func TestPubSubSourceDeliversSignals(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	receiver := NewPubSubSource(client, "test-signals", "reader", nil)
	defer receiver.Close()

	sink := &recordingSink{}
	receiver.OnSignal(sink)

	ctx := context.Background()
	if err := receiver.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // let the subscription establish

	sender := NewPubSubSource(client, "test-signals", "writer", nil)
	err := sender.Publish(ctx, types.InvalidationSignal{Scope: types.ScopeEntity, Key: "s1"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if sink.count() != 1 {
		t.Fatalf("Expected 1 delivered signal, got %d", sink.count())
	}
	got := sink.last()
	if got.Scope != types.ScopeEntity || got.Key != "s1" || got.Sender != "writer" {
		t.Fatalf("Unexpected signal: %+v", got)
	}
}

func TestPubSubSourceFiltersOwnSignals(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	src := NewPubSubSource(client, "test-signals-self", "instance-1", nil)
	defer src.Close()

	sink := &recordingSink{}
	src.OnSignal(sink)

	ctx := context.Background()
	if err := src.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := src.Publish(ctx, types.InvalidationSignal{Scope: types.ScopeAll}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if sink.count() != 0 {
		t.Fatalf("Expected own signals to be filtered, got %d", sink.count())
	}
}
