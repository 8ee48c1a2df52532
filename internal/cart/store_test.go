package cart

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
)

type fakeSnapshotCache struct {
	entries map[string]string
	ttls    map[string]time.Duration
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeSnapshotCache) Get(ctx context.Context, key string) (string, error) {
	raw, ok := f.entries[key]
	if !ok {
		return "", goredis.Nil
	}
	return raw, nil
}

func (f *fakeSnapshotCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.entries[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeSnapshotCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.entries, key)
	}
	return nil
}

func (f *fakeSnapshotCache) CartKey(sessionID string) string {
	return "poppy:cart:" + sessionID
}

func TestStoreRoundTrip(t *testing.T) {
	cache := newFakeSnapshotCache()
	store, err := NewStore(cache, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	snapshot := Snapshot{Items: []Item{
		{ProductID: "ramo-1", Name: "Ramo primavera", UnitPrice: 1500.50, Quantity: 2},
		{ProductID: "florero-3", Name: "Florero vidrio", UnitPrice: 800, Quantity: 1},
	}}
	if err := store.Put(ctx, "sess-1", snapshot); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := cache.ttls["poppy:cart:sess-1"]; ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	loaded, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.Items) != 2 || loaded.Items[0].ProductID != "ramo-1" {
		t.Fatalf("unexpected snapshot %+v", loaded)
	}

	if err := store.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); err == nil {
		t.Fatal("expected miss after clear")
	}
}

func TestStoreGetMissIsNotFound(t *testing.T) {
	store, err := NewStore(newFakeSnapshotCache(), time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Get(context.Background(), "ghost")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSnapshotSubtotal(t *testing.T) {
	snapshot := Snapshot{Items: []Item{
		{UnitPrice: 1500.50, Quantity: 2},
		{UnitPrice: 800, Quantity: 1},
	}}
	if got := snapshot.Subtotal(); !got.Equal(decimal.RequireFromString("3801")) {
		t.Fatalf("expected subtotal 3801, got %s", got)
	}

	if !(Snapshot{}).Empty() {
		t.Fatal("zero snapshot should be empty")
	}
	if !(Snapshot{Items: []Item{{Quantity: 0}}}).Empty() {
		t.Fatal("zero-quantity lines should count as empty")
	}
	if snapshot.Empty() {
		t.Fatal("populated snapshot should not be empty")
	}
}
