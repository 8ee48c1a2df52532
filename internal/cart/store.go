package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/redis"
)

var errCacheRequired = errors.New("cart store cache is required")

// Item is one cart line as the storefront persists it.
type Item struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// Snapshot is the session's cart at a point in time.
type Snapshot struct {
	Items []Item `json:"items"`
}

// Empty reports whether there is nothing to check out.
func (s Snapshot) Empty() bool {
	for _, item := range s.Items {
		if item.Quantity > 0 {
			return false
		}
	}
	return true
}

// Subtotal sums the lines at full decimal precision.
func (s Snapshot) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range s.Items {
		line := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}
	return subtotal
}

type snapshotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionID string) string
}

// Store keeps per-session cart snapshots in Redis with a sliding TTL.
type Store struct {
	cache snapshotCache
	ttl   time.Duration
}

func NewStore(cache snapshotCache, ttl time.Duration) (*Store, error) {
	if cache == nil {
		return nil, errCacheRequired
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{cache: cache, ttl: ttl}, nil
}

// Get loads the session's snapshot. A session without a cart yields a
// not-found domain error.
func (s *Store) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	raw, err := s.cache.Get(ctx, s.cache.CartKey(sessionID))
	if err != nil {
		if redis.IsMiss(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no cart for this session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart snapshot")
	}
	return &snapshot, nil
}

// Put replaces the session's snapshot and refreshes its TTL.
func (s *Store) Put(ctx context.Context, sessionID string, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}
	if err := s.cache.Set(ctx, s.cache.CartKey(sessionID), string(raw), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store cart snapshot")
	}
	return nil
}

// Clear drops the session's snapshot, typically after a completed checkout.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.cache.Del(ctx, s.cache.CartKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart snapshot")
	}
	return nil
}
