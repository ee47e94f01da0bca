package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/cartengine/internal/domain"
	apperrors "github.com/utafrali/cartengine/pkg/errors"
)

// savedCart is the serialized slot payload. Totals are intentionally not
// stored: they are derived state and are recomputed on load.
type savedCart struct {
	Lines   []domain.Line `json:"lines"`
	SavedAt time.Time     `json:"saved_at"`
}

// CartRepository implements repository.CartRepository using Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart slot repository. Slots
// expire after the given TTL so abandoned carts age out on their own.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Load retrieves the cart lines saved under key.
func (r *CartRepository) Load(ctx context.Context, key string) ([]domain.Line, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("cart", key)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var saved savedCart
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return saved.Lines, nil
}

// Save overwrites the slot under key with the given lines.
func (r *CartRepository) Save(ctx context.Context, key string, lines []domain.Line) error {
	data, err := json.Marshal(savedCart{
		Lines:   lines,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

// Delete removes the slot under key.
func (r *CartRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}

	return nil
}
