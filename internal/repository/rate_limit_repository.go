package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

// RateLimitRepository bounds pass creation per student with a Redis
// sliding-window counter.
type RateLimitRepository struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimitRepository constructs the repository.
func NewRateLimitRepository(client *redis.Client, limit int, window time.Duration) *RateLimitRepository {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimitRepository{client: client, limit: limit, window: window}
}

// CheckPassCreation records one attempt and reports whether it is within the
// window. With no Redis configured the check degrades to always-allow.
func (r *RateLimitRepository) CheckPassCreation(ctx context.Context, studentID string) (*models.RateLimitResult, error) {
	if r.client == nil {
		return &models.RateLimitResult{Allowed: true, Remaining: r.limit}, nil
	}

	key := fmt.Sprintf("ratelimit:pass:%s", studentID)
	now := time.Now().UTC()
	windowStart := now.Add(-r.window).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, r.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "rate limit check failed")
	}

	count := int(card.Val())
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &models.RateLimitResult{
		Allowed:   count <= r.limit,
		Remaining: remaining,
		ResetAt:   now.Add(r.window).Unix(),
	}, nil
}
