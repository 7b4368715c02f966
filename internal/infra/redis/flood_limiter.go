package redis

import (
	"context"
	"fmt"
	"time"
)

// FloodLimiter throttles raw bot interactions (messages, button presses) per
// user. This is front-end abuse protection only; the hourly video quota is
// enforced separately in the core.
type FloodLimiter struct {
	client Client
}

func NewFloodLimiter(client Client) *FloodLimiter {
	return &FloodLimiter{client: client}
}

func (f *FloodLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := f.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = f.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

func UserCommandKey(userID int64, command string) string {
	return fmt.Sprintf("flood:%d:%s", userID, command)
}
