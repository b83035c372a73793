package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

const keyPrefix = "unlock"

// RedemptionKey holds the JSON record for one code.
func RedemptionKey(code string) string {
	return fmt.Sprintf("%s:redemption:%s", keyPrefix, code)
}

// SessionKey maps a payment session id to the code issued for it.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, sessionID)
}

// CodesKey is the set of every issued code.
func CodesKey() string {
	return keyPrefix + ":codes"
}

// RateLimitKey is the sliding-window bucket for one limiter key
// ("scope:client").
func RateLimitKey(key string) string {
	return fmt.Sprintf("%s:ratelimit:%s", keyPrefix, key)
}
