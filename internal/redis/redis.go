package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"imgfilter/internal/classifier"
)

const predictionPrefix = "imgfilter:predictions:"

type Client struct {
	rdb *redis.Client
}

func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Prediction cache
func (c *Client) GetPredictions(ctx context.Context, url string) (classifier.Predictions, bool, error) {
	data, err := c.rdb.Get(ctx, predictionKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var p classifier.Predictions
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (c *Client) SetPredictions(ctx context.Context, url string, p classifier.Predictions, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, predictionKey(url), data, ttl).Err()
}

func predictionKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return predictionPrefix + hex.EncodeToString(sum[:])
}

var _ classifier.Cache = (*Client)(nil)
