package usage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(dsn string, ttl time.Duration) *redisStore {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return &redisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}
}

func (s *redisStore) Claim(ctx context.Context, orderID, userID string) (Claim, error) {
	key := "fortune:used:" + orderID
	set, err := s.client.SetNX(ctx, key, userID, s.ttl).Result()
	if err != nil {
		return Claim{}, err
	}
	if set {
		return Claim{Owner: userID}, nil
	}

	// Lost the race or already redeemed earlier: fetch the recorded owner.
	owner, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Claim{}, err
	}
	return Claim{Duplicate: true, Owner: owner}, nil
}
