package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/tiendaverde/catalogo/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.NewCart(), nil
		}
		return nil, fmt.Errorf("get cart %s: %w", sessionID, err)
	}

	cart := domain.NewCart()
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", sessionID, err)
	}
	if cart.Items == nil {
		cart.Items = make(map[int64]domain.CartEntry)
	}

	return cart, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", sessionID, err)
	}

	if err := s.client.Set(ctx, cartKey(sessionID), data, cartTTL).Err(); err != nil {
		return fmt.Errorf("put cart %s: %w", sessionID, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete cart %s: %w", sessionID, err)
	}
	return nil
}
