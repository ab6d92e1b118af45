package storage

import (
	"anonchat/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const reconcileSetKey = "chat:reconcile"

func profileKey(userID string) string {
	return "profile:" + userID
}

// GetPublicProfile читає профіль з Redis (cache-aside), а при промаху — з PostgreSQL.
// Username and avatar never change after registration, so entries are only
// ever expired, not invalidated.
func (s *Service) GetPublicProfile(ctx context.Context, id string) (*models.PublicProfile, error) {
	if s.Redis != nil {
		raw, err := s.Redis.Get(ctx, profileKey(id)).Bytes()
		switch {
		case err == nil:
			var p models.PublicProfile
			if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
				return &p, nil
			}
		case !errors.Is(err, redis.Nil):
			slog.Warn("storage - GetPublicProfile - cache read failed", "user_id", id, "err", err)
		}
	}

	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := user.PublicProfile()

	if s.Redis != nil {
		if raw, err := json.Marshal(p); err == nil {
			if err := s.Redis.Set(ctx, profileKey(id), raw, s.ProfileTTL).Err(); err != nil {
				slog.Warn("storage - GetPublicProfile - cache write failed", "user_id", id, "err", err)
			}
		}
	}
	return &p, nil
}

// EnqueueReconcile remembers a pair whose chat summary could not be written.
// A set is used so a pair that fails repeatedly is queued once.
func (s *Service) EnqueueReconcile(ctx context.Context, pairKey string) error {
	if s.Redis == nil {
		return ErrCacheUnavailable
	}
	return s.Redis.SAdd(ctx, reconcileSetKey, pairKey).Err()
}

// PopReconcile removes and returns one queued pair. It returns ErrNotFound
// when the queue is empty.
func (s *Service) PopReconcile(ctx context.Context) (string, error) {
	if s.Redis == nil {
		return "", ErrCacheUnavailable
	}
	key, err := s.Redis.SPop(ctx, reconcileSetKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return key, nil
}
