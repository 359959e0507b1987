package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"zksteam-api/internal/client"
	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/util"
)

const pendingSessionPrefix = "zkp_pending_session:"

// SessionCache is the Redis-backed repository.SessionStore. Entries expire
// with the proof request TTL.
type SessionCache struct {
	client  *client.RedisClient
	timeout time.Duration
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client, timeout: 2 * time.Second}
}

var _ repository.SessionStore = (*SessionCache)(nil)

func (c *SessionCache) SavePending(ctx context.Context, s *models.PendingSession, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal pending session: %w", err)
	}

	if err := c.client.Set(ctx, pendingSessionPrefix+s.SessionID, data, ttl); err != nil {
		util.Error("Failed to save pending session",
			zap.String("session_id", s.SessionID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save pending session: %w", err)
	}

	util.Debug("Pending session saved",
		zap.String("session_id", s.SessionID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *SessionCache) GetPending(ctx context.Context, sessionID string) (*models.PendingSession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, pendingSessionPrefix+sessionID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending session: %w", err)
	}

	var s models.PendingSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode pending session: %w", err)
	}
	return &s, nil
}

func (c *SessionCache) DeletePending(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, pendingSessionPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to delete pending session: %w", err)
	}
	return nil
}
