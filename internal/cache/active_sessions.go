package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the hot-path projection of a running charging session.
type ActiveSession struct {
	SessionID   int64   `json:"session_id"`
	SessionCode string  `json:"session_code"`
	BookingID   int64   `json:"booking_id"`
	UserID      int64   `json:"user_id"`
	StationID   int64   `json:"station_id"`
	Status      string  `json:"status"`
	CurrentSOC  float64 `json:"current_soc"`
	PowerKW     float64 `json:"power_kw"`
	KWhConsumed float64 `json:"kwh_consumed"`
}

// ActiveSessionStore manages the active session cache.
type ActiveSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewActiveSessionStore returns redis-backed store.
func NewActiveSessionStore(client *redis.Client, ttl time.Duration) *ActiveSessionStore {
	return &ActiveSessionStore{client: client, ttl: ttl}
}

func (s *ActiveSessionStore) key(sessionCode string) string {
	return fmt.Sprintf("sessions:active:%s", sessionCode)
}

// Save caches the session projection.
func (s *ActiveSessionStore) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.SessionCode), data, s.ttl).Err()
}

// Get returns the cached projection.
func (s *ActiveSessionStore) Get(ctx context.Context, sessionCode string) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(sessionCode)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes the cached projection.
func (s *ActiveSessionStore) Delete(ctx context.Context, sessionCode string) error {
	return s.client.Del(ctx, s.key(sessionCode)).Err()
}
