package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	fieldToken      = "token"
	fieldRefresh    = "refresh"
	fieldAdminToken = "admin_token"
	fieldAdminUser  = "admin_user"
)

// Session holds the tokens a browser would otherwise keep in local storage.
type Session struct {
	ID         string
	Token      string
	Refresh    string
	AdminToken string
	AdminUser  *domain.User
}

func (s *Session) IsCustomer() bool { return s != nil && s.Token != "" }

func (s *Session) IsAdmin() bool { return s != nil && s.AdminToken != "" }

type Store interface {
	Get(ctx context.Context, sid string) (*Session, error)
	SetCustomer(ctx context.Context, sid, token, refresh string) error
	ClearCustomer(ctx context.Context, sid string) error
	SetAdmin(ctx context.Context, sid, token string, user *domain.User) error
	ClearAdmin(ctx context.Context, sid string) error
	Delete(ctx context.Context, sid string) error
}

func NewID() string {
	return uuid.NewString()
}

// RedisStore keeps one hash per session. Every read or write pushes the
// expiry out by ttl.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sid string) (*Session, error) {
	key := sessionKey(sid)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis touch session: %w", err)
	}

	sess := &Session{
		ID:         sid,
		Token:      fields[fieldToken],
		Refresh:    fields[fieldRefresh],
		AdminToken: fields[fieldAdminToken],
	}
	if raw := fields[fieldAdminUser]; raw != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			sess.AdminUser = &u
		}
	}
	return sess, nil
}

func (s *RedisStore) SetCustomer(ctx context.Context, sid, token, refresh string) error {
	values := map[string]any{fieldToken: token}
	if refresh != "" {
		values[fieldRefresh] = refresh
	}
	return s.write(ctx, sid, values)
}

func (s *RedisStore) ClearCustomer(ctx context.Context, sid string) error {
	return s.clear(ctx, sid, fieldToken, fieldRefresh)
}

func (s *RedisStore) SetAdmin(ctx context.Context, sid, token string, user *domain.User) error {
	values := map[string]any{fieldAdminToken: token}
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal admin user: %w", err)
		}
		values[fieldAdminUser] = string(data)
	}
	return s.write(ctx, sid, values)
}

func (s *RedisStore) ClearAdmin(ctx context.Context, sid string) error {
	return s.clear(ctx, sid, fieldAdminToken, fieldAdminUser)
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) write(ctx context.Context, sid string, values map[string]any) error {
	key := sessionKey(sid)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write session: %w", err)
	}
	return nil
}

func (s *RedisStore) clear(ctx context.Context, sid string, fields ...string) error {
	if err := s.client.HDel(ctx, sessionKey(sid), fields...).Err(); err != nil {
		return fmt.Errorf("redis clear session fields: %w", err)
	}
	return nil
}

func sessionKey(sid string) string {
	return fmt.Sprintf("session:%s", sid)
}
