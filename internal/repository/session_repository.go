package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-service/internal/utils"
)

// SessionRepo keeps refresh sessions in Redis as two independent keys:
//
//	refresh:<token>    -> user id
//	user:<id>:refresh  -> most recently issued token for that user
//
// Both are written with the same TTL but separately, so their expiry
// clocks are not synchronized. Multi-key sequences here are not atomic;
// each key operation is.
type SessionRepo struct {
	rdb            redis.Cmdable
	ttl            time.Duration
	revokePrevious bool
}

// NewSessionRepo builds a session store. With revokePrevious set, Create
// deletes the forward entry of the user's previous token so only the
// newest session resolves.
func NewSessionRepo(rdb redis.Cmdable, ttl time.Duration, revokePrevious bool) *SessionRepo {
	return &SessionRepo{rdb: rdb, ttl: ttl, revokePrevious: revokePrevious}
}

func refreshKey(token string) string { return "refresh:" + token }

func userRefreshKey(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10) + ":refresh"
}

// deleteIfEquals removes KEYS[1] only while it still holds ARGV[1].
var deleteIfEquals = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// TTL returns the lifetime given to each session key.
func (r *SessionRepo) TTL() time.Duration { return r.ttl }

// Create generates a fresh opaque token for userID and stores both
// mappings.
func (r *SessionRepo) Create(ctx context.Context, userID uint64) (string, error) {
	token, err := utils.NewRefreshToken()
	if err != nil {
		return "", err
	}
	if r.revokePrevious {
		prev, err := r.rdb.Get(ctx, userRefreshKey(userID)).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return "", err
		default:
			if err := r.rdb.Del(ctx, refreshKey(prev)).Err(); err != nil {
				return "", err
			}
		}
	}
	if err := r.rdb.Set(ctx, refreshKey(token), strconv.FormatUint(userID, 10), r.ttl).Err(); err != nil {
		return "", err
	}
	if err := r.rdb.Set(ctx, userRefreshKey(userID), token, r.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the user owning token, or ErrNotFound when the token is
// unknown or expired.
func (r *SessionRepo) Resolve(ctx context.Context, token string) (uint64, error) {
	if token == "" {
		return 0, ErrNotFound
	}
	v, err := r.rdb.Get(ctx, refreshKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		// A value we did not write is treated as no session.
		return 0, ErrNotFound
	}
	return id, nil
}

// Revoke deletes the forward entry for token and clears the user's
// reverse pointer if it still names this token. Unknown tokens are a
// no-op.
func (r *SessionRepo) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	userID, err := r.Resolve(ctx, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := r.rdb.Del(ctx, refreshKey(token)).Err(); err != nil {
		return err
	}
	// An already expired forward key leaves no user id to clear. The reverse
	// pointer is advisory and lapses on its own TTL.
	if userID == 0 {
		return nil
	}
	return deleteIfEquals.Run(ctx, r.rdb, []string{userRefreshKey(userID)}, token).Err()
}

// CurrentToken returns the most recently issued token of userID.
func (r *SessionRepo) CurrentToken(ctx context.Context, userID uint64) (string, error) {
	token, err := r.rdb.Get(ctx, userRefreshKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return token, err
}

// RevokeUser removes the reverse pointer of userID and the forward entry
// it names.
func (r *SessionRepo) RevokeUser(ctx context.Context, userID uint64) error {
	token, err := r.CurrentToken(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, userRefreshKey(userID)).Err(); err != nil {
		return err
	}
	return r.rdb.Del(ctx, refreshKey(token)).Err()
}
