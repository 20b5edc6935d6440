package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey = "opportuci:session"
	lockSuffix      = ":refresh-lock"
	lockPollEvery   = 50 * time.Millisecond
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the session in a Redis hash with fields KeyAccess and
// KeyRefresh, so several client processes can share one login.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore creates a Redis-backed store. An empty key uses "opportuci:session".
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Key returns the hash key holding the session
func (r *RedisStore) Key() string {
	return r.key
}

func (r *RedisStore) Load(ctx context.Context) (Session, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Session{}, errors.Wrap(err, "RedisStore.Load HGetAll")
	}
	return Session{
		AccessToken:  values[KeyAccess],
		RefreshToken: values[KeyRefresh],
	}, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		fields := map[string]any{}
		if s.AccessToken != "" {
			fields[KeyAccess] = s.AccessToken
		}
		if s.RefreshToken != "" {
			fields[KeyRefresh] = s.RefreshToken
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, r.key, fields)
		}
		return nil
	})
	return errors.Wrap(err, "RedisStore.Save")
}

func (r *RedisStore) SetAccessToken(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return errors.Wrap(r.client.HDel(ctx, r.key, KeyAccess).Err(), "RedisStore.SetAccessToken HDel")
	}
	return errors.Wrap(r.client.HSet(ctx, r.key, KeyAccess, accessToken).Err(), "RedisStore.SetAccessToken HSet")
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return errors.Wrap(r.client.Del(ctx, r.key).Err(), "RedisStore.Clear Del")
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance Redis lock (SET NX PX) next to the session hash.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a lock for the session stored under sessionKey.
// ttl bounds how long a crashed holder can block other processes.
func NewRedisLocker(client redis.UniversalClient, sessionKey string, ttl time.Duration) *RedisLocker {
	if sessionKey == "" {
		sessionKey = defaultRedisKey
	}
	return &RedisLocker{client: client, key: sessionKey + lockSuffix, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	owner := uuid.NewString()
	ticker := time.NewTicker(lockPollEvery)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "RedisLocker.Lock SetNX")
		}
		if ok {
			return func() {
				// The caller's context may already be done when releasing.
				releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{l.key}, owner)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(apperrors.ErrLockNotAcquired, ctx.Err().Error())
		case <-ticker.C:
		}
	}
}
