package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisUserPrefix  = "user:v1:"
	redisEmailPrefix = "user:v1:email:"
)

// Hash fields of a stored user.
const (
	fieldID            = "id"
	fieldEmail         = "email"
	fieldFirstName     = "first_name"
	fieldLastName      = "last_name"
	fieldPasswordHash  = "password_hash"
	fieldLoginAttempts = "login_attempts"
	fieldLockedUntil   = "locked_until"
	fieldMFAEnabled    = "mfa_enabled"
	fieldMFASecret     = "mfa_secret"
	fieldCreatedAt     = "created_at"
)

// RedisRepository stores each user as a hash plus an email → id index key.
type RedisRepository struct {
	cache *redis.Client
}

// NewRedisRepository builds a Redis-backed identity repository.
func NewRedisRepository(cache *redis.Client) *RedisRepository {
	return &RedisRepository{cache: cache}
}

func userKey(id string) string     { return redisUserPrefix + id }
func emailKey(email string) string { return redisEmailPrefix + email }

// Insert reserves the email with SETNX, then writes the user hash.
func (r *RedisRepository) Insert(ctx context.Context, user User) error {
	ok, err := r.cache.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return ErrDuplicateEmail
	}

	values := map[string]any{
		fieldID:            user.ID,
		fieldEmail:         user.Email,
		fieldFirstName:     user.FirstName,
		fieldLastName:      user.LastName,
		fieldPasswordHash:  user.PasswordHash,
		fieldLoginAttempts: user.LoginAttempts,
		fieldMFAEnabled:    strconv.FormatBool(user.MFAEnabled),
		fieldCreatedAt:     user.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if user.LockedUntil != nil {
		values[fieldLockedUntil] = user.LockedUntil.UTC().Format(time.RFC3339Nano)
	}
	if user.MFASecret != "" {
		values[fieldMFASecret] = user.MFASecret
	}
	if err := r.cache.HSet(ctx, userKey(user.ID), values).Err(); err != nil {
		r.cache.Del(ctx, emailKey(user.Email)) // release the reservation
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail resolves the email index then loads the hash.
func (r *RedisRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	id, err := r.cache.Get(ctx, emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup email: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID loads the user hash.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (User, error) {
	fields, err := r.cache.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if len(fields) == 0 {
		return User{}, ErrNotFound
	}
	return decodeUser(fields)
}

// UpdateFields applies changes inside MULTI/EXEC.
func (r *RedisRepository) UpdateFields(ctx context.Context, id string, changes Changes) (bool, error) {
	key := userKey(id)
	n, err := r.cache.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if changes.Empty() {
		return true, nil
	}

	set := map[string]any{}
	var del []string
	if changes.LoginAttempts != nil {
		set[fieldLoginAttempts] = *changes.LoginAttempts
	}
	if changes.ClearLock {
		del = append(del, fieldLockedUntil)
	} else if changes.LockedUntil != nil {
		set[fieldLockedUntil] = changes.LockedUntil.UTC().Format(time.RFC3339Nano)
	}
	if changes.MFAEnabled != nil {
		set[fieldMFAEnabled] = strconv.FormatBool(*changes.MFAEnabled)
	}
	if changes.ClearMFASecret {
		del = append(del, fieldMFASecret)
	} else if changes.MFASecret != nil {
		set[fieldMFASecret] = *changes.MFASecret
	}

	_, err = r.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, key, set)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, key, del...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return true, nil
}

// IncrementLoginAttempts uses HINCRBY for an atomic increment-and-fetch.
func (r *RedisRepository) IncrementLoginAttempts(ctx context.Context, id string) (int, error) {
	key := userKey(id)
	n, err := r.cache.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	attempts, err := r.cache.HIncrBy(ctx, key, fieldLoginAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment login attempts: %w", err)
	}
	return int(attempts), nil
}

// Ping checks connectivity for health probes.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx).Err()
}

func decodeUser(fields map[string]string) (User, error) {
	user := User{
		ID:           fields[fieldID],
		Email:        fields[fieldEmail],
		FirstName:    fields[fieldFirstName],
		LastName:     fields[fieldLastName],
		PasswordHash: fields[fieldPasswordHash],
		MFASecret:    fields[fieldMFASecret],
	}
	var err error
	if v := fields[fieldLoginAttempts]; v != "" {
		if user.LoginAttempts, err = strconv.Atoi(v); err != nil {
			return User{}, fmt.Errorf("decode %s: %w", fieldLoginAttempts, err)
		}
	}
	if v := fields[fieldMFAEnabled]; v != "" {
		if user.MFAEnabled, err = strconv.ParseBool(v); err != nil {
			return User{}, fmt.Errorf("decode %s: %w", fieldMFAEnabled, err)
		}
	}
	if v := fields[fieldLockedUntil]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return User{}, fmt.Errorf("decode %s: %w", fieldLockedUntil, err)
		}
		user.LockedUntil = &t
	}
	if v := fields[fieldCreatedAt]; v != "" {
		if user.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return User{}, fmt.Errorf("decode %s: %w", fieldCreatedAt, err)
		}
	}
	return user, nil
}
