package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tokenBlacklistPrefix = "auth:token:blacklist:"

func BuildClaims(u User, ttl time.Duration, now time.Time) Claims {
	return Claims{
		UserID: u.ID.Hex(),
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
}

func SignToken(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, jwt.ErrSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return *claims, nil
}

// Blacklist records revoked token ids until they would have expired anyway.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type redisBlacklist struct {
	rdb redis.UniversalClient
}

func NewRedisBlacklist(rdb redis.UniversalClient) Blacklist {
	return &redisBlacklist{rdb: rdb}
}

func (b *redisBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := b.rdb.Set(ctx, tokenBlacklistPrefix+jti, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (b *redisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := b.rdb.Exists(ctx, tokenBlacklistPrefix+jti).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return exists > 0, nil
}

type noopBlacklist struct{}

func (noopBlacklist) Revoke(context.Context, string, time.Duration) error { return nil }

func (noopBlacklist) IsRevoked(context.Context, string) (bool, error) { return false, nil }
