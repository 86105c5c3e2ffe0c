// Package auth implements password hashing and access/refresh token
// issuance — the Auth Verifier component.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/storage"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

const (
	accessTokenExpiry  = 15 * time.Minute
	refreshTokenBytes  = 32
	refreshTokenExpiry = 30 * 24 * time.Hour
)

// Verifier issues and validates access/refresh tokens and hashes
// passwords for the user store.
type Verifier struct {
	store  storage.Store
	secret []byte
}

// New loads the JWT signing secret, preferring secretFile over the
// plain secretEnv fallback, matching the original service's
// file-over-env preference for production secret mounting.
func New(store storage.Store, secretFile, secretEnv string) (*Verifier, error) {
	secret := secretEnv
	if secretFile != "" {
		if data, err := os.ReadFile(secretFile); err == nil {
			secret = strings.TrimSpace(string(data))
		}
	}
	if secret == "" {
		return nil, fmt.Errorf("no JWT secret available (file=%s)", secretFile)
	}
	return &Verifier{store: store, secret: []byte(secret)}, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type accessClaims struct {
	jwt.RegisteredClaims
}

// CreateAccessToken mints a 15-minute HS256 JWT with sub=userID.
func (v *Verifier) CreateAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// DecodeAccessToken validates the token's signature and expiry and
// returns the subject (user ID). Returns sandboxerr.Unauthorized on
// any validation failure.
func (v *Verifier) DecodeAccessToken(tokenStr string) (string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", sandboxerr.Wrap(sandboxerr.Unauthorized, "invalid or expired token", err)
	}
	return claims.Subject, nil
}

// IssueRefreshToken generates a new opaque refresh token for userID,
// persists only its SHA-256 digest, and returns the raw token to hand
// to the client.
func (v *Verifier) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw, hash, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	err = v.store.CreateRefreshToken(ctx, &types.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(refreshTokenExpiry),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("persisting refresh token: %w", err)
	}
	return raw, nil
}

// RotateRefreshToken validates rawToken, atomically revokes it, and
// issues a replacement. Presenting an unknown, expired or already-used
// token is reported as sandboxerr.Unauthorized; losing a concurrent
// rotation of the same token surfaces the store's sandboxerr.Conflict.
func (v *Verifier) RotateRefreshToken(ctx context.Context, rawToken string) (userID, newRawToken string, err error) {
	hash := hashToken(rawToken)

	existing, err := v.store.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return "", "", sandboxerr.Wrap(sandboxerr.Unauthorized, "unknown refresh token", err)
	}
	if existing.Revoked || time.Now().After(existing.ExpiresAt) {
		return "", "", sandboxerr.New(sandboxerr.Unauthorized, "refresh token expired or revoked")
	}

	newRaw, newHash, err := newRefreshToken()
	if err != nil {
		return "", "", err
	}
	newToken := &types.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    existing.UserID,
		TokenHash: newHash,
		ExpiresAt: time.Now().Add(refreshTokenExpiry),
		CreatedAt: time.Now(),
	}

	if err := v.store.RotateRefreshToken(ctx, hash, newToken); err != nil {
		return "", "", err
	}

	return existing.UserID, newRaw, nil
}

func newRefreshToken() (raw, hash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
