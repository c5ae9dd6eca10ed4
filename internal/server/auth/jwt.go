// Package auth issues and validates the two JWT kinds the API uses: a short
// access token carrying the user id and token version, and a longer refresh
// token carrying only the session id it belongs to.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plainlyhq/plainly-core/internal/common"
)

// AccessClaims: sub is the user id, ver the user's token version at issuance.
// A token becomes invalid the moment the stored version advances.
type AccessClaims struct {
	jwt.RegisteredClaims
	Ver int64 `json:"ver"`
}

// RefreshClaims: sid is the session row the refresh token belongs to.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SID string `json:"sid"`
}

// AccessToken is the decoded, signature-checked content of an access token.
type AccessToken struct {
	UID      int64
	Ver      int64
	IssuedAt time.Time
}

func GenerateAccessToken(uid, ver int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(uid, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Ver: ver,
	})
	return token.SignedString(secretKey)
}

func ParseAccessToken(tokenString string, secretKey []byte) (*AccessToken, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	at := &AccessToken{UID: uid, Ver: claims.Ver}
	if claims.IssuedAt != nil {
		at.IssuedAt = claims.IssuedAt.Time
	}
	return at, nil
}

func GenerateRefreshToken(sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		SID: sessionID,
	})
	return token.SignedString(secretKey)
}

// ParseRefreshToken returns the session id the token was issued for.
func ParseRefreshToken(tokenString string, secretKey []byte) (string, error) {
	claims := &RefreshClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrRefreshTokenExpired
		}
		return "", common.ErrInvalidToken
	}
	if !token.Valid || claims.SID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.SID, nil
}

// HashToken returns the SHA-256 hex of a token. Only this hash is persisted
// in session rows.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
