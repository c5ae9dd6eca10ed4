// Package common contains shared constants and sentinel errors used across
// the client and server layers of plainly-core. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors. ErrNotFound covers both a genuinely absent
	// record and a record outside the caller's tenant scope; the two cases
	// are indistinguishable on purpose.
	ErrNotFound = errors.New("not found")

	// Validation errors (empty name, duplicate name on rename, bad payload).
	ErrValidation = errors.New("validation error")

	// Auth errors.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")

	// Engine lifecycle errors. Both are fatal for the engine that reports
	// them: a store that failed to open or to migrate must not serve traffic.
	ErrStorage   = errors.New("storage unavailable")
	ErrMigration = errors.New("migration failed")

	// ErrUnsupported marks contract operations a backend deliberately does
	// not implement (e.g. token search on the embedded local engine).
	ErrUnsupported = errors.New("operation not supported")
)
