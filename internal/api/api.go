// Package api defines the wire types shared by the HTTP server and the
// network client: the response envelope, the error codes carried in it, and
// the request/response bodies of the auth and store endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/store"
)

// Envelope wraps every response body; ErrCode 0 means success.
type Envelope struct {
	ErrCode int             `json:"errcode"`
	ErrMsg  string          `json:"errmsg,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Wire error codes. They are the API contract; HTTP status codes are
// advisory, clients switch on ErrCode.
const (
	CodeOK                  = 0
	CodeValidation          = 1
	CodeNotFound            = 2
	CodeUnauthorized        = 3
	CodeTokenExpired        = 4
	CodeAccountExists       = 5
	CodeInvalidCredentials  = 6
	CodeStorageUnavailable  = 7
	CodeUnsupported         = 8
	CodeInternal            = 9
	CodeRefreshTokenExpired = 10
)

// ErrorCode maps an error to its wire code. Order matters: the more specific
// sentinels are checked before the ones they wrap conceptually.
func ErrorCode(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, common.ErrValidation):
		return CodeValidation
	case errors.Is(err, common.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return CodeRefreshTokenExpired
	case errors.Is(err, common.ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, common.ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, common.ErrAccountExists):
		return CodeAccountExists
	case errors.Is(err, common.ErrStorage), errors.Is(err, common.ErrMigration):
		return CodeStorageUnavailable
	case errors.Is(err, common.ErrUnsupported):
		return CodeUnsupported
	default:
		return CodeInternal
	}
}

// CodeError rebuilds a sentinel-wrapped error from a wire code, so client
// callers can use errors.Is the same way they would against a local engine.
func CodeError(code int, msg string) error {
	var base error
	switch code {
	case CodeOK:
		return nil
	case CodeValidation:
		base = common.ErrValidation
	case CodeNotFound:
		base = common.ErrNotFound
	case CodeUnauthorized:
		base = common.ErrUnauthorized
	case CodeTokenExpired:
		base = common.ErrTokenExpired
	case CodeAccountExists:
		base = common.ErrAccountExists
	case CodeInvalidCredentials:
		base = common.ErrInvalidCredentials
	case CodeStorageUnavailable:
		base = common.ErrStorage
	case CodeUnsupported:
		base = common.ErrUnsupported
	case CodeRefreshTokenExpired:
		base = common.ErrRefreshTokenExpired
	default:
		base = errors.New("server error")
	}
	if msg == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, msg)
}

// Credentials is the register/login request body.
type Credentials struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId,omitempty"`
}

// TokenData is the login/refresh response payload. Tokens are also delivered
// as cookies; the body copies serve Bearer-style clients.
type TokenData struct {
	UID          int64  `json:"uid,omitempty"`
	Account      string `json:"account,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshRequest carries a refresh token for clients not using cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// PasswordChange is the /auth/password request body.
type PasswordChange struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

// CreateCategoryRequest is the POST /categories body.
type CreateCategoryRequest struct {
	Name string `json:"name"`
	store.CategoryOptions
}

// NameRequest is the rename body.
type NameRequest struct {
	Name string `json:"name"`
}

// CreateDocumentRequest is the POST /documents body.
type CreateDocumentRequest struct {
	store.NewDocument
	Content string `json:"content"`
}

// DocumentSnapshot is one item of a /documents/batch request: metadata plus
// optional content.
type DocumentSnapshot struct {
	store.DocumentMeta
	Content *string `json:"content,omitempty"`
}

// ContentRequest is the PUT .../content body.
type ContentRequest struct {
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// ContentData is the GET .../content payload; nil means no content row.
type ContentData struct {
	Content *string `json:"content"`
}

// ValueData is the GET /config/{key} payload; nil means the key is unset.
type ValueData struct {
	Value *string `json:"value"`
}
