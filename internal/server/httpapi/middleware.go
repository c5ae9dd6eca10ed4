package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/auth"
	"github.com/plainlyhq/plainly-core/internal/server/models"
)

type ctxKey int

const uidKey ctxKey = 0

// authMiddleware accepts the access token from a Bearer header or the access
// cookie, validates it against the stored account state and injects the
// tenant id into the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(common.AccessCookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			writeError(w, common.ErrUnauthorized)
			return
		}

		at, err := auth.ParseAccessToken(token, s.jwtSecret)
		if err != nil {
			writeError(w, err)
			return
		}
		user, err := s.users.GetUser(r.Context(), at.UID)
		if err != nil {
			writeError(w, common.ErrUnauthorized)
			return
		}
		if user.Status != models.UserStatusActive {
			writeError(w, common.ErrUnauthorized)
			return
		}
		// a bumped version or a later password change kills the token
		if at.Ver != user.TokenVersion {
			writeError(w, common.ErrTokenExpired)
			return
		}
		if user.PasswordChangedAt.Valid && at.IssuedAt.UnixMilli() < user.PasswordChangedAt.Int64 {
			writeError(w, common.ErrTokenExpired)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), uidKey, at.UID)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// uidFrom returns the authenticated tenant id.
func uidFrom(ctx context.Context) int64 {
	uid, _ := ctx.Value(uidKey).(int64)
	return uid
}
