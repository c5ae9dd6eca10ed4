package httpapi

import (
	"net/http"
	"time"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/services"
)

// The two credential cookies are HttpOnly and scoped to the API path; the
// session flag is script-readable so the UI can tell a session exists without
// being able to read any credential. Names live in internal/common since the
// client side refers to them too.

func (s *Server) setAuthCookies(w http.ResponseWriter, pair *services.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.AccessCookieName,
		Value:    pair.AccessToken,
		Path:     s.apiPrefix,
		MaxAge:   int(s.accessTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     s.apiPrefix,
		MaxAge:   int(s.refreshTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionFlagCookieName,
		Value:    "1",
		Path:     "/",
		MaxAge:   int(s.refreshTTL / time.Second),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, c := range []http.Cookie{
		{Name: common.AccessCookieName, Path: s.apiPrefix, HttpOnly: true},
		{Name: common.RefreshCookieName, Path: s.apiPrefix, HttpOnly: true},
		{Name: common.SessionFlagCookieName, Path: "/"},
	} {
		c.MaxAge = -1
		http.SetCookie(w, &c)
	}
}
