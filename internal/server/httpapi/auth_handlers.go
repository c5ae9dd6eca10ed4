package httpapi

import (
	"fmt"
	"net"
	"net/http"

	"github.com/plainlyhq/plainly-core/internal/api"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/services"
)

var errNoRefreshToken = fmt.Errorf("%w: missing refresh token", common.ErrInvalidToken)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.Credentials
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.users.Register(r.Context(), req.Account, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, api.TokenData{UID: user.ID, Account: user.Account})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.Credentials
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pair, user, err := s.users.Login(r.Context(), req.Account, req.Password, services.SessionMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.setAuthCookies(w, pair)
	writeData(w, http.StatusOK, api.TokenData{
		UID:          user.ID,
		Account:      user.Account,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFrom(r)
	if token == "" {
		writeError(w, errNoRefreshToken)
		return
	}
	pair, err := s.users.Refresh(r.Context(), token)
	if err != nil {
		s.clearAuthCookies(w)
		writeError(w, err)
		return
	}
	s.setAuthCookies(w, pair)
	writeData(w, http.StatusOK, api.TokenData{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := refreshTokenFrom(r); token != "" {
		if err := s.users.Logout(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
	}
	s.clearAuthCookies(w)
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.users.LogoutAll(r.Context(), uidFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	s.clearAuthCookies(w)
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req api.PasswordChange
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.ChangePassword(r.Context(), uidFrom(r.Context()), req.Current, req.Next); err != nil {
		writeError(w, err)
		return
	}
	s.clearAuthCookies(w)
	writeData(w, http.StatusOK, nil)
}

// refreshTokenFrom prefers the refresh cookie and falls back to a JSON body.
func refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(common.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req api.RefreshRequest
	if err := decodeBody(r, &req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
