// Package httpapi exposes the store contract and the auth group over HTTP.
// Every response is the {errcode, errmsg, data} envelope; credentials travel
// either in cookies or a Bearer header.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/server/config"
	"github.com/plainlyhq/plainly-core/internal/server/engine"
	"github.com/plainlyhq/plainly-core/internal/server/services"
)

type Server struct {
	router     *mux.Router
	engine     *engine.Engine
	users      *services.UserService
	jwtSecret  []byte
	apiPrefix  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        logging.Logger
}

func New(e *engine.Engine, users *services.UserService, cfg *config.Config, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		router:     mux.NewRouter(),
		engine:     e,
		users:      users,
		jwtSecret:  []byte(cfg.SecretKey),
		apiPrefix:  cfg.APIPrefix,
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		log:        log,
	}
	s.routes()
	return s
}

// Handler returns the root handler to mount on an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	api := s.router.PathPrefix(s.apiPrefix).Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)

	authed.HandleFunc("/auth/logout-all", s.handleLogoutAll).Methods(http.MethodPost)
	authed.HandleFunc("/auth/password", s.handleChangePassword).Methods(http.MethodPost)

	authed.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	authed.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	authed.HandleFunc("/categories/count", s.handleListCategoriesWithCount).Methods(http.MethodGet)
	authed.HandleFunc("/categories/batch", s.handleBatchCategories).Methods(http.MethodPost)
	authed.HandleFunc("/categories/{id}", s.handleRenameCategory).Methods(http.MethodPut)
	authed.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	authed.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)
	authed.HandleFunc("/documents", s.handleCreateDocument).Methods(http.MethodPost)
	authed.HandleFunc("/documents/all", s.handleListAllDocuments).Methods(http.MethodGet)
	authed.HandleFunc("/documents/batch", s.handleBatchDocuments).Methods(http.MethodPost)
	authed.HandleFunc("/documents/search", s.handleSearchDocuments).Methods(http.MethodPost)
	authed.HandleFunc("/documents/{id}/meta", s.handleGetDocumentMeta).Methods(http.MethodGet)
	authed.HandleFunc("/documents/{id}/meta", s.handleUpdateDocumentMeta).Methods(http.MethodPatch)
	authed.HandleFunc("/documents/{id}/content", s.handleGetDocumentContent).Methods(http.MethodGet)
	authed.HandleFunc("/documents/{id}/content", s.handleSaveDocumentContent).Methods(http.MethodPut)
	authed.HandleFunc("/documents/{id}/charcount", s.handleEnsureCharCount).Methods(http.MethodPost)
	authed.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods(http.MethodDelete)

	authed.HandleFunc("/config", s.handleListConfigKeys).Methods(http.MethodGet)
	authed.HandleFunc("/config/{key}", s.handleGetConfig).Methods(http.MethodGet)
	authed.HandleFunc("/config/{key}", s.handleSetConfig).Methods(http.MethodPut)
	authed.HandleFunc("/config/{key}", s.handleRemoveConfig).Methods(http.MethodDelete)
}
