package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/plainlyhq/plainly-core/internal/api"
)

func (s *Server) handleListConfigKeys(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	keys, err := ts.ListConfigKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, keys)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	value, err := ts.GetConfig(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	// a missing key is data:null, not an error
	writeData(w, http.StatusOK, api.ValueData{Value: value})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	if err := ts.SetConfig(r.Context(), mux.Vars(r)["key"], req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleRemoveConfig(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	if err := ts.RemoveConfig(r.Context(), mux.Vars(r)["key"]); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
