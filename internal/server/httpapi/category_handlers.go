package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/plainlyhq/plainly-core/internal/api"
	"github.com/plainlyhq/plainly-core/internal/store"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	cats, err := ts.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cats)
}

func (s *Server) handleListCategoriesWithCount(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	cats, err := ts.ListCategoriesWithCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	cat, err := ts.CreateCategory(r.Context(), req.Name, &req.CategoryOptions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, cat)
}

// handleBatchCategories merges a batch of category snapshots, returning the
// winning record per client-supplied id.
func (s *Server) handleBatchCategories(w http.ResponseWriter, r *http.Request) {
	var req []store.Category
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	result := make(map[string]*store.Category, len(req))
	for _, cat := range req {
		merged, err := ts.MergeCategory(r.Context(), cat)
		if err != nil {
			writeError(w, err)
			return
		}
		result[store.CanonicalID(cat.ID)] = merged
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req api.NameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	cat, err := ts.RenameCategory(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	reassignTo := r.URL.Query().Get("reassignTo")
	if err := ts.DeleteCategory(r.Context(), mux.Vars(r)["id"], reassignTo); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
