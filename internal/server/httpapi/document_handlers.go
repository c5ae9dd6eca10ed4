package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/plainlyhq/plainly-core/internal/api"
	"github.com/plainlyhq/plainly-core/internal/store"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ts := s.engine.ForTenant(uidFrom(r.Context()))
	page, err := ts.ListDocumentsPage(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleListAllDocuments(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	docs, err := ts.ListAllDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req api.CreateDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	doc, err := ts.CreateDocument(r.Context(), req.NewDocument, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, doc)
}

// handleBatchDocuments merges a batch of document snapshots, returning the
// winning record per client-supplied id.
func (s *Server) handleBatchDocuments(w http.ResponseWriter, r *http.Request) {
	var req []api.DocumentSnapshot
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	result := make(map[string]*store.DocumentMeta, len(req))
	for _, snap := range req {
		merged, err := ts.MergeDocument(r.Context(), snap.DocumentMeta, snap.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		result[store.CanonicalID(snap.ID)] = merged
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	var req store.SearchQuery
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	page, err := ts.SearchDocuments(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleGetDocumentMeta(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	meta, err := ts.GetDocumentMeta(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

func (s *Server) handleUpdateDocumentMeta(w http.ResponseWriter, r *http.Request) {
	var req store.DocumentUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	meta, err := ts.UpdateDocumentMeta(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

func (s *Server) handleGetDocumentContent(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	content, err := ts.GetDocumentContent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, api.ContentData{Content: content})
}

func (s *Server) handleSaveDocumentContent(w http.ResponseWriter, r *http.Request) {
	var req api.ContentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	meta, err := ts.SaveDocumentContent(r.Context(), mux.Vars(r)["id"], req.Content, req.UpdatedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

func (s *Server) handleEnsureCharCount(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	meta, err := ts.GetDocumentMeta(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if meta == nil {
		writeData(w, http.StatusOK, nil)
		return
	}
	ensured, err := ts.EnsureDocumentCharCount(r.Context(), meta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, ensured)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ts := s.engine.ForTenant(uidFrom(r.Context()))
	if err := ts.DeleteDocument(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
