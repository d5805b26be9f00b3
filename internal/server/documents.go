package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docchat-go/internal/extract"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/store"
)

// multipartMemory is the in-memory threshold for multipart parsing; larger
// parts spill to temporary files.
const multipartMemory = 32 << 20

// handleUploadDocument handles POST /api/admin/documents/upload with a
// multipart "file" field. Only .pdf and .docx are accepted. A document whose
// text could not be indexed is still recorded with rag_processed false.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		writeError(w, r, http.StatusBadRequest, "only PDF (.pdf) and Word (.docx) files are allowed")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		internalError(w, r, "failed to read upload", err)
		return
	}

	log := logging.FromContext(r.Context()).With(slog.String("filename", header.Filename))
	ctx := logging.WithLogger(r.Context(), log)

	rec, doc, err := RegisterDocument(ctx, s.store, s.docs, ingestion.Request{Data: data, Filename: header.Filename})
	if errors.Is(err, extract.ErrUnsupportedFormat) {
		writeError(w, r, http.StatusBadRequest, "only PDF (.pdf) and Word (.docx) files are allowed")
		return
	}
	if err != nil {
		internalError(w, r, "document upload failed", err)
		return
	}

	log.Info("document uploaded",
		slog.String("doc_id", rec.DocID),
		slog.Int("chunks", doc.Chunks),
		slog.Bool("rag_processed", rec.RAGProcessed),
	)
	writeJSON(w, r, http.StatusCreated, documentResponse{Document: rec, Chunks: doc.Chunks})
}

// RegisterDocument indexes req and records it in the document registry.
// When docs replaces existing documents, an upload whose filename is
// already registered reuses that record's doc_id, so its old vectors are
// swapped out and the record is refreshed in place. Vectors written for a
// new record are removed again if the record cannot be saved.
func RegisterDocument(ctx context.Context, st *store.SQLiteStore, docs DocumentProcessor, req ingestion.Request) (store.Document, ingestion.Document, error) {
	replace := false
	if docs.ReplaceExisting() {
		prev, err := st.DocumentByFilename(ctx, req.Filename)
		switch {
		case err == nil:
			req.DocID = prev.DocID
			replace = true
		case !errors.Is(err, store.ErrNotFound):
			return store.Document{}, ingestion.Document{}, fmt.Errorf("look up %s: %w", req.Filename, err)
		}
	}

	doc, err := docs.Process(ctx, req)
	if err != nil {
		return store.Document{}, ingestion.Document{}, err
	}

	rec := store.Document{
		DocID:        doc.DocID,
		Filename:     doc.Filename,
		SizeBytes:    doc.SizeBytes,
		PageCount:    doc.PageCount,
		RAGProcessed: doc.RAGProcessed,
	}
	if replace {
		rec, err = st.PutDocument(ctx, rec)
	} else {
		rec, err = st.AddDocument(ctx, rec)
	}
	if err != nil {
		if !replace && doc.RAGProcessed {
			if delErr := docs.Delete(ctx, doc.DocID); delErr != nil {
				logging.FromContext(ctx).Error("failed to roll back indexed vectors",
					slog.String("doc_id", doc.DocID),
					slog.Any("error", delErr),
				)
			}
		}
		return store.Document{}, ingestion.Document{}, fmt.Errorf("save document metadata: %w", err)
	}
	return rec, doc, nil
}

// handleListDocuments handles GET /api/admin/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Documents(r.Context())
	if err != nil {
		internalError(w, r, "failed to list documents", err)
		return
	}
	writeJSON(w, r, http.StatusOK, docs)
}

// handleDeleteDocument handles DELETE /api/admin/documents/{docID}. Vectors
// are removed first; the registry entry only goes once the index is clean.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimSpace(r.PathValue("docID"))
	if docID == "" || docID == "None" || docID == "null" {
		writeError(w, r, http.StatusBadRequest, "invalid document id")
		return
	}
	if _, err := s.store.DocumentByDocID(r.Context(), docID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "document not found")
			return
		}
		internalError(w, r, "failed to load document", err)
		return
	}
	if err := s.docs.Delete(r.Context(), docID); err != nil {
		internalError(w, r, "failed to delete document from vector store", err)
		return
	}
	if err := s.store.DeleteDocument(r.Context(), docID); err != nil {
		internalError(w, r, "failed to delete document metadata", err)
		return
	}
	logging.FromContext(r.Context()).Info("document deleted", slog.String("doc_id", docID))
	writeJSON(w, r, http.StatusOK, messageResponse{Message: "document deleted successfully"})
}
