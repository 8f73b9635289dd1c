// Package api implements the Inspectra REST API.
// It exposes inspection CRUD, grade previews and attachment downloads
// backed by the inspection service.
package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/inspectra/inspectra/internal/attachments"
	"github.com/inspectra/inspectra/internal/inspection"
	"github.com/inspectra/inspectra/pkg/grading"
)

// maxBodyBytes bounds request bodies, which carry base64 attachments.
const maxBodyBytes = 64 << 20

// Handler is the top-level API handler for the Inspectra service.
type Handler struct {
	svc *inspection.Service
}

// NewHandler creates a new API handler.
func NewHandler(svc *inspection.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/inspections/{$}", h.handleCreate)
	mux.HandleFunc("GET /api/inspections/{$}", h.handleList)
	mux.HandleFunc("GET /api/inspections/all/{$}", h.handleLatest)
	mux.HandleFunc("GET /api/inspections/{id}/{$}", h.handleGet)
	mux.HandleFunc("PUT /api/inspections/{id}/{$}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/inspections/{id}/{$}", h.handleDelete)
	mux.HandleFunc("GET /api/inspections/{id}/files/{index}", h.handleFile)

	mux.HandleFunc("POST /api/v1/grade", h.handlePreview)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *inspection.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid payload",
			"fields": verr.Fields,
		})
	case errors.Is(err, inspection.ErrDuplicateEntity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inspection.ErrNotFound), errors.Is(err, attachments.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, grading.ErrZeroWeightedScale),
		errors.Is(err, grading.ErrMissingCriteriaMatch),
		errors.Is(err, grading.ErrNotComputable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON request body, accepting gzip-compressed bodies.
// The limit applies to both the wire and the decompressed size.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	var body io.Reader = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return fmt.Errorf("invalid gzip body: %w", err)
		}
		defer gz.Close()
		body = http.MaxBytesReader(w, gz, maxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// strategyParam reads the optional ?strategy= query parameter. An empty
// value leaves the choice to the service default.
func strategyParam(r *http.Request) (grading.Kind, error) {
	s := r.URL.Query().Get("strategy")
	if s == "" {
		return "", nil
	}
	return grading.ParseKind(s)
}
