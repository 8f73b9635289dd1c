package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/inspectra/inspectra/internal/inspection"
	"github.com/inspectra/inspectra/pkg/grading"
)

// decodePayload reads a payload and the requested strategy. It writes the
// error response itself and reports whether the handler may proceed.
func decodePayload(w http.ResponseWriter, r *http.Request) (inspection.Payload, grading.Kind, bool) {
	var p inspection.Payload
	kind, err := strategyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return p, "", false
	}
	if err := decodeBody(w, r, &p); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return p, "", false
	}
	return p, kind, true
}

// handlePreview handles POST /api/v1/grade: grades a payload without
// storing it.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := decodePayload(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Preview(r.Context(), p, kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := decodePayload(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Create(r.Context(), p, kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := decodePayload(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Update(r.Context(), r.PathValue("id"), p, kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*inspection.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleLatest handles GET /api/inspections/all/: the latest result of
// every topic inspected on a target.
func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	targetID := r.URL.Query().Get("inspection_target_id")
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "inspection_target_id is required")
		return
	}
	topics, err := h.svc.LatestTopicResults(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if topics == nil {
		topics = []inspection.TopicRecord{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "file index must be an integer")
		return
	}
	name, data, err := h.svc.Attachment(r.Context(), r.PathValue("id"), index)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseListFilter reads list filters from the query string. Dates are unix
// seconds.
func parseListFilter(q url.Values) (inspection.ListFilter, error) {
	f := inspection.ListFilter{
		Name:               q.Get("name"),
		Description:        q.Get("description"),
		InspectionOrganID:  q.Get("inspection_organ_id"),
		InspectionTargetID: q.Get("inspection_target_id"),
		DirectionID:        q.Get("direction_id"),
	}

	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	if v := q.Get("grade"); v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("grade must be a number")
		}
		f.Grade = &g
	}
	if f.Date, err = unixParam(q, "date"); err != nil {
		return f, err
	}
	if f.StartDate, err = unixParam(q, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = unixParam(q, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func unixParam(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a unix timestamp", key)
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}
