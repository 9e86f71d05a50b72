package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleReadAndIngest(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("pdf_url"))
	if url == "" {
		jsonError(w, "pdf_url is required", http.StatusBadRequest)
		return
	}

	res, err := s.deps.Ingester.Ingest(r.Context(), url)
	if err != nil {
		s.log.Error("ingest failed", "url", url, "error", err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "PDF processed and ingested successfully",
		"documents": res,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "background ingestion unavailable", http.StatusServiceUnavailable)
		return
	}

	url := strings.TrimSpace(r.FormValue("pdf_url"))
	if url == "" {
		jsonError(w, "pdf_url is required", http.StatusBadRequest)
		return
	}

	job, err := s.deps.Jobs.Submit(url)
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"url":      snap.URL,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", snap.ID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "background ingestion unavailable", http.StatusServiceUnavailable)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Manifests.Manifest(chi.URLParam(r, "key"))
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}
