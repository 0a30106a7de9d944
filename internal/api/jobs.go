package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/urlfilter"
)

type articleJobRequest struct {
	URL      string `json:"url"`
	SourceID *int64 `json:"source_id"`
}

type sourceJobRequest struct {
	SourceID int64  `json:"source_id"`
	URL      string `json:"url"`
	Query    string `json:"query"`
	Limit    *int   `json:"limit"`
}

type batchJobRequest struct {
	BatchSize *int   `json:"batch_size"`
	Query     string `json:"query"`
	DryRun    bool   `json:"dry_run"`
}

type jobAccepted struct {
	JobID int64 `json:"job_id"`
}

func (s *Server) submitArticle(w http.ResponseWriter, r *http.Request) {
	var req articleJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if _, err := urlfilter.Canonicalize(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueue(r.Context(), w, scrape.JobTypeArticle, scrape.ArticlePayload{
		URL:      strings.TrimSpace(req.URL),
		SourceID: req.SourceID,
	})
}

func (s *Server) submitSource(w http.ResponseWriter, r *http.Request) {
	var req sourceJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SourceID <= 0 {
		s.writeError(w, http.StatusBadRequest, "source_id required")
		return
	}
	payload := scrape.SourcePayload{SourceID: req.SourceID, URL: req.URL, Query: req.Query}
	if req.Limit != nil {
		if *req.Limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be > 0")
			return
		}
		payload.Limit = *req.Limit
	}
	s.enqueue(r.Context(), w, scrape.JobTypeSource, payload)
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchJobRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	payload := scrape.BatchPayload{Query: req.Query, DryRun: req.DryRun}
	if req.BatchSize != nil {
		if *req.BatchSize <= 0 {
			s.writeError(w, http.StatusBadRequest, "batch_size must be > 0")
			return
		}
		payload.BatchSize = *req.BatchSize
	}
	s.enqueue(r.Context(), w, scrape.JobTypeBatch, payload)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.queue.Status(r.Context(), id)
	if errors.Is(err, scrape.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("job status lookup failed", zap.Int64("job_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) resubmitJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	newID, err := s.queue.Resubmit(r.Context(), id)
	if errors.Is(err, scrape.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found or not in error state")
		return
	}
	if err != nil {
		s.logger.Error("job resubmit failed", zap.Int64("job_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to resubmit job")
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobAccepted{JobID: newID})
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "job_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job id %q", raw))
		return 0, false
	}
	return id, true
}

func (s *Server) enqueue(ctx context.Context, w http.ResponseWriter, jobType scrape.JobType, payload any) {
	body, err := scrape.MarshalPayload(payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.queue.Enqueue(ctx, jobType, body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.logger.Error("enqueue job failed", zap.String("job_type", string(jobType)), zap.Error(err))
		s.writeError(w, status, "failed to enqueue job")
		return
	}
	s.logger.Info("job enqueued", zap.Int64("job_id", id), zap.String("job_type", string(jobType)))
	s.writeJSON(w, http.StatusAccepted, jobAccepted{JobID: id})
}
