package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type generateRequest struct {
	Prompt            string `json:"prompt"`
	Model             string `json:"model"`
	DurationSeconds   int    `json:"duration_seconds"`
	AspectRatio       string `json:"aspect_ratio"`
	ReferenceAssetURL string `json:"reference_asset_url"`
}

type generationResponse struct {
	JobID        string         `json:"job_id"`
	Status       string         `json:"status"`
	Prompt       string         `json:"prompt"`
	Model        string         `json:"model"`
	AspectRatio  string         `json:"aspect_ratio"`
	ArtifactURL  string         `json:"artifact_url,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func toGenerationResponse(job *domain.Job) generationResponse {
	return generationResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		Prompt:       job.Params.Prompt,
		Model:        job.Params.Model,
		AspectRatio:  job.Params.AspectRatio,
		ArtifactURL:  job.ArtifactURL,
		ThumbnailURL: job.ThumbnailURL,
		Error:        job.ErrorMessage,
		Metadata:     job.ProviderMetadata,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	job, err := a.Generations.Submit(r.Context(), userID, domain.GenerationParams{
		Prompt:            req.Prompt,
		Model:             req.Model,
		DurationSeconds:   req.DurationSeconds,
		AspectRatio:       req.AspectRatio,
		ReferenceAssetURL: req.ReferenceAssetURL,
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, toGenerationResponse(job))
}

func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Generations.Get(r.Context(), userID, jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toGenerationResponse(job))
}

func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")
	jobs, err := a.Generations.List(r.Context(), userID, limit, offset)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]generationResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toGenerationResponse(job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GenerationsDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	if err := a.Generations.Delete(r.Context(), userID, jobID); err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *App) Usage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	snapshot, err := a.Generations.Usage(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snapshot)
}

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
