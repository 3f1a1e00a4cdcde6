package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates the generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CapabilityAIGeneration is the quota capability consumed by generation jobs.
const CapabilityAIGeneration = "ai-generation"

const (
	DefaultModel       = "veo-3.1-generate-preview"
	DefaultAspectRatio = "16:9"

	MinDurationSeconds = 4
	MaxDurationSeconds = 8
)

var supportedModels = map[string]struct{}{
	"veo-3.1-generate-preview":      {},
	"veo-3.1-fast-generate-preview": {},
}

var supportedAspectRatios = map[string]struct{}{
	"16:9": {},
	"9:16": {},
	"1:1":  {},
}

// GenerationParams are the caller-supplied inputs of a generation job. They
// are passed through to the provider adapter and are otherwise opaque to the
// orchestrator.
type GenerationParams struct {
	Prompt            string `json:"prompt"`
	Model             string `json:"model"`
	DurationSeconds   int    `json:"duration_seconds"`
	AspectRatio       string `json:"aspect_ratio"`
	ReferenceAssetURL string `json:"reference_asset_url,omitempty"`
}

// Normalize trims the prompt, falls back to the default model for unknown
// identifiers and clamps the duration into the supported range, matching the
// lenient intake behavior of the generation endpoints.
func (p *GenerationParams) Normalize() {
	p.Prompt = strings.TrimSpace(p.Prompt)
	if _, ok := supportedModels[p.Model]; !ok {
		p.Model = DefaultModel
	}
	if p.DurationSeconds == 0 {
		p.DurationSeconds = MaxDurationSeconds
	}
	if p.DurationSeconds < MinDurationSeconds {
		p.DurationSeconds = MinDurationSeconds
	}
	if p.DurationSeconds > MaxDurationSeconds {
		p.DurationSeconds = MaxDurationSeconds
	}
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
}

// Validate reports whether the normalized parameters are acceptable.
func (p GenerationParams) Validate() error {
	if p.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidParams)
	}
	if _, ok := supportedModels[p.Model]; !ok {
		return fmt.Errorf("%w: unsupported model %q", ErrInvalidParams, p.Model)
	}
	if _, ok := supportedAspectRatios[p.AspectRatio]; !ok {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidParams, p.AspectRatio)
	}
	if p.DurationSeconds < MinDurationSeconds || p.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("%w: duration must be between %d and %d seconds", ErrInvalidParams, MinDurationSeconds, MaxDurationSeconds)
	}
	return nil
}

// Job is a tracked unit of requested generation work.
type Job struct {
	ID               string
	Owner            string
	Params           GenerationParams
	Status           JobStatus
	ArtifactURL      string
	ThumbnailURL     string
	ErrorMessage     string
	ProviderMetadata map[string]any
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// Clone returns a deep copy so registry callers cannot mutate shared state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.ProviderMetadata != nil {
		out.ProviderMetadata = make(map[string]any, len(j.ProviderMetadata))
		for k, v := range j.ProviderMetadata {
			out.ProviderMetadata[k] = v
		}
	}
	return &out
}
