// Package video abstracts asynchronous, poll-to-completion video generation
// providers so the orchestrator stays provider-agnostic.
package video

import "context"

// SubmitRequest captures the inputs handed to the provider.
type SubmitRequest struct {
	Prompt            string
	Model             string
	DurationSeconds   int
	AspectRatio       string
	ReferenceAssetURL string
	RequestID         string
}

// Operation is the handle for an in-flight generation. The key it was
// accepted with is pinned so polling stays on the same credential after a
// failover.
type Operation struct {
	Name string

	key string
}

// Artifact is a provider-produced reference to the generated media.
type Artifact struct {
	URI      string
	MimeType string
}

// PollResult reports the state of an operation.
type PollResult struct {
	Done     bool
	Artifact *Artifact
	Metadata map[string]any
}

// Provider is the asynchronous generation contract: submit once, then poll
// the returned handle until done.
type Provider interface {
	Submit(ctx context.Context, req SubmitRequest) (*Operation, error)
	Poll(ctx context.Context, op *Operation) (*PollResult, error)
}
