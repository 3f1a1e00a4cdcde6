package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidParams   = errors.New("invalid parameters")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrProviderFailure = errors.New("provider failure")
	ErrPollTimeout     = errors.New("generation timeout")
	ErrNoArtifact      = errors.New("no artifact produced")
)

// QuotaError rejects a submission while carrying the usage snapshot that
// produced the decision. It matches ErrQuotaExceeded under errors.Is.
type QuotaError struct {
	Snapshot QuotaSnapshot
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d used on plan %s", e.Snapshot.Used, e.Snapshot.Limit, e.Snapshot.Plan)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}
