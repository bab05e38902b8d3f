package analyzers

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-critique/transcode"
)

// Unavailable stands in for a backend that cannot run in this process
type Unavailable struct {
	base
	reason string
}

// NewUnavailable creates a placeholder named after the backend it replaces
func NewUnavailable(name string, category Category, reason string) *Unavailable {
	return &Unavailable{
		base:   base{name: name, category: category, fidelity: FidelityUnavailable},
		reason: reason,
	}
}

// Reason explains why the backend is missing
func (u *Unavailable) Reason() string {
	return u.reason
}

// Analyze always fails with ErrUnavailable
func (u *Unavailable) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	return nil, fmt.Errorf("%s: %s: %w", u.name, u.reason, ErrUnavailable)
}
