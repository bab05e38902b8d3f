package pipeline

import (
	"time"

	"github.com/RyanBlaney/sonido-critique/analyzers"
)

// StageMetadata is the category name of the metadata stage
const StageMetadata = "metadata"

// StageStatus is the outcome of one stage attempt
type StageStatus string

const (
	StatusOK          StageStatus = "ok"
	StatusFailed      StageStatus = "failed"
	StatusTimeout     StageStatus = "timeout"
	StatusUnavailable StageStatus = "unavailable"
	StatusSkipped     StageStatus = "skipped"
)

// StageReport records one metadata or analyzer attempt
type StageReport struct {
	Category string             `json:"category"`
	Analyzer string             `json:"analyzer"`
	Fidelity analyzers.Fidelity `json:"fidelity,omitempty"`
	Status   StageStatus        `json:"status"`
	Error    string             `json:"error,omitempty"`
	Elapsed  time.Duration      `json:"elapsed"`
}

func (r *StageReport) fail(status StageStatus, err error) {
	r.Status = status
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded returns the analyzer that produced the category's result, or "" when none did
func (a *Analysis) Succeeded(category analyzers.Category) string {
	for _, s := range a.Stages {
		if s.Category == string(category) && s.Status == StatusOK {
			return s.Analyzer
		}
	}
	return ""
}
