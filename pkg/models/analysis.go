package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// AnalysisTypePrompt critiques only the target job's prompt.
	AnalysisTypePrompt = "prompt"
	// AnalysisTypeResponse critiques only the target job's response and
	// cannot run until that job is complete.
	AnalysisTypeResponse = "response"
	// AnalysisTypeBoth critiques prompt and response together.
	AnalysisTypeBoth = "both"
)

// ValidAnalysisType reports whether t is a known analysis type.
func ValidAnalysisType(t string) bool {
	switch t {
	case AnalysisTypePrompt, AnalysisTypeResponse, AnalysisTypeBoth:
		return true
	}
	return false
}

// NeedsResponse reports whether an analysis of type t requires the
// target job's response to exist before it can be claimed.
func NeedsResponse(t string) bool {
	return t == AnalysisTypeResponse || t == AnalysisTypeBoth
}

// AnalysisJob asks the LLM to critique an existing Job's prompt and/or
// response. It shares the created/running/complete/error status shape
// with Job but has no resubmission or hidden path.
type AnalysisJob struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	JobID        uuid.UUID  `db:"job_id"        json:"job_id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	Preprompt    string     `db:"preprompt"     json:"preprompt"`
	AnalysisType string     `db:"analysis_type" json:"analysis_type"`
	Status       string     `db:"status"        json:"status"`
	Response     *string    `db:"response"      json:"response,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at"    json:"updated_at,omitempty"`
}
