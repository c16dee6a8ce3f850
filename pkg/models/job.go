// Package models contains shared data models used across the chatqueue codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusCreated  = "created"
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusError    = "error"
	JobStatusHidden   = "hidden"
)

// JobTransitions defines the allowed status transitions for a prompt job.
// "error" -> "created" is the resubmission path; "complete" -> "hidden"
// is the logical delete. Only the poller performs the first two rows.
var JobTransitions = map[string][]string{
	JobStatusCreated:  {JobStatusRunning},
	JobStatusRunning:  {JobStatusComplete, JobStatusError},
	JobStatusError:    {JobStatusCreated},
	JobStatusComplete: {JobStatusHidden},
}

// ValidTransition reports whether moving a job from one status to
// another is allowed by the state machine.
func ValidTransition(from, to string) bool {
	for _, t := range JobTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

const (
	RequestTypePlain               = "plain"
	RequestTypeDOS                 = "dos"
	RequestTypePromptInjection     = "prompt_injection"
	RequestTypeSensitiveDisclosure = "sensitive_disclosure"
	RequestTypeInsecureOutput      = "insecure_output"
)

// ValidRequestType reports whether t is a known request classification.
// The poller treats the tag as opaque; only the submission path validates it.
func ValidRequestType(t string) bool {
	switch t {
	case RequestTypePlain, RequestTypeDOS, RequestTypePromptInjection,
		RequestTypeSensitiveDisclosure, RequestTypeInsecureOutput:
		return true
	}
	return false
}

// Job is one user prompt submission and its eventual answer. The API
// returns the job id on POST /job; the client polls GET /jobs until
// status is complete or error.
type Job struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	SessionID      uuid.UUID  `db:"session_id"      json:"session_id"`
	UserID         uuid.UUID  `db:"user_id"         json:"user_id"`
	ClientIP       string     `db:"client_ip"       json:"client_ip"`
	Status         string     `db:"status"          json:"status"`
	Prompt         string     `db:"prompt"          json:"prompt"`
	Response       *string    `db:"response"        json:"response,omitempty"`
	RequestType    string     `db:"request_type"    json:"request_type"`
	RuntimeSeconds *float64   `db:"runtime_seconds" json:"runtime_seconds,omitempty"`
	ResultMetadata *string    `db:"result_metadata" json:"result_metadata,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at"      json:"updated_at,omitempty"`
}

// TokenUsage mirrors the usage block of the completion backend's
// response. The backend may omit it entirely.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResultMetadata is serialized to JSON into Job.ResultMetadata after a
// successful completion call.
type ResultMetadata struct {
	Model string      `json:"model"`
	Usage *TokenUsage `json:"usage"`
}
