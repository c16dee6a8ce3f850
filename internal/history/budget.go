// Package history builds the bounded conversation context for a
// completion call from a user's prior complete jobs.
package history

import (
	"strings"

	"github.com/akettlewell/chatqueue/internal/backend"
	"github.com/akettlewell/chatqueue/pkg/models"
)

// DefaultTokenCeiling is the approximate token budget for prior
// conversation history. The new prompt is always sent regardless.
const DefaultTokenCeiling = 2048

// ApproxTokens estimates the token cost of one prior job as
// (word count of prompt + word count of response) * 4. This is a crude
// proxy for tokenizer-accurate counts: cheap, and conservative enough
// that the trimmed history stays well inside real context windows.
func ApproxTokens(job *models.Job) int {
	n := len(strings.Fields(job.Prompt))
	if job.Response != nil {
		n += len(strings.Fields(*job.Response))
	}
	return n * 4
}

// Trim drops the oldest entries from jobs until the approximate token
// sum of the remainder fits within ceiling, or only the newest entry
// remains. The input slice is not modified; the returned slice aliases
// its tail. Empty history is a no-op.
func Trim(jobs []*models.Job, ceiling int) []*models.Job {
	total := 0
	for _, j := range jobs {
		total += ApproxTokens(j)
	}
	for len(jobs) > 1 && total > ceiling {
		total -= ApproxTokens(jobs[0])
		jobs = jobs[1:]
	}
	return jobs
}

// BuildTurns converts trimmed history and the new prompt into the turn
// sequence for the completion call: each prior job contributes one user
// turn (its prompt) and, when its response is non-empty after trimming
// whitespace, one assistant turn, oldest first. The new prompt is
// always the final user turn.
func BuildTurns(jobs []*models.Job, newPrompt string) []backend.Message {
	turns := make([]backend.Message, 0, len(jobs)*2+1)
	for _, j := range jobs {
		turns = append(turns, backend.Message{Role: backend.RoleUser, Content: j.Prompt})
		if j.Response != nil && strings.TrimSpace(*j.Response) != "" {
			turns = append(turns, backend.Message{Role: backend.RoleAssistant, Content: *j.Response})
		}
	}
	return append(turns, backend.Message{Role: backend.RoleUser, Content: newPrompt})
}
