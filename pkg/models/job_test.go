package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	assert.True(t, ValidTransition(JobStatusCreated, JobStatusRunning))
	assert.True(t, ValidTransition(JobStatusRunning, JobStatusComplete))
	assert.True(t, ValidTransition(JobStatusRunning, JobStatusError))
	assert.True(t, ValidTransition(JobStatusError, JobStatusCreated))
	assert.True(t, ValidTransition(JobStatusComplete, JobStatusHidden))

	assert.False(t, ValidTransition(JobStatusCreated, JobStatusComplete))
	assert.False(t, ValidTransition(JobStatusComplete, JobStatusCreated))
	assert.False(t, ValidTransition(JobStatusHidden, JobStatusComplete))
	assert.False(t, ValidTransition(JobStatusError, JobStatusRunning))
}

func TestValidRequestType(t *testing.T) {
	for _, rt := range []string{
		RequestTypePlain, RequestTypeDOS, RequestTypePromptInjection,
		RequestTypeSensitiveDisclosure, RequestTypeInsecureOutput,
	} {
		assert.True(t, ValidRequestType(rt), rt)
	}
	assert.False(t, ValidRequestType(""))
	assert.False(t, ValidRequestType("other"))
}

func TestAnalysisTypeHelpers(t *testing.T) {
	assert.True(t, ValidAnalysisType(AnalysisTypePrompt))
	assert.True(t, ValidAnalysisType(AnalysisTypeResponse))
	assert.True(t, ValidAnalysisType(AnalysisTypeBoth))
	assert.False(t, ValidAnalysisType("everything"))

	assert.False(t, NeedsResponse(AnalysisTypePrompt))
	assert.True(t, NeedsResponse(AnalysisTypeResponse))
	assert.True(t, NeedsResponse(AnalysisTypeBoth))
}
