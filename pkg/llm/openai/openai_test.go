package openai

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelsure/claimflow/pkg/llm"
)

func TestToRunMapsStatuses(t *testing.T) {
	tests := []struct {
		in   openai.RunStatus
		want llm.RunStatus
	}{
		{openai.RunStatusQueued, llm.RunQueued},
		{openai.RunStatusInProgress, llm.RunInProgress},
		{openai.RunStatusRequiresAction, llm.RunRequiresAction},
		{openai.RunStatusCompleted, llm.RunCompleted},
		{openai.RunStatusFailed, llm.RunFailed},
		{openai.RunStatusExpired, llm.RunExpired},
	}
	for _, tt := range tests {
		got := toRun(openai.Run{ID: "run_1", Status: tt.in})
		assert.Equal(t, tt.want, got.Status, string(tt.in))
	}
}

func TestToRunExtractsToolCalls(t *testing.T) {
	run := openai.Run{
		ID:     "run_1",
		Status: openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			Type: openai.RequiredActionTypeSubmitToolOutputs,
			SubmitToolOutputs: &openai.SubmitToolOutputs{
				ToolCalls: []openai.ToolCall{
					{
						ID:   "call_1",
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      "record_theft_details",
							Arguments: `{"reported_to_police":true}`,
						},
					},
				},
			},
		},
	}

	got := toRun(run)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "call_1", got.ToolCalls[0].ID)
	assert.Equal(t, "record_theft_details", got.ToolCalls[0].Name)
	assert.JSONEq(t, `{"reported_to_police":true}`, string(got.ToolCalls[0].Arguments))
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, llm.RunCompleted.Terminal())
	assert.True(t, llm.RunRequiresAction.Terminal())
	assert.True(t, llm.RunFailed.Terminal())
	assert.True(t, llm.RunExpired.Terminal())
	assert.False(t, llm.RunQueued.Terminal())
	assert.False(t, llm.RunInProgress.Terminal())
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(errors.New("schema mismatch")))
	assert.True(t, isRetryableError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, isRetryableError(&openai.APIError{HTTPStatusCode: http.StatusInternalServerError}))
	assert.False(t, isRetryableError(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}))
}
