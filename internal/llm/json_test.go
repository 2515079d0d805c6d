package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vnovel-server/internal/llm"
	"vnovel-server/internal/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type scene struct {
	Text string `json:"text"`
	Mood string `json:"mood"`
}

func (s *scene) Validate() error {
	if s.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "fenced block",
			input: "Here you go:\n```json\n{\"a\": 1}\n```\nEnjoy",
			want:  `{"a": 1}`,
		},
		{
			name:  "plain braces with prose",
			input: `Sure! {"a": {"b": 2}} hope it helps`,
			want:  `{"a": {"b": 2}}`,
		},
		{
			name:  "fence without language",
			input: "```\n{\"x\": true}\n```",
			want:  `{"x": true}`,
		},
		{
			name:    "no json",
			input:   "just text",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ExtractJSON(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, llm.ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateJSON_RetriesUntilValid(t *testing.T) {
	ctx := context.Background()
	client := mocks.NewMockAIClient(t)
	messages := []llm.Message{{Role: llm.RoleUser, Content: "write a scene"}}
	params := llm.GenerationParams{Model: "test-model"}

	client.On("GenerateText", mock.Anything, "user-1", messages, params).
		Return("not json at all", llm.UsageInfo{TotalTokens: 3}, nil).Once()
	client.On("GenerateText", mock.Anything, "user-1", messages, params).
		Return(`{"mood": "calm"}`, llm.UsageInfo{TotalTokens: 4}, nil).Once()
	client.On("GenerateText", mock.Anything, "user-1", messages, params).
		Return("```json\n{\"text\": \"Hello\", \"mood\": \"calm\"}\n```", llm.UsageInfo{TotalTokens: 5}, nil).Once()

	var out scene
	usage, err := llm.GenerateJSON(ctx, client, "user-1", messages, params,
		llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, &out)

	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Text)
	assert.Equal(t, 12, usage.TotalTokens)
}

func TestGenerateJSON_RejectedAttemptLeavesNoFields(t *testing.T) {
	ctx := context.Background()
	client := mocks.NewMockAIClient(t)
	messages := []llm.Message{{Role: llm.RoleUser, Content: "write a scene"}}

	// первая попытка не проходит валидацию, но содержит mood
	client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`{"text": "", "mood": "stale"}`, llm.UsageInfo{}, nil).Once()
	client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`{"text": "Fresh"}`, llm.UsageInfo{}, nil).Once()

	var out scene
	_, err := llm.GenerateJSON(ctx, client, "u", messages, llm.GenerationParams{},
		llm.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, &out)

	require.NoError(t, err)
	assert.Equal(t, "Fresh", out.Text)
	assert.Empty(t, out.Mood)
}

func TestGenerateJSON_FailureKeepsOutUntouched(t *testing.T) {
	ctx := context.Background()
	client := mocks.NewMockAIClient(t)

	client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`{"mood": "dark"}`, llm.UsageInfo{}, nil).Once()

	out := scene{Text: "before"}
	_, err := llm.GenerateJSON(ctx, client, "u", []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		llm.GenerationParams{}, llm.RetryPolicy{MaxAttempts: 1}, &out)

	require.ErrorIs(t, err, llm.ErrAIGenerationFailed)
	assert.Equal(t, scene{Text: "before"}, out)
}

func TestGenerateJSON_ExhaustedAttempts(t *testing.T) {
	ctx := context.Background()
	client := mocks.NewMockAIClient(t)
	messages := []llm.Message{{Role: llm.RoleUser, Content: "write"}}

	client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", llm.UsageInfo{}, errors.New("boom")).Times(2)

	var out scene
	_, err := llm.GenerateJSON(ctx, client, "u", messages, llm.GenerationParams{},
		llm.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, &out)

	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrAIGenerationFailed)
}

func TestGenerateJSON_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := mocks.NewMockAIClient(t)

	client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("garbage", llm.UsageInfo{}, nil).Once().
		Run(func(mock.Arguments) { cancel() })

	var out scene
	_, err := llm.GenerateJSON(ctx, client, "u", []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		llm.GenerationParams{}, llm.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}, &out)

	assert.ErrorIs(t, err, context.Canceled)
}
