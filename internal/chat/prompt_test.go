package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantErr     bool
		suggestions []string
		level       string
	}{
		{
			name:        "fenced block with extra suggestions",
			text:        "Sure!\n```json\n{\"aiResponse\":\"Hello\",\"suggestions\":[\"a\",\"b\",\"c\",\"d\",\"e\"],\"stats\":{\"level\":\"2\"}}\n```",
			suggestions: []string{"a", "b", "c", "d"},
			level:       "2",
		},
		{
			name:        "bare object with missing suggestions",
			text:        `{"aiResponse":"Hello","suggestions":["a"," "],"stats":{"level":3}}`,
			suggestions: []string{"a", "Continue the story", "Look around", "Talk to someone nearby"},
			level:       "3",
		},
		{name: "no json", text: "just prose", wantErr: true},
		{name: "empty response", text: `{"aiResponse":""}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseReply(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.suggestions, reply.Suggestions)
			assert.Equal(t, tt.level, reply.Stats.Level)
		})
	}
}
