package story

import (
	"fmt"
	"strings"

	"vnovel-server/internal/models"
)

// Context - контекст продолжения истории.
type Context struct {
	CurrentSegment   *models.StorySegment  `json:"currentSegment,omitempty"`
	GameState        *models.GameState     `json:"gameState,omitempty"`
	PreviousSegments []models.StorySegment `json:"previousSegments,omitempty"`
	PlayerInput      string                `json:"playerInput,omitempty"`
	PlayerChoice     string                `json:"playerChoice,omitempty"`
}

// Parameters - жанр и настроение генерации.
type Parameters struct {
	Genre string `json:"genre,omitempty"`
	Mood  string `json:"mood,omitempty"`
}

func (p Parameters) withDefaults() Parameters {
	if p.Genre == "" {
		p.Genre = "fantasy"
	}
	if p.Mood == "" {
		p.Mood = "neutral"
	}
	return p
}

// Request - запрос /api/story.
type Request struct {
	Context    *Context   `json:"context"`
	Parameters Parameters `json:"parameters"`
}

const storyInstructions = `Generate the next story segment that:
1. Continues naturally from the current situation
2. Is engaging and immersive (2-4 sentences)
3. Ends at a decision point where the player must make a choice
4. Maintains consistency with previous events
5. Includes appropriate character dialogue if relevant

Also generate exactly 4 meaningful choices that:
1. Offer different approaches (brave, cautious, clever, diplomatic)
2. Lead to different story branches
3. Are all viable options (no obviously wrong choices)
4. Are 3-8 words each
5. Reflect the player's agency in the story

Finally, generate a detailed image prompt for a comprehensive scene illustration that:
1. Shows ALL characters present in the scene (not just backgrounds)
2. Includes their positioning, expressions, and interactions
3. Describes the complete visual setting and atmosphere
4. Captures the mood and genre with environmental details
5. Creates one cohesive visual novel scene with characters and environment together
6. Avoids separating characters from the background - they should be integrated

Format your response as:
{
  "story": {
    "text": "The story text here...",
    "characterName": "Character Name (if applicable)",
    "scene": "Brief scene description",
    "mood": "current mood/tone",
    "isBreakpoint": true
  },
  "choices": [
    {"text": "Choice 1 text"},
    {"text": "Choice 2 text"},
    {"text": "Choice 3 text"},
    {"text": "Choice 4 text"}
  ],
  "imagePrompt": "Detailed visual description for the complete scene showing all characters and environment together..."
}`

// BuildStoryPrompt строит промпт продолжения истории.
func BuildStoryPrompt(c Context, params Parameters) string {
	params = params.withDefaults()

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are writing an interactive visual novel in the %s genre with a %s mood.\n\n", params.Genre, params.Mood)

	sb.WriteString("Current story context:\n")
	if len(c.PreviousSegments) == 0 {
		sb.WriteString("Beginning of story")
	} else {
		for i, seg := range c.PreviousSegments {
			if i > 0 {
				sb.WriteString("\n")
			}
			speaker := ""
			if seg.CharacterName != "" {
				speaker = seg.CharacterName + ": "
			}
			fmt.Fprintf(&sb, "%d. %s%s", i+1, speaker, seg.Text)
		}
	}

	situation := "Starting the adventure"
	if c.CurrentSegment != nil && c.CurrentSegment.Text != "" {
		situation = c.CurrentSegment.Text
	}
	fmt.Fprintf(&sb, "\n\nCurrent situation: %s\n\n", situation)

	if c.PlayerInput != "" {
		fmt.Fprintf(&sb, "Player's custom action: \"%s\"", c.PlayerInput)
	}
	sb.WriteString("\n")
	if c.PlayerChoice != "" {
		fmt.Fprintf(&sb, "Player chose: \"%s\"", c.PlayerChoice)
	}
	sb.WriteString("\n\n")

	sb.WriteString(storyInstructions)
	return sb.String()
}
