package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastUserTurn returns the most recent user turn with non-blank content.
func LastUserTurn(transcript []Turn) (Turn, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role != RoleUser {
			continue
		}
		if strings.TrimSpace(transcript[i].Content) == "" {
			continue
		}
		return transcript[i], true
	}
	return Turn{}, false
}

func UserTurnCount(transcript []Turn) int {
	n := 0
	for _, turn := range transcript {
		if turn.Role == RoleUser {
			n++
		}
	}
	return n
}

// StreamEvent is one frame of a chat answer. A non-nil Err marks the terminal
// frame; the channel closes right after it. A clean end is just the close.
type StreamEvent struct {
	Token string
	Err   error
}

type ChatStream struct {
	Context AssembledContext
	Events  <-chan StreamEvent
}

type GenerationStats struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// ChatEvent is the usage record sent to the telemetry sink for each question.
type ChatEvent struct {
	ID                 string    `json:"id"`
	Name               string    `json:"event"`
	Question           string    `json:"question"`
	PartyIDs           []int64   `json:"party_ids"`
	ResultCount        int       `json:"result_count"`
	PartiesRepresented []string  `json:"parties_represented"`
	TurnIndex          int       `json:"turn_index"`
	OccurredAt         time.Time `json:"occurred_at"`
}

const ChatQuestionAskedEvent = "chat_question_asked"
