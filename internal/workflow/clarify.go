package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/idea-workbench/internal/schemas"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SubState describes where the clarification sub-dialogue stands. Only
// populated while the workflow position is clarifying.
type SubState string

// Clarification sub-states.
const (
	SubStateNone               SubState = ""
	SubStateAwaitingFirstReply SubState = "awaiting_first_reply"
	SubStateAwaitingUserAnswer SubState = "awaiting_user_answer"
	SubStateReadyToAdvance     SubState = "ready_to_advance"
)

// Turn is one transcript entry. Content holds either a JSON string (user
// turns, raw replies) or a structured clarifier reply object.
type Turn struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Text renders the turn content as plain text: the string value for string
// content, compact JSON otherwise. The clarifier capability only accepts
// textual message content.
func (t Turn) Text() string {
	var s string
	if err := json.Unmarshal(t.Content, &s); err == nil {
		return s
	}
	return string(t.Content)
}

// textTurn builds a turn whose content is a plain string.
func textTurn(role, text string) Turn {
	content, _ := json.Marshal(text)
	return Turn{Role: role, Content: content}
}

// QuestionAnswer is one structured item of a clarifier reply. An empty
// answer marks the question as open.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// ClarifierReply is the structured portion of a clarifier capability reply.
type ClarifierReply struct {
	Resp []QuestionAnswer `json:"resp"`
	Done bool             `json:"done"`
}

// OpenQuestions returns the reply's items with missing answers, in order.
func (r *ClarifierReply) OpenQuestions() []QuestionAnswer {
	var open []QuestionAnswer
	for _, qa := range r.Resp {
		if strings.TrimSpace(qa.Answer) == "" {
			open = append(open, qa)
		}
	}
	return open
}

// ClarifyState is the payload stored in the clarify stage record: the full
// transcript, the latest parsed reply, the round counter, and whether the
// user has declared the dialogue finished. The transcript itself is
// ephemeral working state; this record is its only durable form.
type ClarifyState struct {
	Messages []Turn          `json:"messages"`
	Last     *ClarifierReply `json:"last,omitempty"`
	Rounds   int             `json:"rounds"`
	Done     bool            `json:"done"`
}

// ParseClarifyState decodes a stored clarify record payload.
func ParseClarifyState(raw json.RawMessage) (*ClarifyState, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("clarify record payload is empty")
	}
	var state ClarifyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("clarify record payload: %w", err)
	}
	return &state, nil
}

// Requirements flattens the transcript's user turns into the requirements
// text the product stage consumes.
func (s *ClarifyState) Requirements() string {
	var parts []string
	for _, turn := range s.Messages {
		if turn.Role == RoleUser {
			parts = append(parts, turn.Text())
		}
	}
	return strings.Join(parts, "\n")
}

// OpenQuestions returns the outstanding questions from the latest reply.
func (s *ClarifyState) OpenQuestions() []QuestionAnswer {
	if s.Last == nil {
		return nil
	}
	return s.Last.OpenQuestions()
}

// SubState derives the sub-dialogue state from the stored record alone.
func (s *ClarifyState) SubState() SubState {
	if s.Done {
		return SubStateReadyToAdvance
	}
	hasReply := false
	for _, turn := range s.Messages {
		if turn.Role == RoleAssistant {
			hasReply = true
			break
		}
	}
	if !hasReply {
		return SubStateAwaitingFirstReply
	}
	return SubStateAwaitingUserAnswer
}

// WireTurns converts the transcript for the next capability call,
// serializing any structured content to text.
func (s *ClarifyState) WireTurns() []WireTurn {
	turns := make([]WireTurn, 0, len(s.Messages))
	for _, turn := range s.Messages {
		turns = append(turns, WireTurn{Role: turn.Role, Content: turn.Text()})
	}
	return turns
}

// openingMessage is the synthesized first user turn of the sub-dialogue.
func openingMessage(title string) string {
	return fmt.Sprintf("I have a new product idea: %s. Please help me refine it.", title)
}

// synthesizeAnswerTurn formats answers to the open questions as a single
// user turn: one "Q: ...\nA: ..." block per question, blank-line separated.
func synthesizeAnswerTurn(open []QuestionAnswer, answers []string) string {
	blocks := make([]string, 0, len(open))
	for i, qa := range open {
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", qa.Question, answers[i]))
	}
	return strings.Join(blocks, "\n\n")
}

// ParseClarifierReply extracts the structured question list from a raw
// clarifier capability payload. Capabilities reply in one of three shapes:
// a top-level {resp, done} object, the same object nested under "parsed",
// or a "response" field holding the object as a JSON string. The candidate
// object is schema-checked before use.
func ParseClarifierReply(raw json.RawMessage) (*ClarifierReply, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty clarifier reply")
	}

	var envelope struct {
		Parsed   json.RawMessage `json:"parsed"`
		Response json.RawMessage `json:"response"`
	}
	_ = json.Unmarshal(raw, &envelope)

	candidates := [][]byte{}
	if len(envelope.Parsed) > 0 && string(envelope.Parsed) != "null" {
		candidates = append(candidates, envelope.Parsed)
	}
	candidates = append(candidates, raw)
	if len(envelope.Response) > 0 {
		var inner string
		if err := json.Unmarshal(envelope.Response, &inner); err == nil {
			candidates = append(candidates, []byte(inner))
		}
	}

	var lastErr error
	for _, doc := range candidates {
		if err := schemas.ValidateClarifierReply(doc); err != nil {
			lastErr = err
			continue
		}
		var reply ClarifierReply
		if err := json.Unmarshal(doc, &reply); err != nil {
			lastErr = err
			continue
		}
		return &reply, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no structured question list found")
	}
	return nil, fmt.Errorf("clarifier reply: %w", lastErr)
}
