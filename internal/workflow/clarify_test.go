package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnText(t *testing.T) {
	assert.Equal(t, "hello", textTurn(RoleUser, "hello").Text())

	structured := Turn{Role: RoleAssistant, Content: json.RawMessage(`{"resp":[],"done":true}`)}
	assert.JSONEq(t, `{"resp":[],"done":true}`, structured.Text())
}

func TestClarifierReplyOpenQuestions(t *testing.T) {
	reply := &ClarifierReply{Resp: []QuestionAnswer{
		{Question: "Who pays?", Answer: "Dog owners"},
		{Question: "What cities?", Answer: "  "},
		{Question: "Pricing model?"},
	}}

	open := reply.OpenQuestions()
	require.Len(t, open, 2)
	assert.Equal(t, "What cities?", open[0].Question)
	assert.Equal(t, "Pricing model?", open[1].Question)
}

func TestClarifyStateRequirements(t *testing.T) {
	state := &ClarifyState{Messages: []Turn{
		textTurn(RoleUser, "I have a new product idea: X."),
		{Role: RoleAssistant, Content: json.RawMessage(`{"resp":[{"question":"Who?"}]}`)},
		textTurn(RoleUser, "Q: Who?\nA: Everyone."),
	}}

	req := state.Requirements()
	assert.Contains(t, req, "I have a new product idea: X.")
	assert.Contains(t, req, "A: Everyone.")
	assert.NotContains(t, req, `"resp"`)
}

func TestClarifyStateSubState(t *testing.T) {
	opening := &ClarifyState{Messages: []Turn{textTurn(RoleUser, "hi")}}
	assert.Equal(t, SubStateAwaitingFirstReply, opening.SubState())

	replied := &ClarifyState{Messages: []Turn{
		textTurn(RoleUser, "hi"),
		{Role: RoleAssistant, Content: json.RawMessage(`{"resp":[]}`)},
	}}
	assert.Equal(t, SubStateAwaitingUserAnswer, replied.SubState())

	replied.Done = true
	assert.Equal(t, SubStateReadyToAdvance, replied.SubState())
}

func TestClarifyStateWireTurns(t *testing.T) {
	state := &ClarifyState{Messages: []Turn{
		textTurn(RoleUser, "hi"),
		{Role: RoleAssistant, Content: json.RawMessage(`{"resp":[{"question":"Who?"}],"done":false}`)},
	}}

	turns := state.WireTurns()
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.JSONEq(t, `{"resp":[{"question":"Who?"}],"done":false}`, turns[1].Content)
}

func TestSynthesizeAnswerTurn(t *testing.T) {
	open := []QuestionAnswer{
		{Question: "Who pays?"},
		{Question: "What cities?"},
	}
	got := synthesizeAnswerTurn(open, []string{"Dog owners", "Seattle"})
	assert.Equal(t, "Q: Who pays?\nA: Dog owners\n\nQ: What cities?\nA: Seattle", got)
}

func TestParseClarifierReply_TopLevel(t *testing.T) {
	reply, err := ParseClarifierReply(json.RawMessage(`{"resp":[{"question":"Who?","answer":""}],"done":false}`))
	require.NoError(t, err)
	require.Len(t, reply.Resp, 1)
	assert.False(t, reply.Done)
}

func TestParseClarifierReply_ParsedEnvelope(t *testing.T) {
	raw := json.RawMessage(`{"response":"ignored text","parsed":{"resp":[{"question":"Who?"}],"done":true}}`)
	reply, err := ParseClarifierReply(raw)
	require.NoError(t, err)
	require.Len(t, reply.Resp, 1)
	assert.True(t, reply.Done)
}

func TestParseClarifierReply_ResponseAsJSONString(t *testing.T) {
	raw := json.RawMessage(`{"response":"{\"resp\":[{\"question\":\"Who?\"}],\"done\":false}"}`)
	reply, err := ParseClarifierReply(raw)
	require.NoError(t, err)
	require.Len(t, reply.Resp, 1)
	assert.Equal(t, "Who?", reply.Resp[0].Question)
}

func TestParseClarifierReply_Unstructured(t *testing.T) {
	_, err := ParseClarifierReply(json.RawMessage(`{"response":"just prose, no questions"}`))
	require.Error(t, err)
}

func TestParseClarifyState_RoundTrip(t *testing.T) {
	state := &ClarifyState{
		Messages: []Turn{textTurn(RoleUser, "hi")},
		Last:     &ClarifierReply{Resp: []QuestionAnswer{{Question: "Who?"}}},
		Rounds:   2,
		Done:     false,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)

	got, err := ParseClarifyState(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Rounds)
	require.NotNil(t, got.Last)
	assert.Equal(t, "Who?", got.Last.Resp[0].Question)

	_, err = ParseClarifyState(nil)
	require.Error(t, err)
}
