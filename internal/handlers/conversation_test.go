package handlers

import (
	"context"
	"testing"

	"github.com/billie/servicing-projector/internal/events"
	"github.com/billie/servicing-projector/internal/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatEnvelope builds a raw, unparsed envelope the way the chat/write-off
// family arrives at a handler: Parse leaves any non-account/customer prefix
// as the sanitised envelope map (events.Parse), so conversation handlers
// take an events.Envelope directly rather than a *events.ParsedEvent.
func chatEnvelope(t *testing.T, raw events.Envelope) events.Envelope {
	t.Helper()
	sanitised := events.Sanitise(raw)
	out, ok := events.Parse(sanitised.EventType(), sanitised).(events.Envelope)
	require.True(t, ok)
	return out
}

// TestConversationLifecycle grounds seed scenario 5 (§8): started -> two
// utterances -> final_decision ends with status=approved, two utterances,
// version >= 4.
func TestConversationLifecycle(t *testing.T) {
	store := projection.NewFakeStore()
	ctx := context.Background()

	started := chatEnvelope(t, events.Envelope{"typ": "conversation_started", "cid": "C1"})
	require.NoError(t, handleConversationStarted(ctx, store, started))

	userInput := chatEnvelope(t, events.Envelope{
		"typ": "user_input",
		"cid": "C1",
		"dat": `{"utterance":"hi"}`,
	})
	require.NoError(t, handleUtterance(ctx, store, userInput))

	assistantResponse := chatEnvelope(t, events.Envelope{
		"typ": "assistant_response",
		"cid": "C1",
		"dat": `{"utterance":"hello","rationale":"greet"}`,
	})
	require.NoError(t, handleUtterance(ctx, store, assistantResponse))

	finalDecision := chatEnvelope(t, events.Envelope{
		"typ": "final_decision",
		"cid": "C1",
		"dat": `{"decision":"APPROVED"}`,
	})
	require.NoError(t, handleFinalDecision(ctx, store, finalDecision))

	conv, err := store.FindConversation(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "approved", conv.Status)
	assert.Equal(t, "APPROVED", conv.FinalDecision)
	require.Len(t, conv.Utterances, 2)
	assert.Equal(t, "customer", conv.Utterances[0].Username)
	assert.Equal(t, "hi", conv.Utterances[0].Utterance)
	assert.Equal(t, "assistant", conv.Utterances[1].Username)
	assert.Equal(t, "hello", conv.Utterances[1].Utterance)
	assert.GreaterOrEqual(t, conv.Version, 4)
}

// TestHandleConversationStarted_PrePopulatesEmptyCollections covers §4.4.8.
func TestHandleConversationStarted_PrePopulatesEmptyCollections(t *testing.T) {
	store := projection.NewFakeStore()
	started := chatEnvelope(t, events.Envelope{"typ": "conversation_started", "cid": "C1"})
	require.NoError(t, handleConversationStarted(context.Background(), store, started))

	conv, err := store.FindConversation(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "active", conv.Status)
	assert.Equal(t, 1, conv.Version)
	assert.NotNil(t, conv.Utterances)
	assert.Empty(t, conv.Utterances)
	assert.NotNil(t, conv.Noticeboard)
	assert.Empty(t, conv.Noticeboard)
}

// TestHandleUtterance_CreatesStubWhenConversationMissing covers §4.4.9: an
// utterance for an unseen conversation id creates a minimal stub rather
// than failing.
func TestHandleUtterance_CreatesStubWhenConversationMissing(t *testing.T) {
	store := projection.NewFakeStore()
	userInput := chatEnvelope(t, events.Envelope{
		"typ": "user_input",
		"cid": "CNEW",
		"dat": `{"utterance":"hi there"}`,
	})
	require.NoError(t, handleUtterance(context.Background(), store, userInput))

	conv, err := store.FindConversation(context.Background(), "CNEW")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Len(t, conv.Utterances, 1)
	assert.Equal(t, "hi there", conv.Utterances[0].Utterance)
}

// TestHandleAssessment_SetsKeyedAssessment covers §4.4.11.
func TestHandleAssessment_SetsKeyedAssessment(t *testing.T) {
	store := projection.NewFakeStore()
	started := chatEnvelope(t, events.Envelope{"typ": "conversation_started", "cid": "C1"})
	require.NoError(t, handleConversationStarted(context.Background(), store, started))

	assessment := chatEnvelope(t, events.Envelope{
		"typ": "fraudCheck_assessment",
		"cid": "C1",
		"dat": `{"score":0.1,"outcome":"clear"}`,
	})
	require.NoError(t, handleAssessment(context.Background(), store, assessment))

	conv, err := store.FindConversation(context.Background(), "C1")
	require.NoError(t, err)
	require.Contains(t, conv.Assessments, "fraudCheck")
}

// TestHandleNoticeboardUpdated_SplitsTopicFromAgentName covers §4.4.12.
func TestHandleNoticeboardUpdated_SplitsTopicFromAgentName(t *testing.T) {
	store := projection.NewFakeStore()
	started := chatEnvelope(t, events.Envelope{"typ": "conversation_started", "cid": "C1"})
	require.NoError(t, handleConversationStarted(context.Background(), store, started))

	entry := chatEnvelope(t, events.Envelope{
		"typ": "noticeboard_updated",
		"cid": "C1",
		"dat": `{"agentName":"riskAgent::affordability","content":"flagged"}`,
	})
	require.NoError(t, handleNoticeboardUpdated(context.Background(), store, entry))

	conv, err := store.FindConversation(context.Background(), "C1")
	require.NoError(t, err)
	require.Len(t, conv.Noticeboard, 1)
	assert.Equal(t, "riskAgent::affordability", conv.Noticeboard[0].AgentName)
	assert.Equal(t, "affordability", conv.Noticeboard[0].Topic)
}

// TestHandleFinalDecision_UnknownDecisionIsHardEnd covers the otherwise
// branch of §4.4.13's decision map.
func TestHandleFinalDecision_UnknownDecisionIsHardEnd(t *testing.T) {
	store := projection.NewFakeStore()
	started := chatEnvelope(t, events.Envelope{"typ": "conversation_started", "cid": "C1"})
	require.NoError(t, handleConversationStarted(context.Background(), store, started))

	decision := chatEnvelope(t, events.Envelope{
		"typ": "final_decision",
		"cid": "C1",
		"dat": `{"decision":"ESCALATED"}`,
	})
	require.NoError(t, handleFinalDecision(context.Background(), store, decision))

	conv, err := store.FindConversation(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "hard_end", conv.Status)
	assert.Equal(t, "ESCALATED", conv.FinalDecision)
}

// TestHandleConversationStarted_MissingConversationID is malformed per §7.
func TestHandleConversationStarted_MissingConversationID(t *testing.T) {
	store := projection.NewFakeStore()
	started := chatEnvelope(t, events.Envelope{"typ": "conversation_started"})
	err := handleConversationStarted(context.Background(), store, started)
	assert.Error(t, err)
}
