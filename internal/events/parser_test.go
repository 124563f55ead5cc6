package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AccountPrefix(t *testing.T) {
	env := Sanitise(Envelope{
		"typ":  "account.created.v1",
		"conv": "ACC1",
		"seq":  "3",
		"dat":  `{"account_id":"ACC1","customer_id":"CUST1","current_balance":1500.5}`,
	})
	result := Parse(env.EventType(), env)
	parsed, ok := result.(*ParsedEvent)
	require.True(t, ok)
	assert.Equal(t, "ACC1", parsed.ConversationID)
	assert.Equal(t, 3, parsed.Sequence)
	payload, ok := parsed.Payload.(*AccountPayload)
	require.True(t, ok)
	assert.Equal(t, "ACC1", payload.AccountID)
	require.NotNil(t, payload.CurrentBalance)
	assert.Equal(t, 1500.5, *payload.CurrentBalance)
}

func TestParse_CustomerPrefix(t *testing.T) {
	env := Sanitise(Envelope{
		"typ": "customer.changed.v1",
		"dat": `{"customer_id":"CUST1","first_name":"Ada"}`,
	})
	result := Parse(env.EventType(), env)
	parsed, ok := result.(*ParsedEvent)
	require.True(t, ok)
	payload, ok := parsed.Payload.(*CustomerPayload)
	require.True(t, ok)
	assert.Equal(t, "CUST1", payload.CustomerID)
	require.NotNil(t, payload.FirstName)
	assert.Equal(t, "Ada", *payload.FirstName)
}

func TestParse_UnknownPrefixReturnsEnvelope(t *testing.T) {
	env := Sanitise(Envelope{"typ": "conversation_started", "cid": "CONV1"})
	result := Parse(env.EventType(), env)
	out, ok := result.(Envelope)
	require.True(t, ok)
	assert.Equal(t, "CONV1", out["cid"])
}
