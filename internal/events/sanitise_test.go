package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitise_SeqAndCSeq(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want int
	}{
		{"empty string", "", 0},
		{"nil", nil, 0},
		{"numeric string", "42", 42},
		{"unparseable string", "oops", 0},
		{"already int", 7, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Sanitise(Envelope{"seq": tc.in, "c_seq": tc.in})
			assert.Equal(t, tc.want, out["seq"])
			assert.Equal(t, tc.want, out["c_seq"])
		})
	}
}

func TestSanitise_Rec(t *testing.T) {
	out := Sanitise(Envelope{"rec": `["a1","a2"]`})
	require.Equal(t, []interface{}{"a1", "a2"}, out["rec"])

	out = Sanitise(Envelope{"rec": ""})
	require.Equal(t, []interface{}{}, out["rec"])

	out = Sanitise(Envelope{"rec": nil})
	require.Equal(t, []interface{}{}, out["rec"])

	out = Sanitise(Envelope{"rec": "agent-1"})
	require.Equal(t, []interface{}{"agent-1"}, out["rec"])
}

func TestSanitise_Dat(t *testing.T) {
	out := Sanitise(Envelope{"dat": `{"loan_amount": 1500}`})
	m, ok := out["dat"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1500.0, m["loan_amount"])

	out = Sanitise(Envelope{"dat": "not json"})
	assert.Equal(t, "not json", out["dat"])
}

func TestSanitise_Idempotent(t *testing.T) {
	in := Envelope{
		"typ":   "account.created.v1",
		"seq":   "10",
		"c_seq": "",
		"rec":   `["a1"]`,
		"dat":   `{"account_id":"ACC1"}`,
	}
	once := Sanitise(in)
	twice := Sanitise(once)
	assert.Equal(t, once, twice)
}

func TestSanitise_DoesNotMutateInput(t *testing.T) {
	in := Envelope{"seq": "5"}
	_ = Sanitise(in)
	assert.Equal(t, "5", in["seq"])
}

func TestEnvelope_EventType(t *testing.T) {
	assert.Equal(t, "account.created.v1", Envelope{"msg_type": "account.created.v1", "typ": "other"}.EventType())
	assert.Equal(t, "x", Envelope{"typ": "x"}.EventType())
	assert.Equal(t, "y", Envelope{"event_type": "y"}.EventType())
	assert.Equal(t, "", Envelope{}.EventType())
}

func TestEnvelope_EventID(t *testing.T) {
	assert.Equal(t, "E1", Envelope{"cause": "E1"}.EventID("msg-1"))
	assert.Equal(t, "msg-1", Envelope{}.EventID("msg-1"))
}
