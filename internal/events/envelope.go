// Package events implements the wire envelope, sanitiser, and event-family
// parser the processor loop runs every stream entry through before dispatch.
package events

// Envelope is the on-wire event shape: a flat string-keyed map carrying a
// handful of recognised keys (event type, correlation ids, sequence
// counters, recipient list, payload) plus arbitrary free-form fields. The
// broker transports everything as strings, so numeric and list-valued keys
// arrive type-erased until Sanitise runs.
type Envelope map[string]interface{}

// EventType resolves the event type from whichever of the three aliases
// the producer used, in priority order.
func (e Envelope) EventType() string {
	for _, key := range []string{"msg_type", "typ", "event_type"} {
		if v, ok := e[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// EventID resolves the deduplication key from whichever alias is present,
// falling back to the broker-assigned message id when the producer supplied
// none of its own.
func (e Envelope) EventID(messageID string) string {
	for _, key := range []string{"cause", "id", "event_id"} {
		if v, ok := e[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return messageID
}

// ConversationID resolves the conversation/workflow correlation id.
func (e Envelope) ConversationID() string {
	for _, key := range []string{"cid", "conv"} {
		if v, ok := e[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Payload returns the decoded payload sub-map, if present and map-shaped.
func (e Envelope) Payload() map[string]interface{} {
	v, ok := e["dat"]
	if !ok {
		v, ok = e["payload"]
	}
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// EnvelopeFromStrings decodes a broker-delivered field map (stream entries
// always carry string values) into an Envelope, JSON-decoding numeric-ish
// strings is deliberately NOT done here — that is Sanitise's job so the two
// concerns (decode-from-wire vs coerce-types) stay independent and testable
// separately.
func EnvelopeFromStrings(fields map[string]string) Envelope {
	env := make(Envelope, len(fields))
	for k, v := range fields {
		env[k] = v
	}
	return env
}
