package events

import (
	"encoding/json"
	"strconv"
)

// Sanitise coerces wire-typed envelope fields into their canonical types.
// The broker erases nested types in transit, so numeric and list-valued
// keys can arrive as empty strings, JSON-encoded strings, or bare strings;
// everything else passes through unchanged. Sanitise never mutates its
// input and is idempotent: sanitising an already-sanitised envelope is a
// no-op.
func Sanitise(data Envelope) Envelope {
	result := make(Envelope, len(data))
	for k, v := range data {
		result[k] = v
	}

	if v, ok := result["seq"]; ok {
		result["seq"] = sanitiseInt(v)
	}
	if v, ok := result["c_seq"]; ok {
		result["c_seq"] = sanitiseInt(v)
	}

	if v, ok := result["rec"]; ok {
		result["rec"] = sanitiseRec(v)
	}

	if v, ok := result["dat"]; ok {
		if s, ok := v.(string); ok {
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				result["dat"] = decoded
			}
			// else: leave as the original string, a handler may still accept it.
		}
	}

	return result
}

// sanitiseInt normalises seq/c_seq: already-int values pass through,
// numeric strings parse, empty/unparseable/nil values become 0.
func sanitiseInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if t == "" {
			return 0
		}
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	case nil:
		return 0
	default:
		return 0
	}
}

// sanitiseRec normalises rec: a JSON-encoded string decodes to a list; a
// bare non-JSON string becomes a one-element list (empty string -> []);
// nil/absent becomes [].
func sanitiseRec(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case string:
		if t == "" {
			return []interface{}{}
		}
		var decoded []interface{}
		if err := json.Unmarshal([]byte(t), &decoded); err == nil {
			return decoded
		}
		return []interface{}{t}
	case nil:
		return []interface{}{}
	default:
		return []interface{}{}
	}
}
