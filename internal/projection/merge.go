package projection

import "go.mongodb.org/mongo-driver/bson"

// mergeSet applies a Mongo-style `$set` map (keys may be dot-paths, e.g.
// "balances.currentBalance") onto a document, round-tripping through bson
// so FakeStore exercises the exact same dotted-path semantics MongoStore
// gets for free from the driver's $set operator.
func mergeSet(doc interface{}, set map[string]interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return err
	}

	for path, value := range set {
		setDotted(m, path, value)
	}

	raw, err = bson.Marshal(m)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, doc)
}

func setDotted(m bson.M, path string, value interface{}) {
	keys := splitDot(path)
	cur := m
	for i, k := range keys {
		if i == len(keys)-1 {
			cur[k] = value
			return
		}
		next, ok := cur[k].(bson.M)
		if !ok {
			next = bson.M{}
			cur[k] = next
		}
		cur = next
	}
}

func splitDot(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

func applyCustomerSet(c *Customer, set map[string]interface{}) {
	_ = mergeSet(c, set)
}

func applyLoanAccountSet(a *LoanAccount, set map[string]interface{}) {
	_ = mergeSet(a, set)
}

func applyConversationSet(c *Conversation, set map[string]interface{}) {
	_ = mergeSet(c, set)
}

func applyWriteOffSet(w *WriteOffRequest, set map[string]interface{}) {
	_ = mergeSet(w, set)
}

func applyPaymentSet(p *Payment, set map[string]interface{}) {
	_ = mergeSet(p, set)
}
