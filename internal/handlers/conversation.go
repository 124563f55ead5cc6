package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/billie/servicing-projector/internal/events"
	billieerrors "github.com/billie/servicing-projector/pkg/errors"
	"github.com/billie/servicing-projector/internal/projection"
)

var finalDecisionStatusMap = map[string]string{
	"APPROVED": "approved",
	"DECLINED": "declined",
	"REFERRED": "referred",
}

func RegisterConversationHandlers(r *Registry) {
	r.Register("conversation_started", HandlerFunc(handleConversationStarted))
	r.Register("user_input", HandlerFunc(handleUtterance))
	r.Register("assistant_response", HandlerFunc(handleUtterance))
	r.Register("applicationDetail_changed", HandlerFunc(handleApplicationDetailChanged))
	r.Register("identityRisk_assessment", HandlerFunc(handleAssessment))
	r.Register("serviceability_assessment_results", HandlerFunc(handleAssessment))
	r.Register("fraudCheck_assessment", HandlerFunc(handleAssessment))
	r.Register("noticeboard_updated", HandlerFunc(handleNoticeboardUpdated))
	r.Register("final_decision", HandlerFunc(handleFinalDecision))
	r.Register("conversation_summary", HandlerFunc(handleConversationSummary))
}

// envelopeEvent returns the raw envelope map, which is how every chat-family
// event arrives: Parse only produces a ParsedEvent for account/customer
// prefixes, everything else passes through unchanged per events.Parse.
func envelopeEvent(event interface{}) (events.Envelope, error) {
	env, ok := event.(events.Envelope)
	if !ok {
		return nil, billieerrors.MalformedEnvelope("conversation handler expects an envelope, got %T", event)
	}
	return env, nil
}

func fieldOrPayload(env events.Envelope, payload map[string]interface{}, key string) interface{} {
	if payload != nil {
		if v, ok := payload[key]; ok {
			return v
		}
	}
	return env[key]
}

// handleConversationStarted implements §4.4.8.
func handleConversationStarted(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("conversation_started missing conversation id")
	}

	set := map[string]interface{}{
		"conversationId": conversationID,
		"status":         "active",
		"utterances":     []interface{}{},
		"assessments":    map[string]interface{}{},
		"noticeboard":    []interface{}{},
		"version":        1,
		"startedAt":      time.Now().UTC(),
		"updatedAt":      time.Now().UTC(),
	}

	if customerID, ok := env.Payload()["customer_id"].(string); ok && customerID != "" {
		set["customerIdString"] = customerID
	}

	if err := store.UpsertConversation(ctx, conversationID, set); err != nil {
		return billieerrors.Transient("upsert conversation: %v", err)
	}
	return nil
}

// handleUtterance implements §4.4.9, self-authored from the prose since the
// filtered Python source references but does not define
// _ensure_conversation_exists: the same minimal-stub semantics are expressed
// here via projection.Store.EnsureConversation.
func handleUtterance(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("utterance event missing conversation id")
	}

	if err := store.EnsureConversation(ctx, conversationID); err != nil {
		return billieerrors.Transient("ensure conversation exists: %v", err)
	}

	eventType := env.EventType()
	username := "assistant"
	if eventType == "user_input" {
		username = "customer"
	}

	payload := env.Payload()
	createdAt := fieldOrPayload(env, payload, "createdAt")
	if createdAt == nil {
		createdAt = fieldOrPayload(env, payload, "timestamp")
	}

	utterance := projection.Utterance{
		Username:        username,
		Utterance:       toStr(fieldOrPayload(env, payload, "utterance")),
		Rationale:       fieldOrPayload(env, payload, "rationale"),
		CreatedAt:       createdAt,
		AnswerInputType: fieldOrPayload(env, payload, "answerInputType"),
		PrevSeq:         fieldOrPayload(env, payload, "prevSeq"),
		EndConversation: toBool(fieldOrPayload(env, payload, "endConversation")),
		AdditionalData:  fieldOrPayload(env, payload, "additionalData"),
	}

	set := map[string]interface{}{}
	if createdAt != nil {
		set["lastUtteranceTime"] = createdAt
	}
	set["updatedAt"] = time.Now().UTC()

	if err := store.PushUtterance(ctx, conversationID, utterance, set); err != nil {
		return billieerrors.Transient("push utterance: %v", err)
	}
	return nil
}

// syncCustomerFromConversationEvent implements the customer sync half of
// §4.4.10, self-authored since the Python _sync_customer body is missing
// from the filtered source: it applies the same field-presence merge rules
// as §4.4.1 against whichever of envelope.customer / payload.customer
// carries data.
func syncCustomerFromConversationEvent(ctx context.Context, store projection.Store, customerData map[string]interface{}) error {
	customerID, _ := customerData["customer_id"].(string)
	if customerID == "" {
		customerID, _ = customerData["customerId"].(string)
	}
	if customerID == "" {
		return nil
	}

	existing, err := store.FindCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	first, firstOK := customerData["first_name"].(string)
	last, lastOK := customerData["last_name"].(string)
	if !firstOK && existing != nil {
		first = existing.FirstName
	}
	if !lastOK && existing != nil {
		last = existing.LastName
	}
	fullName := strings.TrimSpace(first + " " + last)

	set := map[string]interface{}{
		"customerId": customerID,
		"fullName":   fullName,
		"updatedAt":  time.Now().UTC(),
	}
	if firstOK {
		set["firstName"] = first
	}
	if lastOK {
		set["lastName"] = last
	}
	if email, ok := customerData["email_address"].(string); ok {
		set["emailAddress"] = email
	}
	if mobile, ok := customerData["mobile_phone_number"].(string); ok {
		set["mobilePhoneNumber"] = mobile
	}
	if dob, ok := customerData["date_of_birth"].(string); ok {
		set["dateOfBirth"] = dob
	}

	return store.UpsertCustomer(ctx, customerID, set)
}

// handleApplicationDetailChanged implements §4.4.10.
func handleApplicationDetailChanged(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("applicationDetail_changed missing conversation id")
	}

	if customerData, ok := env["customer"].(map[string]interface{}); ok {
		if err := syncCustomerFromConversationEvent(ctx, store, customerData); err != nil {
			return billieerrors.Transient("sync customer from envelope: %v", err)
		}
	}
	if payload := env.Payload(); payload != nil {
		if customerData, ok := payload["customer"].(map[string]interface{}); ok {
			if err := syncCustomerFromConversationEvent(ctx, store, customerData); err != nil {
				return billieerrors.Transient("sync customer from payload: %v", err)
			}
		}
	}

	excluded := map[string]bool{"typ": true, "agt": true, "timestamp": true, "customer": true}
	applicationData := map[string]interface{}{}
	for k, v := range env {
		if !excluded[k] {
			applicationData[k] = v
		}
	}

	set := map[string]interface{}{
		"applicationData": applicationData,
		"updatedAt":       time.Now().UTC(),
	}
	if appNumber, ok := env["applicationNumber"].(string); ok && appNumber != "" {
		set["applicationNumber"] = appNumber
	}

	if err := store.UpdateConversation(ctx, conversationID, set); err != nil {
		return billieerrors.Transient("update conversation application detail: %v", err)
	}
	return nil
}

// handleAssessment implements §4.4.11.
func handleAssessment(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("assessment event missing conversation id")
	}

	var key string
	switch env.EventType() {
	case "identityRisk_assessment":
		key = "identityRisk"
	case "serviceability_assessment_results":
		key = "serviceability"
	case "fraudCheck_assessment":
		key = "fraudCheck"
	default:
		return nil
	}

	var body interface{}
	if payload := env.Payload(); payload != nil {
		body = payload
	} else {
		body = map[string]interface{}(env)
	}

	set := map[string]interface{}{
		"assessments." + key: body,
		"updatedAt":           time.Now().UTC(),
	}
	if err := store.UpdateConversation(ctx, conversationID, set); err != nil {
		return billieerrors.Transient("set assessment %s: %v", key, err)
	}
	return nil
}

// handleNoticeboardUpdated implements §4.4.12.
func handleNoticeboardUpdated(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("noticeboard_updated missing conversation id")
	}

	payload := env.Payload()
	agentName := toStr(fieldOrPayload(env, payload, "agentName"))
	topic := agentName
	if idx := strings.Index(agentName, "::"); idx >= 0 {
		topic = agentName[idx+2:]
	}

	entry := projection.NoticeboardEntry{
		AgentName: agentName,
		Topic:     topic,
		Content:   fieldOrPayload(env, payload, "content"),
		Timestamp: fieldOrPayload(env, payload, "timestamp"),
	}

	if err := store.PushNoticeboard(ctx, conversationID, entry); err != nil {
		return billieerrors.Transient("push noticeboard entry: %v", err)
	}
	return nil
}

// handleFinalDecision implements §4.4.13.
func handleFinalDecision(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("final_decision missing conversation id")
	}

	payload := env.Payload()
	decision := strings.ToUpper(toStr(fieldOrPayload(env, payload, "decision")))
	status, ok := finalDecisionStatusMap[decision]
	if !ok {
		status = "hard_end"
	}

	set := map[string]interface{}{
		"status":        status,
		"finalDecision": decision,
		"updatedAt":     time.Now().UTC(),
	}
	if err := store.UpdateConversation(ctx, conversationID, set); err != nil {
		return billieerrors.Transient("set final decision: %v", err)
	}
	return nil
}

// handleConversationSummary implements §4.4.14.
func handleConversationSummary(ctx context.Context, store projection.Store, event interface{}) error {
	env, err := envelopeEvent(event)
	if err != nil {
		return err
	}
	conversationID := env.ConversationID()
	if conversationID == "" {
		return billieerrors.MalformedEnvelope("conversation_summary missing conversation id")
	}

	payload := env.Payload()
	purpose := toStr(fieldOrPayload(env, payload, "purpose"))

	var facts []projection.Fact
	if raw, ok := fieldOrPayload(env, payload, "facts").([]interface{}); ok {
		for _, f := range raw {
			facts = append(facts, projection.Fact{Fact: f})
		}
	}

	set := map[string]interface{}{
		"purpose":   purpose,
		"facts":     facts,
		"updatedAt": time.Now().UTC(),
	}
	if err := store.UpdateConversation(ctx, conversationID, set); err != nil {
		return billieerrors.Transient("set conversation summary: %v", err)
	}
	return nil
}

func toStr(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
