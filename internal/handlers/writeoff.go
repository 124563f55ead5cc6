package handlers

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/billie/servicing-projector/internal/events"
	billieerrors "github.com/billie/servicing-projector/pkg/errors"
	"github.com/billie/servicing-projector/internal/projection"
)

const requestNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func RegisterWriteOffHandlers(r *Registry) {
	r.Register("writeoff.requested.v1", HandlerFunc(handleWriteOffRequested))
	r.Register("writeoff.approved.v1", HandlerFunc(handleWriteOffApproved))
	r.Register("writeoff.rejected.v1", HandlerFunc(handleWriteOffRejected))
	r.Register("writeoff.cancelled.v1", HandlerFunc(handleWriteOffCancelled))
}

// generateRequestNumber produces a human-readable write-off request number,
// format WO-<UTC yyyymmddhhmmss>-<4 random upper-alphanumeric>.
func generateRequestNumber() string {
	suffix := make([]byte, 4)
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable system
		// breakage; fall back to a fixed suffix rather than panic.
		copy(suffix, "0000")
	} else {
		for i, b := range buf {
			suffix[i] = requestNumberAlphabet[int(b)%len(requestNumberAlphabet)]
		}
	}
	return "WO-" + time.Now().UTC().Format("20060102150405") + "-" + string(suffix)
}

func writeOffEnvelope(event interface{}) (events.Envelope, map[string]interface{}, error) {
	env, ok := event.(events.Envelope)
	if !ok {
		return nil, nil, billieerrors.MalformedEnvelope("write-off handler expects an envelope, got %T", event)
	}
	payload := env.Payload()
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return env, payload, nil
}

// handleWriteOffRequested implements the first bullet of §4.4.15.
func handleWriteOffRequested(ctx context.Context, store projection.Store, event interface{}) error {
	env, payload, err := writeOffEnvelope(event)
	if err != nil {
		return err
	}

	requestID, _ := env["conv"].(string)
	eventID, _ := env["cause"].(string)
	if requestID == "" {
		return billieerrors.MalformedEnvelope("writeoff.requested.v1 missing conv (request id)")
	}

	now := time.Now().UTC()
	priority := toStr(payload["priority"])
	if priority == "" {
		priority = "normal"
	}

	doc := projection.WriteOffRequest{
		RequestID:       requestID,
		EventID:         eventID,
		RequestNumber:   generateRequestNumber(),
		LoanAccountID:   toStr(payload["loanAccountId"]),
		CustomerID:      toStr(payload["customerId"]),
		CustomerName:    toStr(payload["customerName"]),
		AccountNumber:   toStr(payload["accountNumber"]),
		Amount:          payload["amount"],
		OriginalBalance: payload["originalBalance"],
		Reason:          payload["reason"],
		Notes:           payload["notes"],
		Priority:        priority,
		Status:          "pending",
		RequestedBy:     payload["requestedBy"],
		RequestedByName: toStr(payload["requestedByName"]),
		RequestedAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := store.InsertWriteOffRequest(ctx, doc); err != nil {
		return billieerrors.Transient("insert write-off request: %v", err)
	}
	return nil
}

// handleWriteOffApproved implements the second bullet of §4.4.15.
func handleWriteOffApproved(ctx context.Context, store projection.Store, event interface{}) error {
	env, payload, err := writeOffEnvelope(event)
	if err != nil {
		return err
	}
	requestID, _ := env["conv"].(string)
	if requestID == "" {
		return billieerrors.MalformedEnvelope("writeoff.approved.v1 missing conv (request id)")
	}

	now := time.Now().UTC()
	set := map[string]interface{}{
		"status": "approved",
		"approvalDetails": projection.ApprovalDetails{
			ApprovedBy:     payload["approvedBy"],
			ApprovedByName: toStr(payload["approvedByName"]),
			Comment:        toStr(payload["comment"]),
			ApprovedAt:     now,
		},
		"updatedAt": now,
	}
	if err := store.UpdateWriteOffRequest(ctx, requestID, set); err != nil {
		return billieerrors.Transient("approve write-off request: %v", err)
	}
	return nil
}

// handleWriteOffRejected implements the third bullet of §4.4.15.
func handleWriteOffRejected(ctx context.Context, store projection.Store, event interface{}) error {
	env, payload, err := writeOffEnvelope(event)
	if err != nil {
		return err
	}
	requestID, _ := env["conv"].(string)
	if requestID == "" {
		return billieerrors.MalformedEnvelope("writeoff.rejected.v1 missing conv (request id)")
	}

	now := time.Now().UTC()
	set := map[string]interface{}{
		"status": "rejected",
		"approvalDetails": projection.ApprovalDetails{
			RejectedBy:     payload["rejectedBy"],
			RejectedByName: toStr(payload["rejectedByName"]),
			Reason:         toStr(payload["reason"]),
			RejectedAt:     now,
		},
		"updatedAt": now,
	}
	if err := store.UpdateWriteOffRequest(ctx, requestID, set); err != nil {
		return billieerrors.Transient("reject write-off request: %v", err)
	}
	return nil
}

// handleWriteOffCancelled implements the fourth bullet of §4.4.15.
func handleWriteOffCancelled(ctx context.Context, store projection.Store, event interface{}) error {
	env, payload, err := writeOffEnvelope(event)
	if err != nil {
		return err
	}
	requestID, _ := env["conv"].(string)
	if requestID == "" {
		return billieerrors.MalformedEnvelope("writeoff.cancelled.v1 missing conv (request id)")
	}

	now := time.Now().UTC()
	set := map[string]interface{}{
		"status": "cancelled",
		"cancellationDetails": projection.CancellationDetails{
			CancelledBy:     payload["cancelledBy"],
			CancelledByName: toStr(payload["cancelledByName"]),
			CancelledAt:     now,
		},
		"updatedAt": now,
	}
	if err := store.UpdateWriteOffRequest(ctx, requestID, set); err != nil {
		return billieerrors.Transient("cancel write-off request: %v", err)
	}
	return nil
}
