package handlers

import (
	"context"
	"regexp"
	"testing"

	"github.com/billie/servicing-projector/internal/events"
	"github.com/billie/servicing-projector/internal/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestNumberPattern = regexp.MustCompile(`^WO-\d{14}-[A-Z0-9]{4}$`)

// TestWriteOffLifecycle grounds seed scenario 6 (§8): requested -> approved.
func TestWriteOffLifecycle(t *testing.T) {
	store := projection.NewFakeStore()
	ctx := context.Background()

	requested := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.requested.v1",
		"conv": "R1",
		"cause": "E1",
		"dat":  `{"loanAccountId":"ACC1","amount":1500,"reason":"hardship","requestedBy":"u1"}`,
	})
	require.NoError(t, handleWriteOffRequested(ctx, store, requested))

	doc := store.WriteOffs["R1"]
	require.NotNil(t, doc)
	assert.Equal(t, "pending", doc.Status)
	assert.Regexp(t, requestNumberPattern, doc.RequestNumber)
	assert.Equal(t, "ACC1", doc.LoanAccountID)

	approved := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.approved.v1",
		"conv": "R1",
		"dat":  `{"approvedBy":"s1","comment":"ok"}`,
	})
	require.NoError(t, handleWriteOffApproved(ctx, store, approved))

	doc = store.WriteOffs["R1"]
	require.NotNil(t, doc)
	assert.Equal(t, "approved", doc.Status)
	require.NotNil(t, doc.ApprovalDetails)
	assert.Equal(t, "s1", doc.ApprovalDetails.ApprovedBy)
	assert.Equal(t, "ok", doc.ApprovalDetails.Comment)
	assert.False(t, doc.ApprovalDetails.ApprovedAt.IsZero())
}

// TestHandleWriteOffRejected checks that a rejection sets status "rejected"
// and records rejectedBy and reason in approvalDetails.
func TestHandleWriteOffRejected(t *testing.T) {
	store := projection.NewFakeStore()
	ctx := context.Background()
	requested := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.requested.v1",
		"conv": "R2",
		"dat":  `{"loanAccountId":"ACC1","amount":500,"reason":"hardship"}`,
	})
	require.NoError(t, handleWriteOffRequested(ctx, store, requested))

	rejected := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.rejected.v1",
		"conv": "R2",
		"dat":  `{"rejectedBy":"s2","reason":"insufficient evidence"}`,
	})
	require.NoError(t, handleWriteOffRejected(ctx, store, rejected))

	doc := store.WriteOffs["R2"]
	require.NotNil(t, doc)
	assert.Equal(t, "rejected", doc.Status)
	require.NotNil(t, doc.ApprovalDetails)
	assert.Equal(t, "s2", doc.ApprovalDetails.RejectedBy)
	assert.Equal(t, "insufficient evidence", doc.ApprovalDetails.Reason)
}

// TestHandleWriteOffCancelled covers the fourth bullet of §4.4.15.
func TestHandleWriteOffCancelled(t *testing.T) {
	store := projection.NewFakeStore()
	ctx := context.Background()
	requested := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.requested.v1",
		"conv": "R3",
		"dat":  `{"loanAccountId":"ACC1","amount":200}`,
	})
	require.NoError(t, handleWriteOffRequested(ctx, store, requested))

	cancelled := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.cancelled.v1",
		"conv": "R3",
		"dat":  `{"cancelledBy":"u1"}`,
	})
	require.NoError(t, handleWriteOffCancelled(ctx, store, cancelled))

	doc := store.WriteOffs["R3"]
	require.NotNil(t, doc)
	assert.Equal(t, "cancelled", doc.Status)
	require.NotNil(t, doc.CancellationDetails)
	assert.Equal(t, "u1", doc.CancellationDetails.CancelledBy)
}

// TestHandleWriteOffRequested_DefaultsPriorityToNormal covers the implicit
// default the handler applies when the payload omits priority.
func TestHandleWriteOffRequested_DefaultsPriorityToNormal(t *testing.T) {
	store := projection.NewFakeStore()
	requested := chatEnvelope(t, events.Envelope{
		"typ":  "writeoff.requested.v1",
		"conv": "R4",
		"dat":  `{"loanAccountId":"ACC1"}`,
	})
	require.NoError(t, handleWriteOffRequested(context.Background(), store, requested))
	assert.Equal(t, "normal", store.WriteOffs["R4"].Priority)
}

// TestHandleWriteOffRequested_MissingRequestID is malformed per §7.
func TestHandleWriteOffRequested_MissingRequestID(t *testing.T) {
	store := projection.NewFakeStore()
	requested := chatEnvelope(t, events.Envelope{
		"typ": "writeoff.requested.v1",
		"dat": `{"loanAccountId":"ACC1"}`,
	})
	err := handleWriteOffRequested(context.Background(), store, requested)
	assert.Error(t, err)
}
