package projection

import "context"

// Store is the Projection Store collaborator: upsert, positional
// array-update, and array-push primitives against the four projection
// collections, exactly as spec.md models the document store abstractly.
// Handlers receive a Store and must not retain it past their return.
type Store interface {
	// FindCustomer returns the existing Customer by domain id, or nil if
	// none exists yet (account creation may race ahead of the customer
	// projection; callers treat a nil result as "unknown, proceed anyway").
	FindCustomer(ctx context.Context, customerID string) (*Customer, error)

	// UpsertCustomer merges `set` into the Customer keyed by customerId,
	// setting createdAt only on insert.
	UpsertCustomer(ctx context.Context, customerID string, set map[string]interface{}) error

	// UpdateCustomer applies `set` to an existing Customer without
	// upserting (customer.verified.v1 never creates one).
	UpdateCustomer(ctx context.Context, customerID string, set map[string]interface{}) error

	// FindLoanAccount returns the existing LoanAccount, or nil.
	FindLoanAccount(ctx context.Context, loanAccountID string) (*LoanAccount, error)

	// UpsertLoanAccount merges `set` into the LoanAccount keyed by
	// loanAccountId, setting createdAt only on insert.
	UpsertLoanAccount(ctx context.Context, loanAccountID string, set map[string]interface{}) error

	// UpdateLoanAccount applies `set` to an existing LoanAccount without
	// upserting (account.updated.v1/status_changed.v1 never create one).
	UpdateLoanAccount(ctx context.Context, loanAccountID string, set map[string]interface{}) error

	// UpdatePaymentPositional applies `set` to the payment entry matching
	// paymentNumber within loanAccountId's repaymentSchedule.payments
	// array, via the Mongo `$` positional operator. Returns matched=false
	// (no error) when no document/array entry matched, so the caller can
	// fall back to the placeholder-push path.
	UpdatePaymentPositional(ctx context.Context, loanAccountID string, paymentNumber int, set map[string]interface{}) (matched bool, err error)

	// PushPlaceholderPayment upserts loanAccountId, pushing `payment` onto
	// repaymentSchedule.payments and setting scheduleId only on insert.
	PushPlaceholderPayment(ctx context.Context, loanAccountID string, scheduleID string, payment Payment) error

	// FindConversation returns the existing Conversation, or nil.
	FindConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// UpsertConversation merges `set` into the Conversation keyed by
	// conversationId, setting createdAt only on insert.
	UpsertConversation(ctx context.Context, conversationID string, set map[string]interface{}) error

	// EnsureConversation creates a minimal stub (empty collections,
	// version=1) if the conversation does not already exist; a no-op
	// otherwise.
	EnsureConversation(ctx context.Context, conversationID string) error

	// PushUtterance pushes an utterance, sets the given fields, and
	// increments version by one, atomically.
	PushUtterance(ctx context.Context, conversationID string, utterance Utterance, set map[string]interface{}) error

	// UpdateConversation applies `set` and increments version by one.
	UpdateConversation(ctx context.Context, conversationID string, set map[string]interface{}) error

	// PushNoticeboard pushes an entry, sets updatedAt, and increments
	// version by one.
	PushNoticeboard(ctx context.Context, conversationID string, entry NoticeboardEntry) error

	// InsertWriteOffRequest inserts a brand-new WriteOffRequest document.
	InsertWriteOffRequest(ctx context.Context, doc WriteOffRequest) error

	// UpdateWriteOffRequest applies `set` to the WriteOffRequest matching
	// requestId.
	UpdateWriteOffRequest(ctx context.Context, requestID string, set map[string]interface{}) error
}
