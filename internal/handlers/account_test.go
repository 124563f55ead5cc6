package handlers

import (
	"context"
	"testing"

	"github.com/billie/servicing-projector/internal/events"
	"github.com/billie/servicing-projector/internal/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandleAccountCreated_HappyPath grounds seed scenario 1 (§8): a
// customer.changed.v1 followed by account.created.v1 denormalises
// fullName onto the loan account and maps sdkStatus.
func TestHandleAccountCreated_HappyPath(t *testing.T) {
	store := projection.NewFakeStore()
	customerChanged := parseEnvelope(t, events.Envelope{
		"typ": "customer.changed.v1",
		"dat": `{"customer_id":"CUS1","first_name":"John","last_name":"Smith"}`,
	})
	require.NoError(t, handleCustomerChanged(context.Background(), store, customerChanged))

	created := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"account_id":"ACC1","customer_id":"CUS1","status":"ACTIVE","loan_amount":500,"loan_fee":80,"loan_total_payable":580,"current_balance":580,"opened_date":"2024-01-15"}`,
	})
	require.NoError(t, handleAccountCreated(context.Background(), store, created))

	acc, err := store.FindLoanAccount(context.Background(), "ACC1")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "active", acc.AccountStatus)
	assert.Equal(t, "John Smith", acc.CustomerName)
	require.NotNil(t, acc.LoanTerms.LoanAmount)
	assert.Equal(t, 500.0, *acc.LoanTerms.LoanAmount)
	assert.Equal(t, 580.0, acc.Balances.CurrentBalance)
}

// TestHandleAccountCreated_CustomerNotYetProjected covers §4.4.3: account
// creation proceeds even when the customer document does not exist yet.
func TestHandleAccountCreated_CustomerNotYetProjected(t *testing.T) {
	store := projection.NewFakeStore()
	created := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"account_id":"ACC2","customer_id":"CUSUNKNOWN","status":"PENDING"}`,
	})
	require.NoError(t, handleAccountCreated(context.Background(), store, created))

	acc, err := store.FindLoanAccount(context.Background(), "ACC2")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "", acc.CustomerName)
	assert.Equal(t, "active", acc.AccountStatus)
}

// TestMapAccountStatus grounds seed scenario 4 (§8): the status map is
// total and defaults unknowns to active.
func TestMapAccountStatus(t *testing.T) {
	cases := map[string]string{
		"PENDING":   "active",
		"ACTIVE":    "active",
		"SUSPENDED": "in_arrears",
		"CLOSED":    "paid_off",
		"SOMETHING_NEW": "active",
	}
	for sdkStatus, want := range cases {
		assert.Equal(t, want, mapAccountStatus(sdkStatus), sdkStatus)
	}
}

func TestMapAccountStatus_StripsEnumPrefix(t *testing.T) {
	assert.Equal(t, "in_arrears", mapAccountStatus("AccountStatus.SUSPENDED"))
}

// TestHandleAccountUpdated_KeepsTotalOutstandingInSync covers §4.4.4.
func TestHandleAccountUpdated_KeepsTotalOutstandingInSync(t *testing.T) {
	store := projection.NewFakeStore()
	created := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"account_id":"ACC1","customer_id":"CUS1","current_balance":580}`,
	})
	require.NoError(t, handleAccountCreated(context.Background(), store, created))

	updated := parseEnvelope(t, events.Envelope{
		"typ": "account.updated.v1",
		"dat": `{"account_id":"ACC1","current_balance":435,"last_payment_date":"2024-02-15","last_payment_amount":145}`,
	})
	require.NoError(t, handleAccountUpdated(context.Background(), store, updated))

	acc, err := store.FindLoanAccount(context.Background(), "ACC1")
	require.NoError(t, err)
	assert.Equal(t, 435.0, acc.Balances.CurrentBalance)
	assert.Equal(t, 435.0, acc.Balances.TotalOutstanding)
	require.NotNil(t, acc.LastPayment)
	assert.Equal(t, "2024-02-15", acc.LastPayment.Date)
	assert.Equal(t, 145.0, acc.LastPayment.Amount)
}

// TestHandleAccountStatusChanged_FourStatuses grounds seed scenario 4 (§8)
// end to end through the handler rather than the bare status map.
func TestHandleAccountStatusChanged_FourStatuses(t *testing.T) {
	store := projection.NewFakeStore()
	created := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"account_id":"ACC1","customer_id":"CUS1"}`,
	})
	require.NoError(t, handleAccountCreated(context.Background(), store, created))

	statuses := []struct{ sdk, want string }{
		{"PENDING", "active"},
		{"ACTIVE", "active"},
		{"SUSPENDED", "in_arrears"},
		{"CLOSED", "paid_off"},
	}
	for _, tc := range statuses {
		changed := parseEnvelope(t, events.Envelope{
			"typ": "account.status_changed.v1",
			"dat": `{"account_id":"ACC1","new_status":"` + tc.sdk + `"}`,
		})
		require.NoError(t, handleAccountStatusChanged(context.Background(), store, changed))
		acc, err := store.FindLoanAccount(context.Background(), "ACC1")
		require.NoError(t, err)
		assert.Equal(t, tc.want, acc.AccountStatus, tc.sdk)
	}
}

// TestScheduleOutOfOrder_UpdatedBeforeCreated grounds seed scenario 2 (§8):
// schedule.updated arriving before schedule.created leaves a placeholder
// that schedule.created must not clobber.
func TestScheduleOutOfOrder_UpdatedBeforeCreated(t *testing.T) {
	store := projection.NewFakeStore()
	created := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"account_id":"ACC1","customer_id":"CUS1"}`,
	})
	require.NoError(t, handleAccountCreated(context.Background(), store, created))

	updated := parseEnvelope(t, events.Envelope{
		"typ": "account.schedule.updated.v1",
		"dat": `{"account_id":"ACC1","payments":[{"payment_number":1,"status":"paid","amount_paid":145,"paid_date":"2024-01-22"}]}`,
	})
	require.NoError(t, handleScheduleUpdated(context.Background(), store, updated))

	acc, err := store.FindLoanAccount(context.Background(), "ACC1")
	require.NoError(t, err)
	require.Len(t, acc.RepaymentSchedule.Payments, 1)
	placeholder := acc.RepaymentSchedule.Payments[0]
	assert.Equal(t, 1, placeholder.PaymentNumber)
	assert.Equal(t, "paid", placeholder.Status)
	assert.Nil(t, placeholder.DueDate)
	assert.Nil(t, placeholder.Amount)
	assert.Equal(t, "2024-01-22", placeholder.PaidDate)
	require.NotNil(t, placeholder.AmountPaid)
	assert.Equal(t, 145.0, *placeholder.AmountPaid)

	scheduleCreated := parseEnvelope(t, events.Envelope{
		"typ": "account.schedule.created.v1",
		"dat": `{"account_id":"ACC1","schedule_id":"S1","n_payments":4,"payments":[` +
			`{"payment_number":1,"due_date":"2024-01-22","amount":145},` +
			`{"payment_number":2,"due_date":"2024-02-22","amount":145},` +
			`{"payment_number":3,"due_date":"2024-03-22","amount":145},` +
			`{"payment_number":4,"due_date":"2024-04-22","amount":145}]}`,
	})
	require.NoError(t, handleScheduleCreated(context.Background(), store, scheduleCreated))

	acc, err = store.FindLoanAccount(context.Background(), "ACC1")
	require.NoError(t, err)
	require.Len(t, acc.RepaymentSchedule.Payments, 4)
	byNumber := map[int]projection.Payment{}
	for _, p := range acc.RepaymentSchedule.Payments {
		byNumber[p.PaymentNumber] = p
	}
	p1 := byNumber[1]
	assert.Equal(t, "paid", p1.Status)
	require.NotNil(t, p1.DueDate)
	assert.Equal(t, "2024-01-22", *p1.DueDate)
	require.NotNil(t, p1.Amount)
	assert.Equal(t, 145.0, *p1.Amount)
	assert.Equal(t, "2024-01-22", p1.PaidDate)
	require.NotNil(t, p1.AmountPaid)
	assert.Equal(t, 145.0, *p1.AmountPaid)

	for _, n := range []int{2, 3, 4} {
		assert.Equal(t, "scheduled", byNumber[n].Status, n)
	}
}

// TestHandleScheduleUpdated_EmptyPaymentsIsNoop covers §4.4.7's last rule.
func TestHandleScheduleUpdated_EmptyPaymentsIsNoop(t *testing.T) {
	store := projection.NewFakeStore()
	event := parseEnvelope(t, events.Envelope{
		"typ": "account.schedule.updated.v1",
		"dat": `{"account_id":"ACC1","payments":[]}`,
	})
	err := handleScheduleUpdated(context.Background(), store, event)
	assert.NoError(t, err)
	assert.Empty(t, store.LoanAccounts)
}

// TestHandleScheduleUpdated_PositionalMatchTouchesOnlyThatPayment covers
// the positional-update branch of §4.4.7 when the schedule already exists.
func TestHandleScheduleUpdated_PositionalMatchTouchesOnlyThatPayment(t *testing.T) {
	store := projection.NewFakeStore()
	created := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"account_id":"ACC1","customer_id":"CUS1"}`,
	})
	require.NoError(t, handleAccountCreated(context.Background(), store, created))
	scheduleCreated := parseEnvelope(t, events.Envelope{
		"typ": "account.schedule.created.v1",
		"dat": `{"account_id":"ACC1","schedule_id":"S1","payments":[` +
			`{"payment_number":1,"due_date":"2024-01-22","amount":145},` +
			`{"payment_number":2,"due_date":"2024-02-22","amount":145}]}`,
	})
	require.NoError(t, handleScheduleCreated(context.Background(), store, scheduleCreated))

	updated := parseEnvelope(t, events.Envelope{
		"typ": "account.schedule.updated.v1",
		"dat": `{"account_id":"ACC1","payments":[{"payment_number":1,"status":"PAID","amount_paid":145,"paid_date":"2024-01-22"}]}`,
	})
	require.NoError(t, handleScheduleUpdated(context.Background(), store, updated))

	acc, err := store.FindLoanAccount(context.Background(), "ACC1")
	require.NoError(t, err)
	byNumber := map[int]projection.Payment{}
	for _, p := range acc.RepaymentSchedule.Payments {
		byNumber[p.PaymentNumber] = p
	}
	assert.Equal(t, "paid", byNumber[1].Status)
	assert.Equal(t, "scheduled", byNumber[2].Status)
}

// TestHandleAccountCreated_MissingAccountID is malformed per §7.
func TestHandleAccountCreated_MissingAccountID(t *testing.T) {
	store := projection.NewFakeStore()
	event := parseEnvelope(t, events.Envelope{
		"typ": "account.created.v1",
		"dat": `{"customer_id":"CUS1"}`,
	})
	err := handleAccountCreated(context.Background(), store, event)
	assert.Error(t, err)
}
