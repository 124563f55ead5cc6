package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/billie/servicing-projector/internal/events"
	billieerrors "github.com/billie/servicing-projector/pkg/errors"
	"github.com/billie/servicing-projector/internal/projection"
)

// sdkStatusMap mirrors the source SDK's AccountStatus enum values to the
// projection's normalised accountStatus. Unknown values default to active.
var sdkStatusMap = map[string]string{
	"PENDING":   "active",
	"ACTIVE":    "active",
	"SUSPENDED": "in_arrears",
	"CLOSED":    "paid_off",
}

func mapAccountStatus(sdkStatus string) string {
	// the SDK may send an enum repr like "AccountStatus.ACTIVE"; strip the prefix.
	if idx := strings.LastIndex(sdkStatus, "."); idx >= 0 {
		sdkStatus = sdkStatus[idx+1:]
	}
	if mapped, ok := sdkStatusMap[sdkStatus]; ok {
		return mapped
	}
	return "active"
}

func RegisterAccountHandlers(r *Registry) {
	r.Register("account.created.v1", HandlerFunc(handleAccountCreated))
	r.Register("account.updated.v1", HandlerFunc(handleAccountUpdated))
	r.Register("account.status_changed.v1", HandlerFunc(handleAccountStatusChanged))
	r.Register("account.schedule.created.v1", HandlerFunc(handleScheduleCreated))
	r.Register("account.schedule.updated.v1", HandlerFunc(handleScheduleUpdated))
}

func accountPayload(event interface{}) (*events.AccountPayload, error) {
	parsed, ok := event.(*events.ParsedEvent)
	if !ok {
		return nil, billieerrors.MalformedEnvelope("account handler expects a parsed event, got %T", event)
	}
	payload, ok := parsed.Payload.(*events.AccountPayload)
	if !ok || payload.AccountID == "" {
		return nil, billieerrors.MalformedEnvelope("account event missing account payload")
	}
	return payload, nil
}

// handleAccountCreated implements §4.4.3.
func handleAccountCreated(ctx context.Context, store projection.Store, event interface{}) error {
	payload, err := accountPayload(event)
	if err != nil {
		return err
	}

	customer, err := store.FindCustomer(ctx, payload.CustomerID)
	if err != nil {
		return billieerrors.Transient("lookup customer for account creation: %v", err)
	}
	var customerName string
	if customer != nil {
		customerName = customer.FullName
	}

	sdkStatus := "PENDING"
	if payload.Status != nil && *payload.Status != "" {
		sdkStatus = *payload.Status
	}
	accountStatus := mapAccountStatus(sdkStatus)
	if idx := strings.LastIndex(sdkStatus, "."); idx >= 0 {
		sdkStatus = sdkStatus[idx+1:]
	}

	currentBalance := 0.0
	if payload.CurrentBalance != nil {
		currentBalance = *payload.CurrentBalance
	}

	set := map[string]interface{}{
		"loanAccountId":    payload.AccountID,
		"accountNumber":    payload.AccountNumber,
		"customerIdString": payload.CustomerID,
		"customerName":     customerName,
		"loanTerms": map[string]interface{}{
			"loanAmount":   payload.LoanAmount,
			"loanFee":      payload.LoanFee,
			"totalPayable": payload.LoanTotalPayable,
			"openedDate":   derefOr(payload.OpenedDate, ""),
		},
		"balances": map[string]interface{}{
			"currentBalance":   currentBalance,
			"totalOutstanding": currentBalance,
			"totalPaid":        0.0,
		},
		"accountStatus": accountStatus,
		"sdkStatus":     sdkStatus,
		"updatedAt":     time.Now().UTC(),
	}

	if err := store.UpsertLoanAccount(ctx, payload.AccountID, set); err != nil {
		return billieerrors.Transient("upsert loan account: %v", err)
	}
	return nil
}

// handleAccountUpdated implements §4.4.4, including the documented
// totalOutstanding mirror (see Open Question resolution in DESIGN.md):
// this handler keeps totalOutstanding in lockstep with currentBalance
// because no independent totalOutstanding feed exists yet.
func handleAccountUpdated(ctx context.Context, store projection.Store, event interface{}) error {
	payload, err := accountPayload(event)
	if err != nil {
		return err
	}

	set := map[string]interface{}{"updatedAt": time.Now().UTC()}

	if payload.CurrentBalance != nil {
		set["balances.currentBalance"] = *payload.CurrentBalance
		set["balances.totalOutstanding"] = *payload.CurrentBalance
	}
	if payload.Status != nil && *payload.Status != "" {
		sdkStatus := *payload.Status
		if idx := strings.LastIndex(sdkStatus, "."); idx >= 0 {
			sdkStatus = sdkStatus[idx+1:]
		}
		set["sdkStatus"] = sdkStatus
		set["accountStatus"] = mapAccountStatus(sdkStatus)
	}
	if payload.LastPaymentDate != nil {
		set["lastPayment.date"] = *payload.LastPaymentDate
	}
	if payload.LastPaymentAmount != nil {
		set["lastPayment.amount"] = *payload.LastPaymentAmount
	}

	if err := store.UpdateLoanAccount(ctx, payload.AccountID, set); err != nil {
		return billieerrors.Transient("update loan account: %v", err)
	}
	return nil
}

// handleAccountStatusChanged implements §4.4.5.
func handleAccountStatusChanged(ctx context.Context, store projection.Store, event interface{}) error {
	payload, err := accountPayload(event)
	if err != nil {
		return err
	}
	if payload.NewStatus == nil {
		return billieerrors.MalformedEnvelope("account.status_changed.v1 missing new_status")
	}
	sdkStatus := *payload.NewStatus
	if idx := strings.LastIndex(sdkStatus, "."); idx >= 0 {
		sdkStatus = sdkStatus[idx+1:]
	}

	set := map[string]interface{}{
		"sdkStatus":     sdkStatus,
		"accountStatus": mapAccountStatus(sdkStatus),
		"updatedAt":     time.Now().UTC(),
	}
	if err := store.UpdateLoanAccount(ctx, payload.AccountID, set); err != nil {
		return billieerrors.Transient("update account status: %v", err)
	}
	return nil
}

// handleScheduleCreated implements §4.4.6: out-of-order reconciliation.
// Any payment already updated to a non-"scheduled" status by a prior
// schedule.updated is preserved rather than clobbered by the fresh
// schedule.
func handleScheduleCreated(ctx context.Context, store projection.Store, event interface{}) error {
	payload, err := accountPayload(event)
	if err != nil {
		return err
	}

	existing, err := store.FindLoanAccount(ctx, payload.AccountID)
	if err != nil {
		return billieerrors.Transient("lookup loan account for schedule: %v", err)
	}

	preserved := map[int]projection.Payment{}
	if existing != nil {
		for _, p := range existing.RepaymentSchedule.Payments {
			if p.Status != "" && p.Status != "scheduled" {
				preserved[p.PaymentNumber] = p
			}
		}
	}

	payments := make([]projection.Payment, 0, len(payload.Payments))
	for _, pp := range payload.Payments {
		doc := projection.Payment{
			PaymentNumber: pp.PaymentNumber,
			DueDate:       pp.DueDate,
			Amount:        pp.Amount,
			Status:        "scheduled",
		}
		if prior, ok := preserved[pp.PaymentNumber]; ok {
			doc.Status = prior.Status
			if prior.PaidDate != "" {
				doc.PaidDate = prior.PaidDate
			}
			if prior.AmountPaid != nil {
				doc.AmountPaid = prior.AmountPaid
			}
			if prior.AmountRemaining != nil {
				doc.AmountRemaining = prior.AmountRemaining
			}
			if len(prior.LinkedTransactionIDs) > 0 {
				doc.LinkedTransactionIDs = prior.LinkedTransactionIDs
			}
			if prior.LastUpdated != "" {
				doc.LastUpdated = prior.LastUpdated
			}
		}
		payments = append(payments, doc)
	}

	numberOfPayments := len(payments)
	if payload.NumberOfPayments != nil {
		numberOfPayments = *payload.NumberOfPayments
	}

	set := map[string]interface{}{
		"repaymentSchedule": map[string]interface{}{
			"scheduleId":       payload.ScheduleID,
			"numberOfPayments": numberOfPayments,
			"paymentFrequency": derefOr(payload.PaymentFrequency, ""),
			"payments":         payments,
			"createdDate":      derefOr(payload.CreatedDate, ""),
		},
		"updatedAt": time.Now().UTC(),
	}

	if err := store.UpdateLoanAccount(ctx, payload.AccountID, set); err != nil {
		return billieerrors.Transient("write repayment schedule: %v", err)
	}
	return nil
}

// handleScheduleUpdated implements §4.4.7: positional update by
// paymentNumber, falling back to a placeholder push when the schedule or
// payment does not exist yet (out-of-order delivery).
func handleScheduleUpdated(ctx context.Context, store projection.Store, event interface{}) error {
	payload, err := accountPayload(event)
	if err != nil {
		return err
	}
	if len(payload.Payments) == 0 {
		return nil
	}

	for _, pp := range payload.Payments {
		status := "scheduled"
		if pp.Status != nil && *pp.Status != "" {
			status = strings.ToLower(*pp.Status)
		}

		set := map[string]interface{}{
			"status":    status,
			"updatedAt": time.Now().UTC(),
		}
		if pp.PaidDate != nil {
			set["paidDate"] = *pp.PaidDate
		}
		if pp.AmountPaid != nil {
			set["amountPaid"] = *pp.AmountPaid
		}
		if pp.AmountRemaining != nil {
			set["amountRemaining"] = *pp.AmountRemaining
		}
		if len(pp.LinkedTransactionIDs) > 0 {
			set["linkedTransactionIds"] = pp.LinkedTransactionIDs
		}
		if pp.LastUpdated != nil {
			set["lastUpdated"] = *pp.LastUpdated
		}
		// "updatedAt" on the top-level document is applied by
		// UpdatePaymentPositional's caller via the loan account's own
		// updatedAt field below; strip it here since it belongs outside
		// the positional path.
		delete(set, "updatedAt")

		matched, err := store.UpdatePaymentPositional(ctx, payload.AccountID, pp.PaymentNumber, set)
		if err != nil {
			return billieerrors.Transient("positional payment update: %v", err)
		}
		if matched {
			if err := store.UpdateLoanAccount(ctx, payload.AccountID, map[string]interface{}{"updatedAt": time.Now().UTC()}); err != nil {
				return billieerrors.Transient("touch loan account updatedAt: %v", err)
			}
			continue
		}

		placeholder := projection.Payment{
			PaymentNumber: pp.PaymentNumber,
			Status:        status,
		}
		if pp.PaidDate != nil {
			placeholder.PaidDate = *pp.PaidDate
		}
		if pp.AmountPaid != nil {
			placeholder.AmountPaid = pp.AmountPaid
		}
		if pp.AmountRemaining != nil {
			placeholder.AmountRemaining = pp.AmountRemaining
		}
		if len(pp.LinkedTransactionIDs) > 0 {
			placeholder.LinkedTransactionIDs = pp.LinkedTransactionIDs
		}

		if err := store.PushPlaceholderPayment(ctx, payload.AccountID, payload.ScheduleID, placeholder); err != nil {
			return billieerrors.Transient("push placeholder payment: %v", err)
		}
	}
	return nil
}
