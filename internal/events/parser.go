package events

import (
	"strconv"
	"strings"
)

// ParsedEvent is the typed-family result of Parse: account/payment and
// customer/application prefixes get a Payload struct; every other prefix is
// returned as the sanitised envelope map unchanged (chat and write-off
// events are consumed as maps, per the handler contract).
type ParsedEvent struct {
	EventType      string
	ConversationID string
	Sequence       int
	Payload        interface{}
}

// AccountPayload is the tagged-variant replacement for the source SDK's
// duck-typed AccountCreatedV1/AccountUpdatedV1/... models. Every field
// except the three ids is a pointer (or nil-able slice) so a handler can distinguish "absent from this
// partial update" from "present with a zero value", matching the §4.4 merge
// rules exactly.
type AccountPayload struct {
	AccountID          string
	AccountNumber      string
	CustomerID         string
	Status             *string
	NewStatus          *string
	LoanAmount         *float64
	CurrentBalance     *float64
	LoanFee            *float64
	LoanTotalPayable   *float64
	OpenedDate         *string
	LastPaymentDate    *string
	LastPaymentAmount  *float64
	ScheduleID         string
	NumberOfPayments   *int
	PaymentFrequency   *string
	CreatedDate        *string
	Payments           []AccountPaymentPayload
}

// AccountPaymentPayload is one entry of AccountPayload.Payments, shared by
// both schedule.created (full schedule) and schedule.updated (per-payment
// status deltas).
type AccountPaymentPayload struct {
	PaymentNumber         int
	DueDate               *string
	Amount                *float64
	Status                *string
	PaidDate              *string
	AmountPaid            *float64
	AmountRemaining       *float64
	LinkedTransactionIDs  []string
	LastUpdated           *string
}

// ResidentialAddressPayload mirrors the source SDK's nested address object.
type ResidentialAddressPayload struct {
	StreetNumber *string
	StreetName   *string
	StreetType   *string
	UnitNumber   *string
	Suburb       *string
	State        *string
	Postcode     *string
	Country      *string
	FullAddress  *string
}

// CustomerPayload is the tagged-variant replacement for CustomerChangedV1 /
// CustomerVerifiedV1 duck-typed payloads.
type CustomerPayload struct {
	CustomerID           string
	FirstName            *string
	LastName             *string
	EmailAddress         *string
	MobilePhoneNumber    *string
	DateOfBirth          *string
	EkycStatus           *string
	ResidentialAddress   *ResidentialAddressPayload
	VerifiedAt           *string
}

// Parse dispatches a sanitised envelope to the decoder keyed by its event
// type prefix. account.* and payment.* go through the account decoder;
// customer.* and application.* go through the customer decoder, wrapped in
// a ParsedEvent; every other prefix (chat and write-off events) is returned
// as the sanitised envelope map, unchanged, so those handlers work directly
// against envelope/payload fields.
func Parse(eventType string, sanitised Envelope) interface{} {
	switch {
	case strings.HasPrefix(eventType, "account.") || strings.HasPrefix(eventType, "payment."):
		return &ParsedEvent{
			EventType:      eventType,
			ConversationID: sanitised.ConversationID(),
			Sequence:       sanitiseInt(sanitised["seq"]),
			Payload:        decodeAccountPayload(sanitised.Payload()),
		}
	case strings.HasPrefix(eventType, "customer.") || strings.HasPrefix(eventType, "application."):
		return &ParsedEvent{
			EventType:      eventType,
			ConversationID: sanitised.ConversationID(),
			Sequence:       sanitiseInt(sanitised["seq"]),
			Payload:        decodeCustomerPayload(sanitised.Payload()),
		}
	default:
		return sanitised
	}
}

func decodeAccountPayload(m map[string]interface{}) *AccountPayload {
	if m == nil {
		m = map[string]interface{}{}
	}
	p := &AccountPayload{
		AccountID:     str(m["account_id"]),
		AccountNumber: str(m["account_number"]),
		CustomerID:    str(m["customer_id"]),
		ScheduleID:    str(m["schedule_id"]),
	}
	p.Status = strPtr(m, "status")
	p.NewStatus = strPtr(m, "new_status")
	p.LoanAmount = floatPtr(m, "loan_amount")
	p.CurrentBalance = floatPtr(m, "current_balance")
	p.LoanFee = floatPtr(m, "loan_fee")
	p.LoanTotalPayable = floatPtr(m, "loan_total_payable")
	p.OpenedDate = strPtr(m, "opened_date")
	p.LastPaymentDate = strPtr(m, "last_payment_date")
	p.LastPaymentAmount = floatPtr(m, "last_payment_amount")
	p.CreatedDate = strPtr(m, "created_date")
	if v, ok := m["n_payments"]; ok {
		n := int(toFloat(v))
		p.NumberOfPayments = &n
	}
	p.PaymentFrequency = strPtr(m, "payment_frequency")

	if raw, ok := m["payments"].([]interface{}); ok {
		for _, item := range raw {
			if entry, ok := item.(map[string]interface{}); ok {
				p.Payments = append(p.Payments, decodeAccountPaymentPayload(entry))
			}
		}
	}
	return p
}

func decodeAccountPaymentPayload(m map[string]interface{}) AccountPaymentPayload {
	p := AccountPaymentPayload{
		PaymentNumber:   int(toFloat(m["payment_number"])),
		DueDate:         strPtr(m, "due_date"),
		Amount:          floatPtr(m, "amount"),
		Status:          strPtr(m, "status"),
		PaidDate:        strPtr(m, "paid_date"),
		AmountPaid:      floatPtr(m, "amount_paid"),
		AmountRemaining: floatPtr(m, "amount_remaining"),
		LastUpdated:     strPtr(m, "last_updated"),
	}
	if raw, ok := m["linked_transaction_ids"].([]interface{}); ok {
		for _, v := range raw {
			p.LinkedTransactionIDs = append(p.LinkedTransactionIDs, str(v))
		}
	}
	return p
}

func decodeCustomerPayload(m map[string]interface{}) *CustomerPayload {
	if m == nil {
		m = map[string]interface{}{}
	}
	p := &CustomerPayload{
		CustomerID:        str(m["customer_id"]),
		FirstName:         strPtr(m, "first_name"),
		LastName:          strPtr(m, "last_name"),
		EmailAddress:      strPtr(m, "email_address"),
		MobilePhoneNumber: strPtr(m, "mobile_phone_number"),
		DateOfBirth:       strPtr(m, "date_of_birth"),
		EkycStatus:        strPtr(m, "ekyc_status"),
		VerifiedAt:        strPtr(m, "verified_at"),
	}
	if addr, ok := m["residential_address"].(map[string]interface{}); ok {
		p.ResidentialAddress = &ResidentialAddressPayload{
			StreetNumber: strPtr(addr, "street_number"),
			StreetName:   strPtr(addr, "street_name"),
			StreetType:   strPtr(addr, "street_type"),
			UnitNumber:   strPtr(addr, "unit_number"),
			Suburb:       strPtr(addr, "suburb"),
			State:        strPtr(addr, "state"),
			Postcode:     strPtr(addr, "postcode"),
			Country:      strPtr(addr, "country"),
			FullAddress:  strPtr(addr, "full_address"),
		}
	}
	return p
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func strPtr(m map[string]interface{}, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func floatPtr(m map[string]interface{}, key string) *float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	f := toFloat(v)
	return &f
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
