package projection

import "time"

// Customer is the projection of customer.* events. Timestamps follow the
// write-once createdAt / always-set updatedAt rule; all other fields are
// last-write-wins over whichever payload fields were present.
type Customer struct {
	ID                 interface{}        `bson:"_id,omitempty"`
	CustomerID         string             `bson:"customerId"`
	FullName           string             `bson:"fullName"`
	FirstName          string             `bson:"firstName,omitempty"`
	LastName           string             `bson:"lastName,omitempty"`
	EmailAddress       string             `bson:"emailAddress,omitempty"`
	MobilePhoneNumber  string             `bson:"mobilePhoneNumber,omitempty"`
	DateOfBirth        string             `bson:"dateOfBirth,omitempty"`
	EkycStatus         string             `bson:"ekycStatus,omitempty"`
	IdentityVerified   bool               `bson:"identityVerified,omitempty"`
	ResidentialAddress *ResidentialAddress `bson:"residentialAddress,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt          time.Time          `bson:"updatedAt"`
}

// ResidentialAddress carries both the structured components and two
// derived flat fields (street, city) kept for back-compat with readers
// that predate the structured address.
type ResidentialAddress struct {
	StreetNumber string `bson:"streetNumber,omitempty"`
	StreetName   string `bson:"streetName,omitempty"`
	StreetType   string `bson:"streetType,omitempty"`
	UnitNumber   string `bson:"unitNumber,omitempty"`
	Suburb       string `bson:"suburb,omitempty"`
	State        string `bson:"state,omitempty"`
	Postcode     string `bson:"postcode,omitempty"`
	Country      string `bson:"country,omitempty"`
	FullAddress  string `bson:"fullAddress,omitempty"`
	Street       string `bson:"street,omitempty"`
	City         string `bson:"city,omitempty"`
}

// LoanAccount is the projection of account.* and payment.* events.
type LoanAccount struct {
	ID                interface{}       `bson:"_id,omitempty"`
	LoanAccountID     string            `bson:"loanAccountId"`
	AccountNumber     string            `bson:"accountNumber,omitempty"`
	CustomerID        interface{}       `bson:"customerId,omitempty"`
	CustomerIDString  string            `bson:"customerIdString,omitempty"`
	CustomerName      string            `bson:"customerName,omitempty"`
	LoanTerms         LoanTerms         `bson:"loanTerms,omitempty"`
	Balances          Balances          `bson:"balances,omitempty"`
	AccountStatus     string            `bson:"accountStatus,omitempty"`
	SDKStatus         string            `bson:"sdkStatus,omitempty"`
	LastPayment       *LastPayment      `bson:"lastPayment,omitempty"`
	RepaymentSchedule RepaymentSchedule `bson:"repaymentSchedule,omitempty"`
	CreatedAt         time.Time         `bson:"createdAt,omitempty"`
	UpdatedAt         time.Time         `bson:"updatedAt"`
}

type LoanTerms struct {
	LoanAmount   *float64 `bson:"loanAmount,omitempty"`
	LoanFee      *float64 `bson:"loanFee,omitempty"`
	TotalPayable *float64 `bson:"totalPayable,omitempty"`
	OpenedDate   string   `bson:"openedDate,omitempty"`
}

type Balances struct {
	CurrentBalance   float64 `bson:"currentBalance"`
	TotalOutstanding float64 `bson:"totalOutstanding"`
	TotalPaid        float64 `bson:"totalPaid"`
}

type LastPayment struct {
	Date   string  `bson:"date,omitempty"`
	Amount float64 `bson:"amount,omitempty"`
}

// RepaymentSchedule is embedded in LoanAccount, not a standalone collection.
type RepaymentSchedule struct {
	ScheduleID       string    `bson:"scheduleId,omitempty"`
	NumberOfPayments int       `bson:"numberOfPayments,omitempty"`
	PaymentFrequency string    `bson:"paymentFrequency,omitempty"`
	CreatedDate      string    `bson:"createdDate,omitempty"`
	Payments         []Payment `bson:"payments,omitempty"`
}

// Payment is one entry of RepaymentSchedule.Payments, keyed within the
// array by PaymentNumber (not a store-assigned id).
type Payment struct {
	PaymentNumber        int      `bson:"paymentNumber"`
	DueDate              *string  `bson:"dueDate"`
	Amount               *float64 `bson:"amount"`
	Status               string   `bson:"status"`
	PaidDate             string   `bson:"paidDate,omitempty"`
	AmountPaid           *float64 `bson:"amountPaid,omitempty"`
	AmountRemaining      *float64 `bson:"amountRemaining,omitempty"`
	LinkedTransactionIDs []string `bson:"linkedTransactionIds,omitempty"`
	LastUpdated          string   `bson:"lastUpdated,omitempty"`
}

// Conversation is the projection of all chat-family events.
type Conversation struct {
	ID                interface{}            `bson:"_id,omitempty"`
	ConversationID    string                 `bson:"conversationId"`
	CustomerID        interface{}            `bson:"customerId,omitempty"`
	CustomerIDString  string                 `bson:"customerIdString,omitempty"`
	ApplicationNumber string                 `bson:"applicationNumber,omitempty"`
	Status            string                 `bson:"status"`
	StartedAt         time.Time              `bson:"startedAt,omitempty"`
	LastUtteranceTime time.Time              `bson:"lastUtteranceTime,omitempty"`
	Utterances        []Utterance            `bson:"utterances"`
	Assessments       map[string]interface{} `bson:"assessments"`
	Noticeboard       []NoticeboardEntry     `bson:"noticeboard"`
	Purpose           string                 `bson:"purpose,omitempty"`
	Facts             []Fact                 `bson:"facts,omitempty"`
	FinalDecision     string                 `bson:"finalDecision,omitempty"`
	ApplicationData   map[string]interface{} `bson:"applicationData,omitempty"`
	Version           int                    `bson:"version"`
	CreatedAt         time.Time              `bson:"createdAt,omitempty"`
	UpdatedAt         time.Time              `bson:"updatedAt"`
}

type Utterance struct {
	Username        string      `bson:"username"`
	Utterance       string      `bson:"utterance"`
	Rationale       interface{} `bson:"rationale,omitempty"`
	CreatedAt       interface{} `bson:"createdAt"`
	AnswerInputType interface{} `bson:"answerInputType,omitempty"`
	PrevSeq         interface{} `bson:"prevSeq,omitempty"`
	EndConversation bool        `bson:"endConversation"`
	AdditionalData  interface{} `bson:"additionalData,omitempty"`
}

type NoticeboardEntry struct {
	AgentName string      `bson:"agentName"`
	Topic     string      `bson:"topic"`
	Content   interface{} `bson:"content"`
	Timestamp interface{} `bson:"timestamp"`
}

type Fact struct {
	Fact interface{} `bson:"fact"`
}

// WriteOffRequest is the projection of the writeoff.* family, CRM-originated
// events replayed through the same processor as servicing events.
type WriteOffRequest struct {
	ID                 interface{}         `bson:"_id,omitempty"`
	RequestID          string              `bson:"requestId"`
	EventID            string              `bson:"eventId"`
	RequestNumber      string              `bson:"requestNumber"`
	LoanAccountID      string              `bson:"loanAccountId,omitempty"`
	CustomerID         string              `bson:"customerId,omitempty"`
	CustomerName       string              `bson:"customerName,omitempty"`
	AccountNumber      string              `bson:"accountNumber,omitempty"`
	Amount             interface{}         `bson:"amount,omitempty"`
	OriginalBalance    interface{}         `bson:"originalBalance,omitempty"`
	Reason             interface{}         `bson:"reason,omitempty"`
	Notes              interface{}         `bson:"notes,omitempty"`
	Priority           string              `bson:"priority"`
	Status             string              `bson:"status"`
	RequestedBy        interface{}         `bson:"requestedBy,omitempty"`
	RequestedByName    string              `bson:"requestedByName,omitempty"`
	RequestedAt        time.Time           `bson:"requestedAt,omitempty"`
	ApprovalDetails    *ApprovalDetails    `bson:"approvalDetails,omitempty"`
	CancellationDetails *CancellationDetails `bson:"cancellationDetails,omitempty"`
	CreatedAt          time.Time           `bson:"createdAt,omitempty"`
	UpdatedAt          time.Time           `bson:"updatedAt"`
}

// ApprovalDetails covers both the approved and rejected transitions; the
// unused half of the field set is simply omitted on write.
type ApprovalDetails struct {
	ApprovedBy      interface{} `bson:"approvedBy,omitempty"`
	ApprovedByName  string      `bson:"approvedByName,omitempty"`
	Comment         string      `bson:"comment,omitempty"`
	ApprovedAt      time.Time   `bson:"approvedAt,omitempty"`
	RejectedBy      interface{} `bson:"rejectedBy,omitempty"`
	RejectedByName  string      `bson:"rejectedByName,omitempty"`
	Reason          string      `bson:"reason,omitempty"`
	RejectedAt      time.Time   `bson:"rejectedAt,omitempty"`
}

type CancellationDetails struct {
	CancelledBy     interface{} `bson:"cancelledBy,omitempty"`
	CancelledByName string      `bson:"cancelledByName,omitempty"`
	CancelledAt     time.Time   `bson:"cancelledAt,omitempty"`
}
