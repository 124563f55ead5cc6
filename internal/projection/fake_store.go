package projection

import (
	"context"
	"sync"
	"time"
)

// FakeStore is an in-memory Store used by handler and processor tests so
// the projection and dispatch logic are fully unit-testable without a live
// MongoDB, per spec.md §1 treating the store as an external collaborator
// behind an interface.
type FakeStore struct {
	mu            sync.Mutex
	Customers     map[string]*Customer
	LoanAccounts  map[string]*LoanAccount
	Conversations map[string]*Conversation
	WriteOffs     map[string]*WriteOffRequest
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Customers:     map[string]*Customer{},
		LoanAccounts:  map[string]*LoanAccount{},
		Conversations: map[string]*Conversation{},
		WriteOffs:     map[string]*WriteOffRequest{},
	}
}

func (f *FakeStore) FindCustomer(_ context.Context, customerID string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.Customers[customerID]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (f *FakeStore) UpsertCustomer(_ context.Context, customerID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Customers[customerID]
	if !ok {
		c = &Customer{CustomerID: customerID, CreatedAt: time.Now().UTC()}
		f.Customers[customerID] = c
	}
	applyCustomerSet(c, set)
	return nil
}

func (f *FakeStore) UpdateCustomer(_ context.Context, customerID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Customers[customerID]
	if !ok {
		return nil
	}
	applyCustomerSet(c, set)
	return nil
}

func (f *FakeStore) FindLoanAccount(_ context.Context, loanAccountID string) (*LoanAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.LoanAccounts[loanAccountID]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, nil
}

func (f *FakeStore) UpsertLoanAccount(_ context.Context, loanAccountID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.LoanAccounts[loanAccountID]
	if !ok {
		a = &LoanAccount{LoanAccountID: loanAccountID, CreatedAt: time.Now().UTC()}
		f.LoanAccounts[loanAccountID] = a
	}
	applyLoanAccountSet(a, set)
	return nil
}

func (f *FakeStore) UpdateLoanAccount(_ context.Context, loanAccountID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.LoanAccounts[loanAccountID]
	if !ok {
		return nil
	}
	applyLoanAccountSet(a, set)
	return nil
}

func (f *FakeStore) UpdatePaymentPositional(_ context.Context, loanAccountID string, paymentNumber int, set map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.LoanAccounts[loanAccountID]
	if !ok {
		return false, nil
	}
	for i := range a.RepaymentSchedule.Payments {
		if a.RepaymentSchedule.Payments[i].PaymentNumber == paymentNumber {
			applyPaymentSet(&a.RepaymentSchedule.Payments[i], set)
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeStore) PushPlaceholderPayment(_ context.Context, loanAccountID string, scheduleID string, payment Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.LoanAccounts[loanAccountID]
	if !ok {
		a = &LoanAccount{LoanAccountID: loanAccountID, CreatedAt: time.Now().UTC()}
		a.RepaymentSchedule.ScheduleID = scheduleID
		f.LoanAccounts[loanAccountID] = a
	}
	a.RepaymentSchedule.Payments = append(a.RepaymentSchedule.Payments, payment)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *FakeStore) FindConversation(_ context.Context, conversationID string) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.Conversations[conversationID]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (f *FakeStore) UpsertConversation(_ context.Context, conversationID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Conversations[conversationID]
	if !ok {
		c = &Conversation{ConversationID: conversationID, CreatedAt: time.Now().UTC()}
		f.Conversations[conversationID] = c
	}
	applyConversationSet(c, set)
	return nil
}

func (f *FakeStore) EnsureConversation(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Conversations[conversationID]; ok {
		return nil
	}
	now := time.Now().UTC()
	f.Conversations[conversationID] = &Conversation{
		ConversationID: conversationID,
		Status:         "active",
		Utterances:     []Utterance{},
		Assessments:    map[string]interface{}{},
		Noticeboard:    []NoticeboardEntry{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (f *FakeStore) PushUtterance(_ context.Context, conversationID string, utterance Utterance, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Conversations[conversationID]
	if !ok {
		return nil
	}
	c.Utterances = append(c.Utterances, utterance)
	applyConversationSet(c, set)
	c.Version++
	return nil
}

func (f *FakeStore) UpdateConversation(_ context.Context, conversationID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Conversations[conversationID]
	if !ok {
		return nil
	}
	applyConversationSet(c, set)
	c.Version++
	return nil
}

func (f *FakeStore) PushNoticeboard(_ context.Context, conversationID string, entry NoticeboardEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Conversations[conversationID]
	if !ok {
		return nil
	}
	c.Noticeboard = append(c.Noticeboard, entry)
	c.UpdatedAt = time.Now().UTC()
	c.Version++
	return nil
}

func (f *FakeStore) InsertWriteOffRequest(_ context.Context, doc WriteOffRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := doc
	f.WriteOffs[doc.RequestID] = &cp
	return nil
}

func (f *FakeStore) UpdateWriteOffRequest(_ context.Context, requestID string, set map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.WriteOffs[requestID]
	if !ok {
		return nil
	}
	applyWriteOffSet(w, set)
	return nil
}

var _ Store = (*FakeStore)(nil)
