package models

import (
	"sort"
	"time"
)

type LoanOffer struct {
	ID             string    `json:"_id"`
	Title          string    `json:"title"`
	Category       string    `json:"category"`
	InterestRate   float64   `json:"interestRate"`
	MaxLimit       float64   `json:"maxLimit"`
	ApplicationFee float64   `json:"applicationFee,omitempty"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

type FeeStatus string

const (
	FeeUnpaid FeeStatus = "unpaid"
	FeePaid   FeeStatus = "paid"
)

type LoanApplication struct {
	ID            string            `json:"_id"`
	LoanID        string            `json:"loanId"`
	LoanTitle     string            `json:"loanTitle"`
	BorrowerEmail string            `json:"userEmail"`
	BorrowerName  string            `json:"userName,omitempty"`
	Amount        float64           `json:"loanAmount"`
	Status        ApplicationStatus `json:"status"`
	FeeStatus     FeeStatus         `json:"applicationFeeStatus"`
	CreatedAt     time.Time         `json:"createdAt,omitempty"`
}

type Payment struct {
	ApplicationID string    `json:"applicationId"`
	Email         string    `json:"email"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transactionId"`
	PaidAt        time.Time `json:"paidAt"`
}

// Stats is the counter map returned by the role-scoped stats endpoints.
type Stats map[string]float64

// Keys returns the stat names in a stable order for rendering.
func (s Stats) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
