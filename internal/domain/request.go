package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestStatus string
type PaymentMethod string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"

	MethodBkash PaymentMethod = "bkash"
	MethodNagad PaymentMethod = "nagad"
)

// PaymentRequest is the shape shared by activation and withdrawal requests:
// a mobile-payment reference submitted by the account holder for review.
type PaymentRequest struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method"`
	MobileNumber string          `json:"mobile_number"`
	TrxID        string          `json:"trx_id,omitempty"`
	Status       RequestStatus   `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
}

type ActivationRequest struct {
	PaymentRequest
}

type WithdrawalRequest struct {
	PaymentRequest
}

func newPaymentRequest(accountID string, amount decimal.Decimal, method PaymentMethod, mobile, trxID string) PaymentRequest {
	return PaymentRequest{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Amount:       amount,
		Method:       method,
		MobileNumber: mobile,
		TrxID:        trxID,
		Status:       StatusPending,
		Timestamp:    time.Now().UTC(),
	}
}

func NewActivationRequest(accountID string, amount decimal.Decimal, method PaymentMethod, mobile, trxID string) *ActivationRequest {
	return &ActivationRequest{PaymentRequest: newPaymentRequest(accountID, amount, method, mobile, trxID)}
}

func NewWithdrawalRequest(accountID string, amount decimal.Decimal, method PaymentMethod, mobile string) *WithdrawalRequest {
	return &WithdrawalRequest{PaymentRequest: newPaymentRequest(accountID, amount, method, mobile, "")}
}

func (r *ActivationRequest) Clone() *ActivationRequest {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (r *WithdrawalRequest) Clone() *WithdrawalRequest {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
