package validator

import (
	"errors"
	"testing"
	"time"

	"referral_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

func validActivation() *domain.ActivationRequest {
	return &domain.ActivationRequest{PaymentRequest: domain.PaymentRequest{
		ID:           "act1",
		AccountID:    "acc1",
		Amount:       decimal.NewFromInt(500),
		Method:       domain.MethodBkash,
		MobileNumber: "01712345678",
		TrxID:        "8N7A6B5C4D",
		Status:       domain.StatusPending,
		Timestamp:    time.Now(),
	}}
}

func TestRequestValidator_ValidActivation(t *testing.T) {
	v := NewRequestValidator()

	err := v.ValidateActivation(validActivation())

	if err != nil {
		t.Fatalf("expected valid activation, got err=%v", err)
	}
}

func TestRequestValidator_InvalidAmount(t *testing.T) {
	v := NewRequestValidator()
	req := validActivation()
	req.Amount = decimal.Zero

	err := v.ValidateActivation(req)

	if !errors.Is(err, ErrInvalidAmount) || !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidAmount wrapped in ErrInvalidRequest, got %v", err)
	}
}

func TestRequestValidator_MissingTrxID(t *testing.T) {
	v := NewRequestValidator()
	req := validActivation()
	req.TrxID = ""

	err := v.ValidateActivation(req)

	if !errors.Is(err, ErrInvalidTrxID) {
		t.Fatalf("expected ErrInvalidTrxID, got %v", err)
	}
}

func TestRequestValidator_WithdrawalNeedsNoTrxID(t *testing.T) {
	v := NewRequestValidator()
	req := &domain.WithdrawalRequest{PaymentRequest: validActivation().PaymentRequest}
	req.TrxID = ""
	req.Method = domain.MethodNagad

	if err := v.ValidateWithdrawal(req); err != nil {
		t.Fatalf("expected valid withdrawal, got %v", err)
	}
}

func TestRequestValidator_UnknownMethod(t *testing.T) {
	v := NewRequestValidator()
	req := validActivation()
	req.Method = "rocket"

	if err := v.ValidateActivation(req); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestRequestValidator_FutureTimestamp(t *testing.T) {
	v := NewRequestValidator()
	req := validActivation()
	req.Timestamp = time.Now().Add(48 * time.Hour)

	if err := v.ValidateActivation(req); err == nil {
		t.Fatal("expected error for future timestamp, got nil")
	}
}

func TestValidateMobile(t *testing.T) {
	v := NewRequestValidator()

	tests := []struct {
		number string
		valid  bool
	}{
		{"01816395401", true},
		{"+8801816395401", true},
		{"8801816395401", true},
		{"0181639540", false},
		{"01216395401", false},
		{"abc", false},
	}

	for _, tt := range tests {
		err := v.ValidateMobile(tt.number)
		if (err == nil) != tt.valid {
			t.Errorf("%s: expected valid=%v, got err=%v", tt.number, tt.valid, err)
		}
	}
}
