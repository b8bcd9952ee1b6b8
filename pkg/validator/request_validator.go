package validator

import (
	"errors"
	"fmt"
	"referral_ledger/internal/domain"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidMethod  = errors.New("invalid payment method")
	ErrInvalidMobile  = errors.New("invalid mobile number")
	ErrInvalidTrxID   = errors.New("invalid transaction id")
	ErrInvalidAccount = errors.New("invalid account")
)

type RequestValidator struct {
	mobileRegex *regexp.Regexp
	trxRegex    *regexp.Regexp
	maxAmount   decimal.Decimal
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		mobileRegex: regexp.MustCompile(`^01[3-9][0-9]{8}$`),
		trxRegex:    regexp.MustCompile(`^[A-Za-z0-9]{6,32}$`),
		maxAmount:   decimal.NewFromInt(1000000),
	}
}

// NormalizeMobile strips the +88 / 88 country prefix and spaces.
func NormalizeMobile(number string) string {
	n := strings.ReplaceAll(strings.TrimSpace(number), " ", "")
	n = strings.TrimPrefix(n, "+")
	if strings.HasPrefix(n, "88") && len(n) == 13 {
		n = n[2:]
	}
	return n
}

func (v *RequestValidator) ValidateActivation(req *domain.ActivationRequest) error {
	errs := v.validatePayment(&req.PaymentRequest)
	if !v.trxRegex.MatchString(req.TrxID) {
		errs = append(errs, ErrInvalidTrxID)
	}
	return joinErrors(errs)
}

func (v *RequestValidator) ValidateWithdrawal(req *domain.WithdrawalRequest) error {
	return joinErrors(v.validatePayment(&req.PaymentRequest))
}

func (v *RequestValidator) validatePayment(req *domain.PaymentRequest) []error {
	var errs []error

	if req.AccountID == "" {
		errs = append(errs, ErrInvalidAccount)
	}
	if err := v.ValidateAmount(req.Amount); err != nil {
		errs = append(errs, err)
	}
	if req.Method != domain.MethodBkash && req.Method != domain.MethodNagad {
		errs = append(errs, ErrInvalidMethod)
	}
	if err := v.ValidateMobile(req.MobileNumber); err != nil {
		errs = append(errs, err)
	}
	if req.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		errs = append(errs, errors.New("request date cannot be in the future"))
	}

	return errs
}

func (v *RequestValidator) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(v.maxAmount) {
		return fmt.Errorf("%w: exceeds maximum %s", ErrInvalidAmount, v.maxAmount)
	}
	return nil
}

func (v *RequestValidator) ValidateMobile(number string) error {
	if !v.mobileRegex.MatchString(NormalizeMobile(number)) {
		return fmt.Errorf("%w: %q", ErrInvalidMobile, number)
	}
	return nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, errors.Join(errs...))
}
