// Package events publishes ledger outcomes after they are committed. Events are
// notifications only; the store remains the source of truth.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"referral_ledger/internal/domain"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const (
	TypeActivationApproved = "activation.approved"
	TypeActivationRejected = "activation.rejected"
	TypeWithdrawalApproved = "withdrawal.approved"
	TypeAccountCredited    = "account.credited"
)

type Event struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	AccountID    string                  `json:"account_id"`
	ActivationID string                  `json:"activation_id,omitempty"`
	WithdrawalID string                  `json:"withdrawal_id,omitempty"`
	Amount       decimal.Decimal         `json:"amount"`
	Credits      []domain.CommissionEdge `json:"credits,omitempty"`
	Timestamp    time.Time               `json:"timestamp"`
}

func NewEvent(eventType, accountID string) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }
