package events

import (
	"encoding/json"
	"referral_ledger/internal/domain"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

func TestNewEvent_AssignsSortableID(t *testing.T) {
	first := NewEvent(TypeActivationApproved, "acc1")
	second := NewEvent(TypeActivationApproved, "acc1")

	if _, err := ulid.Parse(first.ID); err != nil {
		t.Fatalf("expected ulid id, got %q: %v", first.ID, err)
	}
	if first.ID == second.ID {
		t.Errorf("expected distinct ids")
	}
}

func TestEvent_Encode(t *testing.T) {
	e := NewEvent(TypeActivationApproved, "acc2")
	e.ActivationID = "act1"
	e.Credits = []domain.CommissionEdge{{PayerAccountID: "acc2", PayeeAccountID: "acc1", Depth: 0, Amount: decimal.NewFromInt(25)}}

	payload, err := e.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if decoded["type"] != TypeActivationApproved || decoded["activation_id"] != "act1" {
		t.Errorf("unexpected payload %s", payload)
	}
	credits, _ := decoded["credits"].([]any)
	if len(credits) != 1 {
		t.Errorf("expected one credit in payload, got %v", decoded["credits"])
	}
}
