package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Path string

const (
	CollectionAccounts    = "accounts"
	CollectionActivations = "activationRequests"
	CollectionWithdrawals = "withdrawalRequests"
	CollectionSettings    = "settings"

	FieldBalance       = "balance"
	FieldIsActive      = "isActive"
	FieldStatus        = "status"
	FieldPaymentNumber = "activePaymentNumber"
)

const PaymentNumberPath Path = CollectionSettings + "/" + FieldPaymentNumber

func AccountBalancePath(accountID string) Path {
	return Path(CollectionAccounts + "/" + accountID + "/" + FieldBalance)
}

func AccountActivePath(accountID string) Path {
	return Path(CollectionAccounts + "/" + accountID + "/" + FieldIsActive)
}

func ActivationStatusPath(activationID string) Path {
	return Path(CollectionActivations + "/" + activationID + "/" + FieldStatus)
}

func WithdrawalStatusPath(withdrawalID string) Path {
	return Path(CollectionWithdrawals + "/" + withdrawalID + "/" + FieldStatus)
}

// PathRef is a parsed path. Settings paths have no ID.
type PathRef struct {
	Collection string
	ID         string
	Field      string
}

func ParsePath(p Path) (PathRef, error) {
	parts := strings.Split(string(p), "/")
	switch {
	case len(parts) == 2 && parts[0] == CollectionSettings && parts[1] == FieldPaymentNumber:
		return PathRef{Collection: parts[0], Field: parts[1]}, nil
	case len(parts) != 3 || parts[1] == "":
		return PathRef{}, fmt.Errorf("%w: malformed path %q", ErrInvalidRequest, p)
	}

	ref := PathRef{Collection: parts[0], ID: parts[1], Field: parts[2]}
	switch {
	case ref.Collection == CollectionAccounts && (ref.Field == FieldBalance || ref.Field == FieldIsActive):
	case (ref.Collection == CollectionActivations || ref.Collection == CollectionWithdrawals) && ref.Field == FieldStatus:
	default:
		return PathRef{}, fmt.Errorf("%w: unsupported path %q", ErrInvalidRequest, p)
	}
	return ref, nil
}

type OpKind string

const (
	OpSet       OpKind = "set"
	OpIncrement OpKind = "increment"
	OpExpect    OpKind = "expect"
)

type Op struct {
	Kind  OpKind
	Path  Path
	Value any
	Delta decimal.Decimal
}

// WriteSet is a multi-path write applied by a store as one indivisible unit.
// Expect ops are guards: if any guarded path does not hold the expected value
// at commit time nothing is written.
type WriteSet struct {
	Ops []Op
}

func NewWriteSet() *WriteSet {
	return &WriteSet{}
}

func (w *WriteSet) Expect(p Path, value any) *WriteSet {
	w.Ops = append(w.Ops, Op{Kind: OpExpect, Path: p, Value: value})
	return w
}

func (w *WriteSet) Set(p Path, value any) *WriteSet {
	w.Ops = append(w.Ops, Op{Kind: OpSet, Path: p, Value: value})
	return w
}

func (w *WriteSet) Increment(p Path, delta decimal.Decimal) *WriteSet {
	w.Ops = append(w.Ops, Op{Kind: OpIncrement, Path: p, Delta: delta})
	return w
}

func (w *WriteSet) Guards() []Op {
	return w.filter(OpExpect)
}

func (w *WriteSet) Mutations() []Op {
	var out []Op
	for _, op := range w.Ops {
		if op.Kind != OpExpect {
			out = append(out, op)
		}
	}
	return out
}

// Increments returns the balance deltas of the write set keyed by path.
func (w *WriteSet) Increments() map[Path]decimal.Decimal {
	out := make(map[Path]decimal.Decimal)
	for _, op := range w.filter(OpIncrement) {
		out[op.Path] = out[op.Path].Add(op.Delta)
	}
	return out
}

func (w *WriteSet) filter(kind OpKind) []Op {
	var out []Op
	for _, op := range w.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Validate checks every op against the path space before a store sees it.
func (w *WriteSet) Validate() error {
	if len(w.Mutations()) == 0 {
		return fmt.Errorf("%w: write set has no mutations", ErrInvalidRequest)
	}
	for _, op := range w.Ops {
		ref, err := ParsePath(op.Path)
		if err != nil {
			return err
		}
		if op.Kind == OpIncrement {
			if ref.Field != FieldBalance {
				return fmt.Errorf("%w: increment on non-numeric path %q", ErrInvalidRequest, op.Path)
			}
			if op.Delta.IsZero() {
				return fmt.Errorf("%w: zero increment on %q", ErrInvalidRequest, op.Path)
			}
			continue
		}
		if err := checkValue(ref, op.Value); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidRequest, op.Kind, op.Path, err)
		}
	}
	return nil
}

func checkValue(ref PathRef, v any) error {
	switch ref.Field {
	case FieldStatus:
		if _, ok := v.(RequestStatus); !ok {
			return fmt.Errorf("want RequestStatus, got %T", v)
		}
	case FieldIsActive:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
	case FieldPaymentNumber:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("want string, got %T", v)
		}
	case FieldBalance:
		if _, ok := v.(decimal.Decimal); !ok {
			return fmt.Errorf("want decimal, got %T", v)
		}
	}
	return nil
}

// FormatValue renders a path value the way string-typed stores persist it.
// Guards compare values in this form.
func FormatValue(v any) string {
	switch x := v.(type) {
	case RequestStatus:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.String()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
