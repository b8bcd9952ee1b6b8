package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"referral_ledger/internal/commission"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/events"
	"referral_ledger/internal/ledger"
	"referral_ledger/internal/referral"
	"referral_ledger/internal/repository"
	"referral_ledger/pkg/metrics"
	"referral_ledger/pkg/validator"
	"time"

	"github.com/shopspring/decimal"
)

// Notifier tells account holders about decisions on their requests.
type Notifier interface {
	NotifyActivation(ctx context.Context, req *domain.ActivationRequest) error
	NotifyWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error
	AlertFlagged(ctx context.Context, activationID string, score int, flags []string) error
}

type Config struct {
	Policy   commission.Policy
	Tiers    []commission.Tier
	RootCode string
	MaxDepth int
}

func DefaultConfig() Config {
	return Config{
		Policy:   commission.DefaultPolicy(),
		RootCode: domain.DefaultRootCode,
		MaxDepth: commission.MaxTiers,
	}
}

type ApprovalResult struct {
	ActivationID string                  `json:"activation_id"`
	AccountID    string                  `json:"account_id"`
	Credits      []domain.CommissionEdge `json:"credits"`
	TotalPaid    decimal.Decimal         `json:"total_paid"`
	RiskScore    int                     `json:"risk_score"`
	Flags        []string                `json:"flags,omitempty"`
	Stop         referral.StopReason     `json:"stop"`
}

type ActivationProcessor struct {
	store      repository.Store
	ledger     *ledger.Ledger
	calculator *commission.Calculator
	walker     *referral.Walker
	validator  *validator.RequestValidator
	screener   *ProofScreener
	metrics    *metrics.MetricsCollector
	publisher  events.Publisher
	notifier   Notifier
	logger     *slog.Logger
}

type Option func(*ActivationProcessor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *ActivationProcessor) { p.logger = logger }
}

func WithMetrics(m *metrics.MetricsCollector) Option {
	return func(p *ActivationProcessor) { p.metrics = m }
}

func WithPublisher(pub events.Publisher) Option {
	return func(p *ActivationProcessor) { p.publisher = pub }
}

func WithNotifier(n Notifier) Option {
	return func(p *ActivationProcessor) { p.notifier = n }
}

func NewActivationProcessor(store repository.Store, cfg Config, opts ...Option) (*ActivationProcessor, error) {
	calculator, err := commission.NewCalculator(cfg.Policy, cfg.Tiers)
	if err != nil {
		return nil, err
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = commission.MaxTiers
	}

	p := &ActivationProcessor{
		store:      store,
		calculator: calculator,
		walker:     referral.NewWalker(cfg.MaxDepth, cfg.RootCode),
		validator:  validator.NewRequestValidator(),
		screener:   NewProofScreener(),
		publisher:  events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewMetricsCollector(p.logger)
	}
	p.ledger = ledger.New(store, p.logger)

	return p, nil
}

// ApproveActivation approves a pending activation and pays commission to the
// activating account's upline. The approval, the activation flag and every
// credit are committed together or not at all.
func (p *ActivationProcessor) ApproveActivation(ctx context.Context, activationID string) (*ApprovalResult, error) {
	start := time.Now()

	req, err := p.pendingActivation(ctx, activationID)
	if err != nil {
		return nil, p.fail("approve_activation", err)
	}
	if err := p.validator.ValidateActivation(req); err != nil {
		return nil, p.fail("approve_activation", err)
	}

	accounts, err := p.store.ListAccounts(ctx)
	if err != nil {
		return nil, p.fail("approve_activation", storeErr(err))
	}

	graph := referral.NewGraph(accounts)
	if dups := graph.DuplicateCodes(); len(dups) > 0 {
		p.logger.WarnContext(ctx, "Duplicate referral codes in account snapshot",
			slog.Any("codes", dups))
	}

	account, ok := findAccount(accounts, req.AccountID)
	if !ok {
		return nil, p.fail("approve_activation",
			fmt.Errorf("%w: activation %s references missing account %s", domain.ErrDataInconsistency, req.ID, req.AccountID))
	}

	walk := p.walker.Walk(account, graph)
	credits, total := p.cascade(account, walk, graph)

	result := &ApprovalResult{
		ActivationID: req.ID,
		AccountID:    account.ID,
		Credits:      credits,
		TotalPaid:    total,
		Stop:         walk.Stop,
	}
	result.RiskScore, result.Flags = p.screen(ctx, req, account)

	if err := p.ledger.Apply(ctx, ledger.ActivationWriteSet(req.ID, account.ID, credits)); err != nil {
		return nil, p.fail("approve_activation", err)
	}

	p.logger.InfoContext(ctx, "Activation approved",
		slog.String("activation_id", req.ID),
		slog.String("account_id", account.ID),
		slog.Int("credited", len(credits)),
		slog.String("total_paid", total.String()),
		slog.String("stop", string(walk.Stop)),
		slog.String("stop_code", walk.StopCode))

	p.metrics.RecordApproval(time.Since(start), len(credits), total)

	event := events.NewEvent(events.TypeActivationApproved, account.ID)
	event.ActivationID = req.ID
	event.Amount = req.Amount
	event.Credits = credits
	p.publish(ctx, event)

	req.Status = domain.StatusApproved
	p.notifyActivation(ctx, req)
	if p.notifier != nil && len(result.Flags) > 0 {
		if err := p.notifier.AlertFlagged(ctx, req.ID, result.RiskScore, result.Flags); err != nil {
			p.logger.WarnContext(ctx, "Failed to queue risk alert",
				slog.String("activation_id", req.ID),
				slog.String("error", err.Error()))
		}
	}

	return result, nil
}

// cascade prices every ancestor of the walk. Ancestors whose tier pays zero
// are left out.
func (p *ActivationProcessor) cascade(account *domain.Account, walk referral.Walk, graph *referral.Graph) ([]domain.CommissionEdge, decimal.Decimal) {
	var credits []domain.CommissionEdge
	total := decimal.Zero

	for _, ancestor := range walk.Ancestors {
		amount := p.calculator.AmountFor(ancestor.Depth, graph.DirectReferrals(ancestor.Account.ReferralCode))
		if !amount.IsPositive() {
			continue
		}
		credits = append(credits, domain.CommissionEdge{
			PayerAccountID: account.ID,
			PayeeAccountID: ancestor.Account.ID,
			Depth:          ancestor.Depth,
			Amount:         amount,
		})
		total = total.Add(amount)
	}
	return credits, total
}

func (p *ActivationProcessor) screen(ctx context.Context, req *domain.ActivationRequest, account *domain.Account) (int, []string) {
	history, err := p.store.ListActivations(ctx, "")
	if err != nil {
		p.logger.WarnContext(ctx, "Skipping proof screening",
			slog.String("activation_id", req.ID),
			slog.String("error", err.Error()))
		return 0, nil
	}

	score, flags := p.screener.Screen(req, account, history)
	if len(flags) > 0 {
		p.logger.WarnContext(ctx, "Activation proof flagged",
			slog.String("activation_id", req.ID),
			slog.Int("risk_score", score),
			slog.Any("flags", flags))
	}
	return score, flags
}

func (p *ActivationProcessor) RejectActivation(ctx context.Context, activationID string) error {
	req, err := p.pendingActivation(ctx, activationID)
	if err != nil {
		return p.fail("reject_activation", err)
	}

	if err := p.ledger.Apply(ctx, ledger.RejectionWriteSet(req.ID)); err != nil {
		return p.fail("reject_activation", err)
	}

	p.logger.InfoContext(ctx, "Activation rejected",
		slog.String("activation_id", req.ID),
		slog.String("account_id", req.AccountID))
	p.metrics.RecordRejection()

	event := events.NewEvent(events.TypeActivationRejected, req.AccountID)
	event.ActivationID = req.ID
	event.Amount = req.Amount
	p.publish(ctx, event)

	req.Status = domain.StatusRejected
	p.notifyActivation(ctx, req)
	return nil
}

// ApproveWithdrawal marks a pending withdrawal as paid. Balances are not
// touched.
func (p *ActivationProcessor) ApproveWithdrawal(ctx context.Context, withdrawalID string) error {
	req, err := p.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return p.fail("approve_withdrawal", storeErr(err))
	}
	if req.Status != domain.StatusPending {
		return p.fail("approve_withdrawal",
			fmt.Errorf("%w: withdrawal %s is %s", domain.ErrInvalidState, req.ID, req.Status))
	}

	if err := p.ledger.Apply(ctx, ledger.WithdrawalWriteSet(req.ID)); err != nil {
		return p.fail("approve_withdrawal", err)
	}

	p.logger.InfoContext(ctx, "Withdrawal approved",
		slog.String("withdrawal_id", req.ID),
		slog.String("account_id", req.AccountID),
		slog.String("amount", req.Amount.String()))
	p.metrics.RecordWithdrawal()

	event := events.NewEvent(events.TypeWithdrawalApproved, req.AccountID)
	event.WithdrawalID = req.ID
	event.Amount = req.Amount
	p.publish(ctx, event)

	if p.notifier != nil {
		req.Status = domain.StatusApproved
		if err := p.notifier.NotifyWithdrawal(ctx, req); err != nil {
			p.logger.WarnContext(ctx, "Failed to queue withdrawal notification",
				slog.String("withdrawal_id", req.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// CreditAccount adds amount to an existing account's balance.
func (p *ActivationProcessor) CreditAccount(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if err := p.validator.ValidateAmount(amount); err != nil {
		return p.fail("credit_account", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
	}
	if _, err := p.store.GetAccount(ctx, accountID); err != nil {
		return p.fail("credit_account", storeErr(err))
	}

	if err := p.ledger.Apply(ctx, ledger.CreditWriteSet(accountID, amount)); err != nil {
		return p.fail("credit_account", err)
	}

	p.logger.InfoContext(ctx, "Account credited",
		slog.String("account_id", accountID),
		slog.String("amount", amount.String()))
	p.metrics.RecordCredit()

	event := events.NewEvent(events.TypeAccountCredited, accountID)
	event.Amount = amount
	p.publish(ctx, event)
	return nil
}

func (p *ActivationProcessor) SetPaymentNumber(ctx context.Context, number string) error {
	if err := p.validator.ValidateMobile(number); err != nil {
		return p.fail("set_payment_number", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
	}
	normalized := validator.NormalizeMobile(number)

	if err := p.ledger.Apply(ctx, ledger.PaymentNumberWriteSet(normalized)); err != nil {
		return p.fail("set_payment_number", err)
	}

	p.logger.InfoContext(ctx, "Payment number updated", slog.String("number", normalized))
	return nil
}

func (p *ActivationProcessor) PaymentNumber(ctx context.Context) (string, error) {
	number, err := p.store.GetPaymentNumber(ctx)
	if err != nil {
		return "", storeErr(err)
	}
	return number, nil
}

// SubmitActivation records a pending activation for an inactive account.
func (p *ActivationProcessor) SubmitActivation(ctx context.Context, accountID string, amount decimal.Decimal,
	method domain.PaymentMethod, mobile, trxID string) (*domain.ActivationRequest, error) {

	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, p.fail("submit_activation", storeErr(err))
	}
	if account.IsActive {
		return nil, p.fail("submit_activation",
			fmt.Errorf("%w: account %s is already active", domain.ErrInvalidState, accountID))
	}

	req := domain.NewActivationRequest(accountID, amount, method, validator.NormalizeMobile(mobile), trxID)
	if err := p.validator.ValidateActivation(req); err != nil {
		return nil, p.fail("submit_activation", err)
	}
	if err := p.store.SaveActivation(ctx, req); err != nil {
		return nil, p.fail("submit_activation", storeErr(err))
	}

	p.logger.InfoContext(ctx, "Activation submitted",
		slog.String("activation_id", req.ID),
		slog.String("account_id", accountID),
		slog.String("method", string(method)))
	return req, nil
}

// SubmitWithdrawal records a pending withdrawal. The amount may not exceed the
// account's current balance.
func (p *ActivationProcessor) SubmitWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal,
	method domain.PaymentMethod, mobile string) (*domain.WithdrawalRequest, error) {

	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, p.fail("submit_withdrawal", storeErr(err))
	}

	req := domain.NewWithdrawalRequest(accountID, amount, method, validator.NormalizeMobile(mobile))
	if err := p.validator.ValidateWithdrawal(req); err != nil {
		return nil, p.fail("submit_withdrawal", err)
	}
	if amount.GreaterThan(account.Balance) {
		return nil, p.fail("submit_withdrawal",
			fmt.Errorf("%w: amount %s exceeds balance %s", domain.ErrInvalidRequest, amount, account.Balance))
	}
	if err := p.store.SaveWithdrawal(ctx, req); err != nil {
		return nil, p.fail("submit_withdrawal", storeErr(err))
	}

	p.logger.InfoContext(ctx, "Withdrawal submitted",
		slog.String("withdrawal_id", req.ID),
		slog.String("account_id", accountID),
		slog.String("amount", amount.String()))
	return req, nil
}

func (p *ActivationProcessor) PendingActivations(ctx context.Context) ([]*domain.ActivationRequest, error) {
	reqs, err := p.store.ListActivations(ctx, domain.StatusPending)
	if err != nil {
		return nil, storeErr(err)
	}
	return reqs, nil
}

func (p *ActivationProcessor) PendingWithdrawals(ctx context.Context) ([]*domain.WithdrawalRequest, error) {
	reqs, err := p.store.ListWithdrawals(ctx, domain.StatusPending)
	if err != nil {
		return nil, storeErr(err)
	}
	return reqs, nil
}

func (p *ActivationProcessor) Stats(ctx context.Context) (domain.Stats, error) {
	accounts, err := p.store.ListAccounts(ctx)
	if err != nil {
		return domain.Stats{}, storeErr(err)
	}
	stats := domain.ComputeStats(accounts)
	p.metrics.UpdateStats(stats)
	return stats, nil
}

// Ping checks that the backing store is reachable. Stores without a remote
// server are always reachable.
func (p *ActivationProcessor) Ping(ctx context.Context) error {
	pinger, ok := p.store.(repository.Pinger)
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}
	return nil
}

func (p *ActivationProcessor) pendingActivation(ctx context.Context, activationID string) (*domain.ActivationRequest, error) {
	req, err := p.store.GetActivation(ctx, activationID)
	if err != nil {
		return nil, storeErr(err)
	}
	if req.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: activation %s is %s", domain.ErrInvalidState, req.ID, req.Status)
	}
	return req, nil
}

func (p *ActivationProcessor) publish(ctx context.Context, event *events.Event) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish event",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}

func (p *ActivationProcessor) notifyActivation(ctx context.Context, req *domain.ActivationRequest) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyActivation(ctx, req); err != nil {
		p.logger.WarnContext(ctx, "Failed to queue activation notification",
			slog.String("activation_id", req.ID),
			slog.String("error", err.Error()))
	}
}

func (p *ActivationProcessor) fail(operation string, err error) error {
	reason := ErrorReason(err)
	p.metrics.RecordFailure(operation, reason)
	p.logger.Warn("Operation failed",
		slog.String("operation", operation),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	return err
}

// ErrorReason classifies err by the domain sentinel it wraps.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrDataInconsistency):
		return "data_inconsistency"
	case errors.Is(err, domain.ErrStoreFailure):
		return "store_failure"
	default:
		return "internal"
	}
}

// storeErr passes not-found errors through, reports a duplicate id as an
// invalid state and anything else from the store as a store failure.
func storeErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidRequest):
		return err
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}
}

func findAccount(accounts []*domain.Account, id string) (*domain.Account, bool) {
	for _, a := range accounts {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}
