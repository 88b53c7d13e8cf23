package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/metrics"
	"github.com/guildworks/guildworks-backend/pkg/outbox"
	"github.com/guildworks/guildworks-backend/pkg/outbox/payloads"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// BalanceView is the treasury state with the recomputed ledger sum alongside
// the cached balance so drift is visible, never hidden.
type BalanceView struct {
	BalanceCents                 int64 `json:"balanceCents"`
	LedgerSumCents               int64 `json:"ledgerSumCents"`
	LastBonusTriggerBalanceCents int64 `json:"lastBonusTriggerBalanceCents"`
	BonusThresholdCents          int64 `json:"bonusThresholdCents"`
	Reconciled                   bool  `json:"reconciled"`
}

type InflowInput struct {
	AmountCents int64
	ProjectID   *uuid.UUID
	Memo        string
}

type AdjustmentInput struct {
	AmountCents int64
	Memo        string
}

// BonusRunDetail is a run with its recipient rows.
type BonusRunDetail struct {
	Run        models.BonusRun            `json:"run"`
	Recipients []models.BonusRunRecipient `json:"recipients"`
}

// Service owns the treasury ledger and the threshold-triggered bonus runs.
type Service interface {
	EnsureSingleton(ctx context.Context) error
	GetBalance(ctx context.Context) (*BalanceView, error)
	RecordInflow(ctx context.Context, input InflowInput) (*models.TreasuryTransaction, *models.BonusRun, error)
	RecordInflowTx(ctx context.Context, tx *gorm.DB, input InflowInput) (*models.TreasuryTransaction, error)
	ManualAdjustment(ctx context.Context, input AdjustmentInput) (*models.TreasuryTransaction, error)
	RunBonus(ctx context.Context) (*models.BonusRun, error)
	MaybeRunBonusTx(ctx context.Context, tx *gorm.DB) (*models.BonusRun, error)
	ListTransactions(ctx context.Context, params pagination.Params) ([]models.TreasuryTransaction, string, error)
	ListBonusRuns(ctx context.Context, params pagination.Params) ([]models.BonusRun, string, error)
	GetBonusRun(ctx context.Context, id uuid.UUID) (*BonusRunDetail, error)
}

type service struct {
	repo    Repository
	members registry.Repository
	events  eventEmitter
	stats   *metrics.AllocationMetrics
	tx      txRunner
	policy  config.PolicyConfig
	now     func() time.Time
}

// NewService wires the treasury service.
func NewService(
	repo Repository,
	members registry.Repository,
	events eventEmitter,
	stats *metrics.AllocationMetrics,
	tx txRunner,
	policy config.PolicyConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("treasury repository required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		members: members,
		events:  events,
		stats:   stats,
		tx:      tx,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureSingleton seeds the treasury row on first boot. The threshold comes
// from policy then lives on the row so operators can tune it without a
// redeploy.
func (s *service) EnsureSingleton(ctx context.Context) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		_, err := repo.GetTreasury(ctx)
		if err == nil {
			return nil
		}
		if !IsTreasuryMissing(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load treasury")
		}
		treasury := &models.Treasury{BonusThresholdCents: s.policy.BonusThresholdCents}
		if err := repo.CreateTreasury(ctx, treasury); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed treasury singleton")
		}
		return nil
	})
}

func (s *service) GetBalance(ctx context.Context) (*BalanceView, error) {
	treasury, err := s.repo.GetTreasury(ctx)
	if err != nil {
		if IsTreasuryMissing(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "treasury not initialized")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load treasury")
	}
	sum, err := s.repo.SumTransactions(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum treasury ledger")
	}
	return &BalanceView{
		BalanceCents:                 treasury.BalanceCents,
		LedgerSumCents:               sum,
		LastBonusTriggerBalanceCents: treasury.LastBonusTriggerBalanceCents,
		BonusThresholdCents:          treasury.BonusThresholdCents,
		Reconciled:                   treasury.BalanceCents == sum,
	}, nil
}

func (s *service) RecordInflow(ctx context.Context, input InflowInput) (*models.TreasuryTransaction, *models.BonusRun, error) {
	var txn *models.TreasuryTransaction
	var run *models.BonusRun
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		// Pre-inflow basis measures the crossing against the balance as it
		// stood before this deposit.
		if s.policy.BonusBasis == config.BonusBasisPreInflow {
			if run, err = s.MaybeRunBonusTx(ctx, tx); err != nil {
				return err
			}
			txn, err = s.RecordInflowTx(ctx, tx, input)
			return err
		}
		txn, err = s.RecordInflowTx(ctx, tx, input)
		if err != nil {
			return err
		}
		run, err = s.MaybeRunBonusTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return txn, run, nil
}

// RecordInflowTx appends an inflow inside the caller's transaction. Callers
// that need the threshold check must follow with MaybeRunBonusTx in the same
// transaction.
func (s *service) RecordInflowTx(ctx context.Context, tx *gorm.DB, input InflowInput) (*models.TreasuryTransaction, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inflow amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	treasury, err := repo.GetTreasuryForUpdate(ctx)
	if err != nil {
		if IsTreasuryMissing(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "treasury not initialized")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock treasury")
	}

	txn := &models.TreasuryTransaction{
		Kind:        enums.TreasuryTransactionInflow,
		AmountCents: input.AmountCents,
		ProjectID:   input.ProjectID,
		Memo:        input.Memo,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inflow")
	}
	treasury.BalanceCents += input.AmountCents
	if err := repo.SaveTreasury(ctx, treasury); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save treasury balance")
	}
	return txn, nil
}

func (s *service) ManualAdjustment(ctx context.Context, input AdjustmentInput) (*models.TreasuryTransaction, error) {
	if input.AmountCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
	}

	var txn *models.TreasuryTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		treasury, err := repo.GetTreasuryForUpdate(ctx)
		if err != nil {
			if IsTreasuryMissing(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "treasury not initialized")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock treasury")
		}
		next := treasury.BalanceCents + input.AmountCents
		if next < 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientTreasury,
				fmt.Sprintf("adjustment of %d cents exceeds balance %d", input.AmountCents, treasury.BalanceCents))
		}
		txn = &models.TreasuryTransaction{
			Kind:        enums.TreasuryTransactionAdjustment,
			AmountCents: input.AmountCents,
			Memo:        input.Memo,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append adjustment")
		}
		treasury.BalanceCents = next
		if err := repo.SaveTreasury(ctx, treasury); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save treasury balance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RunBonus is the out-of-band check. Unlike the post-inflow path, asking for
// a run when the threshold has not been crossed is an error the caller must
// see.
func (s *service) RunBonus(ctx context.Context) (*models.BonusRun, error) {
	var run *models.BonusRun
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		run, err = s.MaybeRunBonusTx(ctx, tx)
		if err != nil {
			return err
		}
		if run == nil {
			return pkgerrors.New(pkgerrors.CodeThresholdNotCrossed, "treasury balance has not crossed the bonus threshold")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// MaybeRunBonusTx creates at most one bonus run per threshold crossing. The
// singleton row lock serializes concurrent checkers; whoever ran first has
// already advanced last_bonus_trigger_balance, so the re-check below is the
// compare-and-swap.
func (s *service) MaybeRunBonusTx(ctx context.Context, tx *gorm.DB) (*models.BonusRun, error) {
	repo := s.repo.WithTx(tx)
	treasury, err := repo.GetTreasuryForUpdate(ctx)
	if err != nil {
		if IsTreasuryMissing(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "treasury not initialized")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock treasury")
	}
	if treasury.BalanceCents < treasury.LastBonusTriggerBalanceCents+treasury.BonusThresholdCents {
		return nil, nil
	}

	now := s.now()
	balanceBefore := treasury.BalanceCents
	surplus := balanceBefore - treasury.LastBonusTriggerBalanceCents
	pool := decimal.NewFromInt(surplus).
		Mul(decimal.NewFromInt(int64(s.policy.BonusPoolPercent))).
		Div(decimal.NewFromInt(100)).
		Floor()

	recipients, total, err := s.computeShares(ctx, tx, pool, now)
	if err != nil {
		return nil, err
	}

	balanceAfter := balanceBefore - total
	run := &models.BonusRun{
		BalanceBeforeCents:    balanceBefore,
		BalanceAfterCents:     balanceAfter,
		TotalDistributedCents: total,
		TriggerBalanceCents:   balanceAfter,
		RecipientCount:        len(recipients),
	}
	if err := repo.CreateBonusRun(ctx, run); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bonus run")
	}
	for i := range recipients {
		recipients[i].BonusRunID = run.ID
	}
	if err := repo.CreateBonusRunRecipients(ctx, recipients); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bonus recipients")
	}
	if total > 0 {
		outflow := &models.TreasuryTransaction{
			Kind:        enums.TreasuryTransactionOutflow,
			AmountCents: -total,
			BonusRunID:  &run.ID,
			Memo:        "bonus distribution",
		}
		if err := repo.CreateTransaction(ctx, outflow); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append bonus outflow")
		}
	}
	treasury.BalanceCents = balanceAfter
	treasury.LastBonusTriggerBalanceCents = balanceAfter
	if err := repo.SaveTreasury(ctx, treasury); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance bonus trigger")
	}

	event := payloads.BonusRunExecutedEvent{
		BonusRunID:            run.ID,
		TriggerBalanceCents:   run.TriggerBalanceCents,
		BalanceBeforeCents:    balanceBefore,
		BalanceAfterCents:     balanceAfter,
		TotalDistributedCents: total,
		RecipientCount:        len(recipients),
		ExecutedAt:            now,
	}
	err = s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBonusRunExecuted,
		AggregateType: enums.AggregateTreasury,
		AggregateID:   run.ID,
		Data:          event,
		OccurredAt:    now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue bonus run event")
	}
	s.stats.IncBonusRun(total)
	return run, nil
}

// computeShares splits the pool across eligible memberships. Weights are
// cumulative revenue scaled by (1 + consistency); rank multipliers re-weight
// within the fixed pool so the distributed total never exceeds it.
func (s *service) computeShares(ctx context.Context, tx *gorm.DB, pool decimal.Decimal, now time.Time) ([]models.BonusRunRecipient, int64, error) {
	if pool.Sign() <= 0 {
		return nil, 0, nil
	}
	members := s.members.WithTx(tx)
	active, err := members.ListActiveMemberships(ctx, now)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active memberships")
	}

	type candidate struct {
		membership models.Membership
		weight     decimal.Decimal
		multiplier float64
	}
	candidates := make([]candidate, 0, len(active))
	weightSum := decimal.Zero
	weightedSum := decimal.Zero
	for _, membership := range active {
		if s.policy.BonusExcludeCouncil && membership.IsCouncil {
			continue
		}
		composite := 0.0
		if consistency, err := members.FindConsistency(ctx, membership.ID); err == nil {
			composite = consistency.CompositeScore
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load consistency metrics")
		}
		weight := decimal.NewFromInt(membership.CumulativeRevenueCents).
			Mul(decimal.NewFromFloat(1 + composite))
		candidates = append(candidates, candidate{
			membership: membership,
			weight:     weight,
			multiplier: s.rankMultiplier(membership.Tier),
		})
		weightSum = weightSum.Add(weight)
	}
	if len(candidates) == 0 {
		return nil, 0, nil
	}
	// All-zero revenue degrades to equal weights rather than dividing by
	// zero or paying nobody.
	if weightSum.Sign() == 0 {
		for i := range candidates {
			candidates[i].weight = decimal.NewFromInt(1)
		}
		weightSum = decimal.NewFromInt(int64(len(candidates)))
	}
	for _, c := range candidates {
		weightedSum = weightedSum.Add(c.weight.Mul(decimal.NewFromFloat(c.multiplier)))
	}

	recipients := make([]models.BonusRunRecipient, 0, len(candidates))
	var total int64
	for _, c := range candidates {
		base := pool.Mul(c.weight).Div(weightSum).Floor()
		amount := pool.Mul(c.weight.Mul(decimal.NewFromFloat(c.multiplier))).Div(weightedSum).Floor()
		amountCents := amount.IntPart()
		if amountCents <= 0 {
			continue
		}
		recipients = append(recipients, models.BonusRunRecipient{
			MembershipID:   c.membership.ID,
			BaseShareCents: base.IntPart(),
			RankMultiplier: c.multiplier,
			AmountCents:    amountCents,
		})
		total += amountCents
	}
	return recipients, total, nil
}

func (s *service) rankMultiplier(tier enums.Tier) float64 {
	idx := int(tier) - 1
	if idx < 0 || idx >= len(s.policy.RankMultipliers) {
		return 1.0
	}
	return s.policy.RankMultipliers[idx]
}

func (s *service) ListTransactions(ctx context.Context, params pagination.Params) ([]models.TreasuryTransaction, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListTransactions(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list treasury transactions")
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) ListBonusRuns(ctx context.Context, params pagination.Params) ([]models.BonusRun, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListBonusRuns(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bonus runs")
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) GetBonusRun(ctx context.Context, id uuid.UUID) (*BonusRunDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bonus run id required")
	}
	run, err := s.repo.FindBonusRun(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bonus run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bonus run")
	}
	recipients, err := s.repo.ListBonusRunRecipients(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bonus recipients")
	}
	return &BonusRunDetail{Run: *run, Recipients: recipients}, nil
}
