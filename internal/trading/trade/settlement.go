package trade

import (
	"bartershops/internal/core"
	"bartershops/internal/trading/shop"
	apperrors "bartershops/pkg/errors"
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

const (
	stepWithdrawPayment = "withdraw_payment"
	stepCreditOwner     = "credit_owner"
	stepRemoveOffering  = "remove_offering"
	stepGrantOffering   = "grant_offering"
)

func decimalUnits(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// step is one settlement effect and the action that undoes it
type step struct {
	name       string
	apply      func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// settlementResult describes how far a settlement got
type settlementResult struct {
	failedStep string
	err        error
	// unreconciled holds compensation failures, newest step first
	unreconciled []*apperrors.ReconciliationError
}

func (r settlementResult) ok() bool { return r.err == nil }

// terms are the concrete amounts moved by one settlement
type terms struct {
	buyer     core.InventoryRef
	buyerID   string
	ownerID   string
	container core.InventoryRef
	admin     bool
	offering  core.ItemStack
	payment   shop.Payment
	// price is the total currency amount for currency payments
	price decimal.Decimal
}

func newTerms(sess Session, s shop.Record, unit core.ItemStack, pay shop.Payment) terms {
	t := terms{
		buyer:     core.PlayerInventory(sess.BuyerID),
		buyerID:   sess.BuyerID,
		ownerID:   s.OwnerID(),
		container: s.Container(),
		admin:     s.Admin(),
		offering:  unit.Times(sess.Quantity),
		payment:   pay,
	}
	if pay.IsCurrency() {
		t.price = pay.Amount.Mul(decimalUnits(sess.Quantity))
	} else {
		t.payment.Item = pay.Item.Times(sess.Quantity)
	}
	return t
}

// settlementSteps builds the ordered effects: take payment from the buyer,
// credit the shop owner, take the offering out of the container and hand it
// to the buyer. Admin shops skip the container steps and keep no payment.
func (e *Engine) settlementSteps(t terms) []step {
	var steps []step

	if t.payment.IsCurrency() {
		steps = append(steps, step{
			name:       stepWithdrawPayment,
			apply:      func(ctx context.Context) error { return e.withdraw(ctx, t.buyerID, t.price) },
			compensate: func(ctx context.Context) error { return e.deposit(ctx, t.buyerID, t.price) },
		})
		if !t.admin {
			steps = append(steps, step{
				name:       stepCreditOwner,
				apply:      func(ctx context.Context) error { return e.deposit(ctx, t.ownerID, t.price) },
				compensate: func(ctx context.Context) error { return e.withdraw(ctx, t.ownerID, t.price) },
			})
		}
	} else {
		item := t.payment.Item
		steps = append(steps, step{
			name:       stepWithdrawPayment,
			apply:      func(context.Context) error { return e.containers.RemoveItems(t.buyer, item.Kind, item.Quantity) },
			compensate: func(context.Context) error { return e.containers.AddItems(t.buyer, item.Kind, item.Quantity) },
		})
		if !t.admin {
			steps = append(steps, step{
				name:       stepCreditOwner,
				apply:      func(context.Context) error { return e.containers.AddItems(t.container, item.Kind, item.Quantity) },
				compensate: func(context.Context) error { return e.containers.RemoveItems(t.container, item.Kind, item.Quantity) },
			})
		}
	}

	if !t.admin {
		steps = append(steps, step{
			name:       stepRemoveOffering,
			apply:      func(context.Context) error { return e.containers.RemoveItems(t.container, t.offering.Kind, t.offering.Quantity) },
			compensate: func(context.Context) error { return e.containers.AddItems(t.container, t.offering.Kind, t.offering.Quantity) },
		})
	}

	steps = append(steps, step{
		name:       stepGrantOffering,
		apply:      func(context.Context) error { return e.containers.AddItems(t.buyer, t.offering.Kind, t.offering.Quantity) },
		compensate: func(context.Context) error { return e.containers.RemoveItems(t.buyer, t.offering.Kind, t.offering.Quantity) },
	})
	return steps
}

// settle applies steps in order. alive is consulted before each step and once
// after the last; if it fails, or any step fails, the applied steps are
// compensated in reverse order.
func (e *Engine) settle(ctx context.Context, sessionID string, steps []step, alive func() error) settlementResult {
	applied := make([]step, 0, len(steps))
	var res settlementResult

	for _, st := range steps {
		if err := alive(); err != nil {
			res = settlementResult{failedStep: st.name, err: err}
			break
		}
		if err := st.apply(ctx); err != nil {
			res = settlementResult{failedStep: st.name, err: err}
			break
		}
		applied = append(applied, st)
	}
	if res.err == nil {
		if err := alive(); err != nil {
			res = settlementResult{failedStep: "commit", err: err}
		}
	}
	if res.err == nil {
		return res
	}

	// Compensation must run even if the caller's context is done.
	compCtx := context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		st := applied[i]
		if err := st.compensate(compCtx); err != nil {
			rerr := &apperrors.ReconciliationError{SessionID: sessionID, Step: st.name, Err: err}
			res.unreconciled = append(res.unreconciled, rerr)
			e.logger.Error("Rollback step failed, manual reconciliation required",
				"session_id", sessionID, "step", st.name, "cause", res.err, "error", rerr)
			e.reconciliationFailures.Add(ctx, 1)
			if e.alerts != nil {
				e.alerts.Alert(compCtx, core.AlertCritical, "Manual reconciliation required", rerr.Error(), map[string]string{
					"session_id": sessionID,
					"step":       st.name,
					"cause":      res.err.Error(),
				})
			}
		}
	}
	if len(applied) > 0 {
		e.rollbacks.Add(ctx, 1)
	}
	return res
}

func (e *Engine) withdraw(ctx context.Context, playerID string, amount decimal.Decimal) error {
	_, err := e.economy.Withdraw(ctx, playerID, amount)
	e.noteEconomy(err)
	return err
}

func (e *Engine) deposit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	_, err := e.economy.Deposit(ctx, playerID, amount)
	e.noteEconomy(err)
	return err
}

// noteEconomy feeds provider health into the fallback tracker. Business
// refusals such as insufficient funds are not provider failures.
func (e *Engine) noteEconomy(err error) {
	if e.fallback == nil {
		return
	}
	switch {
	case err == nil, errors.Is(err, apperrors.ErrInsufficientFunds):
		e.fallback.RecordSuccess(componentEconomy)
	default:
		e.fallback.RecordFailure(componentEconomy, err)
	}
}
