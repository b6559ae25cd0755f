package trade

import (
	"bartershops/internal/core"
	"bartershops/internal/trading/shop"
	apperrors "bartershops/pkg/errors"
	"fmt"
)

// Reason classifies why a trade operation did not succeed
type Reason int

const (
	ReasonNone Reason = iota
	ReasonSelfTrade
	ReasonShopConfiguring
	ReasonDegraded
	ReasonInvalidQuantity
	ReasonInvalidPayment
	ReasonOutOfStock
	ReasonInsufficientPayment
	ReasonInsufficientFunds
	ReasonEconomyUnavailable
	ReasonShopNotFound
	ReasonSessionNotFound
	ReasonSessionExpired
	ReasonInvalidState
	ReasonCancelled
	ReasonSettlementFailed
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonSelfTrade:
		return "self_trade"
	case ReasonShopConfiguring:
		return "shop_configuring"
	case ReasonDegraded:
		return "service_degraded"
	case ReasonInvalidQuantity:
		return "invalid_quantity"
	case ReasonInvalidPayment:
		return "invalid_payment"
	case ReasonOutOfStock:
		return "out_of_stock"
	case ReasonInsufficientPayment:
		return "insufficient_payment"
	case ReasonInsufficientFunds:
		return "insufficient_funds"
	case ReasonEconomyUnavailable:
		return "economy_unavailable"
	case ReasonShopNotFound:
		return "shop_not_found"
	case ReasonSessionNotFound:
		return "session_not_found"
	case ReasonSessionExpired:
		return "session_expired"
	case ReasonInvalidState:
		return "invalid_state"
	case ReasonCancelled:
		return "cancelled"
	case ReasonSettlementFailed:
		return "settlement_failed"
	case ReasonShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Err maps the reason to its sentinel error
func (r Reason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonSelfTrade:
		return apperrors.ErrSelfTrade
	case ReasonShopConfiguring:
		return apperrors.ErrShopConfiguring
	case ReasonDegraded:
		return apperrors.ErrServiceDegraded
	case ReasonInvalidQuantity:
		return apperrors.ErrInvalidQuantity
	case ReasonInvalidPayment:
		return apperrors.ErrInvalidPayment
	case ReasonOutOfStock:
		return apperrors.ErrOutOfStock
	case ReasonInsufficientPayment:
		return apperrors.ErrInsufficientPayment
	case ReasonInsufficientFunds:
		return apperrors.ErrInsufficientFunds
	case ReasonEconomyUnavailable:
		return apperrors.ErrEconomyUnavailable
	case ReasonShopNotFound:
		return apperrors.ErrShopNotFound
	case ReasonSessionNotFound:
		return apperrors.ErrSessionNotFound
	case ReasonSessionExpired:
		return apperrors.ErrSessionExpired
	case ReasonInvalidState:
		return apperrors.ErrInvalidTransition
	case ReasonCancelled:
		return apperrors.ErrSessionCancelled
	case ReasonShutdown:
		return apperrors.ErrRegistryShutdown
	default:
		return fmt.Errorf("trade failed: %s", r)
	}
}

// Phase selects which checks apply
type Phase int

const (
	PhaseInitiate Phase = iota
	PhaseExecute
)

// ValidationInput carries every fact the validator needs. The engine gathers
// them; the validator never touches shared state.
type ValidationInput struct {
	Phase        Phase
	BuyerID      string
	Shop         shop.Record
	Quantity     int
	PaymentIndex int
	// Offering is one trade unit, resolved from the container for
	// non-stackable shops
	Offering core.ItemStack
	// MaxQuantity caps units per trade. Zero means no cap.
	MaxQuantity int

	Degraded                  bool
	BlockInitiateWhenDegraded bool

	// ShopStock is the count of the offering item in the shop container
	ShopStock int
	// BuyerItems is the count of the payment item the buyer holds
	BuyerItems int
	// CanAfford and AffordErr are the economy answer for currency payments
	CanAfford bool
	AffordErr error
}

// ValidationResult is Valid or Invalid(reason)
type ValidationResult struct {
	Valid  bool
	Reason Reason
	Detail string
}

func valid() ValidationResult { return ValidationResult{Valid: true} }

func invalid(r Reason, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Err returns a *apperrors.ValidationError for an invalid result, nil otherwise
func (v ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	return &apperrors.ValidationError{Reason: v.Detail, Err: v.Reason.Err()}
}

// Validator checks trade preconditions in a fixed order and stops at the first failure
type Validator struct{}

// Validate runs: self-trade, mode, degraded, request shape, stock, payment.
// Quantities whose totals would overflow an int are an invalid request.
func (Validator) Validate(in ValidationInput) ValidationResult {
	s := in.Shop

	if s.IsOwner(in.BuyerID) {
		return invalid(ReasonSelfTrade, "buyer %s owns shop %s", in.BuyerID, s.ID())
	}

	if r := checkMode(s); !r.Valid {
		return r
	}

	if in.Degraded && (in.Phase == PhaseExecute || in.BlockInitiateWhenDegraded) {
		return invalid(ReasonDegraded, "trading degraded")
	}

	if in.Quantity <= 0 {
		return invalid(ReasonInvalidQuantity, "quantity %d", in.Quantity)
	}
	if in.MaxQuantity > 0 && in.Quantity > in.MaxQuantity {
		return invalid(ReasonInvalidQuantity, "quantity %d above limit %d", in.Quantity, in.MaxQuantity)
	}
	pay, ok := s.Payment(in.PaymentIndex)
	if !ok {
		return invalid(ReasonInvalidPayment, "payment option %d of %d", in.PaymentIndex, len(s.Payments()))
	}
	if !in.Offering.Scalable(in.Quantity) || (!pay.IsCurrency() && !pay.Item.Scalable(in.Quantity)) {
		return invalid(ReasonInvalidQuantity, "quantity %d overflows the trade totals", in.Quantity)
	}

	if !s.Admin() {
		if in.Offering.Kind == "" || in.Offering.Quantity <= 0 {
			return invalid(ReasonOutOfStock, "shop %s has nothing to sell", s.ID())
		}
		need := in.Offering.Quantity * in.Quantity
		if in.ShopStock < need {
			return invalid(ReasonOutOfStock, "shop has %d %s, need %d", in.ShopStock, in.Offering.Kind, need)
		}
	}

	if pay.IsCurrency() {
		if in.AffordErr != nil {
			return invalid(ReasonEconomyUnavailable, "%v", in.AffordErr)
		}
		if !in.CanAfford {
			return invalid(ReasonInsufficientFunds, "cannot afford %s", pay.Amount.Mul(decimalUnits(in.Quantity)).StringFixed(2))
		}
		return valid()
	}

	need := pay.Item.Quantity * in.Quantity
	if in.BuyerItems < need {
		return invalid(ReasonInsufficientPayment, "buyer has %d %s, need %d", in.BuyerItems, pay.Item.Kind, need)
	}
	return valid()
}

// checkIdentity runs only the checks that need no inventory or economy facts
func (v Validator) checkIdentity(buyerID string, s shop.Record) ValidationResult {
	if s.IsOwner(buyerID) {
		return invalid(ReasonSelfTrade, "buyer %s owns shop %s", buyerID, s.ID())
	}
	return checkMode(s)
}

func checkMode(s shop.Record) ValidationResult {
	switch s.Mode() {
	case shop.ModeBoard:
		if !s.Configured() {
			return invalid(ReasonShopConfiguring, "shop %s has no offering or payment", s.ID())
		}
		return valid()
	case shop.ModeSetup, shop.ModeType, shop.ModeDelete:
		return invalid(ReasonShopConfiguring, "shop %s is in %s", s.ID(), s.Mode())
	default:
		return invalid(ReasonShopConfiguring, "shop %s is in %s", s.ID(), s.Mode())
	}
}
