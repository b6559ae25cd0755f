// Package shop holds player shop records and the owner-facing mode machine
// that gates configuration against customer trading.
package shop

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is one accepted way to pay for a trade unit: a stack of items or a
// currency amount.
type Payment struct {
	Item   core.ItemStack
	Amount decimal.Decimal
}

// ItemPayment builds a barter payment
func ItemPayment(kind core.ItemKind, quantity int) Payment {
	return Payment{Item: core.ItemStack{Kind: kind, Quantity: quantity}}
}

// CurrencyPayment builds a currency payment
func CurrencyPayment(amount decimal.Decimal) Payment {
	return Payment{Amount: amount}
}

// IsCurrency reports whether the payment is in currency
func (p Payment) IsCurrency() bool {
	return p.Item.Kind == ""
}

func (p Payment) String() string {
	if p.IsCurrency() {
		return p.Amount.StringFixed(2)
	}
	return p.Item.String()
}

func (p Payment) validate() error {
	if p.IsCurrency() {
		if !p.Amount.IsPositive() {
			return fmt.Errorf("currency payment must be positive: %w", apperrors.ErrInvalidShopParameter)
		}
		return nil
	}
	if p.Item.Quantity <= 0 {
		return fmt.Errorf("payment quantity for %s must be positive: %w", p.Item.Kind, apperrors.ErrInvalidShopParameter)
	}
	return nil
}

// RecordParams are the inputs to NewRecord
type RecordParams struct {
	ID        string
	OwnerID   string
	Location  core.Location
	Mode      Mode
	Offering  core.ItemStack
	Payments  []Payment
	Container core.Location
	Admin     bool
	// Stackable shops sell Offering per unit. Otherwise a unit is one of the
	// first item found in the container.
	Stackable bool
}

// Record is an immutable shop definition. Use WithMode to derive a copy.
type Record struct {
	id        string
	ownerID   string
	location  core.Location
	mode      Mode
	offering  core.ItemStack
	payments  []Payment
	container core.InventoryRef
	admin     bool
	stackable bool
}

// NewRecord validates params and builds a Record. An empty ID gets a fresh uuid.
func NewRecord(p RecordParams) (Record, error) {
	if p.OwnerID == "" {
		return Record{}, fmt.Errorf("owner id is required: %w", apperrors.ErrInvalidShopParameter)
	}
	if p.Offering.Quantity < 0 || (p.Offering.Quantity > 0 && p.Offering.Kind == "") {
		return Record{}, fmt.Errorf("malformed offering %s: %w", p.Offering, apperrors.ErrInvalidShopParameter)
	}
	for _, pay := range p.Payments {
		if err := pay.validate(); err != nil {
			return Record{}, err
		}
	}
	if !p.Admin && p.Container == (core.Location{}) {
		return Record{}, fmt.Errorf("player shop needs a container: %w", apperrors.ErrInvalidShopParameter)
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	r := Record{
		id:        id,
		ownerID:   p.OwnerID,
		location:  p.Location,
		mode:      p.Mode,
		offering:  p.Offering,
		payments:  append([]Payment(nil), p.Payments...),
		admin:     p.Admin,
		stackable: p.Stackable,
	}
	if !p.Admin {
		r.container = core.ContainerInventory(p.Container)
	}
	return r, nil
}

// ID is the shop's stable identifier
func (r Record) ID() string { return r.id }

// OwnerID is the player who placed the shop
func (r Record) OwnerID() string { return r.ownerID }

// Location is the sign block
func (r Record) Location() core.Location { return r.location }

// Mode is the stored mode. ModeMachine.Shop reports the effective one.
func (r Record) Mode() Mode { return r.mode }

// Offering is what one trade unit delivers on a stackable or admin shop
func (r Record) Offering() core.ItemStack { return r.offering }

// Container is the stock inventory. Zero for admin shops.
func (r Record) Container() core.InventoryRef { return r.container }

// Admin shops have unlimited stock and no container
func (r Record) Admin() bool { return r.admin }

// Stackable reports whether Offering is the trade unit. Admin shops always
// use Offering.
func (r Record) Stackable() bool { return r.stackable }

// Payments returns a copy of the accepted payments
func (r Record) Payments() []Payment {
	return append([]Payment(nil), r.payments...)
}

// Payment returns the payment option at index
func (r Record) Payment(index int) (Payment, bool) {
	if index < 0 || index >= len(r.payments) {
		return Payment{}, false
	}
	return r.payments[index], true
}

// Configured reports whether the shop has at least one payment and, when it
// sells a fixed stack, an offering. Non-stackable shops sell from the container.
func (r Record) Configured() bool {
	if len(r.payments) == 0 {
		return false
	}
	if !r.stackable && !r.admin {
		return true
	}
	return r.offering.Kind != "" && r.offering.Quantity > 0
}

// IsOwner reports whether playerID owns the shop
func (r Record) IsOwner(playerID string) bool {
	return r.ownerID == playerID
}

// WithMode returns a copy in mode m
func (r Record) WithMode(m Mode) Record {
	c := r
	c.payments = append([]Payment(nil), r.payments...)
	c.mode = m
	return c
}
