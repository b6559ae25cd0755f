package core

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind identifies an item type, e.g. "DIAMOND"
type ItemKind string

// ItemStack is a quantity of one item kind
type ItemStack struct {
	Kind     ItemKind
	Quantity int
}

func (s ItemStack) String() string {
	return fmt.Sprintf("%dx%s", s.Quantity, s.Kind)
}

// Times scales the stack by n trade units. Check Scalable first.
func (s ItemStack) Times(n int) ItemStack {
	return ItemStack{Kind: s.Kind, Quantity: s.Quantity * n}
}

// Scalable reports whether Times(n) fits in an int
func (s ItemStack) Scalable(n int) bool {
	if n < 0 {
		return false
	}
	return s.Quantity <= 0 || n <= math.MaxInt/s.Quantity
}

// Location is a block position in a world
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d,%d,%d", l.World, l.X, l.Y, l.Z)
}

// InventoryKind distinguishes player inventories from block containers
type InventoryKind int

const (
	InventoryPlayer InventoryKind = iota
	InventoryContainer
)

// InventoryRef addresses an inventory
type InventoryRef struct {
	Kind InventoryKind
	ID   string
}

// PlayerInventory addresses a player's own inventory
func PlayerInventory(playerID string) InventoryRef {
	return InventoryRef{Kind: InventoryPlayer, ID: playerID}
}

// ContainerInventory addresses the container block at loc
func ContainerInventory(loc Location) InventoryRef {
	return InventoryRef{Kind: InventoryContainer, ID: loc.String()}
}

func (r InventoryRef) String() string {
	if r.Kind == InventoryPlayer {
		return "player:" + r.ID
	}
	return "container:" + r.ID
}

// TransactionResult is the outcome of an economy call
type TransactionResult struct {
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

// TradeSource tags how a trade was started
type TradeSource string

const (
	SourceGUIConfirmation    TradeSource = "GUI_CONFIRMATION"
	SourceInstantPurchase    TradeSource = "INSTANT_PURCHASE"
	SourceDepositExchange    TradeSource = "DEPOSIT_EXCHANGE"
	SourceWithdrawalExchange TradeSource = "WITHDRAWAL_EXCHANGE"
	SourceAdminOverride      TradeSource = "ADMIN_OVERRIDE"
)

// TradeStatus is the persisted status of a trade record
type TradeStatus string

const (
	StatusCompleted TradeStatus = "COMPLETED"
	StatusCancelled TradeStatus = "CANCELLED"
	StatusFailed    TradeStatus = "FAILED"
	StatusPending   TradeStatus = "PENDING"
	StatusRefunded  TradeStatus = "REFUNDED"
)

// TradeRecord is the persisted audit row of a settled trade
type TradeRecord struct {
	TransactionID string
	SessionID     string
	ShopID        string
	BuyerID       string
	SellerID      string
	Offering      ItemStack
	// PaymentItem is empty for currency trades
	PaymentItem ItemStack
	PricePaid   decimal.Decimal
	Tax         decimal.Decimal
	Units       int
	Source      TradeSource
	Status      TradeStatus
	CompletedAt time.Time
}

// IsCurrency reports whether the buyer paid in currency
func (r *TradeRecord) IsCurrency() bool {
	return r.PaymentItem.Kind == ""
}
