// Package store persists trade records. Every backend implements
// core.ITradeRecordStore.
package store

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed migrations/sqlite.sql
var sqliteSchema string

//go:embed migrations/postgres.sql
var postgresSchema string

// Mode selects a backend
type Mode string

const (
	ModeMemory   Mode = "memory"
	ModeSQLite   Mode = "sqlite"
	ModePostgres Mode = "postgres"
)

// Options configure Open
type Options struct {
	Mode         Mode
	DatabasePath string
	DatabaseURL  string
}

// Open creates the configured store. If a database backend cannot be
// reached the trade log falls back to memory so trading keeps running.
func Open(ctx context.Context, opts Options, logger core.ILogger) (core.ITradeRecordStore, error) {
	var (
		s   core.ITradeRecordStore
		err error
	)
	switch opts.Mode {
	case ModeMemory, "":
		return NewMemoryStore(), nil
	case ModeSQLite:
		s, err = NewSQLiteStore(ctx, opts.DatabasePath)
	case ModePostgres:
		s, err = NewPostgresStore(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store mode %q", opts.Mode)
	}
	if err != nil {
		logger.Warn("Trade store unavailable, recording to memory", "mode", string(opts.Mode), "error", err)
		return NewMemoryStore(), nil
	}
	logger.Info("Trade store opened", "mode", string(opts.Mode))
	return s, nil
}

// recordRow is the serialized form of a trade record
type recordRow struct {
	TransactionID string          `json:"transaction_id"`
	SessionID     string          `json:"session_id"`
	ShopID        string          `json:"shop_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	OfferingKind  string          `json:"offering_kind"`
	OfferingQty   int             `json:"offering_qty"`
	PaymentKind   string          `json:"payment_kind,omitempty"`
	PaymentQty    int             `json:"payment_qty,omitempty"`
	PricePaid     decimal.Decimal `json:"price_paid"`
	Tax           decimal.Decimal `json:"tax"`
	Units         int             `json:"units"`
	Source        string          `json:"source"`
	Status        string          `json:"status"`
	CompletedAt   time.Time       `json:"completed_at"`
}

func encodeRecord(r *core.TradeRecord) ([]byte, []byte, error) {
	row := recordRow{
		TransactionID: r.TransactionID,
		SessionID:     r.SessionID,
		ShopID:        r.ShopID,
		BuyerID:       r.BuyerID,
		SellerID:      r.SellerID,
		OfferingKind:  string(r.Offering.Kind),
		OfferingQty:   r.Offering.Quantity,
		PaymentKind:   string(r.PaymentItem.Kind),
		PaymentQty:    r.PaymentItem.Quantity,
		PricePaid:     r.PricePaid,
		Tax:           r.Tax,
		Units:         r.Units,
		Source:        string(r.Source),
		Status:        string(r.Status),
		CompletedAt:   r.CompletedAt.UTC(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal trade record: %w", err)
	}
	sum := sha256.Sum256(data)
	return data, sum[:], nil
}

func decodeRecord(data, checksum []byte) (*core.TradeRecord, error) {
	computed := sha256.Sum256(data)
	if !bytes.Equal(checksum, computed[:]) {
		return nil, apperrors.ErrChecksumMismatch
	}
	var row recordRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trade record: %w", err)
	}
	return &core.TradeRecord{
		TransactionID: row.TransactionID,
		SessionID:     row.SessionID,
		ShopID:        row.ShopID,
		BuyerID:       row.BuyerID,
		SellerID:      row.SellerID,
		Offering:      core.ItemStack{Kind: core.ItemKind(row.OfferingKind), Quantity: row.OfferingQty},
		PaymentItem:   core.ItemStack{Kind: core.ItemKind(row.PaymentKind), Quantity: row.PaymentQty},
		PricePaid:     row.PricePaid,
		Tax:           row.Tax,
		Units:         row.Units,
		Source:        core.TradeSource(row.Source),
		Status:        core.TradeStatus(row.Status),
		CompletedAt:   row.CompletedAt,
	}, nil
}

func validateRecord(r *core.TradeRecord) error {
	if r == nil || r.TransactionID == "" {
		return fmt.Errorf("trade record needs a transaction id")
	}
	return nil
}
