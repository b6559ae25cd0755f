package store

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore writes trade records to a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store needs a database path")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL keeps readers off the writer's lock
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveTradeRecord(ctx context.Context, record *core.TradeRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	data, checksum, err := encodeRecord(record)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT OR REPLACE INTO trade_records
		(transaction_id, session_id, shop_id, buyer_id, seller_id, data, checksum, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		record.TransactionID, record.SessionID, record.ShopID, record.BuyerID, record.SellerID,
		string(data), checksum, record.CompletedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write trade record: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetTradeRecord(ctx context.Context, transactionID string) (*core.TradeRecord, error) {
	var data string
	var checksum []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data, checksum FROM trade_records WHERE transaction_id = ?`, transactionID,
	).Scan(&data, &checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trade %s: %w", transactionID, apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to read trade record: %w", err)
	}
	return decodeRecord([]byte(data), checksum)
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*core.TradeRecord, error) {
	return s.query(ctx,
		`SELECT data, checksum FROM trade_records ORDER BY completed_at DESC LIMIT ?`, sqlLimit(limit))
}

func (s *SQLiteStore) ListByShop(ctx context.Context, shopID string, limit int) ([]*core.TradeRecord, error) {
	return s.query(ctx,
		`SELECT data, checksum FROM trade_records WHERE shop_id = ? ORDER BY completed_at DESC LIMIT ?`,
		shopID, sqlLimit(limit))
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*core.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]*core.TradeRecord, error) {
	var out []*core.TradeRecord
	for rows.Next() {
		var data string
		var checksum []byte
		if err := rows.Scan(&data, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan trade record: %w", err)
		}
		rec, err := decodeRecord([]byte(data), checksum)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" to -1; SQLite treats a negative LIMIT as unbounded
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
