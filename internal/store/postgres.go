package store

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore writes trade records to a shared Postgres database
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres store needs a database url")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveTradeRecord(ctx context.Context, record *core.TradeRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	data, checksum, err := encodeRecord(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into trade_records
		   (transaction_id, session_id, shop_id, buyer_id, seller_id, data, checksum, completed_at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8)
		 on conflict (transaction_id) do update
		 set data = excluded.data,
		     checksum = excluded.checksum,
		     completed_at = excluded.completed_at`,
		record.TransactionID, record.SessionID, record.ShopID, record.BuyerID, record.SellerID,
		string(data), checksum, record.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert trade record: %w", describe(err))
	}
	return nil
}

func (s *PostgresStore) GetTradeRecord(ctx context.Context, transactionID string) (*core.TradeRecord, error) {
	var data string
	var checksum []byte
	err := s.db.QueryRowContext(ctx,
		`select data, checksum from trade_records where transaction_id = $1`, transactionID,
	).Scan(&data, &checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trade %s: %w", transactionID, apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("select trade record: %w", describe(err))
	}
	return decodeRecord([]byte(data), checksum)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*core.TradeRecord, error) {
	return s.query(ctx,
		`select data, checksum from trade_records order by completed_at desc limit $1`, pgLimit(limit))
}

func (s *PostgresStore) ListByShop(ctx context.Context, shopID string, limit int) ([]*core.TradeRecord, error) {
	return s.query(ctx,
		`select data, checksum from trade_records where shop_id = $1 order by completed_at desc limit $2`,
		shopID, pgLimit(limit))
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...interface{}) ([]*core.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select trade records: %w", describe(err))
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// pgLimit maps "no limit" to NULL, which Postgres reads as LIMIT ALL
func pgLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

// describe adds the Postgres error code to driver errors
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
