package cli

import (
	"bartershops/internal/config"
	"bartershops/internal/core"
	"bartershops/internal/store"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// TradesOptions holds flags for the trades command.
type TradesOptions struct {
	*RootOptions
	ShopID string
	Limit  int
}

// tradeRow is the JSON view of a trade record
type tradeRow struct {
	TransactionID string `json:"transaction_id"`
	ShopID        string `json:"shop_id"`
	BuyerID       string `json:"buyer_id"`
	SellerID      string `json:"seller_id"`
	Offering      string `json:"offering"`
	Payment       string `json:"payment"`
	Tax           string `json:"tax"`
	Units         int    `json:"units"`
	Source        string `json:"source"`
	CompletedAt   string `json:"completed_at"`
}

// NewTradesCommand creates the trades command.
func NewTradesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TradesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recorded trades",
		Long: `List the most recent trades from the configured record store, newest
first. Only the sqlite and postgres stores keep history.

Examples:
  bartershops trades --config configs/config.yaml
  bartershops trades --shop 3f1c... --limit 5 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runTrades(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ShopID, "shop", "", "only list trades of this shop")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of trades, 0 for all")

	return cmd
}

func runTrades(ctx context.Context, opts *TradesOptions, out io.Writer) error {
	if opts.ShopID != "" {
		if err := ValidateIdentifier("shop", opts.ShopID); err != nil {
			return WrapExitError(ExitCommandError, "bad --shop", err)
		}
	}
	if opts.Limit < 0 {
		return WrapExitError(ExitCommandError, "bad --limit", fmt.Errorf("must not be negative"))
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := openHistory(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trade store", err)
	}
	defer st.Close()

	var records []*core.TradeRecord
	if opts.ShopID != "" {
		records, err = st.ListByShop(ctx, opts.ShopID, opts.Limit)
	} else {
		records, err = st.ListRecent(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list trades", err)
	}

	rows := make([]tradeRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, toRow(r))
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No trades recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tTRANSACTION\tSHOP\tBUYER\tOFFERING\tPAYMENT\tTAX")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CompletedAt, r.TransactionID, r.ShopID, r.BuyerID, r.Offering, r.Payment, r.Tax)
	}
	return tw.Flush()
}

// openHistory opens the configured database without the in-memory fallback
func openHistory(ctx context.Context, cfg *config.Config) (core.ITradeRecordStore, error) {
	switch store.Mode(cfg.App.StoreMode) {
	case store.ModeSQLite:
		return store.NewSQLiteStore(ctx, cfg.App.DatabasePath)
	case store.ModePostgres:
		return store.NewPostgresStore(ctx, cfg.App.DatabaseURL.Reveal())
	default:
		return nil, fmt.Errorf("store mode %q keeps no history", cfg.App.StoreMode)
	}
}

func toRow(r *core.TradeRecord) tradeRow {
	payment := r.PaymentItem.String()
	if r.IsCurrency() {
		payment = r.PricePaid.StringFixed(2)
	}
	return tradeRow{
		TransactionID: r.TransactionID,
		ShopID:        r.ShopID,
		BuyerID:       r.BuyerID,
		SellerID:      r.SellerID,
		Offering:      r.Offering.String(),
		Payment:       payment,
		Tax:           r.Tax.StringFixed(2),
		Units:         r.Units,
		Source:        string(r.Source),
		CompletedAt:   r.CompletedAt.UTC().Format(time.RFC3339),
	}
}
