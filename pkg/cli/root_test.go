package cli

import (
	"bartershops/internal/core"
	"bartershops/internal/store"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "trades", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "version", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "bartershops "+Version)

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

// seedHistory writes n trades into a sqlite store and returns a config file pointing at it
func seedHistory(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "trades.db")

	st, err := store.NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		shopID := "shop-a"
		if i%2 == 1 {
			shopID = "shop-b"
		}
		require.NoError(t, st.SaveTradeRecord(context.Background(), &core.TradeRecord{
			TransactionID: fmt.Sprintf("tx-%d", i),
			SessionID:     fmt.Sprintf("sess-%d", i),
			ShopID:        shopID,
			BuyerID:       "buyer-1",
			SellerID:      "owner-1",
			Offering:      core.ItemStack{Kind: "DIAMOND", Quantity: 5},
			PricePaid:     decimal.NewFromInt(100),
			Tax:           decimal.NewFromInt(5),
			Units:         1,
			Source:        core.SourceGUIConfirmation,
			Status:        core.StatusCompleted,
			CompletedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, st.Close())

	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("app:\n  store_mode: sqlite\n  database_path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath
}

func TestTradesJSON(t *testing.T) {
	cfgPath := seedHistory(t, 4)

	out, err := execute(t, "trades", "--config", cfgPath, "--format", "json", "--limit", "3")
	require.NoError(t, err)

	var rows []tradeRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "tx-3", rows[0].TransactionID)
	assert.Equal(t, "100.00", rows[0].Payment)
	assert.Equal(t, "5.00", rows[0].Tax)
}

func TestTradesByShopText(t *testing.T) {
	cfgPath := seedHistory(t, 4)

	out, err := execute(t, "trades", "--config", cfgPath, "--shop", "shop-a", "--limit", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "TRANSACTION")
	assert.Contains(t, out, "tx-0")
	assert.Contains(t, out, "tx-2")
	assert.NotContains(t, out, "tx-1")
}

func TestTradesRejectsBadInput(t *testing.T) {
	cfgPath := seedHistory(t, 1)

	_, err := execute(t, "trades", "--config", cfgPath, "--shop", "a;b")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	memCfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(memCfg, []byte("app:\n  store_mode: memory\n"), 0o600))
	_, err = execute(t, "trades", "--config", memCfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "keeps no history")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitCommandError, "x", nil))))
}
