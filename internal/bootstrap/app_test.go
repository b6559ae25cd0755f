package bootstrap

import (
	"bartershops/internal/config"
	"bartershops/internal/core"
	"bartershops/internal/trading/shop"
	"bartershops/internal/trading/sign"
	"bartershops/pkg/logging"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := config.DefaultConfig()
	cfg.Telemetry.EnableMetrics = false
	cfg.Trading.PurchaseCooldown = 0
	return cfg
}

func TestAppTradesEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, testConfig(), logging.NewNop())
	require.NoError(t, err)

	signLoc := core.Location{World: "world", X: 10, Y: 65, Z: 10}
	chestLoc := core.Location{World: "world", X: 10, Y: 64, Z: 10}
	r, err := shop.NewRecord(shop.RecordParams{
		ID:        "shop-1",
		OwnerID:   "owner-1",
		Location:  signLoc,
		Mode:      shop.ModeBoard,
		Offering:  core.ItemStack{Kind: "DIAMOND", Quantity: 2},
		Payments:  []shop.Payment{shop.ItemPayment("EMERALD", 3)},
		Container: chestLoc,
		Stackable: true,
	})
	require.NoError(t, err)
	app.Directory.Put(r)
	app.World.PlaceContainer(chestLoc, 0)
	require.NoError(t, app.World.AddItems(core.ContainerInventory(chestLoc), "DIAMOND", 10))
	require.NoError(t, app.World.AddItems(core.PlayerInventory("buyer-1"), "EMERALD", 6))

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	out, err := app.Click(ctx, sign.ClickEvent{
		PlayerID: "buyer-1",
		ShopID:   "shop-1",
		Action:   sign.ActionRightClick,
		Quantity: 2,
	})
	require.NoError(t, err)
	require.Equal(t, sign.OutcomeTradeOffered, out.Kind, "reason %s err %v", out.Reason, out.Err)

	res, err := app.Confirm(ctx, "buyer-1", out.Session.ID, true)
	require.NoError(t, err)
	require.True(t, res.OK(), "reason %s err %v", res.Reason, res.Err)

	assert.Equal(t, map[core.ItemKind]int{"DIAMOND": 4}, app.World.Snapshot(core.PlayerInventory("buyer-1")))
	assert.Equal(t, map[core.ItemKind]int{"DIAMOND": 6, "EMERALD": 6}, app.World.Snapshot(core.ContainerInventory(chestLoc)))

	assert.Eventually(t, func() bool {
		recs, err := app.Store.ListByShop(ctx, "shop-1", 0)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, app.PlayerQuit(ctx, "buyer-1"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, 0, app.Engine.ActiveSessionCount())
}

func TestAppCloseIsIdempotent(t *testing.T) {
	app, err := New(context.Background(), testConfig(), logging.NewNop())
	require.NoError(t, err)
	app.Close()
	app.Close()

	_, err = app.Click(context.Background(), sign.ClickEvent{PlayerID: "p", ShopID: "s"})
	assert.Error(t, err)
}

func TestEconomyConfigCarriesTiers(t *testing.T) {
	ec := economyConfig(testConfig())
	require.Len(t, ec.VolumeDiscounts, 3)
	assert.Equal(t, "0.05", ec.TaxRate.String())
	assert.True(t, ec.Enabled)
}

func TestCheckPreFlight(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory", func(*Config) {}, ""},
		{"sqlite in temp dir", func(c *Config) {
			c.App.StoreMode = "sqlite"
			c.App.DatabasePath = filepath.Join(t.TempDir(), "trades.db")
		}, ""},
		{"sqlite missing dir", func(c *Config) {
			c.App.StoreMode = "sqlite"
			c.App.DatabasePath = filepath.Join(t.TempDir(), "nope", "trades.db")
		}, "directory not found"},
		{"postgres", func(c *Config) {
			c.App.StoreMode = "postgres"
			c.App.DatabaseURL = "postgres://shops@localhost/trades"
		}, ""},
		{"postgres wrong scheme", func(c *Config) {
			c.App.StoreMode = "postgres"
			c.App.DatabaseURL = "mysql://shops@localhost/trades"
		}, "postgres scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := checkPreFlight(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigRunsPreFlight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "app:\n  store_mode: sqlite\n  database_path: /definitely/missing/dir/trades.db\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-flight")
}
