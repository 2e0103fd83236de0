package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holdings.json")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store := NewStore(path)
	store.SetBalances("BTC/USD", decimal.RequireFromString("0"), decimal.RequireFromString("0.25"), now)
	store.RecordTrade("buy", decimal.RequireFromString("64000.5"), now)
	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewStore(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := loaded.Snapshot()
	if got.Symbol != "BTC/USD" || !got.Coin.Equal(decimal.RequireFromString("0.25")) || !got.Cash.IsZero() {
		t.Fatalf("unexpected balances %+v", got)
	}
	if got.LastTradeSide != "buy" || !got.LastTradePrice.Equal(decimal.RequireFromString("64000.5")) || got.Trades != 1 {
		t.Fatalf("unexpected trade record %+v", got)
	}
	if !got.LastTradeTime.Equal(now) {
		t.Fatalf("expected last trade time %s, got %s", now, got.LastTradeTime)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err := store.Load(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestStoreWithoutPathSkipsSave(t *testing.T) {
	if err := NewStore("").Save(); err != nil {
		t.Fatalf("expected no-op save, got %v", err)
	}
}
