package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the account holdings file. Only balances and the last trade are
// recorded; evaluation state is rebuilt from scratch on every start.
type Snapshot struct {
	Symbol         string          `json:"symbol"`
	Cash           decimal.Decimal `json:"cash"`
	Coin           decimal.Decimal `json:"coin"`
	LastTradeSide  string          `json:"last_trade_side,omitempty"`
	LastTradePrice decimal.Decimal `json:"last_trade_price"`
	LastTradeTime  time.Time       `json:"last_trade_time,omitempty"`
	Trades         int             `json:"trades"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Store struct {
	mu       sync.RWMutex
	path     string
	snapshot Snapshot
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Store) SetBalances(symbol string, cash, coin decimal.Decimal, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Symbol = symbol
	s.snapshot.Cash = cash
	s.snapshot.Coin = coin
	s.snapshot.UpdatedAt = now
}

func (s *Store) RecordTrade(side string, price decimal.Decimal, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastTradeSide = side
	s.snapshot.LastTradePrice = price
	s.snapshot.LastTradeTime = at
	s.snapshot.Trades++
}

// Save writes the snapshot atomically through a temp file in the same
// directory.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".holdings-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}
