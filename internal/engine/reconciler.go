package engine

import (
	"context"
	"time"

	"autotrader/internal/broker"
)

// reconcile refreshes the holdings file from the exchange balances. It runs at
// start and after every trade. Failures are logged; the trade already happened.
func (e *Engine) reconcile(ctx context.Context, fill *broker.Fill, now time.Time) {
	if e.holdings == nil {
		return
	}
	if e.balances != nil {
		holdings, err := e.balances.Holdings(ctx)
		if err != nil {
			e.logger.Warn("reconcile holdings failed", "error", err)
		} else {
			e.holdings.SetBalances(holdings.Symbol, holdings.Cash, holdings.Coin, now)
			e.logger.Info("holdings", "cash", holdings.Cash.String(), "coin", holdings.Coin.String())
		}
	}
	if fill != nil {
		e.holdings.RecordTrade(fill.Side, fill.Price, now)
	}
	if err := e.holdings.Save(); err != nil {
		e.logger.Warn("save holdings failed", "error", err)
	}
}
