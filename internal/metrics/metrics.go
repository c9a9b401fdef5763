package metrics

import "expvar"

var (
	CycleRuns      = expvar.NewInt("cycle_runs")
	CycleErrors    = expvar.NewInt("cycle_errors")
	TradesExecuted = expvar.NewInt("trades_executed")
	TradesFailed   = expvar.NewInt("trades_failed")
	QuoteFetches   = expvar.NewInt("quote_fetches")
	QuoteErrors    = expvar.NewInt("quote_errors")
	StopTriggers   = expvar.NewInt("stop_triggers")
)
