package engine

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
)

// CalculateMetrics derives the run's performance metrics from the finished
// trade log and equity/drawdown curves. It is a pure function: calling it
// twice on the same finished run yields identical results.
func CalculateMetrics(
	config BacktestConfig,
	trades []types.Trade,
	equityCurve []types.EquityPoint,
	drawdownCurve []types.DrawdownPoint,
	finalEquity float64,
	halted bool,
) types.BacktestMetrics {
	metrics := types.BacktestMetrics{
		InitialCapital:        config.InitialCapital,
		FinalEquity:           finalEquity,
		TotalReturn:           finalEquity - config.InitialCapital,
		HaltedByDrawdownLimit: halted,
	}

	if config.InitialCapital > 0 {
		metrics.TotalReturnPct = metrics.TotalReturn / config.InitialCapital * 100
	}

	metrics.CAGR = cagr(config.InitialCapital, finalEquity, equityCurve)

	returns := periodReturns(equityCurve)

	if len(returns) >= 2 {
		if stdev, err := stats.StandardDeviationSample(returns); err == nil && stdev > 0 {
			metrics.Volatility = stdev * math.Sqrt(tradingDaysPerYear)

			mean, _ := stats.Mean(returns)
			metrics.SharpeRatio = mean / stdev * math.Sqrt(tradingDaysPerYear)
		}
	}

	metrics.SortinoRatio = sortino(returns)

	maxDrawdown := 0.0
	for _, point := range drawdownCurve {
		if point.Drawdown > maxDrawdown {
			maxDrawdown = point.Drawdown
		}
	}

	metrics.MaxDrawdownPct = maxDrawdown * 100

	if maxDrawdown > 0 {
		metrics.CalmarRatio = metrics.CAGR / maxDrawdown
	}

	metrics.TotalTrades = len(trades)

	winningPnL := 0.0
	losingPnL := 0.0

	for _, trade := range trades {
		switch {
		case trade.PnL > 0:
			metrics.WinningTrades++
			winningPnL += trade.PnL
		case trade.PnL < 0:
			metrics.LosingTrades++
			losingPnL += trade.PnL
		}
	}

	if metrics.TotalTrades > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades) * 100

		switch {
		case losingPnL < 0:
			metrics.ProfitFactor = winningPnL / math.Abs(losingPnL)
		case winningPnL > 0:
			metrics.ProfitFactor = math.Inf(1)
		}
	}

	return metrics
}

// cagr computes the compound annual growth rate over the sampled period.
// Returns 0 when the period is empty or the equity ratio is not positive.
func cagr(initialCapital float64, finalEquity float64, equityCurve []types.EquityPoint) float64 {
	if len(equityCurve) == 0 || initialCapital <= 0 || finalEquity <= 0 {
		return 0
	}

	start := equityCurve[0].Timestamp
	end := equityCurve[len(equityCurve)-1].Timestamp

	years := end.Sub(start).Hours() / 24 / daysPerYear
	if years <= 0 {
		return 0
	}

	return math.Pow(finalEquity/initialCapital, 1/years) - 1
}

// periodReturns computes the percent change between consecutive equity
// samples.
func periodReturns(equityCurve []types.EquityPoint) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equityCurve)-1)

	for i := 1; i < len(equityCurve); i++ {
		previous := equityCurve[i-1].Equity
		if previous == 0 {
			continue
		}

		returns = append(returns, (equityCurve[i].Equity-previous)/previous)
	}

	return returns
}

// sortino computes the Sortino ratio: mean return over the stdev of negative
// returns only. Returns 0 when no negative returns exist.
func sortino(returns []float64) float64 {
	var downside []float64

	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if len(downside) < 2 {
		return 0
	}

	stdev, err := stats.StandardDeviationSample(downside)
	if err != nil || stdev == 0 {
		return 0
	}

	mean, _ := stats.Mean(returns)

	return mean / stdev * math.Sqrt(tradingDaysPerYear)
}
