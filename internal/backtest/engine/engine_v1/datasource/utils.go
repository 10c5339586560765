package datasource

import (
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// getIntervalMinutes converts an Interval to its length in minutes.
func getIntervalMinutes(interval Interval) (int, error) {
	switch interval {
	case Interval1m:
		return 1, nil
	case Interval5m:
		return 5, nil
	case Interval15m:
		return 15, nil
	case Interval30m:
		return 30, nil
	case Interval1h:
		return 60, nil
	case Interval4h:
		return 240, nil
	case Interval6h:
		return 360, nil
	case Interval8h:
		return 480, nil
	case Interval12h:
		return 720, nil
	case Interval1d:
		return 1440, nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported interval: %s", interval)
	}
}
