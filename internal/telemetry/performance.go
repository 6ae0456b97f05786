package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

const closeTypeCountsKey = "close_type_counts"

// DetermineControllerPerformance validates each controller report. A report with any
// non-numeric metric (close_type_counts aside) becomes an error record instead of being dropped.
func DetermineControllerPerformance(reports map[string]map[string]any) map[string]model.ControllerStatus {
	out := make(map[string]model.ControllerStatus, len(reports))
	for controller, report := range reports {
		perf, err := parsePerformance(report)
		if err != nil {
			out[controller] = model.ControllerStatus{
				Status: model.StatusError,
				Error:  fmt.Sprintf("Some metrics are not numeric, check logs and restart controller: %v", err),
			}
			continue
		}
		out[controller] = model.ControllerStatus{Status: model.StatusRunning, Performance: perf}
	}
	return out
}

func parsePerformance(report map[string]any) (*model.ControllerPerformance, error) {
	keys := make([]string, 0, len(report))
	for k := range report {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]decimal.Decimal, len(report))
	for _, key := range keys {
		if key == closeTypeCountsKey {
			continue
		}
		d, ok := toDecimal(report[key])
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidPerformanceReport, "metric %s is not numeric (%T)", key, report[key])
		}
		values[key] = d
	}

	perf := &model.ControllerPerformance{
		TotalPnl:        values["total_pnl"],
		TotalTrades:     values["total_trades"].IntPart(),
		WinRate:         values["win_rate"].InexactFloat64(),
		ProfitLossRatio: values["profit_loss_ratio"].InexactFloat64(),
		SharpeRatio:     values["sharpe_ratio"].InexactFloat64(),
		MaxDrawdown:     values["max_drawdown"].InexactFloat64(),
		StartTimestamp:  values["start_timestamp"].IntPart(),
		EndTimestamp:    values["end_timestamp"].IntPart(),
		ActivePositions: []model.Position{},
		CloseTypeCounts: map[string]int{},
	}
	if raw, ok := report[closeTypeCountsKey]; ok && raw != nil {
		counts, ok := raw.(map[string]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidPerformanceReport, "%s must be an object", closeTypeCountsKey)
		}
		for closeType, v := range counts {
			d, ok := toDecimal(v)
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrInvalidPerformanceReport, "%s.%s is not numeric", closeTypeCountsKey, closeType)
			}
			perf.CloseTypeCounts[closeType] = int(d.IntPart())
		}
	}
	return perf, nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Decimal{}, false
}
