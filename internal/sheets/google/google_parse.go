package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"finora/internal/core"
)

// parseForecasts converts a values matrix (as returned by the Sheets API)
// into saved forecasts keyed by month. The first row holds the headers.
// Later rows for the same month win.
func parseForecasts(values [][]interface{}) (map[core.MonthKey]core.SavedForecast, error) {
	out := map[core.MonthKey]core.SavedForecast{}
	if len(values) == 0 {
		return out, nil
	}
	headers := toStrings(values[0])
	colMonth := indexOf(headers, "Month")
	colBalance := indexOf(headers, "ProjectedBalanceCts")
	colComputed := indexOf(headers, "ComputedAt")
	if colMonth == -1 || colBalance == -1 {
		return nil, fmt.Errorf("unexpected forecast header: want Month and ProjectedBalanceCts; got headers=%v", headers)
	}

	for i := 1; i < len(values); i++ {
		row := values[i]
		month, err := core.ParseMonthKey(strings.TrimSpace(cellString(row, colMonth)))
		if err != nil {
			continue
		}
		cents, ok := cellCents(row, colBalance)
		if !ok {
			continue
		}
		f := core.SavedForecast{Month: month, ProjectedBalanceCts: cents}
		if colComputed != -1 {
			if t, err := core.ParseInstant(strings.TrimSpace(cellString(row, colComputed))); err == nil {
				f.ComputedAt = t
			}
		}
		out[month] = f
	}
	return out, nil
}

// cellCents reads an integer cents cell. Unformatted numbers arrive as
// float64; anything fractional or non-numeric is rejected.
func cellCents(row []interface{}, idx int) (int64, bool) {
	if idx < 0 || idx >= len(row) {
		return 0, false
	}
	switch v := row[idx].(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func cellString(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(v, target) {
			return i
		}
	}
	return -1
}
