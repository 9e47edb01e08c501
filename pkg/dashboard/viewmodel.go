// Package dashboard derives presentation values from a fetched financial
// snapshot: urgency-sorted KPI rows, a net-worth trend, and an
// assets-vs-liabilities breakdown. Everything here is a pure transformation;
// nothing mutates server state.
package dashboard

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// epsilon guards divisions by zero-ish targets and balances.
const epsilon = 1e-9

// Direction declares which side of the target is healthy.
type Direction string

const (
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
)

// Format selects the display formatting for a KPI value.
type Format string

const (
	FormatPercent Format = "percent"
	FormatMonths  Format = "months"
	FormatRatio   Format = "ratio"
)

// Snapshot is the dashboard payload fetched from the gateway. It is treated
// as read-only input.
type Snapshot struct {
	Inputs          map[string]any     `json:"inputs,omitempty"`
	KPIs            map[string]float64 `json:"kpis,omitempty"`
	Levels          map[string]any     `json:"levels,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	ProvisionalKeys []string           `json:"provisional_keys,omitempty"`
}

// Point is one sample of the net-worth time series.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// KPIDef declares one KPI's target and presentation.
type KPIDef struct {
	Key       string
	Label     string
	Target    float64
	Direction Direction
	Format    Format
}

// KPIRow is one renderable dashboard row.
type KPIRow struct {
	Key         string
	Label       string
	Value       float64
	Known       bool
	Target      float64
	Direction   Direction
	Format      Format
	Display     string
	Urgency     float64
	Progress    float64
	Provisional bool
}

// Trend classifies the direction of a time series.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Breakdown splits a balance sheet into debt and equity portions.
type Breakdown struct {
	Assets  float64
	Debts   float64
	DebtPct float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// urgency scores how far a KPI is from its target, normalized by the target.
// Values meeting the target score exactly 0; unknown values score -1 so they
// sort last.
func urgency(value, target float64, direction Direction) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return -1
	}
	denom := math.Max(target, epsilon)
	switch direction {
	case DirectionLower:
		if value <= target {
			return 0
		}
		return (value - target) / denom
	default:
		if value >= target {
			return 0
		}
		return (target - value) / denom
	}
}

// progress computes the progress-bar fill for a row, clamped to [0, 1].
func progress(value, target float64, direction Direction) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	if direction == DirectionLower {
		return clamp01(target / math.Max(value, epsilon))
	}
	return clamp01(value / math.Max(target, epsilon))
}

// BuildKPIRows derives sorted KPI rows from a snapshot. Rows sort worst-off
// first (descending urgency); ties keep the definition order.
func BuildKPIRows(snapshot Snapshot, defs []KPIDef) []KPIRow {
	provisional := make(map[string]struct{}, len(snapshot.ProvisionalKeys))
	for _, key := range snapshot.ProvisionalKeys {
		provisional[key] = struct{}{}
	}

	rows := make([]KPIRow, 0, len(defs))
	for _, def := range defs {
		value, known := snapshot.KPIs[def.Key]
		if known && (math.IsNaN(value) || math.IsInf(value, 0)) {
			known = false
		}
		row := KPIRow{
			Key:       def.Key,
			Label:     def.Label,
			Value:     value,
			Known:     known,
			Target:    def.Target,
			Direction: def.Direction,
			Format:    def.Format,
		}
		if known {
			row.Urgency = urgency(value, def.Target, def.Direction)
			row.Progress = progress(value, def.Target, def.Direction)
			row.Display = FormatValue(value, def.Format)
		} else {
			row.Urgency = -1
			row.Display = "—"
		}
		if _, ok := provisional[def.Key]; ok {
			row.Provisional = true
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Urgency > rows[j].Urgency
	})
	return rows
}

// NetWorthTrend compares the last two points of the series.
func NetWorthTrend(series []Point) Trend {
	if len(series) < 2 {
		return TrendFlat
	}
	last := series[len(series)-1].Value
	prev := series[len(series)-2].Value
	switch {
	case last > prev:
		return TrendUp
	case last < prev:
		return TrendDown
	default:
		return TrendFlat
	}
}

// BuildBreakdown computes the assets-vs-liabilities bar. The equity portion
// is the remainder of the debt fraction.
func BuildBreakdown(assets, debts float64) Breakdown {
	return Breakdown{
		Assets:  assets,
		Debts:   debts,
		DebtPct: clamp01(debts / math.Max(assets, epsilon)),
	}
}

// FormatValue renders a KPI value for display.
func FormatValue(value float64, format Format) string {
	switch format {
	case FormatPercent:
		return fmt.Sprintf("%.0f%%", value*100)
	case FormatMonths:
		return fmt.Sprintf("%.1f mo", value)
	case FormatRatio:
		return fmt.Sprintf("%.2f", value)
	default:
		return fmt.Sprintf("%.2f", value)
	}
}

// FormatCurrency compacts a dollar amount the way the dashboard header does:
// $950, $1.2k, $3.4M.
func FormatCurrency(value float64) string {
	abs := math.Abs(value)
	sign := ""
	if value < 0 {
		sign = "-"
	}
	switch {
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.1fM", sign, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.1fk", sign, abs/1e3)
	default:
		return fmt.Sprintf("%s$%.0f", sign, abs)
	}
}

// DefaultKPIDefs mirrors the product's standard dashboard rows.
func DefaultKPIDefs() []KPIDef {
	return []KPIDef{
		{Key: "sr", Label: "Savings rate", Target: 0.20, Direction: DirectionHigher, Format: FormatPercent},
		{Key: "ef_months", Label: "Emergency fund", Target: 3, Direction: DirectionHigher, Format: FormatMonths},
		{Key: "dti", Label: "Debt-to-income", Target: 0.36, Direction: DirectionLower, Format: FormatPercent},
		{Key: "hr", Label: "Housing ratio", Target: 0.40, Direction: DirectionLower, Format: FormatPercent},
		{Key: "dsr", Label: "Debt servicing", Target: 0.10, Direction: DirectionLower, Format: FormatPercent},
	}
}
