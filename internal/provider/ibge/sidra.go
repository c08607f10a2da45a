package ibge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Point is one month of the IPCA number index.
type Point struct {
	Period string // yyyymm
	Value  decimal.Decimal
}

type sidraRow struct {
	Value  string `json:"V"`
	Period string `json:"D3C"`
}

// IndexPath returns the SIDRA path of IPCA number index (table 1737,
// variable 2266) between two months.
func IndexPath(start, end time.Time) string {
	return fmt.Sprintf("/values/t/1737/n1/all/v/2266/p/%s-%s", start.Format("200601"), end.Format("200601"))
}

// Index returns the IPCA number index for the months between start and end.
// Months without a published value are omitted.
func (c *Client) Index(ctx context.Context, start, end time.Time) ([]Point, error) {
	var rows []sidraRow
	if err := c.sidra.GetJSON(ctx, IndexPath(start, end), nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch IPCA index: %w", err)
	}

	var points []Point
	// The first row holds the column titles.
	for i, r := range rows {
		if i == 0 {
			continue
		}
		v, err := decimal.NewFromString(r.Value)
		if err != nil {
			continue
		}
		points = append(points, Point{Period: r.Period, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points, nil
}

// MonthlyRate returns the latest monthly IPCA in percent, computed from the
// last two index points within monthsBack months of now.
func (c *Client) MonthlyRate(ctx context.Context, now time.Time, monthsBack int) (decimal.Decimal, error) {
	points, err := c.Index(ctx, now.AddDate(0, -monthsBack, 0), now)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, err := MonthlyRate(points)
	if err != nil {
		return decimal.Decimal{}, err
	}
	c.logger.Info("IPCA monthly rate", "percent", rate.StringFixed(2), "period", points[len(points)-1].Period)
	return rate, nil
}

// MonthlyRate computes last/previous - 1 in percent.
func MonthlyRate(points []Point) (decimal.Decimal, error) {
	if len(points) < 2 {
		return decimal.Decimal{}, ErrNotEnoughData
	}
	last := points[len(points)-1].Value
	prev := points[len(points)-2].Value
	if prev.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("IPCA index is zero for %s", points[len(points)-2].Period)
	}
	return last.DivRound(prev, 16).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)), nil
}
