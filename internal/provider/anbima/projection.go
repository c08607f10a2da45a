package anbima

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/brmarket-history/internal/provider"
)

// IndicatorsPath is the ANBIMA page carrying the macro projections.
const IndicatorsPath = "/informacoes/indicadores/"

// Projection is the ANBIMA projection for the current month's IPCA.
type Projection struct {
	// Percent is the projected monthly IPCA in percent, e.g. 0.35.
	Percent decimal.Decimal
	Period  string
}

// IPCAProjection fetches the current IPCA projection.
func (c *Client) IPCAProjection(ctx context.Context) (Projection, error) {
	body, err := c.api.Get(ctx, IndicatorsPath, nil)
	if err != nil {
		return Projection{}, fmt.Errorf("fetch indicators page: %w", err)
	}
	doc, err := provider.Latin1(body)
	if err != nil {
		return Projection{}, fmt.Errorf("decode indicators page: %w", err)
	}
	p, err := ParseProjection(doc)
	if err != nil {
		return Projection{}, err
	}
	c.logger.Info("IPCA projection", "percent", p.Percent.StringFixed(2), "period", p.Period)
	return p, nil
}

// ParseProjection finds the IPCA row of the projections table.
func ParseProjection(doc []byte) (Projection, error) {
	tables, err := provider.Tables(doc)
	if err != nil {
		return Projection{}, err
	}

	for _, t := range tables {
		valueCol := -1
		for _, row := range t {
			if valueCol < 0 {
				for i, cell := range row {
					if strings.HasPrefix(provider.Fold(cell), "PROJECAO") {
						valueCol = i
						break
					}
				}
				continue
			}
			if len(row) <= valueCol || !isIPCA(row[0]) {
				continue
			}
			v, ok := provider.ParseNumber(row[valueCol])
			if !ok {
				return Projection{}, fmt.Errorf("IPCA projection %q is not a number", row[valueCol])
			}
			p := Projection{Percent: decimal.NewFromFloat(v)}
			if valueCol > 1 {
				p.Period = row[1]
			}
			return p, nil
		}
	}
	return Projection{}, fmt.Errorf("IPCA projection: %w", provider.ErrNotPublished)
}

func isIPCA(cell string) bool {
	f := provider.Fold(cell)
	return f == "IPCA" || strings.HasPrefix(f, "IPCA ") || strings.HasPrefix(f, "IPCA(")
}
