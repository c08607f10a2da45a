// Package ibge fetches the IPCA release calendar and the IPCA number index
// from IBGE services.
package ibge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/calendar"
)

// IPCATitle is the calendar title of IPCA releases.
const IPCATitle = "Índice Nacional de Preços ao Consumidor Amplo"

// CalendarPath is the release calendar path under the services API.
const CalendarPath = "/calendario/"

const releaseLayout = "02/01/2006 15:04:05"

// ErrNotEnoughData is returned when fewer than two index points exist for
// the requested window.
var ErrNotEnoughData = errors.New("not enough IPCA data points")

type calendarResponse struct {
	Items []struct {
		Title       string `json:"titulo"`
		ReleaseDate string `json:"data_divulgacao"`
	} `json:"items"`
}

// Client fetches IBGE data. Calendar requests go to the services API and
// index requests to SIDRA.
type Client struct {
	services *api.Client
	sidra    *api.Client
	logger   *slog.Logger
}

// NewClient creates an IBGE client.
func NewClient(services, sidra *api.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{services: services, sidra: sidra, logger: logger.With("provider", "ibge")}
}

// ReleaseDates returns the IPCA release dates, sorted ascending. Entries with
// an invalid date are logged and skipped.
func (c *Client) ReleaseDates(ctx context.Context) ([]time.Time, error) {
	var resp calendarResponse
	if err := c.services.GetJSON(ctx, CalendarPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch IPCA calendar: %w", err)
	}

	var dates []time.Time
	for _, item := range resp.Items {
		if item.Title != IPCATitle {
			continue
		}
		d, err := time.Parse(releaseLayout, item.ReleaseDate)
		if err != nil {
			c.logger.Warn("invalid IPCA release date", "value", item.ReleaseDate, "error", err)
			continue
		}
		dates = append(dates, calendar.Truncate(d))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// ReleaseInMonth returns the first release date falling in the month of d.
func ReleaseInMonth(dates []time.Time, d time.Time) (time.Time, bool) {
	for _, r := range dates {
		if r.Year() == d.Year() && r.Month() == d.Month() {
			return r, true
		}
	}
	return time.Time{}, false
}
