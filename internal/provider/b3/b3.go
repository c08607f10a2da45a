// Package b3 fetches DI1 futures data from the B3 "Sistema Pregão" daily
// summary.
package b3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/provider"
	"github.com/rickgao/brmarket-history/internal/table"
)

// SummaryPath is the summary report path under the boletim base URL.
const SummaryPath = "/SistemaPregao1.asp"

// Column names of the DI1 table.
const (
	ColTradeDate       = "TradeDate"
	ColTickerSymbol    = "TickerSymbol"
	ColExpirationDate  = "ExpirationDate"
	ColDaysToExp       = "DaysToExp"
	ColBDaysToExp      = "BDaysToExp"
	ColOpenContracts   = "OpenContracts"
	ColTradeCount      = "TradeCount"
	ColTradeVolume     = "TradeVolume"
	ColFinancialVolume = "FinancialVolume"
	ColDV01            = "DV01"
	ColSettlementPrice = "SettlementPrice"
	ColBestBidRate     = "BestBidRate"
	ColBestAskRate     = "BestAskRate"
	ColOpenRate        = "OpenRate"
	ColMinRate         = "MinRate"
	ColAvgRate         = "AvgRate"
	ColMaxRate         = "MaxRate"
	ColCloseRate       = "CloseRate"
	ColSettlementRate  = "SettlementRate"
	ColForwardRate     = "ForwardRate"
)

// Keys is the natural key of the DI1 table.
var Keys = []string{ColTradeDate, ColTickerSymbol}

// DateColumns are stored with a date type.
var DateColumns = []string{ColTradeDate, ColExpirationDate}

// Required must be present in every fetched table.
var Required = []string{ColTradeDate, ColTickerSymbol, ColSettlementRate}

// monthCodes maps the futures month letter to its month.
var monthCodes = map[byte]time.Month{
	'F': time.January, 'G': time.February, 'H': time.March, 'J': time.April,
	'K': time.May, 'M': time.June, 'N': time.July, 'Q': time.August,
	'U': time.September, 'V': time.October, 'X': time.November, 'Z': time.December,
}

var codePattern = regexp.MustCompile(`^[FGHJKMNQUVXZ]\d{2}$`)

// rate columns of the summary keyed by folded header prefix.
var rateHeaders = []struct {
	prefix string
	column string
}{
	{"PRECO ABERTU", ColOpenRate},
	{"PRECO MIN", ColMinRate},
	{"PRECO MED", ColAvgRate},
	{"PRECO MAX", ColMaxRate},
	{"ULT. PRECO", ColCloseRate},
	{"ULT. OF. COMPRA", ColBestBidRate},
	{"ULT. OF. VENDA", ColBestAskRate},
}

var countHeaders = []struct {
	prefix string
	column string
}{
	{"CONTR. ABERT", ColOpenContracts},
	{"NUM. NEGOC", ColTradeCount},
	{"CONTR. NEGOC", ColTradeVolume},
}

// Client fetches DI1 futures.
type Client struct {
	api    *api.Client
	cal    calendar.Oracle
	logger *slog.Logger
}

// NewClient creates a DI1 client on top of an api client rooted at the
// boletim base URL.
func NewClient(c *api.Client, cal calendar.Oracle, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: c, cal: cal, logger: logger.With("provider", "b3")}
}

// DI1 returns the DI1 futures table for tradeDate. An empty table means B3
// has not published the session.
func (c *Client) DI1(ctx context.Context, tradeDate time.Time) (dataframe.DataFrame, error) {
	query := url.Values{
		"pagetype":   {"pop"},
		"caminho":    {"Resumo Estatístico - Sistema Pregão"},
		"Data":       {tradeDate.Format("02/01/2006")},
		"Mercadoria": {"DI1"},
	}
	body, err := c.api.Get(ctx, SummaryPath, query)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return dataframe.DataFrame{}, nil
		}
		return dataframe.DataFrame{}, fmt.Errorf("fetch DI1 summary: %w", err)
	}
	doc, err := provider.Latin1(body)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("decode DI1 summary: %w", err)
	}

	df, err := Parse(doc, tradeDate, c.cal)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	c.logger.Debug("DI1 summary parsed", "trade_date", tradeDate.Format(time.DateOnly), "contracts", df.Nrow())
	return df, nil
}

type contract struct {
	ticker    string
	exp       time.Time
	days      int
	bdays     int
	counts    map[string]int
	rates     map[string]float64
	volume    float64
	hasVolume bool
	price     float64
	hasPrice  bool
}

// Parse turns a decoded summary page into the DI1 table. Expired contracts
// are dropped and so are columns with no value at all.
func Parse(doc []byte, tradeDate time.Time, cal calendar.Oracle) (dataframe.DataFrame, error) {
	tradeDate = calendar.Truncate(tradeDate)
	tables, err := provider.Tables(doc)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	var header []string
	var contracts []contract
	for _, t := range tables {
		for _, row := range t {
			if len(row) == 0 {
				continue
			}
			if provider.Fold(row[0]) == "VENCTO" {
				header = make([]string, len(row))
				for i, h := range row {
					header[i] = provider.Fold(h)
				}
				continue
			}
			if header == nil || len(row) != len(header) || !codePattern.MatchString(row[0]) {
				continue
			}
			ct, ok := parseRow(header, row, tradeDate, cal)
			if ok {
				contracts = append(contracts, ct)
			}
		}
	}
	if len(contracts) == 0 {
		return dataframe.DataFrame{}, nil
	}

	sort.Slice(contracts, func(i, j int) bool { return contracts[i].exp.Before(contracts[j].exp) })
	return build(tradeDate, contracts)
}

func parseRow(header, row []string, tradeDate time.Time, cal calendar.Oracle) (contract, bool) {
	code := row[0]
	exp, err := ExpirationDate(code, cal)
	if err != nil {
		return contract{}, false
	}
	bdays := cal.Count(tradeDate, exp)
	if bdays <= 0 {
		return contract{}, false
	}

	ct := contract{
		ticker: "DI1" + code,
		exp:    exp,
		days:   int(exp.Sub(tradeDate).Hours() / 24),
		bdays:  bdays,
		counts: make(map[string]int),
		rates:  make(map[string]float64),
	}
	for i, h := range header {
		cell := row[i]
		switch {
		case h == "AJUSTE":
			ct.price, ct.hasPrice = provider.ParseNumber(cell)
		case hasPrefix(h, "VOL"):
			ct.volume, ct.hasVolume = provider.ParseNumber(cell)
		default:
			for _, ch := range countHeaders {
				if hasPrefix(h, ch.prefix) {
					if v, ok := provider.ParseInt(cell); ok {
						ct.counts[ch.column] = v
					}
				}
			}
			for _, rh := range rateHeaders {
				if hasPrefix(h, rh.prefix) {
					if v, ok := provider.ParseNumber(cell); ok {
						ct.rates[rh.column] = provider.Rate(v, 5)
					}
				}
			}
		}
	}
	return ct, true
}

func hasPrefix(h, p string) bool {
	return len(h) >= len(p) && h[:len(p)] == p
}

func build(tradeDate time.Time, contracts []contract) (dataframe.DataFrame, error) {
	b := table.NewBuilder().
		Column(ColTradeDate, series.String).
		Column(ColTickerSymbol, series.String).
		Column(ColExpirationDate, series.String).
		Column(ColDaysToExp, series.Int).
		Column(ColBDaysToExp, series.Int).
		Column(ColOpenContracts, series.Int).
		Column(ColTradeCount, series.Int).
		Column(ColTradeVolume, series.Int).
		Column(ColFinancialVolume, series.Float).
		Column(ColDV01, series.Float).
		Column(ColSettlementPrice, series.Float).
		Column(ColBestBidRate, series.Float).
		Column(ColBestAskRate, series.Float).
		Column(ColOpenRate, series.Float).
		Column(ColMinRate, series.Float).
		Column(ColAvgRate, series.Float).
		Column(ColMaxRate, series.Float).
		Column(ColCloseRate, series.Float).
		Column(ColSettlementRate, series.Float).
		Column(ColForwardRate, series.Float)

	var prevRate float64
	var prevBDays int
	var havePrev bool
	for _, ct := range contracts {
		row := map[string]interface{}{
			ColTradeDate:      tradeDate.Format(time.DateOnly),
			ColTickerSymbol:   ct.ticker,
			ColExpirationDate: ct.exp.Format(time.DateOnly),
			ColDaysToExp:      ct.days,
			ColBDaysToExp:     ct.bdays,
		}
		for col, v := range ct.counts {
			row[col] = v
		}
		for col, v := range ct.rates {
			row[col] = v
		}
		if ct.hasVolume {
			row[ColFinancialVolume] = ct.volume
		}
		if ct.hasPrice && ct.price > 0 {
			rate := SettlementRate(ct.price, ct.bdays)
			row[ColSettlementPrice] = ct.price
			row[ColSettlementRate] = rate
			row[ColDV01] = DV01(rate, ct.price, ct.bdays)
			if havePrev {
				row[ColForwardRate] = ForwardRate(prevRate, prevBDays, rate, ct.bdays)
			} else {
				row[ColForwardRate] = rate
			}
			prevRate, prevBDays, havePrev = rate, ct.bdays, true
		}
		if err := b.Append(row); err != nil {
			return dataframe.DataFrame{}, err
		}
	}
	return b.Build(true), nil
}

// ExpirationDate returns the expiration of a contract month code such as
// "F26": the first business day of the month.
func ExpirationDate(code string, cal calendar.Oracle) (time.Time, error) {
	if !codePattern.MatchString(code) {
		return time.Time{}, fmt.Errorf("invalid contract code %q", code)
	}
	month := monthCodes[code[0]]
	year := 2000 + int(code[1]-'0')*10 + int(code[2]-'0')
	return cal.Offset(calendar.Date(year, month, 1), 0), nil
}

// SettlementRate is the annual rate implied by a settlement price (PU) with
// bdays business days to expiration, rounded to 5 decimals.
func SettlementRate(price float64, bdays int) float64 {
	return provider.Round(math.Pow(100000/price, 252/float64(bdays))-1, 5)
}

// ForwardRate is the rate between two consecutive expirations, rounded to
// 5 decimals.
func ForwardRate(rate1 float64, bdays1 int, rate2 float64, bdays2 int) float64 {
	if bdays2 <= bdays1 {
		return rate2
	}
	f1 := math.Pow(1+rate1, float64(bdays1)/252)
	f2 := math.Pow(1+rate2, float64(bdays2)/252)
	return provider.Round(math.Pow(f2/f1, 252/float64(bdays2-bdays1))-1, 5)
}

// DV01 is the price change for a one basis point move in rate.
func DV01(rate, price float64, bdays int) float64 {
	duration := float64(bdays) / 252
	return 0.0001 * duration / (1 + rate) * price
}
