// Package anbima fetches sovereign bond (TPF) indicative prices and the
// IPCA projection published by ANBIMA.
package anbima

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/provider"
	"github.com/rickgao/brmarket-history/internal/table"
)

// Column names of the TPF table.
const (
	ColBondType       = "BondType"
	ColReferenceDate  = "ReferenceDate"
	ColSelicCode      = "SelicCode"
	ColIssueBaseDate  = "IssueBaseDate"
	ColMaturityDate   = "MaturityDate"
	ColBDToMat        = "BDToMat"
	ColDuration       = "Duration"
	ColDV01           = "DV01"
	ColPrice          = "Price"
	ColBidRate        = "BidRate"
	ColAskRate        = "AskRate"
	ColIndicativeRate = "IndicativeRate"
	ColStdDev         = "StdDev"
	ColLowerRateD0    = "LowerRateD0"
	ColUpperRateD0    = "UpperRateD0"
	ColLowerRateD1    = "LowerRateD1"
	ColUpperRateD1    = "UpperRateD1"
	ColCriteria       = "Criteria"
)

// Keys is the natural key of the TPF table.
var Keys = []string{ColReferenceDate, ColBondType, ColMaturityDate}

// DateColumns are stored with a date type.
var DateColumns = []string{ColReferenceDate, ColIssueBaseDate, ColMaturityDate}

// Required must be present in every fetched table.
var Required = []string{ColBondType, ColReferenceDate, ColMaturityDate, ColIndicativeRate}

// rateColumns are published in percent.
var rateColumns = map[string]bool{
	ColBidRate: true, ColAskRate: true, ColIndicativeRate: true,
	ColLowerRateD0: true, ColUpperRateD0: true, ColLowerRateD1: true, ColUpperRateD1: true,
}

// fileColumns maps the folded ms file header to output columns.
var fileColumns = map[string]string{
	"TITULO":                  ColBondType,
	"DATA REFERENCIA":         ColReferenceDate,
	"CODIGO SELIC":            ColSelicCode,
	"DATA BASE/EMISSAO":       ColIssueBaseDate,
	"DATA VENCIMENTO":         ColMaturityDate,
	"TX. COMPRA":              ColBidRate,
	"TX. VENDA":               ColAskRate,
	"TX. INDICATIVAS":         ColIndicativeRate,
	"PU":                      ColPrice,
	"DESVIO PADRAO":           ColStdDev,
	"INTERV. IND. INF. (D0)":  ColLowerRateD0,
	"INTERV. IND. SUP. (D0)":  ColUpperRateD0,
	"INTERV. IND. INF. (D+1)": ColLowerRateD1,
	"INTERV. IND. SUP. (D+1)": ColUpperRateD1,
	"CRITERIO":                ColCriteria,
}

const (
	fileSep      = "@"
	fileDate     = "20060102"
	preambleRows = 2
)

// Client fetches ANBIMA publications.
type Client struct {
	api    *api.Client
	cal    calendar.Oracle
	logger *slog.Logger
}

// NewClient creates a client on top of an api client rooted at the ANBIMA
// site.
func NewClient(c *api.Client, cal calendar.Oracle, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: c, cal: cal, logger: logger.With("provider", "anbima")}
}

// TPFPath returns the secondary market file path for a reference date.
func TPFPath(date time.Time) string {
	return "/informacoes/merc-sec/arqs/ms" + date.Format("060102") + ".txt"
}

// TPF returns the indicative prices of federal bonds on date. An empty
// table means the file is not available.
func (c *Client) TPF(ctx context.Context, date time.Time) (dataframe.DataFrame, error) {
	body, err := c.api.Get(ctx, TPFPath(date), nil)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return dataframe.DataFrame{}, nil
		}
		return dataframe.DataFrame{}, fmt.Errorf("fetch TPF file: %w", err)
	}
	doc, err := provider.Latin1(body)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("decode TPF file: %w", err)
	}
	df, err := ParseTPF(doc, c.cal)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	c.logger.Debug("TPF file parsed", "reference_date", date.Format(time.DateOnly), "bonds", df.Nrow())
	return df, nil
}

// ParseTPF parses a decoded ms file.
func ParseTPF(doc []byte, cal calendar.Oracle) (dataframe.DataFrame, error) {
	b := table.NewBuilder().
		Column(ColBondType, series.String).
		Column(ColReferenceDate, series.String).
		Column(ColSelicCode, series.Int).
		Column(ColIssueBaseDate, series.String).
		Column(ColMaturityDate, series.String).
		Column(ColBDToMat, series.Int).
		Column(ColDuration, series.Float).
		Column(ColDV01, series.Float).
		Column(ColPrice, series.Float).
		Column(ColBidRate, series.Float).
		Column(ColAskRate, series.Float).
		Column(ColIndicativeRate, series.Float).
		Column(ColStdDev, series.Float).
		Column(ColLowerRateD0, series.Float).
		Column(ColUpperRateD0, series.Float).
		Column(ColLowerRateD1, series.Float).
		Column(ColUpperRateD1, series.Float).
		Column(ColCriteria, series.String)

	scanner := bufio.NewScanner(bytes.NewReader(doc))
	var header []string
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if line <= preambleRows || strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, fileSep)
		if header == nil {
			header = make([]string, len(fields))
			for i, f := range fields {
				header[i] = fileColumns[provider.Fold(f)]
			}
			continue
		}
		if len(fields) != len(header) {
			return dataframe.DataFrame{}, fmt.Errorf("TPF line %d: %d fields, want %d", line, len(fields), len(header))
		}
		row, err := parseTPFRow(header, fields, cal)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("TPF line %d: %w", line, err)
		}
		if err := b.Append(row); err != nil {
			return dataframe.DataFrame{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("scan TPF file: %w", err)
	}
	if b.Len() == 0 {
		return dataframe.DataFrame{}, nil
	}
	return b.Build(true), nil
}

func parseTPFRow(header, fields []string, cal calendar.Oracle) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(header)+3)
	var ref, mat time.Time
	for i, col := range header {
		raw := strings.TrimSpace(fields[i])
		switch col {
		case "":
			continue
		case ColBondType, ColCriteria:
			if !provider.IsNull(raw) {
				row[col] = raw
			}
		case ColReferenceDate, ColIssueBaseDate, ColMaturityDate:
			d, ok := provider.ParseDate(fileDate, raw)
			if !ok {
				if col == ColIssueBaseDate {
					continue
				}
				return nil, fmt.Errorf("invalid %s %q", col, raw)
			}
			row[col] = d.Format(time.DateOnly)
			switch col {
			case ColReferenceDate:
				ref = d
			case ColMaturityDate:
				mat = d
			}
		case ColSelicCode:
			if v, ok := provider.ParseInt(raw); ok {
				row[col] = v
			}
		default:
			v, ok := provider.ParseNumber(raw)
			if !ok {
				continue
			}
			if rateColumns[col] {
				v = provider.Rate(v, 8)
			}
			row[col] = v
		}
	}

	bdays := cal.Count(ref, mat)
	row[ColBDToMat] = bdays
	if row[ColBondType] == "LTN" {
		duration := float64(bdays) / 252
		row[ColDuration] = duration
		price, okPrice := row[ColPrice].(float64)
		rate, okRate := row[ColIndicativeRate].(float64)
		if okPrice && okRate {
			row[ColDV01] = 0.0001 * duration / (1 + rate) * price
		}
	}
	return row, nil
}
