// Package bcb fetches the monthly federal bond secondary market trades
// published by the Banco Central do Brasil (DEMAB).
package bcb

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/provider"
	"github.com/rickgao/brmarket-history/internal/table"
)

// Column names used by the dataset.
const (
	ColTradeDate = "DATA MOV"
	ColSymbol    = "SIGLA"
	ColIssue     = "EMISSAO"
	ColMaturity  = "VENCIMENTO"
)

// Keys is the natural key of the secondary market table.
var Keys = []string{ColTradeDate, ColSymbol, ColMaturity}

// DateColumns are parsed from dd/mm/yyyy and stored with a date type.
var DateColumns = []string{ColTradeDate, ColIssue, ColMaturity}

// Required must be present in every fetched table.
var Required = []string{ColTradeDate, ColSymbol, ColMaturity}

const fileDate = "02/01/2006"

// FilePath returns the monthly archive path for the month of d.
func FilePath(d time.Time) string {
	return "/NegE" + d.Format("200601") + ".ZIP"
}

// Client fetches BCB secondary market archives.
type Client struct {
	api    *api.Client
	logger *slog.Logger
}

// NewClient creates a client on top of an api client rooted at the DEMAB
// download directory.
func NewClient(c *api.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: c, logger: logger.With("provider", "bcb")}
}

// Trades returns every trade of the month containing d. An empty table
// means the archive is not published.
func (c *Client) Trades(ctx context.Context, d time.Time) (dataframe.DataFrame, error) {
	body, err := c.api.Get(ctx, FilePath(d), nil)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return dataframe.DataFrame{}, nil
		}
		return dataframe.DataFrame{}, fmt.Errorf("fetch BCB archive: %w", err)
	}
	df, err := ParseArchive(body)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	c.logger.Debug("BCB archive parsed", "month", d.Format("2006-01"), "trades", df.Nrow())
	return df, nil
}

// ParseArchive reads the CSV inside a monthly zip archive.
func ParseArchive(archive []byte) (dataframe.DataFrame, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open BCB archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if ext != ".csv" && ext != ".txt" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("open %s: %w", f.Name, err)
		}
		df, err := ParseCSV(rc)
		rc.Close()
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return df, nil
	}
	return dataframe.DataFrame{}, errors.New("BCB archive has no CSV file")
}

// ParseCSV reads a Latin-1, semicolon separated trade file. Date columns
// are converted to YYYY-MM-DD with invalid values becoming null. Other
// columns are typed by content.
func ParseCSV(r io.Reader) (dataframe.DataFrame, error) {
	cr := csv.NewReader(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return dataframe.DataFrame{}, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	body := records[1:]

	isDate := make(map[string]bool, len(DateColumns))
	for _, c := range DateColumns {
		isDate[c] = true
	}

	b := table.NewBuilder()
	kinds := make([]series.Type, len(header))
	for i, name := range header {
		if isDate[name] {
			kinds[i] = series.String
		} else {
			kinds[i] = inferType(body, i)
		}
		b.Column(name, kinds[i])
	}

	for _, rec := range body {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make(map[string]interface{}, len(header))
		for i, name := range header {
			if i >= len(rec) {
				break
			}
			if v := convert(rec[i], kinds[i], isDate[name]); v != nil {
				row[name] = v
			}
		}
		if err := b.Append(row); err != nil {
			return dataframe.DataFrame{}, err
		}
	}
	return b.Build(false), nil
}

func convert(raw string, kind series.Type, date bool) interface{} {
	raw = strings.TrimSpace(raw)
	if date {
		d, ok := provider.ParseDate(fileDate, raw)
		if !ok {
			return nil
		}
		return d.Format(time.DateOnly)
	}
	if provider.IsNull(raw) {
		return nil
	}
	switch kind {
	case series.Int:
		if v, ok := provider.ParseInt(raw); ok {
			return v
		}
		return nil
	case series.Float:
		if v, ok := provider.ParseNumber(raw); ok {
			return v
		}
		return nil
	}
	return raw
}

// inferType returns Int when every non-null value is an integer, Float when
// every value is a number with a decimal comma somewhere, else String.
func inferType(rows [][]string, col int) series.Type {
	seen := false
	decimalComma := false
	for _, rec := range rows {
		if col >= len(rec) {
			continue
		}
		raw := strings.TrimSpace(rec[col])
		if provider.IsNull(raw) {
			continue
		}
		if _, ok := provider.ParseNumber(raw); !ok {
			return series.String
		}
		if strings.Contains(raw, ",") {
			decimalComma = true
		}
		seen = true
	}
	switch {
	case !seen:
		return series.String
	case decimalComma:
		return series.Float
	}
	return series.Int
}
