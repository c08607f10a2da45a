package b3

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/calendar"
)

const header = `<tr><td>VENCTO</td><td>CONTR. ABERT.(1)</td><td>CONTR. FECH.(2)</td>` +
	`<td>NÚM. NEGOC.</td><td>CONTR. NEGOC.</td><td>VOL.</td><td>AJUSTE ANTER. (3)</td>` +
	`<td>AJUSTE CORRIG. (4)</td><td>PREÇO ABERTU.</td><td>PREÇO MÍN.</td><td>PREÇO MÁX.</td>` +
	`<td>PREÇO MÉD.</td><td>ÚLT. PREÇO</td><td>AJUSTE</td><td>VAR. PTOS.</td>` +
	`<td>ÚLT. OF. COMPRA</td><td>ÚLT. OF. VENDA</td></tr>`

func row(code, price string) string {
	cells := []string{code, "1.234.567", "1.230.000", "2.345", "98.765", "9.012.345.678,90",
		"14,900", "0,00", "14,910", "14,880", "14,950", "14,912", "14,915", price, "0,01",
		"14,910", "14,920"}
	var b strings.Builder
	b.WriteString("<tr>")
	for _, c := range cells {
		fmt.Fprintf(&b, "<td>%s</td>", c)
	}
	b.WriteString("</tr>")
	return b.String()
}

func page(rows ...string) string {
	return `<html><body><table>` + header + strings.Join(rows, "") + `</table></body></html>`
}

var tradeDate = calendar.Date(2025, 8, 13)

func TestExpirationDate(t *testing.T) {
	cal := calendar.NewBrazil()
	tests := []struct {
		code string
		want time.Time
	}{
		{"F26", calendar.Date(2026, 1, 2)},
		{"N26", calendar.Date(2026, 7, 1)},
		{"V25", calendar.Date(2025, 10, 1)},
	}
	for _, tt := range tests {
		got, err := ExpirationDate(tt.code, cal)
		require.NoError(t, err)
		if !got.Equal(tt.want) {
			t.Errorf("ExpirationDate(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}

	_, err := ExpirationDate("A26", cal)
	assert.Error(t, err)
}

func TestRates(t *testing.T) {
	assert.Equal(t, 0.1, SettlementRate(100000/1.1, 252))
	assert.Equal(t, 0.1, ForwardRate(0.1, 252, 0.1, 504))
	assert.Equal(t, 0.13, ForwardRate(0.1, 252, 0.13, 252))
	assert.InDelta(t, 0.0001*1.0/1.1*90909.09, DV01(0.1, 90909.09, 252), 1e-9)
}

func TestParse(t *testing.T) {
	cal := calendar.NewBrazil()
	doc := page(
		row("Q25", "99.990,00"), // expired before the trade date
		row("F26", "94.567,89"),
		row("N26", "90.123,45"),
	)

	df, err := Parse([]byte(doc), tradeDate, cal)
	require.NoError(t, err)
	require.NoError(t, df.Err)
	require.Equal(t, 2, df.Nrow())

	assert.Equal(t, []string{"DI1F26", "DI1N26"}, df.Col(ColTickerSymbol).Records())
	assert.Equal(t, []string{"2026-01-02", "2026-07-01"}, df.Col(ColExpirationDate).Records())
	assert.Equal(t, "2025-08-13", df.Col(ColTradeDate).Elem(0).String())

	bdays := cal.Count(tradeDate, calendar.Date(2026, 1, 2))
	n, err := df.Col(ColBDaysToExp).Elem(0).Int()
	require.NoError(t, err)
	assert.Equal(t, bdays, n)
	days, err := df.Col(ColDaysToExp).Elem(0).Int()
	require.NoError(t, err)
	assert.Equal(t, 142, days)

	r1 := SettlementRate(94567.89, bdays)
	assert.Equal(t, r1, df.Col(ColSettlementRate).Elem(0).Float())
	assert.Equal(t, r1, df.Col(ColForwardRate).Elem(0).Float())
	assert.Equal(t, 0.14912, df.Col(ColAvgRate).Elem(0).Float())
	assert.Equal(t, 0.1491, df.Col(ColBestBidRate).Elem(0).Float())

	oc, err := df.Col(ColOpenContracts).Elem(0).Int()
	require.NoError(t, err)
	assert.Equal(t, 1234567, oc)
	assert.Equal(t, 9012345678.90, df.Col(ColFinancialVolume).Elem(0).Float())

	bdays2 := cal.Count(tradeDate, calendar.Date(2026, 7, 1))
	r2 := SettlementRate(90123.45, bdays2)
	assert.Equal(t, ForwardRate(r1, bdays, r2, bdays2), df.Col(ColForwardRate).Elem(1).Float())
}

func TestParse_NoSettlementDropsColumns(t *testing.T) {
	df, err := Parse([]byte(page(row("F26", ""), row("N26", "-"))), tradeDate, calendar.NewBrazil())
	require.NoError(t, err)
	require.Equal(t, 2, df.Nrow())

	names := strings.Join(df.Names(), ",")
	assert.NotContains(t, names, ColSettlementRate)
	assert.NotContains(t, names, ColSettlementPrice)
	assert.NotContains(t, names, ColForwardRate)
	assert.Contains(t, names, ColCloseRate)
}

func TestParse_NoTable(t *testing.T) {
	df, err := Parse([]byte(`<html><body><p>Não há dados</p></body></html>`), tradeDate, calendar.NewBrazil())
	require.NoError(t, err)
	assert.Equal(t, 0, df.Nrow())
}

func TestClient_DI1(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String(page(row("F26", "94.567,89")))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SummaryPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("Data"); got != "13/08/2025" {
			t.Errorf("Data = %q, want 13/08/2025", got)
		}
		if got := r.URL.Query().Get("Mercadoria"); got != "DI1" {
			t.Errorf("Mercadoria = %q, want DI1", got)
		}
		w.Write([]byte(encoded))
	}))
	defer server.Close()

	c := NewClient(api.NewClient(server.URL, api.WithRetries(0, time.Millisecond)), calendar.NewBrazil(), nil)
	df, err := c.DI1(context.Background(), tradeDate)
	require.NoError(t, err)
	assert.Equal(t, 1, df.Nrow())
	assert.Equal(t, "DI1F26", df.Col(ColTickerSymbol).Elem(0).String())
}

func TestClient_DI1NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(api.NewClient(server.URL, api.WithRetries(0, time.Millisecond)), calendar.NewBrazil(), nil)
	df, err := c.DI1(context.Background(), tradeDate)
	require.NoError(t, err)
	assert.Equal(t, 0, df.Ncol())
}
