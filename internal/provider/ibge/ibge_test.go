package ibge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/brmarket-history/internal/api"
	"github.com/rickgao/brmarket-history/internal/calendar"
)

const calendarJSON = `{"count": 4, "items": [
 {"titulo": "Índice Nacional de Preços ao Consumidor Amplo", "data_divulgacao": "10/09/2025 09:00:00"},
 {"titulo": "Pesquisa Mensal de Serviços", "data_divulgacao": "12/08/2025 09:00:00"},
 {"titulo": "Índice Nacional de Preços ao Consumidor Amplo", "data_divulgacao": "12/08/2025 09:00:00"},
 {"titulo": "Índice Nacional de Preços ao Consumidor Amplo", "data_divulgacao": "a definir"}
]}`

const sidraJSON = `[
 {"V": "Valor", "D3C": "Mês (Código)"},
 {"V": "7100.00", "D3C": "202506"},
 {"V": "7142.60", "D3C": "202507"},
 {"V": "...", "D3C": "202508"}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CalendarPath:
			w.Write([]byte(calendarJSON))
		case "/values/t/1737/n1/all/v/2266/p/202504-202508":
			w.Write([]byte(sidraJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(server *httptest.Server) *Client {
	c := api.NewClient(server.URL, api.WithRetries(0, time.Millisecond))
	return NewClient(c, c, nil)
}

func TestReleaseDates(t *testing.T) {
	c := newClient(newServer(t))

	dates, err := c.ReleaseDates(context.Background())
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, calendar.Date(2025, 8, 12), dates[0])
	assert.Equal(t, calendar.Date(2025, 9, 10), dates[1])

	r, ok := ReleaseInMonth(dates, calendar.Date(2025, 9, 2))
	require.True(t, ok)
	assert.Equal(t, calendar.Date(2025, 9, 10), r)

	_, ok = ReleaseInMonth(dates, calendar.Date(2025, 10, 2))
	assert.False(t, ok)
}

func TestMonthlyRate(t *testing.T) {
	c := newClient(newServer(t))

	rate, err := c.MonthlyRate(context.Background(), calendar.Date(2025, 8, 20), 4)
	require.NoError(t, err)
	assert.Equal(t, "0.60", rate.StringFixed(2))
}

func TestMonthlyRate_NotEnoughData(t *testing.T) {
	_, err := MonthlyRate([]Point{{Period: "202507", Value: decimal.NewFromInt(7100)}})
	assert.True(t, errors.Is(err, ErrNotEnoughData))
}

func TestIndexPath(t *testing.T) {
	got := IndexPath(calendar.Date(2025, 4, 20), calendar.Date(2025, 8, 20))
	assert.Equal(t, "/values/t/1737/n1/all/v/2266/p/202504-202508", got)
}
