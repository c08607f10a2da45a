package calendar

import (
	"sort"
	"sync"
	"time"
)

// Oracle answers business-day questions for a market.
type Oracle interface {
	// IsBusinessDay reports whether the market holds sessions on d.
	IsBusinessDay(d time.Time) bool

	// Offset moves n business days from d. With n == 0, d is rolled
	// forward to the next business day when it is not one itself.
	Offset(d time.Time, n int) time.Time

	// Count returns the number of business days in [start, end).
	// The result is negative when end is before start.
	Count(start, end time.Time) int

	// LastBusinessDay returns the last business day on or before d.
	LastBusinessDay(d time.Time) time.Time

	// Generate returns the business days in (start, end].
	Generate(start, end time.Time) []time.Time
}

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock of t, keeping the civil date in t's own location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Brazil is the national business-day calendar.
type Brazil struct {
	extra map[time.Time]struct{}

	mu    sync.Mutex
	cache map[int]map[time.Time]struct{}
}

// NewBrazil creates the national calendar with optional extra closures.
func NewBrazil(extra ...time.Time) *Brazil {
	b := &Brazil{
		extra: make(map[time.Time]struct{}, len(extra)),
		cache: make(map[int]map[time.Time]struct{}),
	}
	for _, d := range extra {
		b.extra[Truncate(d)] = struct{}{}
	}
	return b
}

// Holidays returns the sorted national holidays of a year, extra closures included.
func (b *Brazil) Holidays(year int) []time.Time {
	set := b.holidays(year)
	out := make([]time.Time, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (b *Brazil) holidays(year int) map[time.Time]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.cache[year]; ok {
		return set
	}

	set := make(map[time.Time]struct{}, 16)
	add := func(d time.Time) { set[d] = struct{}{} }

	add(Date(year, time.January, 1))   // Confraternização Universal
	add(Date(year, time.April, 21))    // Tiradentes
	add(Date(year, time.May, 1))       // Dia do Trabalho
	add(Date(year, time.September, 7)) // Independência
	add(Date(year, time.October, 12))  // Nossa Senhora Aparecida
	add(Date(year, time.November, 2))  // Finados
	add(Date(year, time.November, 15)) // Proclamação da República
	if year >= 2024 {
		add(Date(year, time.November, 20)) // Consciência Negra
	}
	add(Date(year, time.December, 25))

	easter := Easter(year)
	add(easter.AddDate(0, 0, -48)) // Carnaval (segunda)
	add(easter.AddDate(0, 0, -47)) // Carnaval (terça)
	add(easter.AddDate(0, 0, -2))  // Sexta-feira Santa
	add(easter.AddDate(0, 0, 60))  // Corpus Christi

	for d := range b.extra {
		if d.Year() == year {
			add(d)
		}
	}

	b.cache[year] = set
	return set
}

// Easter returns Easter Sunday of year (anonymous Gregorian algorithm).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}

// IsBusinessDay implements Oracle.
func (b *Brazil) IsBusinessDay(d time.Time) bool {
	d = Truncate(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := b.holidays(d.Year())[d]
	return !holiday
}

// Offset implements Oracle.
func (b *Brazil) Offset(d time.Time, n int) time.Time {
	d = Truncate(d)
	if n == 0 {
		for !b.IsBusinessDay(d) {
			d = d.AddDate(0, 0, 1)
		}
		return d
	}

	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		d = d.AddDate(0, 0, step)
		if b.IsBusinessDay(d) {
			n--
		}
	}
	return d
}

// Count implements Oracle.
func (b *Brazil) Count(start, end time.Time) int {
	start, end = Truncate(start), Truncate(end)
	sign := 1
	if end.Before(start) {
		start, end = end, start
		sign = -1
	}
	n := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if b.IsBusinessDay(d) {
			n++
		}
	}
	return sign * n
}

// LastBusinessDay implements Oracle.
func (b *Brazil) LastBusinessDay(d time.Time) time.Time {
	d = Truncate(d)
	for !b.IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Generate implements Oracle.
func (b *Brazil) Generate(start, end time.Time) []time.Time {
	start, end = Truncate(start), Truncate(end)
	var out []time.Time
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if b.IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}
