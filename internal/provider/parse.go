package provider

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrNotPublished is returned when a provider has nothing for the requested
// date yet.
var ErrNotPublished = errors.New("data not published")

// Latin1 decodes ISO-8859-1 bytes into UTF-8.
func Latin1(b []byte) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), b)
	return out, err
}

// Fold upper-cases s, strips accents and collapses inner whitespace, so
// "Preço  Mín." and "PRECO MIN." compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}

// IsNull reports whether a raw cell means "no value".
func IsNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "-", "--", "N/D", "n/d":
		return true
	}
	return false
}

// ParseNumber parses a Brazilian formatted number ("1.234,56"). The second
// result is false for null markers and unparseable input.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if IsNull(s) {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseInt parses a Brazilian formatted integer ("12.345").
func ParseInt(s string) (int, bool) {
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// ParseDate parses s with layout. The second result is false for null
// markers and invalid dates.
func ParseDate(layout, s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsNull(s) {
		return time.Time{}, false
	}
	d, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Rate converts a percentage into a fraction rounded to places decimals.
func Rate(pct float64, places int32) float64 {
	return decimal.NewFromFloat(pct).Shift(-2).Round(places).InexactFloat64()
}
