package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// HMS is a duration stored and rendered as hours:minutes:seconds, the way
// route durations are kept in the ledger.
type HMS time.Duration

// ParseHMS parses "H:MM:SS" (hours may exceed 24).
func ParseHMS(s string) (HMS, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("duration %q: want H:MM:SS", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("duration %q: bad field %q", s, p)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("duration %q: minutes and seconds must be < 60", s)
	}
	d := time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute + time.Duration(vals[2])*time.Second
	return HMS(d), nil
}

// Minutes is the whole-minute length, ignoring seconds.
func (h HMS) Minutes() int {
	return int(time.Duration(h) / time.Minute)
}

func (h HMS) String() string {
	d := time.Duration(h)
	return fmt.Sprintf("%02d:%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second))
}

func (h HMS) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *HMS) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseHMS(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Scan accepts the TIME column forms MySQL drivers hand back.
func (h *HMS) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*h = 0
		return nil
	case []byte:
		return h.scanString(string(v))
	case string:
		return h.scanString(v)
	case int64:
		*h = HMS(time.Duration(v) * time.Second)
		return nil
	case time.Duration:
		*h = HMS(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into HMS", src)
	}
}

func (h *HMS) scanString(s string) error {
	// MySQL may append fractional seconds.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, err := ParseHMS(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (h HMS) Value() (driver.Value, error) {
	return h.String(), nil
}

// Money is an amount in cents.
type Money int64

// Dollars builds a Money value from a dollar amount, rounding to the cent.
func Dollars(v float64) Money {
	return Money(math.Round(v * 100))
}

func (m Money) Float() float64 {
	return float64(m) / 100
}

// Percent returns p percent of m, rounded half up to the cent.
func (m Money) Percent(p int64) Money {
	return Money((int64(m)*p + 50) / 100)
}

func (m Money) Decimal() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) String() string {
	return "$" + m.Decimal()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Dollars(f)
	return nil
}

// Scan reads DECIMAL columns, which arrive as text.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case float64:
		*m = Dollars(v)
		return nil
	case int64:
		*m = Money(v * 100)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}

func (m *Money) scanString(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("money %q: %w", s, err)
	}
	*m = Dollars(f)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.Decimal(), nil
}
