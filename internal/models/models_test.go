package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHMS(t *testing.T) {
	d, err := ParseHMS("06:00:00")
	require.NoError(t, err)
	assert.Equal(t, 360, d.Minutes())

	d, err = ParseHMS("6:01:59")
	require.NoError(t, err)
	assert.Equal(t, 361, d.Minutes(), "seconds never round up")
	assert.Equal(t, "06:01:59", d.String())

	d, err = ParseHMS("26:30:00")
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour+30*time.Minute, time.Duration(d))

	for _, bad := range []string{"", "6:00", "6:60:00", "a:00:00", "-1:00:00"} {
		_, err := ParseHMS(bad)
		assert.Error(t, err, bad)
	}
}

func TestHMSScan(t *testing.T) {
	var d HMS
	require.NoError(t, d.Scan([]byte("11:15:00.000000")))
	assert.Equal(t, 675, d.Minutes())
	require.NoError(t, d.Scan(int64(90)))
	assert.Equal(t, "00:01:30", d.String())
	assert.Error(t, d.Scan(3.5))
}

func TestRouteArrival(t *testing.T) {
	dur, _ := ParseHMS("04:30:00")
	r := Route{ID: 1, Origin: "TLV", Destination: "LHR", Duration: dur}
	dep := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC), r.Arrival(dep))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, Money(2500), Dollars(500).Percent(5))
	assert.Equal(t, Money(1), Money(10).Percent(5), "half a cent rounds up")
	assert.Equal(t, "$25.00", Money(2500).String())
	assert.Equal(t, "-0.05", Money(-5).Decimal())

	b, err := json.Marshal(struct {
		P Money `json:"p"`
	}{Dollars(123.4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":123.40}`, string(b))

	var m Money
	require.NoError(t, json.Unmarshal([]byte("19.99"), &m))
	assert.Equal(t, Money(1999), m)

	require.NoError(t, m.Scan([]byte("500.00")))
	assert.Equal(t, Money(50000), m)
}

func TestPlaneSizeCabins(t *testing.T) {
	assert.True(t, PlaneLarge.Supports(CabinBusiness))
	assert.False(t, PlaneSmall.Supports(CabinBusiness))
	assert.True(t, PlaneSmall.Supports(CabinEconomy))
	assert.False(t, PlaneSize("Medium").Valid())

	p := Plane{ID: "S1", Size: PlaneSmall, Cabins: []CabinLayout{
		{Class: CabinEconomy, Rows: 20, Cols: 4},
		{Class: CabinBusiness, Rows: 2, Cols: 2},
	}}
	_, ok := p.Layout(CabinBusiness)
	assert.False(t, ok, "a small plane never exposes a business cabin")
	eco, ok := p.Layout(CabinEconomy)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C", "D"}, eco.Letters())
}

func TestParseSeat(t *testing.T) {
	s, err := ParseSeat("business-2-c")
	require.NoError(t, err)
	assert.Equal(t, Seat{Class: CabinBusiness, Row: 2, Letter: "C"}, s)
	assert.Equal(t, "Business-2-C", s.String())

	layout := CabinLayout{Class: CabinBusiness, Rows: 2, Cols: 3}
	assert.True(t, layout.Contains(s))
	assert.False(t, layout.Contains(Seat{Class: CabinBusiness, Row: 3, Letter: "A"}))
	assert.False(t, layout.Contains(Seat{Class: CabinBusiness, Row: 1, Letter: "D"}))
	assert.False(t, layout.Contains(Seat{Class: CabinEconomy, Row: 1, Letter: "A"}))

	for _, bad := range []string{"First-1-A", "Economy-0-A", "Economy-1-AA", "Economy-1"} {
		_, err := ParseSeat(bad)
		assert.Error(t, err, bad)
	}
}
