package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatCode(t *testing.T) {
	cases := []struct {
		in     string
		row    string
		number uint32
	}{
		{"A10", "A", 10},
		{"a10", "A", 10},
		{" B7 ", "B", 7},
		{"AA3", "AA", 3},
	}
	for _, tc := range cases {
		row, n, err := ParseSeatCode(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.row, row, tc.in)
		assert.Equal(t, tc.number, n, tc.in)
	}

	for _, bad := range []string{"", "10", "A", "A0", "A-1", "A1B", "1A", "A 1", "A99999999999"} {
		_, _, err := ParseSeatCode(bad)
		assert.ErrorIs(t, err, ErrInvalidSeatCode, bad)
	}
}

func TestSeatCodeRoundTrip(t *testing.T) {
	s := Seat{RowLabel: "C", SeatNumber: 12}
	assert.Equal(t, "C12", s.Code())
	row, n, err := ParseSeatCode(s.Code())
	require.NoError(t, err)
	assert.Equal(t, "C", row)
	assert.Equal(t, uint32(12), n)
}

func TestSeatLockActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := SeatLock{ExpiresAt: now.Add(time.Second)}
	assert.True(t, l.Active(now))
	assert.False(t, l.Active(now.Add(time.Second)), "a lease ending exactly now is over")
}
