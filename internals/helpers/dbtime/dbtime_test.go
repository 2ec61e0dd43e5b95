package dbtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodParseAndValue(t *testing.T) {
	tod, err := Parse("14:30")
	require.NoError(t, err)
	assert.Equal(t, 14, tod.Hour())
	assert.Equal(t, 30, tod.Minute())

	v, err := tod.Value()
	require.NoError(t, err)
	assert.Equal(t, "14:30:00", v)

	_, err = Parse("25:00")
	assert.Error(t, err)
}

func TestTodScanAndJSON(t *testing.T) {
	var tod Tod
	require.NoError(t, tod.Scan([]byte("09:05:10")))
	assert.Equal(t, "09:05:10", tod.String())

	require.NoError(t, tod.Scan(time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)))
	assert.Equal(t, "16:00:00", tod.String())

	b, err := json.Marshal(tod)
	require.NoError(t, err)
	assert.JSONEq(t, `"16:00:00"`, string(b))

	var back Tod
	require.NoError(t, json.Unmarshal([]byte(`"07:15"`), &back))
	assert.Equal(t, "07:15:00", back.String())
}

func TestMondayIndexed(t *testing.T) {
	assert.Equal(t, 0, MondayIndexed(Date(2024, 3, 4)))  // Monday
	assert.Equal(t, 2, MondayIndexed(Date(2024, 3, 6)))  // Wednesday
	assert.Equal(t, 6, MondayIndexed(Date(2024, 3, 10))) // Sunday
}

func TestDateOfUsesLocation(t *testing.T) {
	sydney := time.FixedZone("AEDT", 11*3600)
	instant := time.Date(2024, 3, 3, 14, 0, 0, 0, time.UTC) // already Monday in Sydney

	assert.Equal(t, Date(2024, 3, 4), DateOf(instant, sydney))
	assert.Equal(t, Date(2024, 3, 3), DateOf(instant, time.UTC))
	assert.Equal(t, Date(2024, 3, 4), Today(FixedClock{T: instant}, sydney))
}

func TestAtKeepsLocalTime(t *testing.T) {
	loc := time.FixedZone("AEDT", 11*3600)
	got := At(Date(2024, 3, 6), MustParse("16:00"), loc)
	assert.Equal(t, 16, got.Hour())
	assert.Equal(t, time.Wednesday, got.Weekday())
	assert.Equal(t, 5, got.UTC().Hour())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-10-13")
	require.NoError(t, err)
	assert.Equal(t, Date(2025, 10, 13), d)

	_, err = ParseDate("13/10/2025")
	assert.Error(t, err)
}
