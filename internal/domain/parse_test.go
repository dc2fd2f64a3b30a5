package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOffset_Valid(t *testing.T) {
	cases := []struct {
		in   string
		secs int
		str  string
	}{
		{"+1", 3600, "+1:00"},
		{"-3:30", -(3*3600 + 30*60), "-3:30"},
		{"+10:00", 36000, "+10:00"},
		{"+0", 0, "+0:00"},
		{"+5:45", 5*3600 + 45*60, "+5:45"},
		{" -11 ", -11 * 3600, "-11:00"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseOffset(tc.in)
			require.NoError(t, err)
			assert.Equal(t, Offset(tc.secs), got)
			assert.Equal(t, tc.str, got.String())
		})
	}
}

func TestParseOffset_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "3:30", "+", "+a", "+1:60", "+1:xx", "+1:", "++1", "+-1", "Europe/Moscow",
		"+24", "-24:00", "+9999999999999999", "+99999999999999999999"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseOffset(in)
			require.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestOffset_RoundTrip(t *testing.T) {
	instant := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{"+0:00", "+1:00", "-3:30", "+5:45", "+14:00", "-12:00", "+9:30"} {
		o := MustParseOffset(in)
		again, err := ParseOffset(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, again, in)
		assert.Equal(t, in, again.String())

		_, zoneOffset := instant.In(o.Location()).Zone()
		assert.Equal(t, int(o), zoneOffset, in)
	}

	assert.Equal(t, Offset(23*3600+59*60), MustParseOffset("+23:59"))
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("21")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 21}, got)

	got, err = ParseTimeOfDay("22:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 22, Minute: 30}, got)
	assert.Equal(t, "22:30", got.String())

	got, err = ParseTimeOfDay("7:05")
	require.NoError(t, err)
	assert.Equal(t, "07:05", got.String())
}

func TestParseTimeOfDay_Permissive(t *testing.T) {
	got, err := ParseTimeOfDay("25:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 25}, got)
	assert.Equal(t, TimeOfDay{Hour: 1}, got.Normalize())

	got, err = ParseTimeOfDay("23:90")
	require.NoError(t, err)
	assert.Equal(t, "00:30", got.String())
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	for _, in := range []string{"", "ab", "22:xx", "22-30", ":30"} {
		_, err := ParseTimeOfDay(in)
		require.ErrorIs(t, err, ErrInvalidFormat, in)
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc := MustParseOffset("+2:00").Location()
	day := time.Date(2024, time.May, 5, 23, 59, 0, 0, time.UTC) // already May 6 at +2
	got := TimeOfDay{Hour: 22, Minute: 30}.On(day, loc)
	assert.Equal(t, time.Date(2024, time.May, 6, 20, 30, 0, 0, time.UTC), got.UTC())
}
