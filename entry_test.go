package zipline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDOSDateTime_RoundtripsToSecondGranularity(t *testing.T) {
	t.Parallel()

	want := time.Date(2021, time.March, 14, 9, 26, 54, 0, time.UTC)
	date, timeField := dosDateTime(want)
	got := decodeDOSTime(date, timeField)

	assert.Equal(t, want.Year(), got.Year())
	assert.Equal(t, want.Month(), got.Month())
	assert.Equal(t, want.Day(), got.Day())
	assert.Equal(t, want.Hour(), got.Hour())
	assert.Equal(t, want.Minute(), got.Minute())
	assert.Equal(t, 54, got.Second(), "DOS time truncates seconds to 2-second resolution")
}

func TestDOSDateTime_ClampsPreEpochYears(t *testing.T) {
	t.Parallel()

	early := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	date, _ := dosDateTime(early)
	got := decodeDOSTime(date, 0)
	assert.Equal(t, 1980, got.Year())
}

func TestGeneralPurposeFlag_BitAccessors(t *testing.T) {
	t.Parallel()

	f := flagEncrypted | flagUTF8
	assert.True(t, f.Encrypted())
	assert.True(t, f.UTF8())
	assert.False(t, f.SizesInDescriptor())
}
