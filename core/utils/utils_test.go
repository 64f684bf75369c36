package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		units uint64
		want  string
	}{
		{0, "0.00000000"},
		{1, "0.00000001"},
		{150000000, "1.50000000"},
		{12345678901, "123.45678901"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatAmount(tt.units))
	}
	require.Equal(t, "-0.00001000", FormatSignedAmount(-1000))
	require.Equal(t, "0.00001000", FormatSignedAmount(1000))
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits(" 250000 ")
	require.NoError(t, err)
	require.Equal(t, uint64(250000), v)

	for _, bad := range []string{"", "-1", "1.5", "abc"} {
		_, err := ParseUnits(bad)
		require.Error(t, err, bad)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "YES", "1"} {
		v, err := ParseBool(s)
		require.NoError(t, err)
		require.True(t, v)
	}
	v, err := ParseBool("false")
	require.NoError(t, err)
	require.False(t, v)

	_, err = ParseBool("maybe")
	require.Error(t, err)
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	require.True(t, DirExists(dir))
	require.False(t, FileExists(dir))
	require.False(t, FileExists(filepath.Join(dir, "missing")))
}
