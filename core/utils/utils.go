// Utility functions for the Spectrum Chain light wallet
package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CoinDecimals is the number of base units in one coin, as a power of ten
const CoinDecimals = 8

// FormatAmount renders base units as a decimal coin amount without float
// rounding, e.g. 150000000 -> "1.50000000"
func FormatAmount(units uint64) string {
	s := strconv.FormatUint(units, 10)

	// Pad with leading zeros if needed
	if len(s) <= CoinDecimals {
		s = strings.Repeat("0", CoinDecimals-len(s)+1) + s
	}

	pos := len(s) - CoinDecimals
	return s[:pos] + "." + s[pos:]
}

// FormatSignedAmount renders a signed base unit delta
func FormatSignedAmount(units int64) string {
	if units < 0 {
		return "-" + FormatAmount(uint64(-units))
	}
	return FormatAmount(uint64(units))
}

// ParseUnits parses a non-negative integer amount of base units
func ParseUnits(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// FileExists checks if a file exists
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ParseBool accepts the spellings users type for yes/no arguments
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
