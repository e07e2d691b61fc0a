package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Costs are carried as int64 micro-dollars (1_000_000 per dollar) so that
// threshold comparisons are exact integer arithmetic. Upstream reports
// sub-cent amounts, which cents would truncate to zero.
const MicrosPerDollar = 1_000_000

// MicrosFromDollars converts a webhook's float cost to micro-dollars,
// rounding half away from zero.
func MicrosFromDollars(d float64) int64 {
	return int64(math.Round(d * MicrosPerDollar))
}

// ParseDollars parses a decimal dollars string (e.g. "10.00") into
// micro-dollars without going through binary floating point.
func ParseDollars(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	micros := w * MicrosPerDollar
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		for i := len(frac); i < 6; i++ {
			f *= 10
		}
		micros += f
	}
	if neg {
		micros = -micros
	}
	return micros, nil
}

// FormatDollars renders micro-dollars as a dollar string with four
// decimal places, matching the alert message format.
func FormatDollars(micros int64) string {
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	return fmt.Sprintf("%s$%d.%04d", sign, micros/MicrosPerDollar, (micros%MicrosPerDollar)/100)
}
