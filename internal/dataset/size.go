package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

const bytesPerMB = 1024 * 1024

// FormatSizeMB renders a byte length the way metadata rows store it, e.g. "1.23 MB".
func FormatSizeMB(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/bytesPerMB)
}

// FormatMB renders a megabyte total with two decimals.
func FormatMB(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ParseSizeMB reads the numeric prefix of a stored size string. Rows whose size
// has no numeric prefix count as zero.
func ParseSizeMB(size string) float64 {
	s := strings.TrimSpace(size)
	end := numericPrefix(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}

func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		start := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > start {
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
