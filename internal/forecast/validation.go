package forecast

import (
	"regexp"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var cityPattern = regexp.MustCompile(`^[A-Za-z0-9 _.\-]{1,64}$`)

// ValidateCity accepts the names the data files are keyed by. The result is
// used inside file names, so separators and leading dashes are rejected.
func ValidateCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if !cityPattern.MatchString(city) || strings.HasPrefix(city, "-") || strings.Trim(city, ".") == "" {
		return "", ErrInvalidCity
	}
	return city, nil
}

func ValidateDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}
