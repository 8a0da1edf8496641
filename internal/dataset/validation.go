package dataset

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const DefaultCategory = "trainingdata"

// StatsCategories are the buckets reported by AggregateStats.
var StatsCategories = []string{"trainingdata", "testingdata", "validationdata", "historicaldata"}

// CitiesCategory holds the per-city source files used by city processing.
const CitiesCategory = "cities"

var allowedCategories = map[string]bool{
	"trainingdata":   true,
	"testingdata":    true,
	"validationdata": true,
	"historicaldata": true,
	CitiesCategory:   true,
}

// AllowedCategories lists every category that may address a blob collection.
func AllowedCategories() []string {
	return append(append([]string(nil), StatsCategories...), CitiesCategory)
}

// NormalizeCategory lower-cases the tag, applies the default and checks it
// against the closed set before it is used to name a collection.
func NormalizeCategory(category string) (string, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return DefaultCategory, nil
	}
	if !allowedCategories[category] {
		return "", fmt.Errorf("%w %q", ErrInvalidCategory, category)
	}
	return category, nil
}

// ValidateFilename rejects names that cannot be used as an attachment name.
// Content and extension are deliberately not checked.
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return ErrInvalidFilename
	}
	if len(filename) > 255 || !utf8.ValidString(filename) {
		return ErrInvalidFilename
	}
	if strings.ContainsAny(filename, `/\`) || filename == "." || filename == ".." {
		return ErrInvalidFilename
	}
	for _, r := range filename {
		if r < 32 || r == 127 {
			return ErrInvalidFilename
		}
	}
	return nil
}

// EscapeFilename quotes a filename for a Content-Disposition header.
func EscapeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, `\\`)
	filename = strings.ReplaceAll(filename, `"`, `\"`)
	return filename
}
