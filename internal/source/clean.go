package source

import (
	"regexp"
	"strings"

	"coursecheck/pkg/contracts/domain"
)

// nullLiterals are values catalog extracts use for missing cells. They are
// scrubbed to empty strings before validation so blankness rules see them
// uniformly.
var nullLiterals = map[string]bool{
	"NULL": true,
	"NUL":  true,
	"null": true,
	"nul":  true,
}

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ScrubNulls replaces NULL-literal cells with empty strings in place.
func ScrubNulls(ds *Dataset) {
	for _, record := range ds.Records {
		for i, cell := range record {
			if nullLiterals[strings.TrimSpace(cell)] {
				record[i] = ""
			}
		}
	}
}

// CleanRow applies the field-specific scrubbing some extracts need, in
// place, before validation: trailing digits glued onto dates are stripped
// ("2024-09-015720" becomes "2024-09-01") and study-mode variants are
// normalized onto the canonical spellings. Cleaning repairs known export
// artifacts only; it never invents data.
func CleanRow(row domain.Row, delimiter string) {
	if v, ok := row.Values[domain.FieldCourseStartDate]; ok && v != "" {
		row.Values[domain.FieldCourseStartDate] = cleanDates(v, delimiter)
	}
	if v, ok := row.Values[domain.FieldStudyMode]; ok && v != "" {
		row.Values[domain.FieldStudyMode] = normalizeStudyMode(v)
	}
}

// cleanDates extracts the leading YYYY-MM-DD from each delimited element
// when extra digits are glued on; elements without a date shape pass
// through untouched.
func cleanDates(v, delimiter string) string {
	parts := strings.Split(v, delimiter)
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if m := datePattern.FindString(trimmed); m != "" {
			parts[i] = m
		} else {
			parts[i] = trimmed
		}
	}
	return strings.Join(parts, delimiter)
}

// normalizeStudyMode maps free-form study modes onto the two canonical
// values when the intent is unambiguous.
func normalizeStudyMode(v string) string {
	lower := strings.ToLower(strings.TrimSpace(v))
	switch {
	case strings.Contains(lower, "full"):
		return "Full time"
	case strings.Contains(lower, "part"):
		return "Part time"
	default:
		return strings.TrimSpace(v)
	}
}
