// Package agefmt formats a date of birth as a display age string.
package agefmt

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for dates of birth.
const DateLayout = "2006-01-02"

// Format renders an age at the given reference time: whole years when at
// least one, whole months under a year, days under a month. A reference
// before the date of birth renders as "0 days".
func Format(dob, now time.Time) string {
	if now.Before(dob) {
		return "0 days"
	}

	years := now.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years >= 1 {
		return plural(years, "year")
	}

	months := 0
	for dob.AddDate(0, months+1, 0).Before(now) || dob.AddDate(0, months+1, 0).Equal(now) {
		months++
	}
	if months >= 1 {
		return plural(months, "month")
	}

	days := int(now.Sub(dob).Hours() / 24)
	return plural(days, "day")
}

// FormatDOB parses a YYYY-MM-DD date of birth and formats the age as of now.
// Unparseable input renders as an empty string.
func FormatDOB(dob string, now time.Time) string {
	t, err := time.Parse(DateLayout, dob)
	if err != nil {
		return ""
	}
	return Format(t, now)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
