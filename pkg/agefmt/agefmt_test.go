package agefmt

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		dob  string
		want string
	}{
		{"1992-08-31", "34 years"},
		{"1992-09-01", "33 years"},
		{"2025-09-15", "11 months"},
		{"2026-08-20", "11 days"},
		{"2026-08-30", "1 day"},
		{"2027-01-01", "0 days"},
	}
	for _, c := range cases {
		dob, err := time.Parse(DateLayout, c.dob)
		if err != nil {
			t.Fatal(err)
		}
		if got := Format(dob, now); got != c.want {
			t.Errorf("Format(%s) = %q, want %q", c.dob, got, c.want)
		}
	}
}

func TestFormatDOB(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if got := FormatDOB("2000-01-01", now); got != "26 years" {
		t.Errorf("got %q", got)
	}
	if got := FormatDOB("not-a-date", now); got != "" {
		t.Errorf("expected empty string for malformed input, got %q", got)
	}
}
