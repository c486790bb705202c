package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical textual form of a Date
const DateLayout = "2006-01-02"

// Date is a calendar date without clock or time zone
type Date struct {
	t time.Time
}

// NewDate creates a Date, normalizing out-of-range month/day values the way time.Date does
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's location
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a date in any of the formats seen in bank exports:
// YYYY-MM-DD, DD-MM-YYYY, DD/MM/YYYY and the two-digit-year variants.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,
		"02-01-2006",
		"02/01/2006",
		"2006/01/02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return DateOf(t), nil
		}
	}

	// two-digit years always mean 20yy
	for _, format := range []string{"02-01-06", "02/01/06"} {
		if t, err := time.Parse(format, s); err == nil {
			return NewDate(2000+t.Year()%100, t.Month(), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("unable to parse date '%s'", s)
}

// IsZero reports whether d is the zero Date
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// String returns the date as YYYY-MM-DD
func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// Compare returns -1, 0 or +1 as d is before, equal to or after other
func (d Date) Compare(other Date) int {
	return d.t.Compare(other.t)
}

// DaysUntil returns the signed number of days from d to other
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// AbsDaysBetween returns |other - d| in days
func (d Date) AbsDaysBetween(other Date) int {
	n := d.DaysUntil(other)
	if n < 0 {
		return -n
	}
	return n
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	*d = DateOf(t)
	return nil
}
