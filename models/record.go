// Package models defines the records extracted from portal pages.
package models

import "strconv"

// Record is implemented by every extracted item so it can be exported.
type Record interface {
	// Kind names the record family, e.g. "attendance".
	Kind() string
	// Key identifies the record within its kind.
	Key() string
	Columns() []string
	Values() []string
	Validate() error
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
