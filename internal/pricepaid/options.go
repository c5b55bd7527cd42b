// Package pricepaid computes per-district median prices from price-paid
// transaction extracts in a single streaming pass.
package pricepaid

import (
	"time"

	"github.com/rotisserie/eris"
)

// Field positions in the unheadered price-paid CSV.
const (
	DefaultValueField = 1 // price, integer pounds
	DefaultDateField  = 2 // transfer date, "YYYY-MM-DD 00:00"
	DefaultKeyField   = 3 // postcode, "SW1A 1AA"
	DefaultMinFields  = 4
)

// dateLayout is matched against the leading characters of the date field.
const dateLayout = "2006-01-02"

// Options selects the fields of a record and the recency window.
type Options struct {
	ValueField int
	DateField  int
	KeyField   int
	MinFields  int
	// Cutoff drops records dated strictly before it. Only the calendar day
	// is compared.
	Cutoff time.Time
}

// DefaultOptions returns the price-paid field layout with the given cutoff.
func DefaultOptions(cutoff time.Time) Options {
	return Options{
		ValueField: DefaultValueField,
		DateField:  DefaultDateField,
		KeyField:   DefaultKeyField,
		MinFields:  DefaultMinFields,
		Cutoff:     cutoff,
	}
}

// CutoffYears returns midnight UTC of the day years before now.
func CutoffYears(now time.Time, years int) time.Time {
	d := now.UTC().AddDate(-years, 0, 0)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Validate checks that every field index is addressable by a record that
// passes the MinFields check.
func (o Options) Validate() error {
	for name, idx := range map[string]int{"value": o.ValueField, "date": o.DateField, "key": o.KeyField} {
		if idx < 0 {
			return eris.Errorf("pricepaid: %s field index %d is negative", name, idx)
		}
		if idx >= o.MinFields {
			return eris.Errorf("pricepaid: %s field index %d not covered by min fields %d", name, idx, o.MinFields)
		}
	}
	return nil
}
