package pricepaid

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DeriveKey returns the district for a postcode: the part before the first
// whitespace, uppercased ("sw1a 1aa" -> "SW1A"). It reports false when the
// postcode has no whitespace or an empty leading token.
func DeriveKey(raw string) (string, bool) {
	return deriveKey(cases.Upper(language.Und), raw)
}

func deriveKey(upper cases.Caser, raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i <= 0 {
		return "", false
	}
	return upper.String(s[:i]), true
}

// parser validates records and extracts (key, value). A Caser is stateful,
// so each goroutine needs its own parser.
type parser struct {
	opts   Options
	cutoff time.Time
	upper  cases.Caser
}

func newParser(opts Options) *parser {
	c := opts.Cutoff.UTC()
	return &parser{
		opts:   opts,
		cutoff: time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC),
		upper:  cases.Upper(language.Und),
	}
}

func (p *parser) parse(fields []string) (string, int64, SkipReason) {
	if len(fields) < p.opts.MinFields {
		return "", 0, TooFewFields
	}

	value, err := strconv.ParseInt(strings.TrimSpace(fields[p.opts.ValueField]), 10, 64)
	if err != nil || value <= 0 {
		return "", 0, BadValue
	}

	date, ok := parseDate(fields[p.opts.DateField])
	if !ok {
		return "", 0, BadDate
	}
	if date.Before(p.cutoff) {
		return "", 0, StaleDate
	}

	key, ok := deriveKey(p.upper, fields[p.opts.KeyField])
	if !ok {
		return "", 0, BadKey
	}

	return key, value, Accepted
}

// parseDate reads the YYYY-MM-DD prefix of a date field.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
