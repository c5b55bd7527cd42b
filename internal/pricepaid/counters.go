package pricepaid

// SkipReason classifies what happened to one record.
type SkipReason int

// Record outcomes. Accepted is the zero value.
const (
	Accepted SkipReason = iota
	TooFewFields
	BadValue
	BadDate
	StaleDate
	BadKey
	Malformed
)

// String returns the counter name used in logs and reports.
func (r SkipReason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case TooFewFields:
		return "too_few_fields"
	case BadValue:
		return "bad_value"
	case BadDate:
		return "bad_date"
	case StaleDate:
		return "stale_date"
	case BadKey:
		return "bad_key"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Counters tallies record outcomes for one run.
type Counters struct {
	Accepted     int64 `json:"accepted" yaml:"accepted"`
	TooFewFields int64 `json:"too_few_fields" yaml:"too_few_fields"`
	BadValue     int64 `json:"bad_value" yaml:"bad_value"`
	BadDate      int64 `json:"bad_date" yaml:"bad_date"`
	StaleDate    int64 `json:"stale_date" yaml:"stale_date"`
	BadKey       int64 `json:"bad_key" yaml:"bad_key"`
	Malformed    int64 `json:"malformed" yaml:"malformed"`
}

func (c *Counters) record(r SkipReason) {
	switch r {
	case Accepted:
		c.Accepted++
	case TooFewFields:
		c.TooFewFields++
	case BadValue:
		c.BadValue++
	case BadDate:
		c.BadDate++
	case StaleDate:
		c.StaleDate++
	case BadKey:
		c.BadKey++
	case Malformed:
		c.Malformed++
	}
}

// Merge adds o into c.
func (c *Counters) Merge(o Counters) {
	c.Accepted += o.Accepted
	c.TooFewFields += o.TooFewFields
	c.BadValue += o.BadValue
	c.BadDate += o.BadDate
	c.StaleDate += o.StaleDate
	c.BadKey += o.BadKey
	c.Malformed += o.Malformed
}

// Skipped returns the number of rejected records across all reasons.
func (c Counters) Skipped() int64 {
	return c.TooFewFields + c.BadValue + c.BadDate + c.StaleDate + c.BadKey + c.Malformed
}

// Total returns every record seen.
func (c Counters) Total() int64 {
	return c.Accepted + c.Skipped()
}

// Map returns the counters keyed by SkipReason name.
func (c Counters) Map() map[string]int64 {
	return map[string]int64{
		Accepted.String():     c.Accepted,
		TooFewFields.String(): c.TooFewFields,
		BadValue.String():     c.BadValue,
		BadDate.String():      c.BadDate,
		StaleDate.String():    c.StaleDate,
		BadKey.String():       c.BadKey,
		Malformed.String():    c.Malformed,
	}
}
