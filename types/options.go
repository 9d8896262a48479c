package types

import "strings"

// OptionType is the side of an option contract
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType accepts "call"/"put" in any case, surrounding spaces ignored.
func ParseOptionType(s string) (OptionType, bool) {
	switch OptionType(strings.ToLower(strings.TrimSpace(s))) {
	case Call:
		return Call, true
	case Put:
		return Put, true
	}
	return "", false
}

// Term is the expiration horizon bucket of an option contract
type Term string

const (
	TermShort Term = "short"
	TermNear  Term = "near"
	TermFar   Term = "far"
)

// PositionType is the moneyness bucket of an option contract
type PositionType string

const (
	PositionMain    PositionType = "main"
	PositionSupport PositionType = "support"
)

// Option snapshot columns as selected from options_data
const (
	ColStrike         = "strike"
	ColOptionType     = "option_type"
	ColExpirationDate = "expiration_date"
	ColVolume         = "volume"
	ColOpenInterest   = "open_interest"
	ColObservedAt     = "observed_at"
)

// OptionSummary is the per (strike, option_type, expiration_date) aggregate of one snapshot.
type OptionSummary struct {
	Strike            float64    `json:"strike"`
	OptionType        OptionType `json:"option_type"`
	ExpirationDate    Date       `json:"expiration_date"`
	Term              Term       `json:"term"`
	TotalVolume       int64      `json:"total_volume"`
	TotalOpenInterest int64      `json:"total_open_interest"`
}

// TermBuckets splits a snapshot's summaries by term, each ordered by strike.
type TermBuckets struct {
	ShortTerm  []OptionSummary `json:"short_term"`
	NearTerm   []OptionSummary `json:"near_term"`
	FarTerm    []OptionSummary `json:"far_term"`
	LatestDate *Date           `json:"latest_date"`
}

// PositionCell holds call and put values for one bucket.
type PositionCell struct {
	Call float64 `json:"call"`
	Put  float64 `json:"put"`
}

// Add accumulates v into the cell for the given side.
func (c *PositionCell) Add(t OptionType, v float64) {
	switch t {
	case Call:
		c.Call += v
	case Put:
		c.Put += v
	}
}

// PositionValue is the notional open interest of one snapshot in billions,
// split by moneyness bucket. All cells are always present.
type PositionValue struct {
	MainBattle PositionCell `json:"main_battle"`
	Support    PositionCell `json:"support"`
	Total      PositionCell `json:"total"`
	SpotPrice  *float64     `json:"spot_price,omitempty"`
	LatestDate *Date        `json:"latest_date,omitempty"`
}
