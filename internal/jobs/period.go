package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// PeriodUnit names the unit of a Period
type PeriodUnit string

const (
	PeriodMinutes PeriodUnit = "minutes"
	PeriodHours   PeriodUnit = "hours"
	PeriodDays    PeriodUnit = "days"
	PeriodWeeks   PeriodUnit = "weeks"
	PeriodMonths  PeriodUnit = "months"
	PeriodYears   PeriodUnit = "years"
)

// PeriodUnits lists the accepted units, smallest first
var PeriodUnits = []PeriodUnit{
	PeriodMinutes,
	PeriodHours,
	PeriodDays,
	PeriodWeeks,
	PeriodMonths,
	PeriodYears,
}

// IsValid reports whether u is a known unit
func (u PeriodUnit) IsValid() bool {
	for _, known := range PeriodUnits {
		if u == known {
			return true
		}
	}
	return false
}

// MaxPeriodValues bounds the value of each unit to about a century,
// which keeps every period inside the range of time.Duration
var MaxPeriodValues = map[PeriodUnit]int{
	PeriodMinutes: 100 * 365 * 24 * 60,
	PeriodHours:   100 * 365 * 24,
	PeriodDays:    100 * 365,
	PeriodWeeks:   100 * 52,
	PeriodMonths:  100 * 12,
	PeriodYears:   100,
}

// Period is a structured interval: a unit and a positive count of it.
// It is used both for job periodicity and for type-specific delays.
type Period struct {
	Type  PeriodUnit `json:"type"`
	Value int        `json:"value"`
}

// NewPeriod builds a validated Period
func NewPeriod(unit PeriodUnit, value int) (*Period, error) {
	p := &Period{Type: unit, Value: value}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustPeriod is NewPeriod for package-level defaults
func MustPeriod(unit PeriodUnit, value int) *Period {
	p, err := NewPeriod(unit, value)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks the unit and that the value is between 1 and the unit maximum
func (p *Period) Validate() error {
	if p == nil {
		return &ValidationError{Field: "period", Message: "period is required"}
	}
	if !p.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown period unit %q", p.Type)}
	}
	if p.Value < 1 {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("period value must be at least 1, got %d", p.Value)}
	}
	if limit := MaxPeriodValues[p.Type]; p.Value > limit {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("period value must be at most %d %s, got %d", limit, p.Type, p.Value)}
	}
	return nil
}

// Add returns t moved forward by one period.
// Months and years follow calendar arithmetic.
func (p *Period) Add(t time.Time) time.Time {
	return p.AddN(t, 1)
}

// AddN returns t moved forward by n periods
func (p *Period) AddN(t time.Time, n int) time.Time {
	switch p.Type {
	case PeriodMinutes:
		return t.Add(time.Duration(p.Value*n) * time.Minute)
	case PeriodHours:
		return t.Add(time.Duration(p.Value*n) * time.Hour)
	case PeriodDays:
		return t.AddDate(0, 0, p.Value*n)
	case PeriodWeeks:
		return t.AddDate(0, 0, 7*p.Value*n)
	case PeriodMonths:
		return t.AddDate(0, p.Value*n, 0)
	case PeriodYears:
		return t.AddDate(p.Value*n, 0, 0)
	}
	return t
}

// Sub returns t moved backward by one period
func (p *Period) Sub(t time.Time) time.Time {
	return p.AddN(t, -1)
}

// approxDuration is exact for minutes/hours and an upper bound estimate otherwise;
// it only seeds the wakeup search
func (p *Period) approxDuration() time.Duration {
	switch p.Type {
	case PeriodMinutes:
		return time.Duration(p.Value) * time.Minute
	case PeriodHours:
		return time.Duration(p.Value) * time.Hour
	case PeriodDays:
		return time.Duration(p.Value) * 24 * time.Hour
	case PeriodWeeks:
		return time.Duration(p.Value) * 7 * 24 * time.Hour
	case PeriodMonths:
		return time.Duration(p.Value) * 31 * 24 * time.Hour
	case PeriodYears:
		return time.Duration(p.Value) * 366 * 24 * time.Hour
	}
	return 0
}

// Equal compares two possibly-nil periods
func (p *Period) Equal(other *Period) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	return p.Type == other.Type && p.Value == other.Value
}

// AsDict returns the {"type", "value"} form used in queue snapshots and API payloads
func (p *Period) AsDict() map[string]any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"type":  string(p.Type),
		"value": p.Value,
	}
}

// String renders e.g. "3 hours"
func (p *Period) String() string {
	if p == nil {
		return ""
	}
	unit := string(p.Type)
	if p.Value == 1 {
		unit = unit[:len(unit)-1]
	}
	return fmt.Sprintf("%d %s", p.Value, unit)
}

// PeriodFromJSON decodes and validates a period stored as JSON
func PeriodFromJSON(raw json.RawMessage) (*Period, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var p Period
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{Field: "period", Message: fmt.Sprintf("invalid period: %s", err.Error())}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
