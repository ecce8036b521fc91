package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Periodicity is the scheduling class of a job type
type Periodicity int

const (
	// NotPeriodic jobs run once, as soon as possible
	NotPeriodic Periodicity = iota
	// PseudoPeriodic jobs recur with a period fixed by their type
	PseudoPeriodic
	// Periodic jobs recur with a period stored on the job and editable by privileged users
	Periodic
)

func (p Periodicity) String() string {
	switch p {
	case NotPeriodic:
		return "NOT_PERIODIC"
	case PseudoPeriodic:
		return "PSEUDO_PERIODIC"
	case Periodic:
		return "PERIODIC"
	}
	return fmt.Sprintf("Periodicity(%d)", int(p))
}

// Progress describes how far a job went
type Progress struct {
	Label      string `json:"label"`
	Percentage *int   `json:"percentage"`
}

// ResultSink records the outcome of processed items while a job executes
type ResultSink interface {
	AddResult(ctx context.Context, result *Result) error
}

// ResultReader gives job types read access to the results of a job
type ResultReader interface {
	CountResults(ctx context.Context, jobID int64, onlyErrors bool) (int, error)
}

// Type describes the behaviour and scheduling policy of a kind of job
type Type interface {
	ID() string
	VerboseName() string
	Periodic() Periodicity

	// DefaultPeriod is the initial periodicity of PERIODIC jobs and the fixed one of PSEUDO_PERIODIC jobs
	DefaultPeriod() *Period
	DefaultData() map[string]any

	// NextWakeup fails with ErrNotPeriodic for NOT_PERIODIC types
	NextWakeup(job *Job, now time.Time) (time.Time, error)

	Execute(ctx context.Context, job *Job, sink ResultSink) error
	Progress(ctx context.Context, job *Job, results ResultReader) (Progress, error)
	Stats(ctx context.Context, job *Job, results ResultReader) ([]string, error)

	// CleanData validates submitted type-specific fields.
	// A nil map means the type has no editable data.
	CleanData(fields map[string]json.RawMessage) (map[string]any, error)
}

// ErrNotImplemented is returned by BaseType.Execute
var ErrNotImplemented = errors.New("job type does not implement execution")

// BaseType implements the parts of Type shared by most job types. Types embed it.
type BaseType struct {
	TypeID string
	Name   string
	Class  Periodicity
	Period *Period
	Data   map[string]any
}

func (b *BaseType) ID() string {
	return b.TypeID
}

func (b *BaseType) VerboseName() string {
	return b.Name
}

func (b *BaseType) Periodic() Periodicity {
	return b.Class
}

func (b *BaseType) DefaultPeriod() *Period {
	if b.Period == nil {
		return nil
	}
	p := *b.Period
	return &p
}

func (b *BaseType) DefaultData() map[string]any {
	data := make(map[string]any, len(b.Data))
	for k, v := range b.Data {
		data[k] = v
	}
	return data
}

func (b *BaseType) NextWakeup(job *Job, now time.Time) (time.Time, error) {
	if b.Class == NotPeriodic {
		return time.Time{}, fmt.Errorf("next wakeup of job %d (%s): %w", job.ID, b.TypeID, ErrNotPeriodic)
	}

	period := job.Periodicity
	if b.Class == PseudoPeriodic || period == nil {
		period = b.Period
	}
	if period == nil {
		return time.Time{}, &ConfigurationError{TypeID: b.TypeID, Reason: "no period to compute the next wakeup"}
	}

	return NextPeriodicWakeup(job.ReferenceRun, period, job.LastRun, now), nil
}

func (b *BaseType) Execute(ctx context.Context, job *Job, sink ResultSink) error {
	return ErrNotImplemented
}

func (b *BaseType) Progress(ctx context.Context, job *Job, results ResultReader) (Progress, error) {
	return Progress{}, nil
}

func (b *BaseType) Stats(ctx context.Context, job *Job, results ResultReader) ([]string, error) {
	return nil, nil
}

func (b *BaseType) CleanData(fields map[string]json.RawMessage) (map[string]any, error) {
	return nil, nil
}

// NextPeriodicWakeup returns the smallest reference + k*period strictly after max(now, lastRun).
// A reference in the future is the next wakeup itself.
func NextPeriodicWakeup(reference time.Time, period *Period, lastRun *time.Time, now time.Time) time.Time {
	floor := now
	if lastRun != nil && lastRun.After(floor) {
		floor = *lastRun
	}
	if reference.After(floor) {
		return reference
	}

	k := 0
	if d := period.approxDuration(); d > 0 {
		k = int(floor.Sub(reference) / d)
	}
	for k > 0 && period.AddN(reference, k-1).After(floor) {
		k--
	}
	for !period.AddN(reference, k).After(floor) {
		k++
	}
	return period.AddN(reference, k)
}

// RealPeriodicity resolves the effective period of a job
func RealPeriodicity(job *Job, t Type) *Period {
	if t == nil {
		return nil
	}
	switch t.Periodic() {
	case Periodic:
		if job.Periodicity != nil {
			return job.Periodicity
		}
		return t.DefaultPeriod()
	case PseudoPeriodic:
		return t.DefaultPeriod()
	}
	return nil
}
