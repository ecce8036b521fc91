package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the execution state of a job. Values are the integer codes exposed to clients.
type Status int

const (
	StatusWait  Status = 1
	StatusError Status = 10
	StatusOK    Status = 20
)

// IsFinished reports whether the scheduler is done with the job
func (s Status) IsFinished() bool {
	return s == StatusOK || s == StatusError
}

func (s Status) String() string {
	switch s {
	case StatusWait:
		return "WAIT"
	case StatusError:
		return "ERROR"
	case StatusOK:
		return "OK"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// DefaultLanguage is used when a job is created without a language
const DefaultLanguage = "en"

// ISO8601Layout is the timestamp layout used in refresh snapshots
const ISO8601Layout = "2006-01-02T15:04:05.000000Z"

// FormatISO8601 renders t in UTC with microseconds
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ISO8601Layout)
}

// ParseISO8601 is the inverse of FormatISO8601
func ParseISO8601(s string) (time.Time, error) {
	return time.Parse(ISO8601Layout, s)
}

// Job is a persisted unit of background work
type Job struct {
	ID           int64
	TypeID       string
	Owner        Owner
	Language     string
	CreatedAt    time.Time
	Status       Status
	Error        string
	Enabled      bool
	RawData      json.RawMessage
	Periodicity  *Period
	ReferenceRun time.Time
	LastRun      *time.Time
	AckErrors    int
}

// IsSystem reports whether the job has no individual owner
func (j *Job) IsSystem() bool {
	return j.Owner.IsSystem()
}

// Data decodes the job payload as a JSON object
func (j *Job) Data() (map[string]any, error) {
	data := map[string]any{}
	if len(j.RawData) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(j.RawData, &data); err != nil {
		return nil, fmt.Errorf("failed to decode data of job %d: %w", j.ID, err)
	}
	return data, nil
}

// DecodeData decodes the job payload into v
func (j *Job) DecodeData(v any) error {
	if len(j.RawData) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.RawData, v); err != nil {
		return fmt.Errorf("failed to decode data of job %d: %w", j.ID, err)
	}
	return nil
}

// SetData encodes data as the job payload
func (j *Job) SetData(data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode job data: %w", err)
	}
	j.RawData = raw
	return nil
}

// Clone returns a copy that can be mutated without touching j
func (j *Job) Clone() *Job {
	c := *j
	if j.RawData != nil {
		c.RawData = append(json.RawMessage(nil), j.RawData...)
	}
	if j.Periodicity != nil {
		p := *j.Periodicity
		c.Periodicity = &p
	}
	if j.LastRun != nil {
		t := *j.LastRun
		c.LastRun = &t
	}
	return &c
}

// RefreshData is the snapshot sent to the scheduler when the schedule of a job changes.
// Periodicity is only set when it changed.
type RefreshData struct {
	Enabled      bool    `json:"enabled"`
	ReferenceRun string  `json:"reference_run"`
	Periodicity  *Period `json:"periodicity,omitempty"`
}

// NewRefreshData snapshots the schedule of job
func NewRefreshData(job *Job, withPeriodicity bool) RefreshData {
	data := RefreshData{
		Enabled:      job.Enabled,
		ReferenceRun: FormatISO8601(job.ReferenceRun),
	}
	if withPeriodicity && job.Periodicity != nil {
		p := *job.Periodicity
		data.Periodicity = &p
	}
	return data
}

// AsDict returns the snapshot as a plain map
func (d RefreshData) AsDict() map[string]any {
	m := map[string]any{
		"enabled":       d.Enabled,
		"reference_run": d.ReferenceRun,
	}
	if d.Periodicity != nil {
		m["periodicity"] = d.Periodicity.AsDict()
	}
	return m
}

// Apply copies the snapshot onto job
func (d RefreshData) Apply(job *Job) error {
	ref, err := ParseISO8601(d.ReferenceRun)
	if err != nil {
		return fmt.Errorf("invalid reference run %q: %w", d.ReferenceRun, err)
	}
	job.Enabled = d.Enabled
	job.ReferenceRun = ref
	if d.Periodicity != nil {
		p := *d.Periodicity
		job.Periodicity = &p
	}
	return nil
}

// Result is one processed item of a job. An empty Messages means success.
type Result struct {
	ID        int64
	JobID     int64
	EntityID  *int64
	Messages  []string
	CreatedAt time.Time
}

// IsError reports whether the item failed
func (r *Result) IsError() bool {
	return len(r.Messages) > 0
}
