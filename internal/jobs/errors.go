package jobs

import (
	"errors"
	"fmt"
)

// InvalidJobTypeMessage is stored as the error of jobs whose type is not registered
const InvalidJobTypeMessage = "Invalid job type"

var (
	// ErrNotFound is returned when a job or a job result cannot be found
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for illegal state transitions
	ErrConflict = errors.New("conflict")

	// ErrPermission is returned when the requester may not see or act on a job
	ErrPermission = errors.New("permission denied")

	// ErrInvalidType is returned when a job references a type id that is not registered
	ErrInvalidType = errors.New("invalid job type")

	// ErrNotPeriodic is returned when scheduling a job whose type has no user-editable periodicity
	ErrNotPeriodic = fmt.Errorf("%w: job type is not periodic", ErrConflict)

	// ErrNotSystemJob is returned when enabling/disabling a job owned by a user
	ErrNotSystemJob = fmt.Errorf("%w: only system jobs can be enabled or disabled", ErrConflict)

	// ErrNotFinished is returned when clearing a job which is still waiting
	ErrNotFinished = fmt.Errorf("%w: job is not finished", ErrConflict)

	// ErrSystemJob is returned when clearing a system job
	ErrSystemJob = fmt.Errorf("%w: system jobs cannot be cleared", ErrConflict)

	// ErrTooManyJobs is returned when a user already has the maximum number of pending jobs
	ErrTooManyJobs = fmt.Errorf("%w: too many pending jobs", ErrConflict)
)

// ConfigurationError reports a misconfigured job type registry
type ConfigurationError struct {
	TypeID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("job type %q: %s", e.TypeID, e.Reason)
}

// QueueTransportError wraps a failed call to the job scheduler queue
type QueueTransportError struct {
	Op  string
	Err error
}

func (e *QueueTransportError) Error() string {
	return fmt.Sprintf("job scheduler queue %s failed: %s", e.Op, e.Err.Error())
}

func (e *QueueTransportError) Unwrap() error {
	return e.Err
}

// NewQueueTransportError creates a new queue transport error
func NewQueueTransportError(op string, err error) error {
	return &QueueTransportError{Op: op, Err: err}
}

// ValidationError reports invalid input for a field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
