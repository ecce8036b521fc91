package jobtypes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

// BatchAction is one field operation applied to every entity of a batch
type BatchAction struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// BatchOperators lists the operators a batch action may use
var BatchOperators = []string{"upper", "lower", "title", "prefix", "suffix", "rm_substr", "set"}

func (a BatchAction) validate() error {
	if a.Field == "" {
		return errors.New("batch action without field")
	}
	for _, op := range BatchOperators {
		if a.Operator == op {
			return nil
		}
	}
	return fmt.Errorf("unknown batch operator %q", a.Operator)
}

type batchData struct {
	ContentType int64         `json:"ctype"`
	EntityIDs   []int64       `json:"entity_ids"`
	Actions     []BatchAction `json:"actions"`
}

// EntityProcessor applies batch actions to entities. Entities live outside the scheduler.
type EntityProcessor interface {
	Apply(ctx context.Context, contentType, entityID int64, actions []BatchAction) error
}

// BatchProcess applies field operations to a set of entities, once
type BatchProcess struct {
	jobs.BaseType
	entities EntityProcessor
	logger   *slog.Logger
}

// NewBatchProcess creates the batch process type
func NewBatchProcess(entities EntityProcessor, logger *slog.Logger) *BatchProcess {
	return &BatchProcess{
		BaseType: jobs.BaseType{
			TypeID: BatchProcessTypeID,
			Name:   "Batch process",
			Class:  jobs.NotPeriodic,
			Data:   map[string]any{"actions": []any{}},
		},
		entities: entities,
		logger:   logger,
	}
}

func (t *BatchProcess) Execute(ctx context.Context, job *jobs.Job, sink jobs.ResultSink) error {
	if t.entities == nil {
		return errors.New("no entity processor configured")
	}

	var data batchData
	if err := job.DecodeData(&data); err != nil {
		return err
	}
	for _, action := range data.Actions {
		if err := action.validate(); err != nil {
			return err
		}
	}

	for _, entityID := range data.EntityIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := entityID
		result := &jobs.Result{JobID: job.ID, EntityID: &id}
		if err := t.entities.Apply(ctx, data.ContentType, id, data.Actions); err != nil {
			result.Messages = []string{err.Error()}
		}
		if err := sink.AddResult(ctx, result); err != nil {
			return err
		}
	}

	t.logger.Info("Batch process done",
		slog.Int64("job_id", job.ID),
		slog.Int("entities", len(data.EntityIDs)),
	)
	return nil
}

func (t *BatchProcess) Progress(ctx context.Context, job *jobs.Job, results jobs.ResultReader) (jobs.Progress, error) {
	count, err := results.CountResults(ctx, job.ID, false)
	if err != nil {
		return jobs.Progress{}, err
	}

	var data batchData
	if err := job.DecodeData(&data); err != nil {
		return jobs.Progress{}, err
	}
	return jobs.Progress{
		Label:      jobs.EntitiesProcessedLabel(count),
		Percentage: jobs.Percentage(count, len(data.EntityIDs)),
	}, nil
}

func (t *BatchProcess) Stats(ctx context.Context, job *jobs.Job, results jobs.ResultReader) ([]string, error) {
	total, failed, err := countResults(ctx, job, results)
	if err != nil {
		return nil, err
	}

	stats := []string{jobs.EntitiesProcessedLabel(total - failed)}
	if failed > 0 {
		stats = append(stats, plural(failed, "entity cannot be processed.", "entities cannot be processed."))
	}
	return stats, nil
}

// LogEntityProcessor logs the actions it is asked to apply.
// It stands in for the entity layer when the scheduler runs on its own.
type LogEntityProcessor struct {
	Logger *slog.Logger
}

func (p *LogEntityProcessor) Apply(ctx context.Context, contentType, entityID int64, actions []BatchAction) error {
	ops := make([]string, 0, len(actions))
	for _, a := range actions {
		ops = append(ops, a.Field+":"+a.Operator)
	}

	p.Logger.Info("Applying batch actions",
		slog.Int64("content_type", contentType),
		slog.Int64("entity_id", entityID),
		slog.String("actions", strings.Join(ops, ",")),
	)
	return nil
}
