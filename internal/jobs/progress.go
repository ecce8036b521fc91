package jobs

import (
	"fmt"
)

// EntitiesProcessedLabel is the progress label of jobs working on entities
func EntitiesProcessedLabel(count int) string {
	if count == 1 {
		return "1 entity has been processed."
	}
	return fmt.Sprintf("%d entities have been processed.", count)
}

// Percentage builds a progress percentage clamped to [0, 100]
func Percentage(done, total int) *int {
	if total <= 0 {
		return nil
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return &p
}

// StatusPayload is what clients poll to follow a job
type StatusPayload struct {
	Status    int      `json:"status"`
	AckErrors int      `json:"ack_errors"`
	Progress  Progress `json:"progress"`
}

// MaxJobsMessage tells a user why no new job can be created, for a given cap
func MaxJobsMessage(maxJobs int) string {
	if maxJobs > 1 {
		return "You must wait that one of your jobs is finished in order to create a new one."
	}
	return "You must wait that your job is finished in order to create a new one."
}
