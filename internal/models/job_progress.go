package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStepStatus is the state of one step of a long-running job.
type JobStepStatus string

const (
	StepPending   JobStepStatus = "pending"
	StepRunning   JobStepStatus = "running"
	StepCompleted JobStepStatus = "completed"
	StepFailed    JobStepStatus = "failed"
)

// JobStep is one named step of a background operation with an arbitrary
// result payload, read by polling clients.
type JobStep struct {
	Name   string          `json:"name"`
	Status JobStepStatus   `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// JobProgress tracks a long-running background operation step by step so the
// UI can show granular progress and pinpoint which step failed.
type JobProgress struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	CampaignID uuid.UUID     `json:"campaignId" db:"campaign_id"`
	Kind       string        `json:"kind" db:"kind"`
	Steps      []JobStep     `json:"steps" db:"steps"`
	Status     JobStepStatus `json:"status" db:"status"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time     `json:"updatedAt" db:"updated_at"`
}

// SetStep updates the named step in place.
func (j *JobProgress) SetStep(name string, status JobStepStatus, result json.RawMessage) {
	for i := range j.Steps {
		if j.Steps[i].Name == name {
			j.Steps[i].Status = status
			if result != nil {
				j.Steps[i].Result = result
			}
			return
		}
	}
	j.Steps = append(j.Steps, JobStep{Name: name, Status: status, Result: result})
}
