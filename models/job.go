package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

// JobTypeProcessOrder is the only job the pipeline knows about.
const JobTypeProcessOrder JobType = "process_order"

// JobTypes enumerates every job type a worker must be able to handle.
var JobTypes = []JobType{JobTypeProcessOrder}

// Job is the message exchanged between the dispatcher and the workers.
type Job struct {
	ID         string    `json:"job_id"`
	Type       JobType   `json:"type"`
	OrderID    string    `json:"order_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a claimed job together with its queue bookkeeping.
type Delivery struct {
	Job Job
	// VisibleAt is the visibility deadline of this delivery.
	VisibleAt time.Time
	// LastError is set when a previous attempt of the same job was
	// explicitly retried rather than abandoned.
	LastError string
	// Resumable is set when the previous attempt handed the job back
	// knowing that fulfillment did not succeed for it. A crashed attempt
	// leaves it unset.
	Resumable bool
}

// Failure is what an attempt reports when it hands its job back for a
// later retry.
type Failure struct {
	Reason    string
	Resumable bool
}

func EncodeJob(job Job) ([]byte, error) {
	if job.ID == "" || job.OrderID == "" {
		return nil, fmt.Errorf("encode job: missing id")
	}
	return json.Marshal(job)
}

func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" || job.OrderID == "" {
		return Job{}, fmt.Errorf("decode job: missing id")
	}
	if job.Type == "" {
		job.Type = JobTypeProcessOrder
	}
	return job, nil
}
