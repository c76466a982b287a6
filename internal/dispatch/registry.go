package dispatch

import (
	"context"
	"fmt"

	"github.com/jayjaytrn/order-management-system/models"
)

// HandlerFunc processes one delivery. It owns the delivery: it must ack or
// retry the job itself.
type HandlerFunc func(ctx context.Context, delivery models.Delivery) error

// Registry maps every known job type to its handler. It is filled once at
// start-up and checked with Validate before the workers start.
type Registry struct {
	handlers map[models.JobType]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]HandlerFunc)}
}

func (r *Registry) Register(jobType models.JobType, h HandlerFunc) {
	r.handlers[jobType] = h
}

// Validate fails when a job type the pipeline produces has no handler.
func (r *Registry) Validate() error {
	for _, t := range models.JobTypes {
		if _, ok := r.handlers[t]; !ok {
			return fmt.Errorf("%w: no handler for %q", models.ErrUnknownJobType, t)
		}
	}
	return nil
}

func (r *Registry) Handle(ctx context.Context, delivery models.Delivery) error {
	h, ok := r.handlers[delivery.Job.Type]
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrUnknownJobType, delivery.Job.Type)
	}
	return h(ctx, delivery)
}
