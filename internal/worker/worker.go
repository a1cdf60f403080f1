// Package worker consumes post-submission tasks. It stops at the review-team
// notification boundary; the review workflow itself lives elsewhere.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"kycgate/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.VerificationSubmittedTask, p.handleSubmitted)
	return mux
}

func (p *Processor) handleSubmitted(ctx context.Context, task *asynq.Task) error {
	var payload queue.SubmittedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.OwnerID == "" {
		return fmt.Errorf("submitted task missing owner id")
	}
	// Integration point for the review-team channel (email, ticketing).
	p.logger.Info("verification submitted, review pending",
		"owner_id", payload.OwnerID,
		"submitted_at", payload.SubmittedAt,
	)
	return nil
}
