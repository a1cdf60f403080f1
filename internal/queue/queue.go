// Package queue defines the background task emitted after a verification
// submission commits, plus the client-side helper to enqueue it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// VerificationSubmittedTask is scheduled once a verification record has
	// been written; the worker uses it to notify the review team.
	VerificationSubmittedTask = "verification:submitted"
)

// SubmittedPayload identifies the committed record for downstream consumers.
type SubmittedPayload struct {
	OwnerID     string    `json:"owner_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Notifier enqueues submission events onto the task queue.
type Notifier struct {
	client *asynq.Client
}

// NewNotifier wraps an asynq client.
func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

// SubmissionAccepted enqueues a verification-submitted task.
func (n *Notifier) SubmissionAccepted(ctx context.Context, payload SubmittedPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(VerificationSubmittedTask, data)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue submitted task: %w", err)
	}
	return nil
}
