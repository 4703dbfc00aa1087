package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
)

const (
	// QueueCritical carries user-facing mail.
	QueueCritical = "critical"
	// QueueDefault carries housekeeping tasks.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgeTokens sweeps expired verification tokens.
	TaskTypePurgeTokens = "auth:tokens:purge"
)

// NewSendEmailTask constructs an Asynq task carrying the mail request.
func NewSendEmailTask(mail auth.Mail) (*asynq.Task, error) {
	data, err := json.Marshal(mail)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewPurgeTokensTask constructs the purge task.
func NewPurgeTokensTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeTokens, nil, asynq.Queue(QueueDefault))
}

// Enqueuer is the subset of asynq.Client used to queue work.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqMailer queues mail for the worker. It satisfies auth.Mailer.
type AsynqMailer struct {
	client Enqueuer
}

// NewAsynqMailer wraps an enqueuer.
func NewAsynqMailer(client Enqueuer) *AsynqMailer {
	return &AsynqMailer{client: client}
}

// Enqueue queues mail on the critical queue.
func (m *AsynqMailer) Enqueue(ctx context.Context, mail auth.Mail) error {
	task, err := NewSendEmailTask(mail)
	if err != nil {
		return fmt.Errorf("jobs: build mail task: %w", err)
	}
	if _, err := m.client.EnqueueContext(ctx, task, asynq.Queue(QueueCritical)); err != nil {
		return fmt.Errorf("jobs: enqueue mail: %w", err)
	}
	return nil
}
