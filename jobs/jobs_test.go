package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
	jobmetrics "github.com/odyssey-erp/rbacadmin/internal/jobs"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Queue: QueueDefault, Type: task.Type()}, nil
}

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func TestAsynqMailerEnqueuesMailTask(t *testing.T) {
	enq := &captureEnqueuer{}
	mail := auth.Mail{Kind: auth.MailPasswordReset, To: "a@example.com", Name: "A", Link: "https://x/reset-password?token=t"}

	require.NoError(t, NewAsynqMailer(enq).Enqueue(context.Background(), mail))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeSendEmail, enq.tasks[0].Type())

	var decoded auth.Mail
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	assert.Equal(t, mail, decoded)
}

func TestAsynqMailerPropagatesBrokerFailure(t *testing.T) {
	enq := &captureEnqueuer{err: errors.New("redis down")}
	err := NewAsynqMailer(enq).Enqueue(context.Background(), auth.Mail{Kind: auth.MailVerifyEmail})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	msg, err := Render(auth.Mail{Kind: auth.MailVerifyEmail, To: "a@example.com", Link: "https://x/verify-email?token=t"})
	require.NoError(t, err)
	assert.Equal(t, "Verify your email address", msg.Subject)
	assert.Contains(t, msg.Body, "https://x/verify-email?token=t")
	assert.Contains(t, msg.Body, "Hi there")

	_, err = Render(auth.Mail{Kind: "newsletter"})
	assert.Error(t, err)
}

func TestSendEmailJob(t *testing.T) {
	sender := &captureSender{}
	reg := prometheus.NewRegistry()
	job := &SendEmailJob{Sender: sender, Metrics: jobmetrics.NewMetrics(reg)}
	task, err := NewSendEmailTask(auth.Mail{Kind: auth.MailPasswordReset, To: "b@example.com", Name: "B", Link: "l"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "b@example.com", sender.sent[0].To)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP rbacadmin_mail_delivered_total Transactional mail handed to the sender, by kind.
# TYPE rbacadmin_mail_delivered_total counter
rbacadmin_mail_delivered_total{kind="password_reset"} 1
`), "rbacadmin_mail_delivered_total"))

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	sender.err = errors.New("smtp 451")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type fakePurger struct {
	result map[auth.Purpose]int64
	at     time.Time
}

func (f *fakePurger) PurgeExpired(_ context.Context, now time.Time) (map[auth.Purpose]int64, error) {
	f.at = now
	return f.result, nil
}

func TestPurgeTokensJobRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	purger := &fakePurger{result: map[auth.Purpose]int64{auth.PurposePasswordReset: 3, auth.PurposeEmailVerification: 1}}
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	job := NewPurgeTokensJob(purger, nil, metrics)
	job.clock = func() time.Time { return fixed }

	require.NoError(t, job.Handle(context.Background(), NewPurgeTokensTask()))
	assert.Equal(t, fixed, purger.at)

	expected := `
# HELP rbacadmin_verification_tokens_purged_total Expired verification tokens removed by the purge job, by purpose.
# TYPE rbacadmin_verification_tokens_purged_total counter
rbacadmin_verification_tokens_purged_total{purpose="email_verification"} 1
rbacadmin_verification_tokens_purged_total{purpose="password_reset"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rbacadmin_verification_tokens_purged_total"))
}

func TestSMTPSenderFormatsMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "mail.example.com:587", Username: "u", Password: "p", From: "noreply@example.com"})
	var gotTo []string
	var gotMsg string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.example.com:587", addr)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@example.com", from)
		gotTo, gotMsg = to, string(msg)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), Message{To: "c@example.com", Subject: "Hi", Body: "line1\nline2"}))
	assert.Equal(t, []string{"c@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Hi\r\n")
	assert.Contains(t, gotMsg, "line1\r\nline2")
}

type fakeInspector struct {
	info map[string]*asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info[queue], f.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(NewHandler(fakeInspector{info: map[string]*asynq.QueueInfo{
		QueueCritical: {Queue: QueueCritical, Pending: 4, Retry: 1},
	}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queues":[
		{"queue":"critical","pending":4,"active":0,"retry":1},
		{"queue":"default","pending":0,"active":0,"retry":0}
	]}`, rr.Body.String())

	rr = serve(NewHandler(fakeInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewWorkerRejectsIncompleteRegistrations(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Handlers: []TaskHandler{{Type: TaskTypeSendEmail}}})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{Cron: []CronRegistration{{Spec: "*/15 * * * *"}}})
	assert.Error(t, err)
}

func TestMailTasksUseCriticalQueue(t *testing.T) {
	enq := &queueCapture{}
	require.NoError(t, NewAsynqMailer(enq).Enqueue(context.Background(), auth.Mail{Kind: auth.MailVerifyEmail, To: "a@example.com"}))
	assert.Equal(t, QueueCritical, enq.queue)
}

type queueCapture struct{ queue string }

func (q *queueCapture) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	for _, opt := range opts {
		if opt.Type() == asynq.QueueOpt {
			q.queue = opt.Value().(string)
		}
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}
