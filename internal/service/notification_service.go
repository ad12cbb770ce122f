package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/events"
	"github.com/noah-isme/sma-admissions-api/pkg/jobs"
	"github.com/noah-isme/sma-admissions-api/pkg/mailer"
)

const (
	jobTypePublish = "publish_event"
	jobTypeMail    = "guardian_mail"
)

type jobQueue interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
	Enqueue(job jobs.Job) error
}

// AdmissionDecision is the payload carried by decision events.
type AdmissionDecision struct {
	AdmissionID   string                 `json:"admission_id"`
	EnquiryID     *string                `json:"enquiry_id,omitempty"`
	ApplicantName string                 `json:"applicant_name"`
	Grade         string                 `json:"grade"`
	Status        models.AdmissionStatus `json:"status"`
	Reason        *string                `json:"reason,omitempty"`
	DecidedBy     *string                `json:"decided_by,omitempty"`
	DecidedAt     time.Time              `json:"decided_at"`
	GuardianName  string                 `json:"-"`
	GuardianEmail string                 `json:"-"`
}

// NotificationService delivers admission decisions downstream in the background.
// Each decision becomes one event job and, when a guardian email is known, one mail job;
// both retry independently so a mail outage never republishes the event.
type NotificationService struct {
	queue     jobQueue
	publisher events.Publisher
	mailer    mailer.Mailer
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService wires a queue around the publisher and mailer.
func NewNotificationService(publisher events.Publisher, m mailer.Mailer, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{publisher: publisher, mailer: m, metrics: metrics, logger: logger}
	cfg.Logger = logger
	cfg.OnGiveUp = svc.giveUp
	svc.queue = jobs.NewQueue("admission-notifications", svc.handle, cfg)
	return svc
}

// Start begins background delivery.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains pending deliveries until ctx expires.
func (s *NotificationService) Stop(ctx context.Context) {
	s.queue.Stop(ctx)
}

// AdmissionDecided schedules delivery of an approval or rejection. The decision is already
// committed, so enqueue failures are logged rather than returned.
func (s *NotificationService) AdmissionDecided(ctx context.Context, decision AdmissionDecision) {
	if s == nil {
		return
	}
	eventType, ok := decisionEventType(decision.Status)
	if !ok {
		return
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		s.logger.Error("marshal admission decision", zap.String("admission_id", decision.AdmissionID), zap.Error(err))
		return
	}
	event := events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        decision.AdmissionID,
		OccurredAt: decision.DecidedAt,
		Payload:    payload,
	}
	s.enqueue(jobs.Job{ID: event.ID, Type: jobTypePublish, Payload: event})

	if decision.GuardianEmail != "" {
		s.enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeMail, Payload: decisionMail(decision)})
	}
}

func (s *NotificationService) enqueue(job jobs.Job) {
	if err := s.queue.Enqueue(job); err != nil {
		s.metrics.ObserveDelivery(job.Type, err)
		s.logger.Error("failed to schedule admission notification", zap.String("type", job.Type), zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	var err error
	switch payload := job.Payload.(type) {
	case events.Event:
		err = s.publisher.Publish(ctx, payload)
	case mailer.Message:
		err = s.mailer.Send(ctx, payload)
	default:
		s.logger.Error("dropping notification job with unknown payload", zap.String("type", job.Type))
		return nil
	}
	s.metrics.ObserveDelivery(job.Type, err)
	return err
}

func (s *NotificationService) giveUp(job jobs.Job, err error) {
	s.logger.Error("admission notification abandoned",
		zap.String("type", job.Type),
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}

func decisionEventType(status models.AdmissionStatus) (string, bool) {
	switch status {
	case models.AdmissionStatusApproved:
		return events.TypeAdmissionApproved, true
	case models.AdmissionStatusRejected:
		return events.TypeAdmissionRejected, true
	default:
		return "", false
	}
}

func decisionMail(d AdmissionDecision) mailer.Message {
	msg := mailer.Message{ToName: d.GuardianName, ToEmail: d.GuardianEmail}
	if d.Status == models.AdmissionStatusApproved {
		msg.Subject = fmt.Sprintf("Admission approved: %s", d.ApplicantName)
		msg.Text = fmt.Sprintf("Dear %s,\n\nThe admission of %s to grade %s has been approved.\n", d.GuardianName, d.ApplicantName, d.Grade)
		return msg
	}
	reason := "no reason given"
	if d.Reason != nil && *d.Reason != "" {
		reason = *d.Reason
	}
	msg.Subject = fmt.Sprintf("Admission decision: %s", d.ApplicantName)
	msg.Text = fmt.Sprintf("Dear %s,\n\nThe admission of %s to grade %s was not accepted.\nReason: %s\n", d.GuardianName, d.ApplicantName, d.Grade, reason)
	return msg
}
