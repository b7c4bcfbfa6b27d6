package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/config"
	"github.com/jetbrains-academy/lms-sub000/pkg/jobs"
)

type notificationRepository interface {
	Insert(ctx context.Context, n *models.CourseNotification) error
	PurgeForStudentAndCourse(ctx context.Context, studentID, courseID string) error
	PurgeForStudentsInCourse(ctx context.Context, courseID string, studentIDs []string) error
}

type enrollmentSignal struct {
	StudentID string
	CourseID  string
}

// NotificationService records pending notifications asynchronously and
// purges them when enrollment state changes make them irrelevant.
// Delivery (email, digest) is a separate system reading the pending rows.
type NotificationService struct {
	repo    notificationRepository
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(repo notificationRepository, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, logger: logger, enabled: cfg.Enabled}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the notification workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the notification workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// EnrollmentCreated signals a fresh enrollment; the pending notification is
// written by a worker outside the enrollment transaction.
func (s *NotificationService) EnrollmentCreated(ctx context.Context, enrollment *models.Enrollment) {
	if !s.enabled {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(models.NotificationEnrollmentCreated),
		Payload: enrollmentSignal{StudentID: enrollment.StudentID, CourseID: enrollment.CourseID},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue enrollment notification", zap.Error(err))
	}
}

// PurgeCourseNotifications drops the student's pending notifications for a
// course.
func (s *NotificationService) PurgeCourseNotifications(ctx context.Context, studentID, courseID string) error {
	return s.repo.PurgeForStudentAndCourse(ctx, studentID, courseID)
}

// PurgeForStudents drops pending notifications for several students in a
// course at once.
func (s *NotificationService) PurgeForStudents(ctx context.Context, courseID string, studentIDs []string) error {
	return s.repo.PurgeForStudentsInCourse(ctx, courseID, studentIDs)
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	signal, ok := job.Payload.(enrollmentSignal)
	if !ok {
		return fmt.Errorf("unexpected payload for job %s", job.ID)
	}
	n := &models.CourseNotification{
		StudentID: signal.StudentID,
		CourseID:  signal.CourseID,
		Type:      models.NotificationType(job.Type),
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return err
	}
	s.logger.Debug("notification recorded",
		zap.String("student_id", signal.StudentID),
		zap.String("course_id", signal.CourseID),
		zap.String("type", job.Type),
	)
	return nil
}
