package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

// NotificationRepository handles persistence of pending notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert stores a pending notification.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.CourseNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	const query = `INSERT INTO course_notifications (id, student_id, course_id, type, pending, created_at)
        VALUES (:id, :student_id, :course_id, :type, TRUE, NOW())`
	if _, err := database.Q(ctx, r.db).NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// PurgeForStudentAndCourse drops pending notifications a student holds for
// a course. Called when the student leaves the course.
func (r *NotificationRepository) PurgeForStudentAndCourse(ctx context.Context, studentID, courseID string) error {
	const query = `DELETE FROM course_notifications WHERE student_id = $1 AND course_id = $2 AND pending = TRUE`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, studentID, courseID); err != nil {
		return fmt.Errorf("purge notifications: %w", err)
	}
	return nil
}

// PurgeForStudentsInCourse drops pending notifications for several students
// at once. Used when personal assignments are trashed in bulk.
func (r *NotificationRepository) PurgeForStudentsInCourse(ctx context.Context, courseID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(studentIDs))
	args := []interface{}{courseID}
	for i, studentID := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, studentID)
	}
	query := fmt.Sprintf(`DELETE FROM course_notifications WHERE course_id = $1 AND pending = TRUE AND student_id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("purge notifications: %w", err)
	}
	return nil
}
