package models

import "time"

// NotificationType labels a pending notification.
type NotificationType string

// Known notification types.
const (
	NotificationEnrollmentCreated  NotificationType = "ENROLLMENT_CREATED"
	NotificationAssignmentAssigned NotificationType = "ASSIGNMENT_ASSIGNED"
)

// CourseNotification is a pending, not-yet-delivered notification for a
// student within a course. Delivery itself happens outside this service;
// rows are purged when the triggering enrollment goes away.
type CourseNotification struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	Type      NotificationType `db:"type" json:"type"`
	Pending   bool             `db:"pending" json:"pending"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
