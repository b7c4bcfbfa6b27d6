package models

import "time"

// GradeNotGraded is the default grade before any gradebook entry.
const GradeNotGraded = 0

// MaxGrade bounds the grading scale.
const MaxGrade = 10

// IsValidGrade reports whether g is on the grading scale.
func IsValidGrade(g int) bool {
	return g >= GradeNotGraded && g <= MaxGrade
}

// GradeUpdateSource records where a grade change originated.
type GradeUpdateSource string

// Known grade update sources.
const (
	GradeUpdateSourceGradebook GradeUpdateSource = "GRADEBOOK"
	GradeUpdateSourceCSV       GradeUpdateSource = "CSV_IMPORT"
	GradeUpdateSourceAdmin     GradeUpdateSource = "ADMIN"
)

// IsValidGradeUpdateSource reports whether s is a known source.
func IsValidGradeUpdateSource(s GradeUpdateSource) bool {
	switch s {
	case GradeUpdateSourceGradebook, GradeUpdateSourceCSV, GradeUpdateSourceAdmin:
		return true
	}
	return false
}

// Enrollment links a student to a course. Rows are created once and never
// deleted: leaving a course flips IsDeleted, re-enrolling flips it back and
// keeps the accumulated reason logs.
type Enrollment struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	StudentProfileID string    `db:"student_profile_id" json:"student_profile_id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	StudentGroupID   *string   `db:"student_group_id" json:"student_group_id,omitempty"`
	BindingID        string    `db:"course_program_binding_id" json:"course_program_binding_id"`
	IsDeleted        bool      `db:"is_deleted" json:"is_deleted"`
	Grade            int       `db:"grade" json:"grade"`
	ReasonEntry      string    `db:"reason_entry" json:"reason_entry"`
	ReasonLeave      string    `db:"reason_leave" json:"reason_leave"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollRequest is the service payload for joining a course.
type EnrollRequest struct {
	StudentID        string `json:"student_id" validate:"required"`
	StudentProfileID string `json:"student_profile_id" validate:"required"`
	CourseID         string `json:"course_id" validate:"required"`
	InvitationID     string `json:"invitation_id"`
	Reason           string `json:"reason"`
}

// LeaveRequest is the service payload for leaving a course.
type LeaveRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	Reason       string `json:"reason"`
}

// UpdateGradeRequest is the service payload for an optimistic grade change.
type UpdateGradeRequest struct {
	EnrollmentID string            `json:"enrollment_id" validate:"required"`
	OldGrade     int               `json:"old_grade"`
	NewGrade     int               `json:"new_grade"`
	EditorID     string            `json:"editor_id" validate:"required"`
	Source       GradeUpdateSource `json:"source" validate:"required"`
}

// EnrollmentGradeLog is an append-only record of a grade change.
type EnrollmentGradeLog struct {
	ID             string            `db:"id" json:"id"`
	EnrollmentID   string            `db:"enrollment_id" json:"enrollment_id"`
	Grade          int               `db:"grade" json:"grade"`
	EditorID       string            `db:"editor_id" json:"editor_id"`
	Source         GradeUpdateSource `db:"source" json:"source"`
	GradeChangedAt time.Time         `db:"grade_changed_at" json:"grade_changed_at"`
}
