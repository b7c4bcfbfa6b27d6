package models

import "time"

// CourseGroupMode defines how students are grouped within a course.
type CourseGroupMode string

// Supported group modes.
const (
	GroupModeNoGroups   CourseGroupMode = "NO_GROUPS"
	GroupModeManual     CourseGroupMode = "MANUAL"
	GroupModeProgram    CourseGroupMode = "PROGRAM"
	GroupModeProgramRun CourseGroupMode = "PROGRAM_RUN"
)

// Course is a single course offering.
type Course struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Capacity      int             `db:"capacity" json:"capacity"`
	GroupMode     CourseGroupMode `db:"group_mode" json:"group_mode"`
	LearnersCount int             `db:"learners_count" json:"learners_count"`
	Completed     bool            `db:"completed" json:"completed"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// IsCapacityLimited reports whether the course bounds active enrollments.
// Zero capacity means unlimited.
func (c Course) IsCapacityLimited() bool {
	return c.Capacity > 0
}

// CourseProgramBinding grants a cohort the right to enroll in a course.
// Exactly one of InvitationID, ProgramID or IsAlumni identifies the cohort.
type CourseProgramBinding struct {
	ID                string     `db:"id" json:"id"`
	CourseID          string     `db:"course_id" json:"course_id"`
	ProgramID         *string    `db:"program_id" json:"program_id,omitempty"`
	InvitationID      *string    `db:"invitation_id" json:"invitation_id,omitempty"`
	IsAlumni          bool       `db:"is_alumni" json:"is_alumni"`
	EnrollmentEndDate *time.Time `db:"enrollment_end_date" json:"enrollment_end_date,omitempty"`
	PassingGrade      int        `db:"passing_grade" json:"passing_grade"`
}

// Validate enforces the exactly-one-cohort constraint.
func (b CourseProgramBinding) Validate() bool {
	set := 0
	if b.ProgramID != nil {
		set++
	}
	if b.InvitationID != nil {
		set++
	}
	if b.IsAlumni {
		set++
	}
	return set == 1
}

// IsOpen reports whether the binding still accepts enrollments at now.
func (b CourseProgramBinding) IsOpen(now time.Time) bool {
	return b.EnrollmentEndDate == nil || now.Before(*b.EnrollmentEndDate)
}

// Invitation lets an invited cohort join a course run.
type Invitation struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
