package models

import "time"

// StudentGroupType distinguishes how a group came to exist.
type StudentGroupType string

// Supported student group types.
const (
	GroupTypeSystem     StudentGroupType = "SYSTEM"
	GroupTypeManual     StudentGroupType = "MANUAL"
	GroupTypeProgram    StudentGroupType = "PROGRAM"
	GroupTypeProgramRun StudentGroupType = "PROGRAM_RUN"
)

// DefaultGroupName is the name of the lazily created system group that
// holds students without a more specific cohort.
const DefaultGroupName = "Others"

// StudentGroup is a cohort within one course. PROGRAM groups link a
// program, PROGRAM_RUN groups link a run; MANUAL and SYSTEM link neither.
type StudentGroup struct {
	ID            string           `db:"id" json:"id"`
	CourseID      string           `db:"course_id" json:"course_id"`
	Type          StudentGroupType `db:"type" json:"type"`
	Name          string           `db:"name" json:"name"`
	ProgramID     *string          `db:"program_id" json:"program_id,omitempty"`
	ProgramRunID  *string          `db:"program_run_id" json:"program_run_id,omitempty"`
	EnrollmentKey string           `db:"enrollment_key" json:"enrollment_key"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// CreateStudentGroupRequest is the service payload for group creation.
type CreateStudentGroupRequest struct {
	CourseID     string           `json:"course_id" validate:"required"`
	Type         StudentGroupType `json:"type" validate:"required"`
	ProgramID    string           `json:"program_id"`
	ProgramRunID string           `json:"program_run_id"`
	Name         string           `json:"name"`
}
