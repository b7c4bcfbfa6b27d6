package models

import "time"

// StudentType classifies a student profile.
type StudentType string

// Supported student profile types.
const (
	StudentTypeRegular StudentType = "REGULAR"
	StudentTypeInvited StudentType = "INVITED"
	StudentTypeAlumni  StudentType = "ALUMNI"
)

// AcademicProgram is a degree program students are admitted to.
type AcademicProgram struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// AcademicProgramRun is a yearly run of an academic program.
type AcademicProgramRun struct {
	ID        string `db:"id" json:"id"`
	ProgramID string `db:"program_id" json:"program_id"`
	Name      string `db:"name" json:"name"`
}

// StudentProfile is a student's enrollment context: one academic
// program/run, or invited/alumni status. A user may hold several over time.
type StudentProfile struct {
	ID           string      `db:"id" json:"id"`
	UserID       string      `db:"user_id" json:"user_id"`
	Type         StudentType `db:"type" json:"type"`
	ProgramID    *string     `db:"program_id" json:"program_id,omitempty"`
	ProgramRunID *string     `db:"program_run_id" json:"program_run_id,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}
