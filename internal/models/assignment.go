package models

import "time"

// Assignment is a graded task within a course. An empty restriction set
// means the assignment is visible to every group in the course.
type Assignment struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// RestrictedTo holds the IDs of groups the assignment is limited to.
	// Loaded separately from the assignment_groups table.
	RestrictedTo []string `db:"-" json:"restricted_to,omitempty"`
}

// VisibleToGroup reports whether the assignment is reachable from groupID.
func (a Assignment) VisibleToGroup(groupID string) bool {
	if len(a.RestrictedTo) == 0 {
		return true
	}
	for _, id := range a.RestrictedTo {
		if id == groupID {
			return true
		}
	}
	return false
}

// AssignmentGroup is one row of an assignment's visibility restriction.
type AssignmentGroup struct {
	AssignmentID string `db:"assignment_id" json:"assignment_id"`
	GroupID      string `db:"group_id" json:"group_id"`
}

// CourseClassGroup restricts a course class to a student group. Groups
// referenced here count as dependents when a group is removed.
type CourseClassGroup struct {
	CourseClassID string `db:"course_class_id" json:"course_class_id"`
	GroupID       string `db:"group_id" json:"group_id"`
}

// StudentAssignmentStatus is the soft-delete state of a personal assignment.
type StudentAssignmentStatus string

// Personal assignment states.
const (
	StudentAssignmentActive  StudentAssignmentStatus = "ACTIVE"
	StudentAssignmentDeleted StudentAssignmentStatus = "DELETED"
)

// StudentAssignment is the per-student materialized progress record for one
// assignment. Trashing sets DeletedAt; restoring clears it, keeping score.
type StudentAssignment struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Score        *int       `db:"score" json:"score,omitempty"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Status derives the ACTIVE/DELETED state from DeletedAt.
func (sa StudentAssignment) Status() StudentAssignmentStatus {
	if sa.DeletedAt != nil {
		return StudentAssignmentDeleted
	}
	return StudentAssignmentActive
}
