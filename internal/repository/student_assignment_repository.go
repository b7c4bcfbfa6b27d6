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

const studentAssignmentColumns = `id, assignment_id, student_id, score, deleted_at, created_at, updated_at`

// StudentAssignmentRepository handles persistence of personal assignments.
type StudentAssignmentRepository struct {
	db *sqlx.DB
}

// NewStudentAssignmentRepository constructs the repository.
func NewStudentAssignmentRepository(db *sqlx.DB) *StudentAssignmentRepository {
	return &StudentAssignmentRepository{db: db}
}

// FindByAssignmentAndStudent returns the unique personal assignment row,
// trashed or not.
func (r *StudentAssignmentRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.StudentAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_assignments WHERE assignment_id = $1 AND student_id = $2`, studentAssignmentColumns)
	var record models.StudentAssignment
	if err := database.Q(ctx, r.db).GetContext(ctx, &record, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create persists a new personal assignment.
func (r *StudentAssignmentRepository) Create(ctx context.Context, record *models.StudentAssignment) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	const query = `INSERT INTO student_assignments (id, assignment_id, student_id, score, deleted_at, created_at, updated_at)
        VALUES (:id, :assignment_id, :student_id, :score, NULL, NOW(), NOW())`
	if _, err := database.Q(ctx, r.db).NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create personal assignment: %w", err)
	}
	return nil
}

// Restore pulls a personal assignment out of the trash, keeping its score.
func (r *StudentAssignmentRepository) Restore(ctx context.Context, id string) error {
	const query = `UPDATE student_assignments SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("restore personal assignment: %w", err)
	}
	return nil
}

// InsertMissing creates records for students lacking one. Existing rows,
// trashed included, are left untouched.
func (r *StudentAssignmentRepository) InsertMissing(ctx context.Context, assignmentID string, studentIDs []string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	values := make([]string, len(studentIDs))
	args := []interface{}{assignmentID}
	for i, studentID := range studentIDs {
		values[i] = fmt.Sprintf("($%d, $1, $%d)", len(args)+1, len(args)+2)
		args = append(args, uuid.NewString(), studentID)
	}
	query := fmt.Sprintf(`INSERT INTO student_assignments (id, assignment_id, student_id, created_at, updated_at)
        SELECT v.id, v.assignment_id, v.student_id, NOW(), NOW()
        FROM (VALUES %s) AS v(id, assignment_id, student_id)
        ON CONFLICT (assignment_id, student_id) DO NOTHING`, strings.Join(values, ","))
	res, err := database.Q(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk create personal assignments: %w", err)
	}
	return res.RowsAffected()
}

// RestoreForStudents un-trashes records of the given students.
func (r *StudentAssignmentRepository) RestoreForStudents(ctx context.Context, assignmentID string, studentIDs []string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := []interface{}{assignmentID}
	for i, studentID := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, studentID)
	}
	query := fmt.Sprintf(`UPDATE student_assignments SET deleted_at = NULL, updated_at = NOW()
        WHERE assignment_id = $1 AND deleted_at IS NOT NULL AND student_id IN (%s)`, strings.Join(placeholders, ","))
	res, err := database.Q(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("restore personal assignments: %w", err)
	}
	return res.RowsAffected()
}

// TrashForStudents soft-deletes active records of the given students.
func (r *StudentAssignmentRepository) TrashForStudents(ctx context.Context, assignmentID string, studentIDs []string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := []interface{}{assignmentID}
	for i, studentID := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, studentID)
	}
	query := fmt.Sprintf(`UPDATE student_assignments SET deleted_at = NOW(), updated_at = NOW()
        WHERE assignment_id = $1 AND deleted_at IS NULL AND student_id IN (%s)`, strings.Join(placeholders, ","))
	res, err := database.Q(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("trash personal assignments: %w", err)
	}
	return res.RowsAffected()
}

// ListActiveStudentIDs returns students holding an active record for the
// assignment.
func (r *StudentAssignmentRepository) ListActiveStudentIDs(ctx context.Context, assignmentID string) ([]string, error) {
	const query = `SELECT student_id FROM student_assignments WHERE assignment_id = $1 AND deleted_at IS NULL`
	var studentIDs []string
	if err := database.Q(ctx, r.db).SelectContext(ctx, &studentIDs, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list personal assignment students: %w", err)
	}
	return studentIDs, nil
}

// ListByStudentAndCourse returns the personal assignments a student holds
// within a course, trashed rows included.
func (r *StudentAssignmentRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.StudentAssignment, error) {
	const query = `SELECT sa.id, sa.assignment_id, sa.student_id, sa.score, sa.deleted_at, sa.created_at, sa.updated_at
        FROM student_assignments sa
        JOIN assignments a ON a.id = sa.assignment_id
        WHERE sa.student_id = $1 AND a.course_id = $2`
	var records []models.StudentAssignment
	if err := database.Q(ctx, r.db).SelectContext(ctx, &records, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list personal assignments: %w", err)
	}
	return records, nil
}
