package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

const studentGroupColumns = `id, course_id, type, name, program_id, program_run_id, enrollment_key, created_at, updated_at`

// StudentGroupRepository handles persistence of student groups.
type StudentGroupRepository struct {
	db *sqlx.DB
}

// NewStudentGroupRepository constructs the repository.
func NewStudentGroupRepository(db *sqlx.DB) *StudentGroupRepository {
	return &StudentGroupRepository{db: db}
}

// FindByID returns a student group by its ID.
func (r *StudentGroupRepository) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_groups WHERE id = $1`, studentGroupColumns)
	var group models.StudentGroup
	if err := database.Q(ctx, r.db).GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// FindAuto returns the PROGRAM or PROGRAM_RUN group of the course bound to
// the given program or run.
func (r *StudentGroupRepository) FindAuto(ctx context.Context, courseID string, groupType models.StudentGroupType, programID, programRunID *string) (*models.StudentGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_groups WHERE course_id = $1 AND type = $2
        AND program_id IS NOT DISTINCT FROM $3 AND program_run_id IS NOT DISTINCT FROM $4`, studentGroupColumns)
	var group models.StudentGroup
	if err := database.Q(ctx, r.db).GetContext(ctx, &group, query, courseID, groupType, programID, programRunID); err != nil {
		return nil, err
	}
	return &group, nil
}

// FindSystem returns the system default group of the course, if any.
func (r *StudentGroupRepository) FindSystem(ctx context.Context, courseID string) (*models.StudentGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_groups WHERE course_id = $1 AND type = $2 AND program_id IS NULL AND program_run_id IS NULL`, studentGroupColumns)
	var group models.StudentGroup
	if err := database.Q(ctx, r.db).GetContext(ctx, &group, query, courseID, models.GroupTypeSystem); err != nil {
		return nil, err
	}
	return &group, nil
}

// ExistsName checks for a duplicate group name within the course,
// case-insensitively.
func (r *StudentGroupRepository) ExistsName(ctx context.Context, courseID, name, excludeID string) (bool, error) {
	query := `SELECT 1 FROM student_groups WHERE course_id = $1 AND LOWER(name) = LOWER($2)`
	args := []interface{}{courseID, name}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := database.Q(ctx, r.db).GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check group name: %w", err)
	}
	return true, nil
}

// Create persists a new student group. Generates the ID and enrollment key
// when absent.
func (r *StudentGroupRepository) Create(ctx context.Context, group *models.StudentGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.EnrollmentKey == "" {
		group.EnrollmentKey = newEnrollmentKey()
	}
	const query = `INSERT INTO student_groups (id, course_id, type, name, program_id, program_run_id, enrollment_key, created_at, updated_at)
        VALUES (:id, :course_id, :type, :name, :program_id, :program_run_id, :enrollment_key, NOW(), NOW())`
	if _, err := database.Q(ctx, r.db).NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create student group: %w", err)
	}
	return nil
}

// UpdateName renames the group.
func (r *StudentGroupRepository) UpdateName(ctx context.Context, id, name string) error {
	const query = `UPDATE student_groups SET name = $2, updated_at = NOW() WHERE id = $1`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, id, name); err != nil {
		return fmt.Errorf("rename student group: %w", err)
	}
	return nil
}

// DowngradeToManual detaches the program or run link, keeping the row and
// its membership history.
func (r *StudentGroupRepository) DowngradeToManual(ctx context.Context, id string) error {
	const query = `UPDATE student_groups SET type = $2, program_id = NULL, program_run_id = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, id, models.GroupTypeManual); err != nil {
		return fmt.Errorf("downgrade student group: %w", err)
	}
	return nil
}

// Delete removes the group row.
func (r *StudentGroupRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM student_groups WHERE id = $1`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete student group: %w", err)
	}
	return nil
}

// ListByCourse returns all groups of a course ordered by name.
func (r *StudentGroupRepository) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_groups WHERE course_id = $1 ORDER BY name`, studentGroupColumns)
	var groups []models.StudentGroup
	if err := database.Q(ctx, r.db).SelectContext(ctx, &groups, query, courseID); err != nil {
		return nil, fmt.Errorf("list student groups: %w", err)
	}
	return groups, nil
}

// newEnrollmentKey returns a random url-safe token, 24 chars in base64.
func newEnrollmentKey() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
