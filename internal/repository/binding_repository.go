package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

const bindingColumns = `id, course_id, program_id, invitation_id, is_alumni, enrollment_end_date, passing_grade`

// BindingRepository handles persistence of course program bindings.
type BindingRepository struct {
	db *sqlx.DB
}

// NewBindingRepository constructs the repository.
func NewBindingRepository(db *sqlx.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// FindByCourseAndInvitation returns the binding granting an invitation
// access to the course.
func (r *BindingRepository) FindByCourseAndInvitation(ctx context.Context, courseID, invitationID string) (*models.CourseProgramBinding, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_program_bindings WHERE course_id = $1 AND invitation_id = $2`, bindingColumns)
	var binding models.CourseProgramBinding
	if err := database.Q(ctx, r.db).GetContext(ctx, &binding, query, courseID, invitationID); err != nil {
		return nil, err
	}
	return &binding, nil
}

// FindByCourseAndProgram returns the binding for a regular program cohort.
func (r *BindingRepository) FindByCourseAndProgram(ctx context.Context, courseID, programID string) (*models.CourseProgramBinding, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_program_bindings WHERE course_id = $1 AND program_id = $2`, bindingColumns)
	var binding models.CourseProgramBinding
	if err := database.Q(ctx, r.db).GetContext(ctx, &binding, query, courseID, programID); err != nil {
		return nil, err
	}
	return &binding, nil
}

// FindAlumni returns the alumni binding of the course, if any.
func (r *BindingRepository) FindAlumni(ctx context.Context, courseID string) (*models.CourseProgramBinding, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_program_bindings WHERE course_id = $1 AND is_alumni = TRUE`, bindingColumns)
	var binding models.CourseProgramBinding
	if err := database.Q(ctx, r.db).GetContext(ctx, &binding, query, courseID); err != nil {
		return nil, err
	}
	return &binding, nil
}

// ExistsForProgram checks whether any binding links the program to the course.
func (r *BindingRepository) ExistsForProgram(ctx context.Context, courseID, programID string) (bool, error) {
	const query = `SELECT 1 FROM course_program_bindings WHERE course_id = $1 AND program_id = $2 LIMIT 1`
	var exists int
	if err := database.Q(ctx, r.db).GetContext(ctx, &exists, query, courseID, programID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check program binding: %w", err)
	}
	return true, nil
}
