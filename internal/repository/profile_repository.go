package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

// ProfileRepository handles persistence of student profiles and the
// academic program catalog they reference.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID returns a student profile by its ID.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	const query = `SELECT id, user_id, type, program_id, program_run_id, created_at FROM student_profiles WHERE id = $1`
	var profile models.StudentProfile
	if err := database.Q(ctx, r.db).GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindRunByID returns an academic program run.
func (r *ProfileRepository) FindRunByID(ctx context.Context, id string) (*models.AcademicProgramRun, error) {
	const query = `SELECT id, program_id, name FROM academic_program_runs WHERE id = $1`
	var run models.AcademicProgramRun
	if err := database.Q(ctx, r.db).GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// FindProgramByID returns an academic program.
func (r *ProfileRepository) FindProgramByID(ctx context.Context, id string) (*models.AcademicProgram, error) {
	const query = `SELECT id, name FROM academic_programs WHERE id = $1`
	var program models.AcademicProgram
	if err := database.Q(ctx, r.db).GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}
