package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, capacity, group_mode, learners_count, completed, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := database.Q(ctx, r.db).GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// LockByID acquires an exclusive row lock on the course for the duration of
// the surrounding transaction. Blocks until the lock is granted.
func (r *CourseRepository) LockByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, capacity, group_mode, learners_count, completed, created_at, updated_at FROM courses WHERE id = $1 FOR UPDATE`
	var course models.Course
	if err := database.Q(ctx, r.db).GetContext(ctx, &course, query, id); err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}
	return &course, nil
}

// RecomputeLearnersCount refreshes the derived counter from source rows.
func (r *CourseRepository) RecomputeLearnersCount(ctx context.Context, id string) error {
	const query = `UPDATE courses SET learners_count = (
        SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND is_deleted = FALSE
    ), updated_at = NOW() WHERE id = $1`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("recompute learners count: %w", err)
	}
	return nil
}
