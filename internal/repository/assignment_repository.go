package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

// AssignmentRepository handles persistence of assignments and their
// group visibility restrictions.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindByID returns an assignment with its restriction set loaded.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, course_id, title, created_at FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := database.Q(ctx, r.db).GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	const restrictions = `SELECT group_id FROM assignment_groups WHERE assignment_id = $1 ORDER BY group_id`
	if err := database.Q(ctx, r.db).SelectContext(ctx, &assignment.RestrictedTo, restrictions, id); err != nil {
		return nil, fmt.Errorf("load assignment restrictions: %w", err)
	}
	return &assignment, nil
}

// ListByCourse returns course assignments with restriction sets loaded.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	const query = `SELECT id, course_id, title, created_at FROM assignments WHERE course_id = $1 ORDER BY created_at`
	var assignments []models.Assignment
	if err := database.Q(ctx, r.db).SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	restrictions, err := r.ListRestrictionsByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	byAssignment := make(map[string][]string)
	for _, ag := range restrictions {
		byAssignment[ag.AssignmentID] = append(byAssignment[ag.AssignmentID], ag.GroupID)
	}
	for i := range assignments {
		assignments[i].RestrictedTo = byAssignment[assignments[i].ID]
	}
	return assignments, nil
}

// ListRestrictionsByCourse returns every assignment-group restriction row
// within the course.
func (r *AssignmentRepository) ListRestrictionsByCourse(ctx context.Context, courseID string) ([]models.AssignmentGroup, error) {
	const query = `SELECT ag.assignment_id, ag.group_id FROM assignment_groups ag
        JOIN assignments a ON a.id = ag.assignment_id
        WHERE a.course_id = $1`
	var rows []models.AssignmentGroup
	if err := database.Q(ctx, r.db).SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignment restrictions: %w", err)
	}
	return rows, nil
}

// ExistsRestrictionForGroup checks whether the group appears in any
// assignment visibility restriction.
func (r *AssignmentRepository) ExistsRestrictionForGroup(ctx context.Context, groupID string) (bool, error) {
	const query = `SELECT 1 FROM assignment_groups WHERE group_id = $1 LIMIT 1`
	var exists int
	if err := database.Q(ctx, r.db).GetContext(ctx, &exists, query, groupID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assignment restriction: %w", err)
	}
	return true, nil
}

// ExistsClassRestrictionForGroup checks whether the group appears in any
// course class visibility restriction.
func (r *AssignmentRepository) ExistsClassRestrictionForGroup(ctx context.Context, groupID string) (bool, error) {
	const query = `SELECT 1 FROM course_class_groups WHERE group_id = $1 LIMIT 1`
	var exists int
	if err := database.Q(ctx, r.db).GetContext(ctx, &exists, query, groupID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class restriction: %w", err)
	}
	return true, nil
}
