package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/pkg/database"
)

const enrollmentColumns = `id, student_id, student_profile_id, course_id, student_group_id, course_program_binding_id, is_deleted, grade, reason_entry, reason_leave, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := database.Q(ctx, r.db).GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// GetOrCreateInactive returns the unique (student, course) row, inserting an
// inactive placeholder when none exists. The placeholder only becomes
// visible to other transactions if the surrounding transaction commits.
func (r *EnrollmentRepository) GetOrCreateInactive(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	const insert = `INSERT INTO enrollments (id, student_id, student_profile_id, course_id, student_group_id, course_program_binding_id, is_deleted, grade, reason_entry, reason_leave, created_at, updated_at)
        VALUES (:id, :student_id, :student_profile_id, :course_id, :student_group_id, :course_program_binding_id, TRUE, :grade, '', '', NOW(), NOW())
        ON CONFLICT (student_id, course_id) DO NOTHING`
	if _, err := database.Q(ctx, r.db).NamedExecContext(ctx, insert, enrollment); err != nil {
		return nil, fmt.Errorf("create enrollment placeholder: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2`, enrollmentColumns)
	var row models.Enrollment
	if err := database.Q(ctx, r.db).GetContext(ctx, &row, query, enrollment.StudentID, enrollment.CourseID); err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	return &row, nil
}

// Activate flips the enrollment to the active state. The conditional
// is_deleted guard prevents double activation under concurrency; when the
// course is capacity limited an additional subquery refuses the transition
// once the active count reaches capacity. Returns the number of rows moved.
func (r *EnrollmentRepository) Activate(ctx context.Context, id string, groupID *string, profileID, bindingID, reasonRecord string, capacityLimited bool) (int64, error) {
	query := `UPDATE enrollments SET
        is_deleted = FALSE,
        student_group_id = $2,
        student_profile_id = $3,
        course_program_binding_id = $4,
        reason_entry = $5 || reason_entry,
        updated_at = NOW()
    WHERE id = $1 AND is_deleted = TRUE`
	if capacityLimited {
		query += ` AND (SELECT c.capacity FROM courses c WHERE c.id = enrollments.course_id) >
        (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = enrollments.course_id AND e.is_deleted = FALSE)`
	}
	res, err := database.Q(ctx, r.db).ExecContext(ctx, query, id, groupID, profileID, bindingID, reasonRecord)
	if err != nil {
		return 0, fmt.Errorf("activate enrollment: %w", err)
	}
	return res.RowsAffected()
}

// SoftDelete marks the enrollment as left and prepends the reason record.
func (r *EnrollmentRepository) SoftDelete(ctx context.Context, id, reasonRecord string) error {
	const query = `UPDATE enrollments SET is_deleted = TRUE, reason_leave = $2 || reason_leave, updated_at = NOW() WHERE id = $1`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, id, reasonRecord); err != nil {
		return fmt.Errorf("soft delete enrollment: %w", err)
	}
	return nil
}

// ExistsActiveByGroup checks for active enrollments inside the group.
func (r *EnrollmentRepository) ExistsActiveByGroup(ctx context.Context, groupID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_group_id = $1 AND is_deleted = FALSE)`
	var exists bool
	if err := database.Q(ctx, r.db).GetContext(ctx, &exists, query, groupID); err != nil {
		return false, fmt.Errorf("check group enrollments: %w", err)
	}
	return exists, nil
}

// ListActiveByGroup returns active enrollments of a student group.
func (r *EnrollmentRepository) ListActiveByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_group_id = $1 AND is_deleted = FALSE ORDER BY created_at`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := database.Q(ctx, r.db).SelectContext(ctx, &enrollments, query, groupID); err != nil {
		return nil, fmt.Errorf("list group enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveByCourse returns active enrollments of a course.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE course_id = $1 AND is_deleted = FALSE`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := database.Q(ctx, r.db).SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// MigrateInactiveToGroup moves soft-deleted enrollments out of a group that
// is about to be removed.
func (r *EnrollmentRepository) MigrateInactiveToGroup(ctx context.Context, sourceGroupID, destGroupID string) error {
	const query = `UPDATE enrollments SET student_group_id = $2, updated_at = NOW() WHERE student_group_id = $1 AND is_deleted = TRUE`
	if _, err := database.Q(ctx, r.db).ExecContext(ctx, query, sourceGroupID, destGroupID); err != nil {
		return fmt.Errorf("migrate inactive enrollments: %w", err)
	}
	return nil
}

// MoveToGroup reassigns the given enrollments from source to destination,
// touching only rows still attached to the source group. The caller compares
// the affected count against the requested count to detect stale membership.
func (r *EnrollmentRepository) MoveToGroup(ctx context.Context, courseID, sourceGroupID, destGroupID string, enrollmentIDs []string) (int64, error) {
	if len(enrollmentIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(enrollmentIDs))
	args := []interface{}{courseID, sourceGroupID, destGroupID}
	for i, id := range enrollmentIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE enrollments SET student_group_id = $3, updated_at = NOW()
        WHERE course_id = $1 AND student_group_id = $2 AND id IN (%s)`, strings.Join(placeholders, ","))
	res, err := database.Q(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("move enrollments: %w", err)
	}
	return res.RowsAffected()
}

// ListStudentIDs returns the student IDs behind the given enrollment rows.
func (r *EnrollmentRepository) ListStudentIDs(ctx context.Context, enrollmentIDs []string) ([]string, error) {
	if len(enrollmentIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(enrollmentIDs))
	args := make([]interface{}, len(enrollmentIDs))
	for i, id := range enrollmentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT student_id FROM enrollments WHERE id IN (%s)`, strings.Join(placeholders, ","))
	var studentIDs []string
	if err := database.Q(ctx, r.db).SelectContext(ctx, &studentIDs, query, args...); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return studentIDs, nil
}

// UpdateGradeIf applies an optimistic grade change. The row is only touched
// while its grade is still one of the two expected values.
func (r *EnrollmentRepository) UpdateGradeIf(ctx context.Context, id string, oldGrade, newGrade int) (int64, error) {
	const query = `UPDATE enrollments SET grade = $2, updated_at = NOW() WHERE id = $1 AND grade IN ($2, $3)`
	res, err := database.Q(ctx, r.db).ExecContext(ctx, query, id, newGrade, oldGrade)
	if err != nil {
		return 0, fmt.Errorf("update enrollment grade: %w", err)
	}
	return res.RowsAffected()
}

// InsertGradeLog appends a grade change record.
func (r *EnrollmentRepository) InsertGradeLog(ctx context.Context, log *models.EnrollmentGradeLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.GradeChangedAt.IsZero() {
		log.GradeChangedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_grade_logs (id, enrollment_id, grade, editor_id, source, grade_changed_at)
        VALUES (:id, :enrollment_id, :grade, :editor_id, :source, :grade_changed_at)`
	if _, err := database.Q(ctx, r.db).NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert grade log: %w", err)
	}
	return nil
}
