package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	appErrors "github.com/jetbrains-academy/lms-sub000/pkg/errors"
)

type syncAssignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type syncEnrollmentReader interface {
	ListActiveByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
}

type studentAssignmentRepository interface {
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.StudentAssignment, error)
	Create(ctx context.Context, record *models.StudentAssignment) error
	Restore(ctx context.Context, id string) error
	InsertMissing(ctx context.Context, assignmentID string, studentIDs []string) (int64, error)
	RestoreForStudents(ctx context.Context, assignmentID string, studentIDs []string) (int64, error)
	TrashForStudents(ctx context.Context, assignmentID string, studentIDs []string) (int64, error)
	ListActiveStudentIDs(ctx context.Context, assignmentID string) ([]string, error)
}

type notificationPurger interface {
	PurgeForStudents(ctx context.Context, courseID string, studentIDs []string) error
}

// AssignmentSyncService reconciles personal assignment records with the
// group visibility rules of their assignments.
type AssignmentSyncService struct {
	assignments syncAssignmentReader
	enrollments syncEnrollmentReader
	records     studentAssignmentRepository
	notifier    notificationPurger
	logger      *zap.Logger
}

// NewAssignmentSyncService constructs AssignmentSyncService.
func NewAssignmentSyncService(assignments syncAssignmentReader, enrollments syncEnrollmentReader, records studentAssignmentRepository, notifier notificationPurger, logger *zap.Logger) *AssignmentSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentSyncService{assignments: assignments, enrollments: enrollments, records: records, notifier: notifier, logger: logger}
}

// BulkCreate ensures every eligible active enrollee holds a personal
// assignment record, optionally narrowed to forGroups. Trashed records of
// eligible students are restored with their score intact. Idempotent.
func (s *AssignmentSyncService) BulkCreate(ctx context.Context, assignmentID string, forGroups []string) error {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	eligible, err := s.eligibleStudents(ctx, assignment, forGroups)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		return nil
	}
	created, err := s.records.InsertMissing(ctx, assignment.ID, eligible)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create personal assignments")
	}
	restored, err := s.records.RestoreForStudents(ctx, assignment.ID, eligible)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore personal assignments")
	}
	if created > 0 || restored > 0 {
		s.logger.Info("personal assignments synced",
			zap.String("assignment_id", assignment.ID),
			zap.Int64("created", created),
			zap.Int64("restored", restored),
		)
	}
	return nil
}

// BulkRemove trashes personal assignments of active enrollees that are no
// longer eligible, optionally narrowed to forGroups, and purges their
// pending notifications. Records of students who already left the course
// are kept as history.
func (s *AssignmentSyncService) BulkRemove(ctx context.Context, assignmentID string, forGroups []string) error {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if len(assignment.RestrictedTo) == 0 {
		// Unrestricted assignments are visible to every group.
		return nil
	}
	enrollments, err := s.enrollments.ListActiveByCourse(ctx, assignment.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	groupByStudent := make(map[string]string, len(enrollments))
	for _, e := range enrollments {
		if e.StudentGroupID != nil {
			groupByStudent[e.StudentID] = *e.StudentGroupID
		}
	}
	narrow := toSet(forGroups)
	holders, err := s.records.ListActiveStudentIDs(ctx, assignment.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list personal assignments")
	}
	var targets []string
	for _, studentID := range holders {
		groupID, enrolled := groupByStudent[studentID]
		if !enrolled {
			continue
		}
		if len(narrow) > 0 {
			if _, ok := narrow[groupID]; !ok {
				continue
			}
		}
		if !assignment.VisibleToGroup(groupID) {
			targets = append(targets, studentID)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	trashed, err := s.records.TrashForStudents(ctx, assignment.ID, targets)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to trash personal assignments")
	}
	if err := s.notifier.PurgeForStudents(ctx, assignment.CourseID, targets); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge notifications")
	}
	s.logger.Info("personal assignments trashed",
		zap.String("assignment_id", assignment.ID),
		zap.Int64("trashed", trashed),
	)
	return nil
}

// Sync reconciles personal assignments after a restriction change:
// newly visible records are created or restored, newly excluded ones
// are trashed.
func (s *AssignmentSyncService) Sync(ctx context.Context, assignmentID string) error {
	if err := s.BulkCreate(ctx, assignmentID, nil); err != nil {
		return err
	}
	return s.BulkRemove(ctx, assignmentID, nil)
}

// CreateOrRestore ensures a single personal assignment record exists for
// the enrollment when the assignment is reachable from its group. Returns
// nil without error when the assignment is out of reach.
func (s *AssignmentSyncService) CreateOrRestore(ctx context.Context, assignment *models.Assignment, enrollment *models.Enrollment) (*models.StudentAssignment, error) {
	groupID := ""
	if enrollment.StudentGroupID != nil {
		groupID = *enrollment.StudentGroupID
	}
	if !assignment.VisibleToGroup(groupID) {
		return nil, nil
	}
	record, err := s.records.FindByAssignmentAndStudent(ctx, assignment.ID, enrollment.StudentID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load personal assignment")
		}
		record = &models.StudentAssignment{AssignmentID: assignment.ID, StudentID: enrollment.StudentID}
		if err := s.records.Create(ctx, record); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create personal assignment")
		}
		return record, nil
	}
	if record.DeletedAt != nil {
		if err := s.records.Restore(ctx, record.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore personal assignment")
		}
		record.DeletedAt = nil
	}
	return record, nil
}

// RemoveForStudents trashes records of the given students and purges their
// pending notifications. Used by unsafe group transfers.
func (s *AssignmentSyncService) RemoveForStudents(ctx context.Context, assignment *models.Assignment, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	if _, err := s.records.TrashForStudents(ctx, assignment.ID, studentIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to trash personal assignments")
	}
	if err := s.notifier.PurgeForStudents(ctx, assignment.CourseID, studentIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge notifications")
	}
	return nil
}

func (s *AssignmentSyncService) eligibleStudents(ctx context.Context, assignment *models.Assignment, forGroups []string) ([]string, error) {
	enrollments, err := s.enrollments.ListActiveByCourse(ctx, assignment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	narrow := toSet(forGroups)
	var eligible []string
	for _, e := range enrollments {
		groupID := ""
		if e.StudentGroupID != nil {
			groupID = *e.StudentGroupID
		}
		if len(narrow) > 0 {
			if _, ok := narrow[groupID]; !ok {
				continue
			}
		}
		if assignment.VisibleToGroup(groupID) {
			eligible = append(eligible, e.StudentID)
		}
	}
	return eligible, nil
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
