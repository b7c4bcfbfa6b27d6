package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	appErrors "github.com/jetbrains-academy/lms-sub000/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	GetOrCreateInactive(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error)
	Activate(ctx context.Context, id string, groupID *string, profileID, bindingID, reasonRecord string, capacityLimited bool) (int64, error)
	SoftDelete(ctx context.Context, id, reasonRecord string) error
	UpdateGradeIf(ctx context.Context, id string, oldGrade, newGrade int) (int64, error)
	InsertGradeLog(ctx context.Context, log *models.EnrollmentGradeLog) error
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	LockByID(ctx context.Context, id string) (*models.Course, error)
	RecomputeLearnersCount(ctx context.Context, id string) error
}

type enrollmentProfileReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
}

type enrollmentBindingReader interface {
	FindByCourseAndInvitation(ctx context.Context, courseID, invitationID string) (*models.CourseProgramBinding, error)
	FindByCourseAndProgram(ctx context.Context, courseID, programID string) (*models.CourseProgramBinding, error)
	FindAlumni(ctx context.Context, courseID string) (*models.CourseProgramBinding, error)
}

type groupResolver interface {
	Resolve(ctx context.Context, course *models.Course, profile *models.StudentProfile) (*models.StudentGroup, error)
}

type enrollmentAssignmentReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
}

type recordSyncer interface {
	CreateOrRestore(ctx context.Context, assignment *models.Assignment, enrollment *models.Enrollment) (*models.StudentAssignment, error)
}

type enrollmentNotifier interface {
	EnrollmentCreated(ctx context.Context, enrollment *models.Enrollment)
	PurgeCourseNotifications(ctx context.Context, studentID, courseID string) error
}

// EnrollmentService drives the enrollment lifecycle: capacity-checked
// admission, leaving with a reason log, re-enrollment and grade changes.
type EnrollmentService struct {
	enrollments enrollmentRepository
	courses     enrollmentCourseRepository
	profiles    enrollmentProfileReader
	bindings    enrollmentBindingReader
	groups      groupResolver
	assignments enrollmentAssignmentReader
	sync        recordSyncer
	notifier    enrollmentNotifier
	tx          txRunner
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	enrollments enrollmentRepository,
	courses enrollmentCourseRepository,
	profiles enrollmentProfileReader,
	bindings enrollmentBindingReader,
	groups groupResolver,
	assignments enrollmentAssignmentReader,
	sync recordSyncer,
	notifier enrollmentNotifier,
	tx txRunner,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		courses:     courses,
		profiles:    profiles,
		bindings:    bindings,
		groups:      groups,
		assignments: assignments,
		sync:        sync,
		notifier:    notifier,
		tx:          tx,
		metrics:     metrics,
		validate:    validate,
		logger:      logger,
		now:         time.Now,
	}
}

// formatReasonRecord renders one reason log record. Records are prepended
// to the accumulated log, newest first.
func formatReasonRecord(now time.Time, text string) string {
	return fmt.Sprintf("%s\n%s\n\n", now.UTC().Format("2006-01-02"), text)
}

// Enroll admits a student into a course. The placeholder row, the group
// assignment, the capacity check and the personal assignment records
// commit in one transaction; a full course rolls everything back.
func (s *EnrollmentService) Enroll(ctx context.Context, req *models.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	profile, err := s.profiles.FindByID(ctx, req.StudentProfileID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	if profile.UserID != req.StudentID {
		return nil, appErrors.Validation(appErrors.ReasonInvalid, "profile does not belong to the student")
	}

	binding, err := s.resolveBinding(ctx, course, profile, req.InvitationID)
	if err != nil {
		s.metrics.RecordEnrollment("rejected")
		return nil, err
	}
	if !binding.IsOpen(s.now()) {
		s.metrics.RecordEnrollment("rejected")
		return nil, appErrors.Validation(appErrors.ReasonInvalid, "enrollment period has ended")
	}

	var enrollment *models.Enrollment
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		limited := course.IsCapacityLimited()
		if limited {
			// The lock serializes concurrent admissions against the
			// active-count subquery in Activate.
			if _, err := s.courses.LockByID(ctx, course.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock course")
			}
		}

		row, err := s.enrollments.GetOrCreateInactive(ctx, &models.Enrollment{
			StudentID:        req.StudentID,
			StudentProfileID: profile.ID,
			CourseID:         course.ID,
			BindingID:        binding.ID,
		})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare enrollment")
		}
		if !row.IsDeleted {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}

		group, err := s.groups.Resolve(ctx, course, profile)
		if err != nil {
			return err
		}
		var groupID *string
		if group != nil {
			groupID = &group.ID
		}

		reasonRecord := formatReasonRecord(s.now(), req.Reason)
		moved, err := s.enrollments.Activate(ctx, row.ID, groupID, profile.ID, binding.ID, reasonRecord, limited)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate enrollment")
		}
		if moved == 0 && limited {
			return appErrors.Clone(appErrors.ErrCapacityFull, "")
		}

		if err := s.courses.RecomputeLearnersCount(ctx, course.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh learners count")
		}

		row.IsDeleted = false
		row.StudentGroupID = groupID
		row.StudentProfileID = profile.ID
		row.BindingID = binding.ID
		row.ReasonEntry = reasonRecord + row.ReasonEntry

		assignments, err := s.assignments.ListByCourse(ctx, course.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
		}
		for i := range assignments {
			if _, err := s.sync.CreateOrRestore(ctx, &assignments[i], row); err != nil {
				return err
			}
		}

		enrollment = row
		return nil
	})
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrAlreadyEnrolled.Code {
			s.metrics.RecordEnrollment("already_enrolled")
		} else if appErrors.FromError(err).Code == appErrors.ErrCapacityFull.Code {
			s.metrics.RecordEnrollment("capacity_full")
		}
		return nil, err
	}

	s.notifier.EnrollmentCreated(ctx, enrollment)
	s.metrics.RecordEnrollment("enrolled")
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID),
	)
	return enrollment, nil
}

// resolveBinding picks the cohort binding that admits the profile.
func (s *EnrollmentService) resolveBinding(ctx context.Context, course *models.Course, profile *models.StudentProfile, invitationID string) (*models.CourseProgramBinding, error) {
	var (
		binding *models.CourseProgramBinding
		err     error
	)
	switch {
	case invitationID != "":
		binding, err = s.bindings.FindByCourseAndInvitation(ctx, course.ID, invitationID)
	case profile.Type == models.StudentTypeAlumni:
		binding, err = s.bindings.FindAlumni(ctx, course.ID)
	case profile.ProgramID != nil:
		binding, err = s.bindings.FindByCourseAndProgram(ctx, course.ID, *profile.ProgramID)
	default:
		return nil, appErrors.Validation(appErrors.ReasonInvalid, "student has no access to the course")
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Validation(appErrors.ReasonInvalid, "student has no access to the course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course binding")
	}
	return binding, nil
}

// Leave marks the enrollment inactive, keeping the row, its group link and
// the student's personal assignments as history.
func (s *EnrollmentService) Leave(ctx context.Context, req *models.LeaveRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is already inactive")
	}

	reasonRecord := formatReasonRecord(s.now(), req.Reason)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.enrollments.SoftDelete(ctx, enrollment.ID, reasonRecord); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate enrollment")
		}
		if err := s.courses.RecomputeLearnersCount(ctx, enrollment.CourseID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh learners count")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.PurgeCourseNotifications(ctx, enrollment.StudentID, enrollment.CourseID); err != nil {
		s.logger.Warn("failed to purge notifications",
			zap.String("student_id", enrollment.StudentID),
			zap.String("course_id", enrollment.CourseID),
			zap.Error(err),
		)
	}
	s.metrics.RecordEnrollment("left")

	enrollment.IsDeleted = true
	enrollment.ReasonLeave = reasonRecord + enrollment.ReasonLeave
	s.logger.Info("student left course",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("course_id", enrollment.CourseID),
	)
	return enrollment, nil
}

// UpdateGrade applies an optimistic grade change and appends a log record.
// Returns false without error when the stored grade no longer matches the
// expected old value.
func (s *EnrollmentService) UpdateGrade(ctx context.Context, req *models.UpdateGradeRequest) (bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !models.IsValidGrade(req.OldGrade) || !models.IsValidGrade(req.NewGrade) {
		return false, appErrors.Validation(appErrors.ReasonInvalid, fmt.Sprintf("grades must be between %d and %d", models.GradeNotGraded, models.MaxGrade))
	}
	if !models.IsValidGradeUpdateSource(req.Source) {
		return false, appErrors.Validation(appErrors.ReasonInvalid, fmt.Sprintf("unknown grade source %q", req.Source))
	}

	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return false, err
	}
	if enrollment.IsDeleted {
		return false, appErrors.Clone(appErrors.ErrConflict, "cannot grade an inactive enrollment")
	}

	updated := false
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		moved, err := s.enrollments.UpdateGradeIf(ctx, enrollment.ID, req.OldGrade, req.NewGrade)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
		}
		if moved == 0 {
			return nil
		}
		updated = true
		return s.enrollments.InsertGradeLog(ctx, &models.EnrollmentGradeLog{
			EnrollmentID:   enrollment.ID,
			Grade:          req.NewGrade,
			EditorID:       req.EditorID,
			Source:         req.Source,
			GradeChangedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return false, err
	}

	if updated {
		s.logger.Info("grade updated",
			zap.String("enrollment_id", enrollment.ID),
			zap.Int("grade", req.NewGrade),
			zap.String("source", string(req.Source)),
		)
	}
	return updated, nil
}

// Get returns one enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	return s.loadEnrollment(ctx, id)
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
