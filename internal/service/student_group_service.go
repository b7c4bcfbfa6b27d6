package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	appErrors "github.com/jetbrains-academy/lms-sub000/pkg/errors"
)

type studentGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentGroup, error)
	FindAuto(ctx context.Context, courseID string, groupType models.StudentGroupType, programID, programRunID *string) (*models.StudentGroup, error)
	FindSystem(ctx context.Context, courseID string) (*models.StudentGroup, error)
	ExistsName(ctx context.Context, courseID, name, excludeID string) (bool, error)
	Create(ctx context.Context, group *models.StudentGroup) error
	UpdateName(ctx context.Context, id, name string) error
	DowngradeToManual(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error)
}

type groupCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type groupBindingReader interface {
	ExistsForProgram(ctx context.Context, courseID, programID string) (bool, error)
}

type groupCatalogReader interface {
	FindProgramByID(ctx context.Context, id string) (*models.AcademicProgram, error)
	FindRunByID(ctx context.Context, id string) (*models.AcademicProgramRun, error)
}

type groupEnrollmentRepository interface {
	ExistsActiveByGroup(ctx context.Context, groupID string) (bool, error)
	ListActiveByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error)
	MigrateInactiveToGroup(ctx context.Context, sourceGroupID, destGroupID string) error
	MoveToGroup(ctx context.Context, courseID, sourceGroupID, destGroupID string, enrollmentIDs []string) (int64, error)
	ListStudentIDs(ctx context.Context, enrollmentIDs []string) ([]string, error)
}

type groupAssignmentReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	ExistsRestrictionForGroup(ctx context.Context, groupID string) (bool, error)
	ExistsClassRestrictionForGroup(ctx context.Context, groupID string) (bool, error)
}

type groupAssignmentSyncer interface {
	BulkCreate(ctx context.Context, assignmentID string, forGroups []string) error
	RemoveForStudents(ctx context.Context, assignment *models.Assignment, studentIDs []string) error
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StudentGroupService manages course cohorts: creation per course group
// mode, the lazy default group, safe and unsafe transfers, and removal
// with its downgrade policy.
type StudentGroupService struct {
	groups      studentGroupRepository
	courses     groupCourseReader
	bindings    groupBindingReader
	catalog     groupCatalogReader
	enrollments groupEnrollmentRepository
	assignments groupAssignmentReader
	sync        groupAssignmentSyncer
	tx          txRunner
	cache       *CacheService
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewStudentGroupService constructs StudentGroupService.
func NewStudentGroupService(
	groups studentGroupRepository,
	courses groupCourseReader,
	bindings groupBindingReader,
	catalog groupCatalogReader,
	enrollments groupEnrollmentRepository,
	assignments groupAssignmentReader,
	sync groupAssignmentSyncer,
	tx txRunner,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudentGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentGroupService{
		groups:      groups,
		courses:     courses,
		bindings:    bindings,
		catalog:     catalog,
		enrollments: enrollments,
		assignments: assignments,
		sync:        sync,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		validate:    validate,
		logger:      logger,
	}
}

func groupsCacheKey(courseID string) string {
	return fmt.Sprintf("groups:course:%s", courseID)
}

func (s *StudentGroupService) invalidateGroupsCache(ctx context.Context, courseID string) {
	if err := s.cache.Invalidate(ctx, groupsCacheKey(courseID)+"*"); err != nil {
		s.logger.Warn("failed to invalidate groups cache", zap.String("course_id", courseID), zap.Error(err))
	}
}

// Create adds a student group to a course. PROGRAM and PROGRAM_RUN groups
// are unique per program or run and get-or-create semantics apply; MANUAL
// groups need a name unique within the course. NO_GROUPS courses reject
// group creation entirely.
func (s *StudentGroupService) Create(ctx context.Context, req *models.CreateStudentGroupRequest) (*models.StudentGroup, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.GroupMode == models.GroupModeNoGroups {
		return nil, appErrors.Clone(appErrors.ErrStudentGroup, "course does not use student groups")
	}

	var group *models.StudentGroup
	switch req.Type {
	case models.GroupTypeProgram:
		group, err = s.createProgramGroup(ctx, course, req.ProgramID)
	case models.GroupTypeProgramRun:
		group, err = s.createProgramRunGroup(ctx, course, req.ProgramRunID)
	case models.GroupTypeManual:
		group, err = s.createManualGroup(ctx, course, req.Name)
	default:
		return nil, appErrors.Validation(appErrors.ReasonMalformed, fmt.Sprintf("unsupported group type %q", req.Type))
	}
	if err != nil {
		return nil, err
	}

	s.invalidateGroupsCache(ctx, course.ID)
	return group, nil
}

func (s *StudentGroupService) createProgramGroup(ctx context.Context, course *models.Course, programID string) (*models.StudentGroup, error) {
	if course.GroupMode != models.GroupModeProgram {
		return nil, appErrors.Clone(appErrors.ErrStudentGroup, "course group mode does not allow program groups")
	}
	if programID == "" {
		return nil, appErrors.Validation(appErrors.ReasonRequired, "program_id is required for program groups")
	}
	program, err := s.catalog.FindProgramByID(ctx, programID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	bound, err := s.bindings.ExistsForProgram(ctx, course.ID, program.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program binding")
	}
	if !bound {
		return nil, appErrors.Validation(appErrors.ReasonInvalid, "program is not bound to the course")
	}
	return s.getOrCreateAuto(ctx, course.ID, models.GroupTypeProgram, &program.ID, nil, program.Name)
}

func (s *StudentGroupService) createProgramRunGroup(ctx context.Context, course *models.Course, runID string) (*models.StudentGroup, error) {
	if course.GroupMode != models.GroupModeProgramRun {
		return nil, appErrors.Clone(appErrors.ErrStudentGroup, "course group mode does not allow program run groups")
	}
	if runID == "" {
		return nil, appErrors.Validation(appErrors.ReasonRequired, "program_run_id is required for program run groups")
	}
	run, err := s.catalog.FindRunByID(ctx, runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic program run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program run")
	}
	bound, err := s.bindings.ExistsForProgram(ctx, course.ID, run.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program binding")
	}
	if !bound {
		return nil, appErrors.Validation(appErrors.ReasonInvalid, "program run belongs to a program not bound to the course")
	}
	return s.getOrCreateAuto(ctx, course.ID, models.GroupTypeProgramRun, nil, &run.ID, run.Name)
}

func (s *StudentGroupService) createManualGroup(ctx context.Context, course *models.Course, name string) (*models.StudentGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.Validation(appErrors.ReasonRequired, "name is required for manual groups")
	}
	taken, err := s.groups.ExistsName(ctx, course.ID, name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check group name")
	}
	if taken {
		return nil, appErrors.Validation(appErrors.ReasonUnique, fmt.Sprintf("group %q already exists in the course", name))
	}
	group := &models.StudentGroup{CourseID: course.ID, Type: models.GroupTypeManual, Name: name}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	s.logger.Info("student group created",
		zap.String("group_id", group.ID),
		zap.String("course_id", course.ID),
		zap.String("type", string(group.Type)),
	)
	return group, nil
}

func (s *StudentGroupService) getOrCreateAuto(ctx context.Context, courseID string, groupType models.StudentGroupType, programID, runID *string, name string) (*models.StudentGroup, error) {
	group, err := s.groups.FindAuto(ctx, courseID, groupType, programID, runID)
	if err == nil {
		return group, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	group = &models.StudentGroup{
		CourseID:     courseID,
		Type:         groupType,
		Name:         name,
		ProgramID:    programID,
		ProgramRunID: runID,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	s.logger.Info("student group created",
		zap.String("group_id", group.ID),
		zap.String("course_id", courseID),
		zap.String("type", string(groupType)),
	)
	return group, nil
}

// GetOrCreateDefaultGroup returns the course's system "Others" group,
// creating it lazily on first use.
func (s *StudentGroupService) GetOrCreateDefaultGroup(ctx context.Context, courseID string) (*models.StudentGroup, error) {
	group, err := s.groups.FindSystem(ctx, courseID)
	if err == nil {
		return group, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load default group")
	}
	group = &models.StudentGroup{CourseID: courseID, Type: models.GroupTypeSystem, Name: models.DefaultGroupName}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create default group")
	}
	s.invalidateGroupsCache(ctx, courseID)
	return group, nil
}

// Resolve picks the group a fresh enrollment lands in, driven by the
// course group mode. Profiles without the expected program or run fall
// into the default group. NO_GROUPS courses enroll without a group.
func (s *StudentGroupService) Resolve(ctx context.Context, course *models.Course, profile *models.StudentProfile) (*models.StudentGroup, error) {
	switch course.GroupMode {
	case models.GroupModeNoGroups:
		return nil, nil
	case models.GroupModeManual:
		return s.GetOrCreateDefaultGroup(ctx, course.ID)
	case models.GroupModeProgram:
		if profile.ProgramID == nil {
			return s.GetOrCreateDefaultGroup(ctx, course.ID)
		}
		program, err := s.catalog.FindProgramByID(ctx, *profile.ProgramID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
		}
		return s.getOrCreateAuto(ctx, course.ID, models.GroupTypeProgram, &program.ID, nil, program.Name)
	case models.GroupModeProgramRun:
		if profile.ProgramRunID == nil {
			return s.GetOrCreateDefaultGroup(ctx, course.ID)
		}
		run, err := s.catalog.FindRunByID(ctx, *profile.ProgramRunID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program run")
		}
		return s.getOrCreateAuto(ctx, course.ID, models.GroupTypeProgramRun, nil, &run.ID, run.Name)
	}
	return nil, appErrors.Clone(appErrors.ErrStudentGroup, fmt.Sprintf("unsupported course group mode %q", course.GroupMode))
}

// List returns the course's groups, served from cache when possible.
func (s *StudentGroupService) List(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	key := groupsCacheKey(courseID)
	var cached []models.StudentGroup
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	groups, err := s.groups.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	if err := s.cache.Set(ctx, key, groups, 0); err != nil {
		s.logger.Warn("failed to cache groups", zap.String("course_id", courseID), zap.Error(err))
	}
	return groups, nil
}

// ListEnrollments returns the active members of a group.
func (s *StudentGroupService) ListEnrollments(ctx context.Context, groupID string) ([]models.Enrollment, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListActiveByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group members")
	}
	return enrollments, nil
}

// Update renames a group, keeping names unique within the course.
func (s *StudentGroupService) Update(ctx context.Context, groupID, name string) (*models.StudentGroup, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.Validation(appErrors.ReasonRequired, "name is required")
	}
	if name == group.Name {
		return group, nil
	}
	taken, err := s.groups.ExistsName(ctx, group.CourseID, name, group.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check group name")
	}
	if taken {
		return nil, appErrors.Validation(appErrors.ReasonUnique, fmt.Sprintf("group %q already exists in the course", name))
	}
	if err := s.groups.UpdateName(ctx, group.ID, name); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rename group")
	}
	group.Name = name
	s.invalidateGroupsCache(ctx, group.CourseID)
	return group, nil
}

// Remove deletes a group. SYSTEM groups never go away. PROGRAM and
// PROGRAM_RUN groups with dependents (active members or visibility
// restrictions) are downgraded to MANUAL instead of deleted, keeping the
// membership history. Groups without dependents move their inactive
// members to the default group and are dropped.
func (s *StudentGroupService) Remove(ctx context.Context, groupID string) error {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.Type == models.GroupTypeSystem {
		return appErrors.Validation(appErrors.ReasonInvalid, "system group cannot be removed")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		hasDependents, err := s.groupHasDependents(ctx, group.ID)
		if err != nil {
			return err
		}
		if group.Type == models.GroupTypeProgram || group.Type == models.GroupTypeProgramRun {
			if hasDependents {
				if err := s.groups.DowngradeToManual(ctx, group.ID); err != nil {
					return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to downgrade group")
				}
				s.logger.Info("student group downgraded to manual", zap.String("group_id", group.ID))
				return nil
			}
			return s.dropGroup(ctx, group)
		}
		if hasDependents {
			return appErrors.Validation(appErrors.ReasonInvalid, "group has active members or visibility restrictions")
		}
		return s.dropGroup(ctx, group)
	})
	if err != nil {
		return err
	}

	s.invalidateGroupsCache(ctx, group.CourseID)
	return nil
}

func (s *StudentGroupService) groupHasDependents(ctx context.Context, groupID string) (bool, error) {
	active, err := s.enrollments.ExistsActiveByGroup(ctx, groupID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check group members")
	}
	if active {
		return true, nil
	}
	restricted, err := s.assignments.ExistsRestrictionForGroup(ctx, groupID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment restrictions")
	}
	if restricted {
		return true, nil
	}
	classRestricted, err := s.assignments.ExistsClassRestrictionForGroup(ctx, groupID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class restrictions")
	}
	return classRestricted, nil
}

// dropGroup moves inactive members to the default group and deletes the row.
func (s *StudentGroupService) dropGroup(ctx context.Context, group *models.StudentGroup) error {
	fallback, err := s.GetOrCreateDefaultGroup(ctx, group.CourseID)
	if err != nil {
		return err
	}
	if err := s.enrollments.MigrateInactiveToGroup(ctx, group.ID, fallback.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to migrate inactive members")
	}
	if err := s.groups.Delete(ctx, group.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	s.logger.Info("student group removed", zap.String("group_id", group.ID), zap.String("course_id", group.CourseID))
	return nil
}

// GetGroupsForSafeTransfer computes the destinations a student can move to
// from the source group without losing access to any assignment. Every
// restriction set containing the source narrows the candidate pool to its
// own members; the source itself is excluded from the result.
func (s *StudentGroupService) GetGroupsForSafeTransfer(ctx context.Context, sourceGroupID string) ([]models.StudentGroup, error) {
	source, err := s.loadGroup(ctx, sourceGroupID)
	if err != nil {
		return nil, err
	}
	groups, err := s.groups.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	assignments, err := s.assignments.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	pool := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		pool[g.ID] = struct{}{}
	}
	for _, a := range assignments {
		if len(a.RestrictedTo) == 0 || !a.VisibleToGroup(source.ID) {
			continue
		}
		allowed := toSet(a.RestrictedTo)
		for id := range pool {
			if _, ok := allowed[id]; !ok {
				delete(pool, id)
			}
		}
	}

	safe := make([]models.StudentGroup, 0, len(pool))
	for _, g := range groups {
		if g.ID == source.ID {
			continue
		}
		if _, ok := pool[g.ID]; ok {
			safe = append(safe, g)
		}
	}
	return safe, nil
}

// TransferStudents moves enrollments between two groups of the same
// course. Safe transfers require the destination to preserve assignment
// access; unsafe transfers must be requested explicitly and trash the
// personal assignments that become unreachable. The move and the
// assignment reconciliation commit atomically.
func (s *StudentGroupService) TransferStudents(ctx context.Context, sourceGroupID, destGroupID string, enrollmentIDs []string, allowUnsafe bool) error {
	if len(enrollmentIDs) == 0 {
		return appErrors.Validation(appErrors.ReasonRequired, "enrollment_ids is required")
	}
	if sourceGroupID == destGroupID {
		return appErrors.Validation(appErrors.ReasonInvalid, "source and destination groups are the same")
	}
	source, err := s.loadGroup(ctx, sourceGroupID)
	if err != nil {
		return err
	}
	dest, err := s.loadGroup(ctx, destGroupID)
	if err != nil {
		return err
	}
	if source.CourseID != dest.CourseID {
		return appErrors.Validation(appErrors.ReasonInvalid, "groups belong to different courses")
	}

	safeTargets, err := s.GetGroupsForSafeTransfer(ctx, source.ID)
	if err != nil {
		return err
	}
	safe := false
	for _, g := range safeTargets {
		if g.ID == dest.ID {
			safe = true
			break
		}
	}
	if !safe && !allowUnsafe {
		return appErrors.Validation(appErrors.ReasonUnsafe, "transfer would revoke assignment access")
	}

	assignments, err := s.assignments.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		moved, err := s.enrollments.MoveToGroup(ctx, source.CourseID, source.ID, dest.ID, enrollmentIDs)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move enrollments")
		}
		if moved != int64(len(enrollmentIDs)) {
			return appErrors.Clone(appErrors.ErrIntegrity, "some enrollments no longer belong to the source group")
		}
		studentIDs, err := s.enrollments.ListStudentIDs(ctx, enrollmentIDs)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
		}
		for i := range assignments {
			a := assignments[i]
			visSource := a.VisibleToGroup(source.ID)
			visDest := a.VisibleToGroup(dest.ID)
			if visDest && !visSource {
				if err := s.sync.BulkCreate(ctx, a.ID, []string{dest.ID}); err != nil {
					return err
				}
			}
			if visSource && !visDest {
				if err := s.sync.RemoveForStudents(ctx, &a, studentIDs); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordTransfer(safe)
	s.invalidateGroupsCache(ctx, source.CourseID)
	s.logger.Info("students transferred",
		zap.String("source_group_id", source.ID),
		zap.String("dest_group_id", dest.ID),
		zap.Int("count", len(enrollmentIDs)),
		zap.Bool("safe", safe),
	)
	return nil
}

func (s *StudentGroupService) loadGroup(ctx context.Context, groupID string) (*models.StudentGroup, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}
