package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	appErrors "github.com/jetbrains-academy/lms-sub000/pkg/errors"
)

type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeGroupStore struct {
	groups  map[string]*models.StudentGroup
	deleted []string
	nextID  int
}

func (f *fakeGroupStore) add(group *models.StudentGroup) *models.StudentGroup {
	if f.groups == nil {
		f.groups = make(map[string]*models.StudentGroup)
	}
	if group.ID == "" {
		for {
			f.nextID++
			id := fmt.Sprintf("g%d", f.nextID)
			if _, exists := f.groups[id]; !exists {
				group.ID = id
				break
			}
		}
	}
	f.groups[group.ID] = group
	return group
}

func (f *fakeGroupStore) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	if g, ok := f.groups[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGroupStore) FindAuto(ctx context.Context, courseID string, groupType models.StudentGroupType, programID, programRunID *string) (*models.StudentGroup, error) {
	for _, g := range f.groups {
		if g.CourseID == courseID && g.Type == groupType && strEq(g.ProgramID, programID) && strEq(g.ProgramRunID, programRunID) {
			copied := *g
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGroupStore) FindSystem(ctx context.Context, courseID string) (*models.StudentGroup, error) {
	for _, g := range f.groups {
		if g.CourseID == courseID && g.Type == models.GroupTypeSystem {
			copied := *g
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGroupStore) ExistsName(ctx context.Context, courseID, name, excludeID string) (bool, error) {
	for _, g := range f.groups {
		if g.CourseID == courseID && strings.EqualFold(g.Name, name) && g.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroupStore) Create(ctx context.Context, group *models.StudentGroup) error {
	f.add(group)
	return nil
}

func (f *fakeGroupStore) UpdateName(ctx context.Context, id, name string) error {
	if g, ok := f.groups[id]; ok {
		g.Name = name
	}
	return nil
}

func (f *fakeGroupStore) DowngradeToManual(ctx context.Context, id string) error {
	if g, ok := f.groups[id]; ok {
		g.Type = models.GroupTypeManual
		g.ProgramID = nil
		g.ProgramRunID = nil
	}
	return nil
}

func (f *fakeGroupStore) Delete(ctx context.Context, id string) error {
	delete(f.groups, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeGroupStore) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	var list []models.StudentGroup
	for _, g := range f.groups {
		if g.CourseID == courseID {
			list = append(list, *g)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type fakeCourseStore struct {
	courses map[string]*models.Course
}

func (f *fakeCourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type fakeBindingStore struct {
	programs map[string]bool
}

func (f *fakeBindingStore) ExistsForProgram(ctx context.Context, courseID, programID string) (bool, error) {
	return f.programs[courseID+"/"+programID], nil
}

type fakeCatalogStore struct {
	programs map[string]*models.AcademicProgram
	runs     map[string]*models.AcademicProgramRun
}

func (f *fakeCatalogStore) FindProgramByID(ctx context.Context, id string) (*models.AcademicProgram, error) {
	if p, ok := f.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCatalogStore) FindRunByID(ctx context.Context, id string) (*models.AcademicProgramRun, error) {
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

type fakeGroupEnrollments struct {
	rows     map[string]*models.Enrollment
	migrated map[string]string
	moveHit  int64
}

func (f *fakeGroupEnrollments) ExistsActiveByGroup(ctx context.Context, groupID string) (bool, error) {
	for _, e := range f.rows {
		if e.StudentGroupID != nil && *e.StudentGroupID == groupID && !e.IsDeleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroupEnrollments) ListActiveByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range f.rows {
		if e.StudentGroupID != nil && *e.StudentGroupID == groupID && !e.IsDeleted {
			list = append(list, *e)
		}
	}
	return list, nil
}

func (f *fakeGroupEnrollments) MigrateInactiveToGroup(ctx context.Context, sourceGroupID, destGroupID string) error {
	if f.migrated == nil {
		f.migrated = make(map[string]string)
	}
	f.migrated[sourceGroupID] = destGroupID
	for _, e := range f.rows {
		if e.StudentGroupID != nil && *e.StudentGroupID == sourceGroupID && e.IsDeleted {
			e.StudentGroupID = strPtr(destGroupID)
		}
	}
	return nil
}

func (f *fakeGroupEnrollments) MoveToGroup(ctx context.Context, courseID, sourceGroupID, destGroupID string, enrollmentIDs []string) (int64, error) {
	var moved int64
	for _, id := range enrollmentIDs {
		e, ok := f.rows[id]
		if !ok || e.CourseID != courseID || e.StudentGroupID == nil || *e.StudentGroupID != sourceGroupID {
			continue
		}
		e.StudentGroupID = strPtr(destGroupID)
		moved++
	}
	f.moveHit = moved
	return moved, nil
}

func (f *fakeGroupEnrollments) ListStudentIDs(ctx context.Context, enrollmentIDs []string) ([]string, error) {
	var ids []string
	for _, id := range enrollmentIDs {
		if e, ok := f.rows[id]; ok {
			ids = append(ids, e.StudentID)
		}
	}
	return ids, nil
}

type fakeRestrictionStore struct {
	assignments []models.Assignment
	classGroups map[string]bool
}

func (f *fakeRestrictionStore) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var list []models.Assignment
	for _, a := range f.assignments {
		if a.CourseID == courseID {
			list = append(list, a)
		}
	}
	return list, nil
}

func (f *fakeRestrictionStore) ExistsRestrictionForGroup(ctx context.Context, groupID string) (bool, error) {
	for _, a := range f.assignments {
		for _, g := range a.RestrictedTo {
			if g == groupID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeRestrictionStore) ExistsClassRestrictionForGroup(ctx context.Context, groupID string) (bool, error) {
	return f.classGroups[groupID], nil
}

type fakeGroupSyncer struct {
	bulkCreated map[string][]string
	removed     map[string][]string
}

func (f *fakeGroupSyncer) BulkCreate(ctx context.Context, assignmentID string, forGroups []string) error {
	if f.bulkCreated == nil {
		f.bulkCreated = make(map[string][]string)
	}
	f.bulkCreated[assignmentID] = append(f.bulkCreated[assignmentID], forGroups...)
	return nil
}

func (f *fakeGroupSyncer) RemoveForStudents(ctx context.Context, assignment *models.Assignment, studentIDs []string) error {
	if f.removed == nil {
		f.removed = make(map[string][]string)
	}
	f.removed[assignment.ID] = append(f.removed[assignment.ID], studentIDs...)
	return nil
}

type groupFixture struct {
	svc         *StudentGroupService
	groups      *fakeGroupStore
	enrollments *fakeGroupEnrollments
	assignments *fakeRestrictionStore
	sync        *fakeGroupSyncer
}

func newGroupFixture(course *models.Course) *groupFixture {
	f := &groupFixture{
		groups:      &fakeGroupStore{},
		enrollments: &fakeGroupEnrollments{rows: make(map[string]*models.Enrollment)},
		assignments: &fakeRestrictionStore{},
		sync:        &fakeGroupSyncer{},
	}
	f.svc = NewStudentGroupService(
		f.groups,
		&fakeCourseStore{courses: map[string]*models.Course{course.ID: course}},
		&fakeBindingStore{programs: map[string]bool{course.ID + "/p1": true}},
		&fakeCatalogStore{
			programs: map[string]*models.AcademicProgram{"p1": {ID: "p1", Name: "Math"}},
			runs:     map[string]*models.AcademicProgramRun{"r1": {ID: "r1", ProgramID: "p1", Name: "Math 2026"}},
		},
		f.enrollments,
		f.assignments,
		f.sync,
		fakeTx{},
		nil,
		nil,
		validator.New(),
		zap.NewNop(),
	)
	return f
}

func manualCourse(id string) *models.Course {
	return &models.Course{ID: id, GroupMode: models.GroupModeManual}
}

func TestStudentGroupCreateManual(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))

	group, err := f.svc.Create(context.Background(), &models.CreateStudentGroupRequest{CourseID: "c1", Type: models.GroupTypeManual, Name: "Team A"})
	require.NoError(t, err)
	assert.Equal(t, models.GroupTypeManual, group.Type)
	assert.NotEmpty(t, group.ID)

	_, err = f.svc.Create(context.Background(), &models.CreateStudentGroupRequest{CourseID: "c1", Type: models.GroupTypeManual, Name: "team a"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonUnique, appErrors.FromError(err).Reason)
}

func TestStudentGroupCreateRejectsNoGroupsCourse(t *testing.T) {
	f := newGroupFixture(&models.Course{ID: "c1", GroupMode: models.GroupModeNoGroups})

	_, err := f.svc.Create(context.Background(), &models.CreateStudentGroupRequest{CourseID: "c1", Type: models.GroupTypeManual, Name: "Team A"})
	assert.ErrorIs(t, err, appErrors.ErrStudentGroup)
}

func TestStudentGroupCreateProgramIsIdempotent(t *testing.T) {
	f := newGroupFixture(&models.Course{ID: "c1", GroupMode: models.GroupModeProgram})
	req := &models.CreateStudentGroupRequest{CourseID: "c1", Type: models.GroupTypeProgram, ProgramID: "p1"}

	first, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Math", first.Name)

	second, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.groups.groups, 1)
}

func TestStudentGroupCreateProgramRequiresBinding(t *testing.T) {
	f := newGroupFixture(&models.Course{ID: "c1", GroupMode: models.GroupModeProgram})
	f.svc.bindings = &fakeBindingStore{}

	_, err := f.svc.Create(context.Background(), &models.CreateStudentGroupRequest{CourseID: "c1", Type: models.GroupTypeProgram, ProgramID: "p1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonInvalid, appErrors.FromError(err).Reason)
}

func TestStudentGroupResolveManualUsesDefaultGroup(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	profile := &models.StudentProfile{ID: "sp1", UserID: "s1"}

	group, err := f.svc.Resolve(context.Background(), manualCourse("c1"), profile)
	require.NoError(t, err)
	assert.Equal(t, models.GroupTypeSystem, group.Type)
	assert.Equal(t, models.DefaultGroupName, group.Name)

	again, err := f.svc.Resolve(context.Background(), manualCourse("c1"), profile)
	require.NoError(t, err)
	assert.Equal(t, group.ID, again.ID)
	assert.Len(t, f.groups.groups, 1)
}

func TestStudentGroupResolveProgramRun(t *testing.T) {
	f := newGroupFixture(&models.Course{ID: "c1", GroupMode: models.GroupModeProgramRun})
	profile := &models.StudentProfile{ID: "sp1", UserID: "s1", ProgramID: strPtr("p1"), ProgramRunID: strPtr("r1")}

	group, err := f.svc.Resolve(context.Background(), &models.Course{ID: "c1", GroupMode: models.GroupModeProgramRun}, profile)
	require.NoError(t, err)
	assert.Equal(t, models.GroupTypeProgramRun, group.Type)
	assert.Equal(t, "Math 2026", group.Name)
}

func TestStudentGroupRemoveSystemGroupRefused(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "sys", CourseID: "c1", Type: models.GroupTypeSystem, Name: models.DefaultGroupName})

	err := f.svc.Remove(context.Background(), "sys")
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonInvalid, appErrors.FromError(err).Reason)
}

func TestStudentGroupRemoveProgramGroupWithMembersDowngrades(t *testing.T) {
	f := newGroupFixture(&models.Course{ID: "c1", GroupMode: models.GroupModeProgram})
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeProgram, Name: "Math", ProgramID: strPtr("p1")})
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g1")}

	require.NoError(t, f.svc.Remove(context.Background(), "g1"))

	g := f.groups.groups["g1"]
	require.NotNil(t, g)
	assert.Equal(t, models.GroupTypeManual, g.Type)
	assert.Nil(t, g.ProgramID)
	assert.Empty(t, f.groups.deleted)
}

func TestStudentGroupRemoveManualWithMembersRefused(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "Team A"})
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g1")}

	err := f.svc.Remove(context.Background(), "g1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonInvalid, appErrors.FromError(err).Reason)
}

func TestStudentGroupRemoveMigratesInactiveMembers(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "Team A"})
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g1"), IsDeleted: true}

	require.NoError(t, f.svc.Remove(context.Background(), "g1"))

	assert.Contains(t, f.groups.deleted, "g1")
	fallback, err := f.groups.FindSystem(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, *f.enrollments.rows["e1"].StudentGroupID)
}

func TestStudentGroupSafeTransferTargets(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})
	f.groups.add(&models.StudentGroup{ID: "g3", CourseID: "c1", Type: models.GroupTypeManual, Name: "C"})
	f.assignments.assignments = []models.Assignment{
		{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g1", "g2"}},
		{ID: "a2", CourseID: "c1"},
	}

	safe, err := f.svc.GetGroupsForSafeTransfer(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, safe, 1)
	assert.Equal(t, "g2", safe[0].ID)
}

func TestStudentGroupSafeTransferUnrestrictedCourse(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})

	safe, err := f.svc.GetGroupsForSafeTransfer(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, safe, 1)
	assert.Equal(t, "g2", safe[0].ID)
}

func TestStudentGroupTransferSafe(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g1")}

	require.NoError(t, f.svc.TransferStudents(context.Background(), "g1", "g2", []string{"e1"}, false))

	assert.Equal(t, "g2", *f.enrollments.rows["e1"].StudentGroupID)
	assert.Empty(t, f.sync.removed)
}

func TestStudentGroupTransferUnsafeNeedsConsent(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})
	f.assignments.assignments = []models.Assignment{{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g1"}}}
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g1")}

	err := f.svc.TransferStudents(context.Background(), "g1", "g2", []string{"e1"}, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonUnsafe, appErrors.FromError(err).Reason)
	assert.Equal(t, "g1", *f.enrollments.rows["e1"].StudentGroupID)
}

func TestStudentGroupTransferUnsafeTrashesRecords(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})
	f.assignments.assignments = []models.Assignment{
		{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g1"}},
		{ID: "a2", CourseID: "c1", RestrictedTo: []string{"g2"}},
	}
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g1")}

	require.NoError(t, f.svc.TransferStudents(context.Background(), "g1", "g2", []string{"e1"}, true))

	assert.Equal(t, "g2", *f.enrollments.rows["e1"].StudentGroupID)
	assert.Equal(t, []string{"s1"}, f.sync.removed["a1"])
	assert.Equal(t, []string{"g2"}, f.sync.bulkCreated["a2"])
}

func TestStudentGroupTransferStaleMembership(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})
	f.enrollments.rows["e1"] = &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", StudentGroupID: strPtr("g2")}

	err := f.svc.TransferStudents(context.Background(), "g1", "g2", []string{"e1"}, false)
	assert.ErrorIs(t, err, appErrors.ErrIntegrity)
}

func TestStudentGroupUpdateName(t *testing.T) {
	f := newGroupFixture(manualCourse("c1"))
	f.groups.add(&models.StudentGroup{ID: "g1", CourseID: "c1", Type: models.GroupTypeManual, Name: "A"})
	f.groups.add(&models.StudentGroup{ID: "g2", CourseID: "c1", Type: models.GroupTypeManual, Name: "B"})

	group, err := f.svc.Update(context.Background(), "g1", "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", group.Name)

	_, err = f.svc.Update(context.Background(), "g1", "b")
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonUnique, appErrors.FromError(err).Reason)
}
