package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
)

func strPtr(s string) *string {
	return &s
}

type fakeAssignmentStore struct {
	assignments map[string]*models.Assignment
}

func (f *fakeAssignmentStore) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := f.assignments[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type fakeEnrollmentLister struct {
	enrollments []models.Enrollment
}

func (f *fakeEnrollmentLister) ListActiveByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range f.enrollments {
		if e.CourseID == courseID && !e.IsDeleted {
			list = append(list, e)
		}
	}
	return list, nil
}

type fakeRecordStore struct {
	records map[string]*models.StudentAssignment
	nextID  int
}

func recordKey(assignmentID, studentID string) string {
	return assignmentID + "/" + studentID
}

func (f *fakeRecordStore) put(assignmentID, studentID string, trashed bool) *models.StudentAssignment {
	if f.records == nil {
		f.records = make(map[string]*models.StudentAssignment)
	}
	f.nextID++
	r := &models.StudentAssignment{ID: fmt.Sprintf("sa%d", f.nextID), AssignmentID: assignmentID, StudentID: studentID}
	if trashed {
		now := time.Now()
		r.DeletedAt = &now
	}
	f.records[recordKey(assignmentID, studentID)] = r
	return r
}

func (f *fakeRecordStore) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.StudentAssignment, error) {
	if r, ok := f.records[recordKey(assignmentID, studentID)]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRecordStore) Create(ctx context.Context, record *models.StudentAssignment) error {
	r := f.put(record.AssignmentID, record.StudentID, false)
	record.ID = r.ID
	return nil
}

func (f *fakeRecordStore) Restore(ctx context.Context, id string) error {
	for _, r := range f.records {
		if r.ID == id {
			r.DeletedAt = nil
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeRecordStore) InsertMissing(ctx context.Context, assignmentID string, studentIDs []string) (int64, error) {
	var created int64
	for _, sid := range studentIDs {
		if _, ok := f.records[recordKey(assignmentID, sid)]; !ok {
			f.put(assignmentID, sid, false)
			created++
		}
	}
	return created, nil
}

func (f *fakeRecordStore) RestoreForStudents(ctx context.Context, assignmentID string, studentIDs []string) (int64, error) {
	var restored int64
	for _, sid := range studentIDs {
		if r, ok := f.records[recordKey(assignmentID, sid)]; ok && r.DeletedAt != nil {
			r.DeletedAt = nil
			restored++
		}
	}
	return restored, nil
}

func (f *fakeRecordStore) TrashForStudents(ctx context.Context, assignmentID string, studentIDs []string) (int64, error) {
	var trashed int64
	now := time.Now()
	for _, sid := range studentIDs {
		if r, ok := f.records[recordKey(assignmentID, sid)]; ok && r.DeletedAt == nil {
			r.DeletedAt = &now
			trashed++
		}
	}
	return trashed, nil
}

func (f *fakeRecordStore) ListActiveStudentIDs(ctx context.Context, assignmentID string) ([]string, error) {
	var ids []string
	for _, r := range f.records {
		if r.AssignmentID == assignmentID && r.DeletedAt == nil {
			ids = append(ids, r.StudentID)
		}
	}
	return ids, nil
}

func (f *fakeRecordStore) statusOf(assignmentID, studentID string) (models.StudentAssignmentStatus, bool) {
	r, ok := f.records[recordKey(assignmentID, studentID)]
	if !ok {
		return "", false
	}
	return r.Status(), true
}

type fakePurger struct {
	purged map[string][]string
}

func (f *fakePurger) PurgeForStudents(ctx context.Context, courseID string, studentIDs []string) error {
	if f.purged == nil {
		f.purged = make(map[string][]string)
	}
	f.purged[courseID] = append(f.purged[courseID], studentIDs...)
	return nil
}

func activeEnrollment(id, studentID, courseID, groupID string) models.Enrollment {
	e := models.Enrollment{ID: id, StudentID: studentID, CourseID: courseID}
	if groupID != "" {
		e.StudentGroupID = strPtr(groupID)
	}
	return e
}

func newSyncFixture(assignment *models.Assignment, enrollments []models.Enrollment) (*AssignmentSyncService, *fakeRecordStore, *fakePurger) {
	records := &fakeRecordStore{}
	purger := &fakePurger{}
	svc := NewAssignmentSyncService(
		&fakeAssignmentStore{assignments: map[string]*models.Assignment{assignment.ID: assignment}},
		&fakeEnrollmentLister{enrollments: enrollments},
		records,
		purger,
		zap.NewNop(),
	)
	return svc, records, purger
}

func TestAssignmentSyncBulkCreateHonorsRestrictions(t *testing.T) {
	assignment := &models.Assignment{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g1"}}
	svc, records, _ := newSyncFixture(assignment, []models.Enrollment{
		activeEnrollment("e1", "s1", "c1", "g1"),
		activeEnrollment("e2", "s2", "c1", "g2"),
	})

	require.NoError(t, svc.BulkCreate(context.Background(), "a1", nil))

	status, ok := records.statusOf("a1", "s1")
	require.True(t, ok)
	assert.Equal(t, models.StudentAssignmentActive, status)
	_, ok = records.statusOf("a1", "s2")
	assert.False(t, ok)
}

func TestAssignmentSyncBulkCreateRestoresTrashed(t *testing.T) {
	assignment := &models.Assignment{ID: "a1", CourseID: "c1"}
	svc, records, _ := newSyncFixture(assignment, []models.Enrollment{
		activeEnrollment("e2", "s2", "c1", "g2"),
	})
	trashed := records.put("a1", "s2", true)
	score := 7
	trashed.Score = &score

	require.NoError(t, svc.BulkCreate(context.Background(), "a1", nil))

	r := records.records[recordKey("a1", "s2")]
	assert.Nil(t, r.DeletedAt)
	require.NotNil(t, r.Score)
	assert.Equal(t, 7, *r.Score)
}

func TestAssignmentSyncBulkRemoveTrashesExcludedHolders(t *testing.T) {
	assignment := &models.Assignment{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g1"}}
	svc, records, purger := newSyncFixture(assignment, []models.Enrollment{
		activeEnrollment("e1", "s1", "c1", "g1"),
		activeEnrollment("e2", "s2", "c1", "g2"),
	})
	records.put("a1", "s1", false)
	records.put("a1", "s2", false)
	// s3 left the course; the record stays as history.
	records.put("a1", "s3", false)

	require.NoError(t, svc.BulkRemove(context.Background(), "a1", nil))

	status, _ := records.statusOf("a1", "s1")
	assert.Equal(t, models.StudentAssignmentActive, status)
	status, _ = records.statusOf("a1", "s2")
	assert.Equal(t, models.StudentAssignmentDeleted, status)
	status, _ = records.statusOf("a1", "s3")
	assert.Equal(t, models.StudentAssignmentActive, status)
	assert.Equal(t, []string{"s2"}, purger.purged["c1"])
}

func TestAssignmentSyncBulkRemoveUnrestrictedIsNoop(t *testing.T) {
	assignment := &models.Assignment{ID: "a1", CourseID: "c1"}
	svc, records, purger := newSyncFixture(assignment, []models.Enrollment{
		activeEnrollment("e1", "s1", "c1", "g1"),
	})
	records.put("a1", "s1", false)

	require.NoError(t, svc.BulkRemove(context.Background(), "a1", nil))

	status, _ := records.statusOf("a1", "s1")
	assert.Equal(t, models.StudentAssignmentActive, status)
	assert.Empty(t, purger.purged)
}

func TestAssignmentSyncSyncAfterRestrictionChange(t *testing.T) {
	// Restriction moved from {g1} to {g2}: s2's trashed record comes back,
	// s1's active record is trashed.
	assignment := &models.Assignment{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g2"}}
	svc, records, _ := newSyncFixture(assignment, []models.Enrollment{
		activeEnrollment("e1", "s1", "c1", "g1"),
		activeEnrollment("e2", "s2", "c1", "g2"),
	})
	records.put("a1", "s1", false)
	records.put("a1", "s2", true)

	require.NoError(t, svc.Sync(context.Background(), "a1"))

	status, _ := records.statusOf("a1", "s1")
	assert.Equal(t, models.StudentAssignmentDeleted, status)
	status, _ = records.statusOf("a1", "s2")
	assert.Equal(t, models.StudentAssignmentActive, status)
}

func TestAssignmentSyncCreateOrRestore(t *testing.T) {
	assignment := &models.Assignment{ID: "a1", CourseID: "c1", RestrictedTo: []string{"g1"}}
	svc, records, _ := newSyncFixture(assignment, nil)

	outside := activeEnrollment("e2", "s2", "c1", "g2")
	record, err := svc.CreateOrRestore(context.Background(), assignment, &outside)
	require.NoError(t, err)
	assert.Nil(t, record)

	member := activeEnrollment("e1", "s1", "c1", "g1")
	record, err = svc.CreateOrRestore(context.Background(), assignment, &member)
	require.NoError(t, err)
	require.NotNil(t, record)
	status, _ := records.statusOf("a1", "s1")
	assert.Equal(t, models.StudentAssignmentActive, status)

	records.records[recordKey("a1", "s1")].DeletedAt = &time.Time{}
	record, err = svc.CreateOrRestore(context.Background(), assignment, &member)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Nil(t, record.DeletedAt)
	status, _ = records.statusOf("a1", "s1")
	assert.Equal(t, models.StudentAssignmentActive, status)
}
