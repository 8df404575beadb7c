package course_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/course"
	inmemdb "github.com/somahq/soma/storage/database/inmem"
)

func newService(t *testing.T) *course.Service {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	return course.NewService(inmemdb.NewCourseRepository(db))
}

func validationErr(t *testing.T, err error) *core.ValidationError {
	t.Helper()

	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	return vErr
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{course.StatusDraft, course.StatusPublished, true},
		{course.StatusPublished, course.StatusArchived, true},
		{course.StatusDraft, course.StatusArchived, false},
		{course.StatusPublished, course.StatusDraft, false},
		{course.StatusArchived, course.StatusPublished, false},
		{course.StatusDraft, course.StatusDraft, false},
		{course.StatusDraft, "lol", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, course.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestService_Transition(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	crs, err := svc.Create(ctx, course.NewCourse{Code: "MATH101", Title: "Algebra"})
	require.NoError(t, err)
	assert.Equal(t, course.StatusDraft, crs.Status)

	_, err = svc.Transition(ctx, crs.ID, course.StatusArchived)
	assert.Equal(t, course.ErrBadTransition, validationErr(t, err).Err)

	crs, err = svc.Transition(ctx, crs.ID, course.StatusPublished)
	require.NoError(t, err)
	assert.True(t, crs.IsPublished())

	crs, err = svc.Transition(ctx, crs.ID, course.StatusArchived)
	require.NoError(t, err)
	assert.Equal(t, course.StatusArchived, crs.Status)

	_, err = svc.Transition(ctx, "lol", course.StatusPublished)
	assert.ErrorIs(t, err, course.ErrNotFound)
}

func TestService_Enroll(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	studentID := "19cd3ab2-0f8d-4a5f-8592-0da1e6f823ab"

	draft, err := svc.Create(ctx, course.NewCourse{Code: "BIO101", Title: "Biology"})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, draft.ID, studentID)
	assert.Equal(t, course.ErrNotPublished, validationErr(t, err).Err)

	crs, err := svc.Transition(ctx, draft.ID, course.StatusPublished)
	require.NoError(t, err)

	enr, err := svc.Enroll(ctx, crs.ID, studentID)
	require.NoError(t, err)
	assert.Equal(t, studentID, enr.StudentID)
	assert.NotZero(t, enr.EnrolledAt)

	_, err = svc.Enroll(ctx, crs.ID, studentID)
	assert.Equal(t, course.ErrAlreadyEnrolled, validationErr(t, err).Err)

	enrolled, err := svc.IsEnrolled(ctx, crs.ID, studentID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	require.NoError(t, svc.Unenroll(ctx, crs.ID, studentID))
	enrolled, err = svc.IsEnrolled(ctx, crs.ID, studentID)
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestService_AddLesson_appendsPosition(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	crs, err := svc.Create(ctx, course.NewCourse{Code: "CHEM101", Title: "Chemistry"})
	require.NoError(t, err)

	first, err := svc.AddLesson(ctx, crs.ID, course.NewLesson{Title: "Atoms"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)

	second, err := svc.AddLesson(ctx, crs.ID, course.NewLesson{Title: "Molecules"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)

	pinned, err := svc.AddLesson(ctx, crs.ID, course.NewLesson{Title: "Intro", Position: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, pinned.Position)
}
