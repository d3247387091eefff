package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/review"
)

func TestCourseRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCourseRepository(Open())
	now := time.Now().UTC()

	c1, err := repo.CreateCourse(ctx, course.Course{Title: "Go", Status: course.StatusApproved, Lectures: []course.Lecture{{ID: "l1", NoteFiles: []string{"a"}}}, CreatedAt: now})
	require.NoError(t, err)
	c2, err := repo.CreateCourse(ctx, course.Course{Title: "Rust", Description: "systems", Status: course.StatusPending, CreatedAt: now})
	require.NoError(t, err)
	c3, err := repo.CreateCourse(ctx, course.Course{Title: "Python", Status: course.StatusApproved, CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	t.Run("newest first, ties by insertion", func(t *testing.T) {
		got, total, err := repo.QueryCourses(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, got, 3)
		assert.Equal(t, []string{c2.ID, c1.ID, c3.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	})

	t.Run("filter & paginate", func(t *testing.T) {
		got, total, err := repo.QueryCourses(ctx, &course.QueryFilter{Status: course.StatusApproved}, &core.Page{Page: 2, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, got, 1)
		assert.Equal(t, c3.ID, got[0].ID)

		got, _, err = repo.QueryCourses(ctx, &course.QueryFilter{Search: "SYSTEMS"}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, c2.ID, got[0].ID)
	})

	t.Run("rows are detached", func(t *testing.T) {
		c1.Lectures[0].NoteFiles[0] = "changed"
		got, err := repo.GetCourse(ctx, c1.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Lectures[0].NoteFiles[0])
	})

	t.Run("students count", func(t *testing.T) {
		require.NoError(t, repo.IncrementStudentsCount(ctx, c1.ID, 2))
		require.NoError(t, repo.IncrementStudentsCount(ctx, c3.ID, -1))

		c1.Title = "Go 101"
		c1.StudentsCount = 99
		got, err := repo.UpdateCourse(ctx, c1)
		require.NoError(t, err)
		assert.Equal(t, "Go 101", got.Title)
		assert.Equal(t, 2, got.StudentsCount)

		n, err := repo.SetStudentsCounts(ctx, map[string]int{c1.ID: 2, c2.ID: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got, err = repo.GetCourse(ctx, c3.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.StudentsCount)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteCourse(ctx, c2.ID))
		assert.Equal(t, course.ErrNotFound, repo.DeleteCourse(ctx, c2.ID))
		_, err := repo.GetCourse(ctx, c2.ID)
		assert.Equal(t, course.ErrNotFound, err)
		_, err = repo.UpdateCourse(ctx, c2)
		assert.Equal(t, course.ErrNotFound, err)
	})
}

func TestEnrollmentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(Open())
	now := time.Now().UTC()

	enr, created, err := repo.GetOrCreateEnrollment(ctx, "s1", "c1", now)
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := repo.GetOrCreateEnrollment(ctx, "s1", "c1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, enr.ID, again.ID)
	_, _, err = repo.GetOrCreateEnrollment(ctx, "s2", "c1", now)
	require.NoError(t, err)

	enr.SetLectureProgress("l1", true, 12, now)
	enr.Recompute(2)
	saved, err := repo.SaveProgress(ctx, enr)
	require.NoError(t, err)
	assert.Equal(t, 50, saved.ProgressPercent)
	_, err = repo.SaveProgress(ctx, enrollment.Enrollment{StudentID: "s9", CourseID: "c1"})
	assert.Equal(t, enrollment.ErrNotFound, err)

	_, changed, err := repo.SetBlocked(ctx, "s2", "c1", true)
	require.NoError(t, err)
	assert.True(t, changed)
	_, changed, err = repo.SetBlocked(ctx, "s2", "c1", true)
	require.NoError(t, err)
	assert.False(t, changed)
	_, _, err = repo.SetBlocked(ctx, "s9", "c1", true)
	assert.Equal(t, enrollment.ErrNotFound, err)

	counts, err := repo.CountByCourse(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c1": 1}, counts)

	enrs, err := repo.QueryEnrollments(ctx, enrollment.QueryFilter{CourseID: "c1"})
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
	enrs, err = repo.QueryEnrollments(ctx, enrollment.QueryFilter{CourseID: "c1", IncludeBlocked: true})
	require.NoError(t, err)
	require.Len(t, enrs, 2)
	assert.Equal(t, "s2", enrs[0].StudentID)

	cnt, err := repo.CountEnrollments(ctx, enrollment.QueryFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
}

func TestReviewRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewReviewRepository(Open())
	now := time.Now().UTC()

	r1, err := repo.UpsertReview(ctx, review.Review{UserID: "u1", CourseID: "c1", Rating: 3, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	_, err = repo.UpsertReview(ctx, review.Review{UserID: "u2", CourseID: "c1", Rating: 5, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	updated, err := repo.UpsertReview(ctx, review.Review{UserID: "u1", CourseID: "c1", Rating: 4, Review: "better", CreatedAt: now.Add(time.Hour), UpdatedAt: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, r1.ID, updated.ID)
	assert.Equal(t, 4, updated.Rating)
	assert.Equal(t, now, updated.CreatedAt)

	reviews, err := repo.QueryReviews(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "u2", reviews[0].UserID)

	reviews, err = repo.QueryReviews(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}
