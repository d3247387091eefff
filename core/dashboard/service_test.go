package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/enrollment"
)

func TestUploadStreak(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2026, time.March, d, h, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		dates      []time.Time
		wantStreak int
		wantLast   *time.Time
	}{
		{name: "no uploads"},
		{name: "single upload", dates: []time.Time{day(10, 8)}, wantStreak: 1},
		{name: "same day", dates: []time.Time{day(10, 8), day(10, 20)}, wantStreak: 1},
		{name: "consecutive days", dates: []time.Time{day(8, 9), day(10, 8), day(9, 23)}, wantStreak: 3},
		{name: "gap breaks the streak", dates: []time.Time{day(5, 9), day(9, 8), day(10, 8), day(7, 8)}, wantStreak: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streak, last := UploadStreak(tt.dates, time.UTC)
			assert.Equal(t, tt.wantStreak, streak)
			if len(tt.dates) == 0 {
				assert.Nil(t, last)
				return
			}
			require.NotNil(t, last)
			assert.Equal(t, 10, last.Day())
		})
	}
}

func Test_computeKPIs(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	watched := now.Add(-time.Hour)
	courses := []course.Course{
		{ID: "c1", CreatedAt: now.AddDate(0, -2, 0), Lectures: []course.Lecture{
			{ID: "l1", CreatedAt: now.AddDate(0, -2, 0)},
			{ID: "l2", CreatedAt: now.AddDate(0, 0, -1)},
		}},
		{ID: "c2", CreatedAt: now.AddDate(0, 0, -3)},
	}
	enrs := []enrollment.Enrollment{
		{CourseID: "c1", ProgressPercent: 50, LastWatchedAt: &watched, CreatedAt: now.Add(-time.Hour)},
		{CourseID: "c1", ProgressPercent: 100, CreatedAt: now.AddDate(0, 0, -10)},
		{CourseID: "c2", ProgressPercent: 0, CreatedAt: now.AddDate(0, 0, -1)},
	}

	kpis := computeKPIs(courses, enrs, now)
	assert.Equal(t, 2, kpis.TotalCourses)
	assert.Equal(t, 2, kpis.TotalLectures)
	assert.Equal(t, 1, kpis.MonthlyCourses)
	assert.Equal(t, 1, kpis.MonthlyLectures)
	assert.Equal(t, 1, kpis.ActiveStudents)
	assert.Equal(t, 2, kpis.RecentTwoDaysEnrollmentsCount)
	assert.Equal(t, 50, kpis.AvgCompletion)

	top := topCourses(courses, enrs)
	require.Len(t, top, 2)
	assert.Equal(t, "c1", top[0].ID)
	assert.Equal(t, 2, top[0].Enrollments)
	assert.Equal(t, 75, top[0].AvgCompletion)
}
